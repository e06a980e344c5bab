// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"github.com/dalemusser/securenotes/internal/app/system/auditlog"
	"github.com/dalemusser/securenotes/internal/app/system/authflow"
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds database and backend dependencies for this WAFFLE app.
//
// This struct is created in ConnectDB and passed to subsequent lifecycle
// hooks: EnsureSchema, Startup, BuildHandler, and Shutdown. The Shutdown hook
// drains the auditor and closes the Mongo client.
type DBDeps struct {
	// MongoDB client and database
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database

	// Mailer delivers login codes (SMTP, or the log backend in development).
	Mailer authflow.Mailer

	// Audit writes activity_log entries through its own goroutine, started
	// in Startup and drained in Shutdown.
	Audit *auditlog.Logger
}
