// internal/app/bootstrap/hooks.go
package bootstrap

import (
	"github.com/dalemusser/waffle/app"
)

// Hooks wires this app into the WAFFLE lifecycle.
// Each function is called in order by app.Run, from configuration
// loading through DB setup, one-time startup work, HTTP handler
// construction, and finally graceful shutdown.
var Hooks = app.Hooks[AppConfig, DBDeps]{
	Name:           "securenotes",  // used only for logging/diagnostics
	LoadConfig:     LoadConfig,     // load core + app config
	ValidateConfig: ValidateConfig, // Mongo URI, positive knobs, backends, CIDRs
	ConnectDB:      ConnectDB,      // connect to MongoDB, build mailer and auditor
	EnsureSchema:   EnsureSchema,   // collections, validators, indexes
	Startup:        Startup,        // templates, audit writer, rate limiter, task runner
	BuildHandler:   BuildHandler,   // build the HTTP router + middleware stack
	Shutdown:       Shutdown,       // stop jobs, drain audit, disconnect MongoDB
}
