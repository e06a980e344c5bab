// internal/app/bootstrap/db.go
package bootstrap

import (
	"context"

	activitystore "github.com/dalemusser/securenotes/internal/app/store/activity"
	"github.com/dalemusser/securenotes/internal/app/system/auditlog"
	"github.com/dalemusser/securenotes/internal/app/system/authflow"
	"github.com/dalemusser/securenotes/internal/app/system/indexes"
	"github.com/dalemusser/securenotes/internal/app/system/mailer"
	"github.com/dalemusser/securenotes/internal/app/system/validators"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// ConnectDB connects to MongoDB and builds the backends that hold
// connections or goroutines: the mailer and the auditor.
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	// Configure MongoDB connection pool
	poolCfg := wafflemongo.DefaultPoolConfig()
	if appCfg.MongoMaxPoolSize > 0 {
		poolCfg.MaxPoolSize = appCfg.MongoMaxPoolSize
	}
	if appCfg.MongoMinPoolSize > 0 {
		poolCfg.MinPoolSize = appCfg.MongoMinPoolSize
	}

	client, err := wafflemongo.ConnectWithPool(ctx, appCfg.MongoURI, appCfg.MongoDatabase, poolCfg)
	if err != nil {
		return DBDeps{}, err
	}

	db := client.Database(appCfg.MongoDatabase)

	logger.Info("connected to MongoDB",
		zap.String("database", appCfg.MongoDatabase),
		zap.Uint64("max_pool_size", poolCfg.MaxPoolSize),
		zap.Uint64("min_pool_size", poolCfg.MinPoolSize),
	)

	audit := auditlog.New(activitystore.New(db), logger, auditlog.Config{
		Mode:    appCfg.AuditMode,
		Buffer:  appCfg.AuditBuffer,
		Retries: appCfg.AuditRetries,
	})

	return DBDeps{
		MongoClient:   client,
		MongoDatabase: db,
		Mailer:        newMailer(appCfg, logger),
		Audit:         audit,
	}, nil
}

// newMailer picks the configured mail backend.
func newMailer(appCfg AppConfig, logger *zap.Logger) authflow.Mailer {
	if appCfg.MailBackend == MailBackendLog {
		logger.Warn("login codes are written to the log, not emailed (mail_backend=log)")
		return mailer.NewLogMailer(logger)
	}
	logger.Info("initialized email mailer",
		zap.String("host", appCfg.MailSMTPHost),
		zap.Int("port", appCfg.MailSMTPPort),
		zap.Duration("timeout", appCfg.SMTPTimeout),
	)
	return mailer.New(mailer.Config{
		Host:     appCfg.MailSMTPHost,
		Port:     appCfg.MailSMTPPort,
		User:     appCfg.MailSMTPUser,
		Pass:     appCfg.MailSMTPPass,
		From:     appCfg.MailFrom,
		FromName: appCfg.MailFromName,
		Timeout:  appCfg.SMTPTimeout,
	}, logger)
}

// EnsureSchema creates collections with their validators, then indexes.
//
// The context has a timeout based on coreCfg.IndexBootTimeout.
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	db := deps.MongoDatabase

	// Collections first so indexes are created on existing collections.
	logger.Info("ensuring collections and validators")
	if err := validators.EnsureAll(ctx, db); err != nil {
		logger.Error("failed to ensure validators", zap.Error(err))
		return err
	}

	logger.Info("ensuring database indexes")
	if err := indexes.EnsureAll(ctx, db); err != nil {
		logger.Error("failed to ensure indexes", zap.Error(err))
		return err
	}

	logger.Info("database schema ensured successfully")
	return nil
}
