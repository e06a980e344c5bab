// internal/app/bootstrap/shutdown.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Shutdown is invoked after the HTTP server has stopped accepting requests.
//
// Order matters: the task runner stops first, then the audit queue drains
// into MongoDB, and only then is the client disconnected. The context
// carries WAFFLE's shutdown deadline.
func Shutdown(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	var firstErr error
	keep := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}

	if taskRunner != nil {
		logger.Info("stopping background task runner")
		if err := taskRunner.Stop(ctx); err != nil {
			logger.Warn("background task runner did not stop cleanly", zap.Error(err))
			keep(err)
		}
	}

	if deps.Audit != nil {
		logger.Info("draining audit queue")
		if err := deps.Audit.Close(ctx); err != nil {
			logger.Warn("audit queue did not drain cleanly", zap.Error(err))
			keep(err)
		}
		st := deps.Audit.Stats()
		logger.Info("audit writer stopped",
			zap.Uint64("written", st.Written),
			zap.Uint64("dropped", st.Dropped),
			zap.Uint64("failed", st.Failed))
	}

	if deps.MongoClient != nil {
		logger.Info("disconnecting MongoDB client")
		if err := deps.MongoClient.Disconnect(ctx); err != nil {
			logger.Error("MongoDB disconnect failed", zap.Error(err))
			keep(err)
		}
	}

	return firstErr
}
