// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/dalemusser/securenotes/internal/app/resources"
	activitystore "github.com/dalemusser/securenotes/internal/app/store/activity"
	"github.com/dalemusser/securenotes/internal/app/store/loginotp"
	"github.com/dalemusser/securenotes/internal/app/system/ratelimit"
	"github.com/dalemusser/securenotes/internal/app/system/tasks"
	"github.com/dalemusser/securenotes/internal/app/system/viewdata"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Startup runs once after DB connections and schema/index setup are complete,
// but before the HTTP handler is built and requests are served.
//
// It boots the template engine (failing fast on a broken template), starts
// the audit writer, creates the login rate limiter and starts the background
// task runner.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if err := resources.BootTemplates(coreCfg.Env == "dev", logger); err != nil {
		logger.Error("template engine boot failed", zap.Error(err))
		return fmt.Errorf("boot templates: %w", err)
	}
	viewdata.UseLogger(logger)

	deps.Audit.Start()
	logger.Info("audit writer started", zap.String("mode", deps.Audit.Mode()))

	loginLimiter = ratelimit.New(appCfg.LoginRatePerMinute, appCfg.LoginRateBurst)

	startTaskRunner(deps, logger)
	return nil
}

// loginLimiter throttles POST /login and POST /verify per client address.
var loginLimiter *ratelimit.Limiter

// taskRunner is the global task runner instance, used for graceful shutdown.
var taskRunner *tasks.Runner

// startTaskRunner registers the maintenance jobs and starts them.
func startTaskRunner(deps DBDeps, logger *zap.Logger) {
	taskRunner = tasks.New(logger)

	taskRunner.Register(tasks.OTPRetentionJob(loginotp.New(deps.MongoDatabase), tasks.DefaultOTPRetention, time.Now, logger))
	taskRunner.Register(tasks.SecuritySummaryJob(activitystore.New(deps.MongoDatabase), deps.Audit.Stats, time.Now, logger))
	taskRunner.Register(tasks.LimiterSweepJob(loginLimiter, logger))

	taskRunner.Start()
}
