package config

import (
	"time"

	"github.com/zllovesuki/payablesubs/spec"

	"github.com/TheZeroSlave/zapsentry"
	"github.com/getsentry/sentry-go"
	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger returns the structural logger for a command. When dsn is set, errors are also reported to sentry.
// The returned func flushes both and must be called before exiting
func NewLogger(env spec.Environment, component, version, dsn string) (*zap.Logger, func(), error) {
	var logger *zap.Logger
	var err error
	if env == spec.EnvProduction {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, nil, extErrors.Wrap(err, "Cannot initialize logger")
	}
	logger = logger.With(zap.String("Version", version))

	if len(dsn) == 0 {
		return logger, func() { logger.Sync() }, nil
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: string(env),
		Release:     version,
		Debug:       env == spec.EnvDevelopment,
	}); err != nil {
		return nil, nil, extErrors.Wrap(err, "Cannot initialize sentry")
	}

	// Attach sentry to zap so we can do automatic error capturing
	cfg := zapsentry.Configuration{
		Level: zapcore.ErrorLevel,
		Tags: map[string]string{
			"component": component,
		},
	}
	core, err := zapsentry.NewCore(cfg, zapsentry.NewSentryClientFromClient(sentry.CurrentHub().Client()))
	if err != nil {
		return nil, nil, extErrors.Wrap(err, "Cannot attach sentry to logger")
	}
	logger = zapsentry.AttachCoreToLogger(core, logger)

	return logger, func() {
		logger.Sync()
		sentry.Flush(time.Second * 2)
	}, nil
}
