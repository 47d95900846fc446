package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"moul.io/zapgorm2"
)

// Options contains the configuration for the database connection
type Options struct {
	URI    string
	Logger *zap.Logger
	// Dialector overrides the PostgreSQL dialector built from URI
	Dialector gorm.Dialector
}

type patchedLogger struct {
	zapgorm2.Logger
}

// ErrRecordNotFound will be handled in application logic, let's not forward this to zap/sentry
func (l *patchedLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return
	}
	l.Logger.Trace(ctx, begin, fc, err)
}

func (l *patchedLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.Logger.LogLevel = level
	return &next
}

// New returns an instance for interacting with the record store
func New(option Options) (*gorm.DB, error) {
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	dialector := option.Dialector
	if dialector == nil {
		if len(option.URI) == 0 {
			return nil, fmt.Errorf("empty URI is invalid")
		}
		dialector = postgres.Open(option.URI)
	}
	gLogger := zapgorm2.New(option.Logger)
	gLogger.LogLevel = gormlogger.Warn
	gLogger.SlowThreshold = time.Second

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: &patchedLogger{
			Logger: gLogger,
		},
	})
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot connect to database")
	}
	pool, err := db.DB()
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot get the connection pool")
	}
	pool.SetMaxIdleConns(1)
	pool.SetMaxOpenConns(20)
	pool.SetConnMaxLifetime(time.Hour)
	return db, nil
}
