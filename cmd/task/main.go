package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/zllovesuki/payablesubs/billing"
	"github.com/zllovesuki/payablesubs/broker"
	"github.com/zllovesuki/payablesubs/config"
	"github.com/zllovesuki/payablesubs/customer"
	"github.com/zllovesuki/payablesubs/lock"
	"github.com/zllovesuki/payablesubs/spec"
	"github.com/zllovesuki/payablesubs/subscription"

	"github.com/go-redis/redis/v7"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Build-time injected variables
var (
	Version = ""
)

func main() {
	dryRun := flag.Bool("dry-run", false, "compute bills and matches without sending requests or saving changes")
	schedule := flag.String("schedule", "", "cron spec to keep reconciling on; runs once when empty")
	flag.Parse()

	// Determine running environment and initialize structural logger
	env, dotFile := config.Environment()
	cfg, err := config.Load(dotFile)
	if err != nil {
		log.Fatalf("Cannot load configurations: %v\n", err)
	}
	logger, flush, err := config.NewLogger(env, "task", Version, cfg.SentryDSN)
	if err != nil {
		log.Fatalf("Cannot initialize logger: %v\n", err)
	}
	defer flush()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize backend connections
	db, err := cfg.Database(logger)
	if err != nil {
		logger.Fatal("Cannot connect to Postgres",
			zap.Error(err),
		)
	}

	customerManager, err := customer.NewManager(logger, db)
	if err != nil {
		logger.Fatal("Cannot initialize CustomerManager",
			zap.Error(err),
		)
	}

	subscriptionManager, err := subscription.NewManager(subscription.ManagerOptions{
		DB:     db,
		Logger: logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize SubscriptionManager",
			zap.Error(err),
		)
	}

	ledger, err := cfg.Ledger(ctx, logger)
	if err != nil {
		logger.Fatal("Cannot initialize Venmo client",
			zap.Error(err),
		)
	}

	notifier, err := cfg.Directory(ctx, logger)
	if err != nil {
		logger.Fatal("Cannot initialize directory",
			zap.Error(err),
		)
	}

	options := billing.ManagerOptions{
		Subscriptions:  subscriptionManager,
		Accounts:       customerManager,
		Ledger:         ledger,
		Notifier:       notifier,
		Logger:         logger,
		BillingEnabled: cfg.BillingEnabled,
		DryRun:         cfg.DryRun || *dryRun,
		Registerer:     prometheus.DefaultRegisterer,
	}

	if len(cfg.AMQPURI) > 0 {
		amqpBroker, err := broker.NewAMQPBroker(logger, cfg.AMQPURI)
		if err != nil {
			logger.Fatal("Cannot connect to Broker",
				zap.Error(err),
			)
		}
		defer amqpBroker.Close()
		options.Producer = amqpBroker
	}

	billingManager, err := billing.NewManager(options)
	if err != nil {
		logger.Fatal("Cannot initialize BillingManager",
			zap.Error(err),
		)
	}

	var runLock *lock.RedisLock
	if len(cfg.RedisURI) > 0 {
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.RedisURI},
			Password: cfg.RedisPassword,
		})
		if _, err := client.Ping().Result(); err != nil {
			logger.Fatal("Cannot connect to Redis",
				zap.Error(err),
			)
		}
		defer client.Close()
		runLock, err = lock.NewRedisLock(client)
		if err != nil {
			logger.Fatal("Cannot initialize run lock",
				zap.Error(err),
			)
		}
	}

	t := &task{
		logger:  logger,
		billing: billingManager,
		lock:    runLock,
		pushURL: cfg.PushgatewayURL,
	}

	if len(*schedule) == 0 {
		if !t.run(ctx) {
			flush()
			os.Exit(1)
		}
		return
	}

	c := cron.New()
	if _, err := c.AddFunc(*schedule, func() {
		t.run(ctx)
	}); err != nil {
		logger.Fatal("Cannot schedule reconciliation",
			zap.String("Schedule", *schedule),
			zap.Error(err),
		)
	}
	c.Start()
	logger.Info("Reconciliation scheduled",
		zap.String("Schedule", *schedule),
	)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	cancel()
	<-c.Stop().Done()
}

type task struct {
	logger  *zap.Logger
	billing *billing.Manager
	lock    *lock.RedisLock
	pushURL string
}

// run reconciles once, holding the run lock when configured. It reports whether the run completed without errors
func (t *task) run(ctx context.Context) bool {
	if t.lock != nil {
		lease, err := t.lock.Acquire(ctx, spec.RunLockKey, spec.DefaultRunLockTTL)
		if err != nil {
			t.logger.Error("Cannot acquire run lock",
				zap.Error(err),
			)
			return false
		}
		if lease == nil {
			t.logger.Warn("Another reconciliation is running. Skipping")
			return true
		}
		defer func() {
			if err := t.lock.Release(context.Background(), lease); err != nil {
				t.logger.Error("Cannot release run lock",
					zap.Error(err),
				)
			}
		}()
	}

	result, err := t.billing.Run(ctx)
	defer t.pushMetrics()
	if err != nil {
		t.logger.Error("Reconciliation aborted",
			zap.Error(err),
		)
		return false
	}
	return len(result.Errors) == 0
}

func (t *task) pushMetrics() {
	if len(t.pushURL) == 0 {
		return
	}
	if err := push.New(t.pushURL, "payablesubs_task").
		Gatherer(prometheus.DefaultGatherer).
		Push(); err != nil {
		t.logger.Warn("Cannot push metrics",
			zap.String("URL", t.pushURL),
			zap.Error(err),
		)
	}
}
