package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/zllovesuki/payablesubs/billing"
	"github.com/zllovesuki/payablesubs/config"
	"github.com/zllovesuki/payablesubs/customer"
	"github.com/zllovesuki/payablesubs/subscription"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Build-time injected variables
var (
	Version = ""
)

func parseStart(s string) (time.Time, error) {
	if len(s) == 0 {
		return time.Now().UTC(), nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as a date", s)
}

func main() {
	email := flag.String("email", "", "subscriber's email address")
	firstName := flag.String("first", "", "subscriber's first name")
	lastName := flag.String("last", "", "subscriber's last name")
	plan := flag.String("plan", "", "name of the plan")
	cost := flag.String("cost", "", "cost of the plan; defaults to the plan's first cost")
	start := flag.String("start", "", "first billing date as YYYY-MM-DD or RFC3339; defaults to now")
	payer := flag.String("payer", "", "Venmo username the subscriber pays from")
	flag.Parse()

	env, dotFile := config.Environment()
	cfg, err := config.Load(dotFile)
	if err != nil {
		log.Fatalf("Cannot load configurations: %v\n", err)
	}
	logger, flush, err := config.NewLogger(env, "enroll", Version, cfg.SentryDSN)
	if err != nil {
		log.Fatalf("Cannot initialize logger: %v\n", err)
	}
	defer flush()

	req := billing.EnrollRequest{
		Email:         *email,
		FirstName:     *firstName,
		LastName:      *lastName,
		Plan:          *plan,
		PayerUsername: *payer,
	}
	if req.Start, err = parseStart(*start); err != nil {
		logger.Fatal("Invalid start date",
			zap.Error(err),
		)
	}
	if len(*cost) > 0 {
		c, err := decimal.NewFromString(*cost)
		if err != nil {
			logger.Fatal("Invalid cost",
				zap.String("Cost", *cost),
				zap.Error(err),
			)
		}
		req.Cost = &c
	}

	ctx := context.Background()

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
	directory, err := cfg.Directory(ctx, logger)
	if err != nil {
		logger.Fatal("Cannot initialize directory",
			zap.Error(err),
		)
	}

	enroller, err := billing.NewEnroller(billing.EnrollerOptions{
		Customers:     customerManager,
		Subscriptions: subscriptionManager,
		Ledger:        ledger,
		Directory:     directory,
		Logger:        logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Enroller",
			zap.Error(err),
		)
	}

	sub, err := enroller.Enroll(ctx, req)
	if err != nil {
		logger.Fatal("Cannot enroll subscriber",
			zap.String("Email", req.Email),
			zap.Error(err),
		)
	}
	fmt.Println(sub.String())
}
