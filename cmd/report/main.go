package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/zllovesuki/payablesubs/config"
	"github.com/zllovesuki/payablesubs/subscription"

	"go.uber.org/zap"
)

// Build-time injected variables
var (
	Version = ""
)

func formatDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format("2006-01-02")
}

func main() {
	cost := flag.String("cost", string(subscription.CostPaying), "PAYING, FREE or ALL")
	includeInactive := flag.Bool("include-inactive", false, "also list inactive and expired subscriptions")
	flag.Parse()

	env, dotFile := config.Environment()
	cfg, err := config.Load(dotFile)
	if err != nil {
		log.Fatalf("Cannot load configurations: %v\n", err)
	}
	logger, flush, err := config.NewLogger(env, "report", Version, cfg.SentryDSN)
	if err != nil {
		log.Fatalf("Cannot initialize logger: %v\n", err)
	}
	defer flush()

	db, err := cfg.Database(logger)
	if err != nil {
		logger.Fatal("Cannot connect to Postgres",
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

	subs, err := subscriptionManager.Report(context.Background(), subscription.ReportOption{
		Cost:            subscription.CostClass(strings.ToUpper(*cost)),
		IncludeInactive: *includeInactive,
	})
	if err != nil {
		logger.Fatal("Cannot generate report",
			zap.Error(err),
		)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "EMAIL\tNAME\tPLAN\tCOST\tSTATE\tNEXT\tLAST PAID")
	for _, sub := range subs {
		fmt.Fprintf(w, "%s\t%s %s\t%s\t%s/%d %s\t%s\t%s\t%s\n",
			sub.Customer.Email,
			sub.Customer.FirstName, sub.Customer.LastName,
			sub.PlanCost.Plan.Name,
			sub.PlanCost.Cost.StringFixed(2), sub.PlanCost.RecurrencePeriod, sub.PlanCost.RecurrenceUnit,
			sub.State(),
			formatDate(sub.DateBillingNext),
			formatDate(sub.DateBillingLast),
		)
	}
	w.Flush()
}
