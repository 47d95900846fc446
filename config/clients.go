package config

import (
	"context"

	"github.com/zllovesuki/payablesubs/billing"
	"github.com/zllovesuki/payablesubs/db"
	"github.com/zllovesuki/payablesubs/external"
	"github.com/zllovesuki/payablesubs/spec"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Database connects to the record store
func (c *Config) Database(logger *zap.Logger) (*gorm.DB, error) {
	return db.New(db.Options{
		URI:    c.PostgresURI,
		Logger: logger,
	})
}

// Ledger returns the payment ledger client
func (c *Config) Ledger(ctx context.Context, logger *zap.Logger) (*external.VenmoClient, error) {
	return external.NewVenmoClient(ctx, external.VenmoOptions{
		BaseURL:     c.VenmoURL,
		AccessToken: c.VenmoAccessToken,
		Logger:      logger,
	})
}

// Directory returns the directory notifier. It is disabled when no contact label is configured
func (c *Config) Directory(ctx context.Context, logger *zap.Logger) (*billing.DirectoryNotifier, error) {
	var directory spec.Directory
	if len(c.GoogleContactLabel) > 0 {
		contacts, err := external.NewGoogleContactsClient(ctx, external.GoogleContactsOptions{
			CredentialsFile: c.GoogleCredentialsFile,
			TokenFile:       c.GoogleTokenFile,
			Logger:          logger,
		})
		if err != nil {
			return nil, err
		}
		directory = contacts
	}
	return billing.NewDirectoryNotifier(billing.DirectoryNotifierOptions{
		Directory: directory,
		GroupID:   c.GoogleContactLabel,
		Logger:    logger,
	})
}
