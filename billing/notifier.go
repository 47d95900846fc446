package billing

import (
	"context"
	"fmt"

	"github.com/zllovesuki/payablesubs/customer"
	"github.com/zllovesuki/payablesubs/spec"
	"github.com/zllovesuki/payablesubs/subscription"

	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

// ExpiryNotifier is told about subscriptions that just expired
type ExpiryNotifier interface {
	NotifyExpired(ctx context.Context, sub *subscription.Subscription) error
}

type DirectoryNotifierOptions struct {
	Directory spec.Directory
	GroupID   string // empty disables the integration
	Logger    *zap.Logger
}

// DirectoryNotifier keeps a directory group in sync with active subscribers
type DirectoryNotifier struct {
	DirectoryNotifierOptions
}

var _ ExpiryNotifier = &DirectoryNotifier{}

func NewDirectoryNotifier(option DirectoryNotifierOptions) (*DirectoryNotifier, error) {
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if len(option.GroupID) > 0 && option.Directory == nil {
		return nil, fmt.Errorf("nil Directory is invalid")
	}
	return &DirectoryNotifier{
		DirectoryNotifierOptions: option,
	}, nil
}

func (d *DirectoryNotifier) Enabled() bool {
	return len(d.GroupID) > 0
}

func (d *DirectoryNotifier) search(ctx context.Context, email string) ([]spec.DirectoryEntry, error) {
	entries, err := d.Directory.SearchByEmail(ctx, email)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot search directory")
	}
	if len(entries) > 1 {
		d.Logger.Error("Found multiple directory entries",
			zap.String("Email", email),
			zap.Int("Count", len(entries)),
		)
		return nil, extErrors.Wrapf(ErrDirectoryLookup, "found %d entries for %s", len(entries), email)
	}
	return entries, nil
}

// NotifyExpired removes the subscriber from the directory group
func (d *DirectoryNotifier) NotifyExpired(ctx context.Context, sub *subscription.Subscription) error {
	email := sub.Customer.Email
	if !d.Enabled() {
		d.Logger.Info("Directory integration not configured. Not removing subscriber",
			zap.String("Email", email),
		)
		return nil
	}
	entries, err := d.search(ctx, email)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		d.Logger.Error("Subscriber not found in directory",
			zap.String("Email", email),
		)
		return extErrors.Wrapf(ErrDirectoryLookup, "found no entry for %s", email)
	}
	if err := d.Directory.RemoveFromGroup(ctx, entries[0].ResourceName, d.GroupID); err != nil {
		return extErrors.Wrap(err, "Cannot remove subscriber from directory group")
	}
	d.Logger.Info("Removed subscriber from directory group",
		zap.String("Email", email),
		zap.String("ResourceName", entries[0].ResourceName),
	)
	return nil
}

// AddSubscriber adds the customer to the directory group, creating the entry if it does not exist
func (d *DirectoryNotifier) AddSubscriber(ctx context.Context, c *customer.Customer) error {
	if !d.Enabled() {
		d.Logger.Info("Directory integration not configured. Not adding subscriber",
			zap.String("Email", c.Email),
		)
		return nil
	}
	entries, err := d.search(ctx, c.Email)
	if err != nil {
		return err
	}
	var entry *spec.DirectoryEntry
	if len(entries) == 1 {
		entry = &entries[0]
	} else {
		entry, err = d.Directory.CreateEntry(ctx, spec.NewDirectoryEntry{
			Email:      c.Email,
			GivenName:  c.FirstName,
			FamilyName: c.LastName,
		})
		if err != nil {
			return extErrors.Wrap(err, "Cannot create directory entry")
		}
	}
	if err := d.Directory.AddToGroup(ctx, entry.ResourceName, d.GroupID); err != nil {
		return extErrors.Wrap(err, "Cannot add subscriber to directory group")
	}
	return nil
}
