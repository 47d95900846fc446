package spec

import "context"

// DirectoryEntry is a contact in the external directory
type DirectoryEntry struct {
	ResourceName string
	Email        string
}

// NewDirectoryEntry describes the fields for a contact to be created
type NewDirectoryEntry struct {
	Email      string
	GivenName  string
	FamilyName string
}

// Directory defines the contact directory whose group mirrors active subscribers
type Directory interface {
	SearchByEmail(ctx context.Context, email string) ([]DirectoryEntry, error)
	CreateEntry(ctx context.Context, fields NewDirectoryEntry) (*DirectoryEntry, error)
	AddToGroup(ctx context.Context, resourceName, groupID string) error
	RemoveFromGroup(ctx context.Context, resourceName, groupID string) error
}
