package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/zllovesuki/payablesubs/spec"

	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

var _ spec.Directory = &GoogleContactsClient{}

// DefaultPeopleURL is the base URL of Google's People API
const DefaultPeopleURL = "https://people.googleapis.com/v1"

const contactsScope = "https://www.googleapis.com/auth/contacts"

type GoogleContactsOptions struct {
	BaseURL         string
	CredentialsFile string // OAuth2 client secrets downloaded from the Google console
	TokenFile       string // Saved user token; refreshed tokens are written back
	Timeout         time.Duration
	Logger          *zap.Logger
}

// GoogleContactsClient manages contact group membership through the People API
type GoogleContactsClient struct {
	GoogleContactsOptions
	http *http.Client
}

func NewGoogleContactsClient(ctx context.Context, option GoogleContactsOptions) (*GoogleContactsClient, error) {
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if len(option.CredentialsFile) == 0 {
		return nil, fmt.Errorf("empty CredentialsFile is invalid")
	}
	if len(option.TokenFile) == 0 {
		return nil, fmt.Errorf("empty TokenFile is invalid")
	}
	if len(option.BaseURL) == 0 {
		option.BaseURL = DefaultPeopleURL
	}
	option.BaseURL = strings.TrimSuffix(option.BaseURL, "/")
	if option.Timeout == 0 {
		option.Timeout = spec.DefaultRequestTimeout
	}

	secrets, err := ioutil.ReadFile(option.CredentialsFile)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot read Google credentials")
	}
	config, err := google.ConfigFromJSON(secrets, contactsScope)
	if err != nil {
		return nil, extErrors.Wrap(err, "Invalid Google credentials")
	}
	token, err := loadToken(option.TokenFile)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot load Google token")
	}

	ts := &savingTokenSource{
		base:   config.TokenSource(ctx, token),
		path:   option.TokenFile,
		last:   token.AccessToken,
		logger: option.Logger,
	}
	client := oauth2.NewClient(ctx, ts)
	client.Timeout = option.Timeout

	return &GoogleContactsClient{
		GoogleContactsOptions: option,
		http:                  client,
	}, nil
}

func loadToken(path string) (*oauth2.Token, error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var token oauth2.Token
	if err := json.Unmarshal(b, &token); err != nil {
		return nil, err
	}
	return &token, nil
}

// savingTokenSource writes the token back to disk whenever it is refreshed
type savingTokenSource struct {
	mu     sync.Mutex
	base   oauth2.TokenSource
	path   string
	last   string
	logger *zap.Logger
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if token.AccessToken == s.last {
		return token, nil
	}
	s.last = token.AccessToken
	b, err := json.Marshal(token)
	if err == nil {
		err = ioutil.WriteFile(s.path, b, 0600)
	}
	if err != nil {
		s.logger.Warn("Cannot save refreshed Google token",
			zap.String("Path", s.path),
			zap.Error(err),
		)
	}
	return token, nil
}

type googlePerson struct {
	ResourceName   string `json:"resourceName"`
	EmailAddresses []struct {
		Value string `json:"value"`
	} `json:"emailAddresses"`
}

func (p *googlePerson) toEntry() spec.DirectoryEntry {
	entry := spec.DirectoryEntry{
		ResourceName: p.ResourceName,
	}
	if len(p.EmailAddresses) > 0 {
		entry.Email = p.EmailAddresses[0].Value
	}
	return entry
}

// SearchByEmail returns the contacts matching email
func (g *GoogleContactsClient) SearchByEmail(ctx context.Context, email string) ([]spec.DirectoryEntry, error) {
	var resp struct {
		Results []struct {
			Person googlePerson `json:"person"`
		} `json:"results"`
	}
	endpoint := fmt.Sprintf("%s/people:searchContacts?query=%s&readMask=emailAddresses", g.BaseURL, url.QueryEscape(email))
	if err := doJSON(ctx, g.http, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, extErrors.Wrap(err, "Cannot search Google contacts")
	}
	entries := make([]spec.DirectoryEntry, 0, len(resp.Results))
	for _, r := range resp.Results {
		entries = append(entries, r.Person.toEntry())
	}
	return entries, nil
}

// CreateEntry creates a new contact
func (g *GoogleContactsClient) CreateEntry(ctx context.Context, fields spec.NewDirectoryEntry) (*spec.DirectoryEntry, error) {
	body := map[string]interface{}{
		"emailAddresses": []map[string]string{
			{"value": fields.Email},
		},
		"names": []map[string]string{
			{"givenName": fields.GivenName, "familyName": fields.FamilyName},
		},
	}
	var person googlePerson
	if err := doJSON(ctx, g.http, http.MethodPost, g.BaseURL+"/people:createContact", body, &person); err != nil {
		return nil, extErrors.Wrap(err, "Cannot create Google contact")
	}
	entry := person.toEntry()
	return &entry, nil
}

// groupID is either the bare id or the resource name "contactGroups/{id}"
func (g *GoogleContactsClient) modifyGroup(ctx context.Context, groupID string, body map[string][]string) error {
	id := strings.TrimPrefix(groupID, "contactGroups/")
	endpoint := fmt.Sprintf("%s/contactGroups/%s/members:modify", g.BaseURL, url.PathEscape(id))
	return doJSON(ctx, g.http, http.MethodPost, endpoint, body, nil)
}

// AddToGroup adds the contact to the contact group (label)
func (g *GoogleContactsClient) AddToGroup(ctx context.Context, resourceName, groupID string) error {
	if err := g.modifyGroup(ctx, groupID, map[string][]string{
		"resourceNamesToAdd": {resourceName},
	}); err != nil {
		return extErrors.Wrap(err, "Cannot add contact to Google contact group")
	}
	return nil
}

// RemoveFromGroup removes the contact from the contact group (label)
func (g *GoogleContactsClient) RemoveFromGroup(ctx context.Context, resourceName, groupID string) error {
	if err := g.modifyGroup(ctx, groupID, map[string][]string{
		"resourceNamesToRemove": {resourceName},
	}); err != nil {
		return extErrors.Wrap(err, "Cannot remove contact from Google contact group")
	}
	return nil
}
