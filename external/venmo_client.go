package external

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/zllovesuki/payablesubs/spec"

	extErrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

var _ spec.Ledger = &VenmoClient{}

// DefaultVenmoURL is the base URL of Venmo's API
const DefaultVenmoURL = "https://api.venmo.com/v1"

const storiesLimit = 50

// Venmo returns timestamps without a zone; they are UTC
var venmoTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

type VenmoOptions struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
	Logger      *zap.Logger
}

// VenmoClient talks to Venmo's API using a long-lived access token
type VenmoClient struct {
	VenmoOptions
	http *http.Client
}

func NewVenmoClient(ctx context.Context, option VenmoOptions) (*VenmoClient, error) {
	if len(option.AccessToken) == 0 {
		return nil, fmt.Errorf("empty AccessToken is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if len(option.BaseURL) == 0 {
		option.BaseURL = DefaultVenmoURL
	}
	option.BaseURL = strings.TrimSuffix(option.BaseURL, "/")
	if option.Timeout == 0 {
		option.Timeout = spec.DefaultRequestTimeout
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: option.AccessToken,
		TokenType:   "Bearer",
	})
	client := oauth2.NewClient(ctx, ts)
	client.Timeout = option.Timeout
	return &VenmoClient{
		VenmoOptions: option,
		http:         client,
	}, nil
}

type venmoUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

func (u *venmoUser) toLedgerUser() spec.LedgerUser {
	if u == nil {
		return spec.LedgerUser{}
	}
	return spec.LedgerUser{
		ID:       u.ID,
		Username: u.Username,
	}
}

type venmoPayment struct {
	ID     string          `json:"id"`
	Action string          `json:"action"`
	Status string          `json:"status"`
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note"`
	Actor  *venmoUser      `json:"actor"`
	Target struct {
		Type string     `json:"type"`
		User *venmoUser `json:"user"`
	} `json:"target"`
	DateCreated   string `json:"date_created"`
	DateUpdated   string `json:"date_updated"`
	DateCompleted string `json:"date_completed"`
}

type venmoStory struct {
	Type    string        `json:"type"`
	Payment *venmoPayment `json:"payment"`
}

func parseVenmoTime(s string) time.Time {
	if len(s) == 0 {
		return time.Time{}
	}
	for _, layout := range venmoTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func (p *venmoPayment) toLedgerTransaction() spec.LedgerTransaction {
	return spec.LedgerTransaction{
		ID:          p.ID,
		Type:        spec.TransactionType(p.Action),
		Actor:       p.Actor.toLedgerUser(),
		Target:      p.Target.User.toLedgerUser(),
		Amount:      p.Amount,
		Note:        p.Note,
		CreatedAt:   parseVenmoTime(p.DateCreated),
		UpdatedAt:   parseVenmoTime(p.DateUpdated),
		CompletedAt: parseVenmoTime(p.DateCompleted),
	}
}

// Profile returns the account the access token belongs to
func (v *VenmoClient) Profile(ctx context.Context) (*spec.LedgerUser, error) {
	var resp struct {
		Data struct {
			User venmoUser `json:"user"`
		} `json:"data"`
	}
	if err := doJSON(ctx, v.http, http.MethodGet, v.BaseURL+"/me", nil, &resp); err != nil {
		return nil, extErrors.Wrap(err, "Cannot get Venmo profile")
	}
	user := resp.Data.User.toLedgerUser()
	return &user, nil
}

// RecentTransactions returns the latest payments where profileID is either the actor or the target
func (v *VenmoClient) RecentTransactions(ctx context.Context, profileID string) ([]spec.LedgerTransaction, error) {
	var resp struct {
		Data []venmoStory `json:"data"`
	}
	endpoint := fmt.Sprintf("%s/stories/target-or-actor/%s?limit=%d", v.BaseURL, url.PathEscape(profileID), storiesLimit)
	if err := doJSON(ctx, v.http, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, extErrors.Wrap(err, "Cannot get Venmo transactions")
	}
	txns := make([]spec.LedgerTransaction, 0, len(resp.Data))
	for _, story := range resp.Data {
		if story.Type != "payment" || story.Payment == nil {
			continue
		}
		txns = append(txns, story.Payment.toLedgerTransaction())
	}
	v.Logger.Debug("Fetched Venmo transactions",
		zap.String("ProfileID", profileID),
		zap.Int("Stories", len(resp.Data)),
		zap.Int("Payments", len(txns)),
	)
	return txns, nil
}

// RequestMoney sends a private charge to payeeID. Venmo models requests as payments with a negative amount
func (v *VenmoClient) RequestMoney(ctx context.Context, amount decimal.Decimal, note, payeeID string) error {
	body := map[string]interface{}{
		"user_id":  payeeID,
		"audience": "private",
		"amount":   amount.Neg().InexactFloat64(),
		"note":     note,
	}
	if err := doJSON(ctx, v.http, http.MethodPost, v.BaseURL+"/payments", body, nil); err != nil {
		return extErrors.Wrap(err, "Cannot request money on Venmo")
	}
	return nil
}

// UserByUsername searches Venmo for an exact username match
func (v *VenmoClient) UserByUsername(ctx context.Context, username string) (*spec.LedgerUser, error) {
	var resp struct {
		Data []venmoUser `json:"data"`
	}
	endpoint := fmt.Sprintf("%s/users?query=%s&limit=%d&offset=0", v.BaseURL, url.QueryEscape(username), storiesLimit)
	if err := doJSON(ctx, v.http, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, extErrors.Wrap(err, "Cannot search Venmo users")
	}
	for _, u := range resp.Data {
		if u.Username == username {
			user := u.toLedgerUser()
			return &user, nil
		}
	}
	return nil, fmt.Errorf("No Venmo user with username %q", username)
}
