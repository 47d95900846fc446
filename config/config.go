package config

import (
	"fmt"
	"io/ioutil"
	"os"
	"strconv"
	"strings"

	"github.com/zllovesuki/payablesubs/spec"

	"github.com/joho/godotenv"
	extErrors "github.com/pkg/errors"
)

// Config is read from the environment after the dot file for the running environment is loaded
type Config struct {
	Environment spec.Environment

	PostgresURI string

	VenmoAccessToken string
	VenmoURL         string

	BillingEnabled bool
	DryRun         bool

	GoogleContactLabel    string
	GoogleCredentialsFile string
	GoogleTokenFile       string

	RedisURI      string
	RedisPassword string

	AMQPURI        string
	PushgatewayURL string
	SentryDSN      string
}

// Environment determines the running environment from ENV, and the dot file holding its configurations
func Environment() (spec.Environment, string) {
	if os.Getenv("ENV") == "production" {
		return spec.EnvProduction, ".env.production"
	}
	return spec.EnvDevelopment, ".env.development"
}

// Load reads dotFile into the environment, then parses the configurations.
// A missing dotFile is not an error; variables may come from the environment alone
func Load(dotFile string) (*Config, error) {
	if err := godotenv.Load(dotFile); err != nil && !os.IsNotExist(err) {
		return nil, extErrors.Wrap(err, "Cannot load configurations from dot file")
	}
	return FromEnv(os.Getenv)
}

// FromEnv parses the configurations using getenv to look up variables
func FromEnv(getenv func(string) string) (*Config, error) {
	env, _ := Environment()
	c := &Config{
		Environment:           env,
		PostgresURI:           getenv("POSTGRES_URI"),
		VenmoAccessToken:      getenv("VENMO_ACCESS_TOKEN"),
		VenmoURL:              getenv("VENMO_API_URL"),
		GoogleContactLabel:    getenv("PAYABLESUBS_GOOGLE_CONTACT_LABEL"),
		GoogleCredentialsFile: getenv("GOOGLE_CREDENTIALS_FILE"),
		GoogleTokenFile:       getenv("GOOGLE_TOKEN_FILE"),
		RedisURI:              getenv("REDIS_URI"),
		RedisPassword:         getenv("REDIS_PW"),
		AMQPURI:               getenv("AMQP_URI"),
		PushgatewayURL:        getenv("PUSHGATEWAY_URL"),
		SentryDSN:             getenv("SENTRY_DSN"),
	}

	var err error
	if c.BillingEnabled, err = parseBool(getenv, "PAYABLESUBS_BILLING_ENABLED", true); err != nil {
		return nil, err
	}
	if c.DryRun, err = parseBool(getenv, "PAYABLESUBS_DRY_RUN", false); err != nil {
		return nil, err
	}

	if len(c.VenmoAccessToken) == 0 {
		if path := getenv("VENMO_TOKEN_FILE"); len(path) > 0 {
			b, err := ioutil.ReadFile(path)
			if err != nil {
				return nil, extErrors.Wrap(err, "Cannot read Venmo token file")
			}
			c.VenmoAccessToken = strings.TrimSpace(string(b))
		}
	}

	if len(c.GoogleContactLabel) > 0 && (len(c.GoogleCredentialsFile) == 0 || len(c.GoogleTokenFile) == 0) {
		return nil, fmt.Errorf("GOOGLE_CREDENTIALS_FILE and GOOGLE_TOKEN_FILE are required when PAYABLESUBS_GOOGLE_CONTACT_LABEL is set")
	}

	return c, nil
}

func parseBool(getenv func(string) string, key string, fallback bool) (bool, error) {
	v := getenv(key)
	if len(v) == 0 {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, extErrors.Wrapf(err, "Invalid value for %s", key)
	}
	return b, nil
}
