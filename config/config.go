package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Defaults match the Feide/Dataporten setup the app was written against.
const (
	defaultProviderBaseURI = "https://auth.dataporten.no"
	defaultGroupsBaseURI   = "https://groups-api.dataporten.no"
	defaultScopes          = "openid profile email userid-feide groups-edu groups-org groups-other"
	defaultPort            = "8080"
	defaultDatabasePath    = "feidelogin.db"

	// Session lifetime in seconds. Kept deliberately short: there is no
	// refresh path, expiry forces a fresh login.
	defaultSessionLifetime = 60
)

// Config holds all runtime configuration, read once at startup.
type Config struct {
	AppBaseURI      string
	ClientID        string
	ClientSecret    string
	ProviderBaseURI string
	GroupsBaseURI   string
	Scopes          []string
	Port            string
	DatabasePath    string
	SessionLifetime int64
	UseHTTPS        bool
}

// RedirectURI is the callback URL registered with the identity provider.
func (c *Config) RedirectURI() string {
	return strings.TrimRight(c.AppBaseURI, "/") + "/redirect_uri"
}

// Load reads configuration from the environment. The client secret must be
// provided via APP_SECRET; it is never hard-coded or logged.
func Load() (*Config, error) {
	cfg := &Config{
		AppBaseURI:      os.Getenv("APP_BASE_URI"),
		ClientID:        os.Getenv("APP_CLIENT_ID"),
		ClientSecret:    os.Getenv("APP_SECRET"),
		ProviderBaseURI: getenvDefault("AUTH_PROVIDER_BASE_URI", defaultProviderBaseURI),
		GroupsBaseURI:   getenvDefault("GROUPS_BASE_URI", defaultGroupsBaseURI),
		Scopes:          strings.Fields(getenvDefault("APP_SCOPES", defaultScopes)),
		Port:            getenvDefault("PORT", defaultPort),
		DatabasePath:    getenvDefault("DATABASE_PATH", defaultDatabasePath),
		SessionLifetime: defaultSessionLifetime,
		UseHTTPS:        os.Getenv("USE_HTTPS") == "true",
	}

	if lifetime := os.Getenv("SESSION_LIFETIME_SECONDS"); lifetime != "" {
		parsed, err := strconv.ParseInt(lifetime, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid SESSION_LIFETIME_SECONDS %q: %w", lifetime, err)
		}
		cfg.SessionLifetime = parsed
	}

	if cfg.AppBaseURI == "" {
		return nil, fmt.Errorf("APP_BASE_URI is required")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("APP_CLIENT_ID is required")
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("APP_SECRET is required")
	}

	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
