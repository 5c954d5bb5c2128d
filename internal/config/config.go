package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
)

type Config struct {
	ListenAddr string
	BaseURL    string

	// Domain is used for iCalendar UIDs (event-<id>@<domain>). Defaults to
	// the host of BaseURL.
	Domain string

	// Realm is advertised in the WWW-Authenticate challenge.
	Realm string

	DB struct {
		DSN string
	}

	PrometheusEnabled bool
	TrustedProxies    []string
}

func Load() (*Config, error) {
	cfg := &Config{}

	cfg.ListenAddr = getenvDefault("APP_LISTEN_ADDR", ":8080")
	cfg.BaseURL = getenvDefault("APP_BASE_URL", "http://localhost:8080")
	cfg.Realm = getenvDefault("APP_CALDAV_REALM", "Daybook")
	cfg.DB.DSN = os.Getenv("APP_DB_DSN")

	if cfg.DB.DSN == "" {
		host := os.Getenv("APP_DB_HOST")
		name := os.Getenv("APP_DB_NAME")
		user := os.Getenv("APP_DB_USER")
		password := os.Getenv("APP_DB_PASSWORD")
		port := getenvDefault("APP_DB_PORT", "5432")
		sslmode := getenvDefault("APP_DB_SSLMODE", "disable")

		if host != "" && name != "" && user != "" && password != "" {
			cfg.DB.DSN = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, password, host, port, name, sslmode)
		}
	}

	cfg.Domain = os.Getenv("APP_DOMAIN")
	if cfg.Domain == "" {
		if u, err := url.Parse(cfg.BaseURL); err == nil && u.Hostname() != "" {
			cfg.Domain = u.Hostname()
		} else {
			cfg.Domain = "localhost"
		}
	}

	cfg.PrometheusEnabled = getenvBool("APP_PROMETHEUS_ENDPOINT_ENABLED", false)
	cfg.TrustedProxies = getenvList("APP_TRUSTED_PROXIES")

	if cfg.DB.DSN == "" {
		return nil, errors.New("APP_DB_DSN is required (or set APP_DB_HOST, APP_DB_NAME, APP_DB_USER, and APP_DB_PASSWORD)")
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return def
}

func getenvList(key string) []string {
	if v := os.Getenv(key); v != "" {
		var result []string
		for _, item := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return nil
}
