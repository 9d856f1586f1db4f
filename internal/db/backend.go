package db

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/vidshare/backend/internal/config"
)

// Backend names a supported store implementation.
type Backend string

const (
	BackendMongo    Backend = "mongodb"
	BackendPostgres Backend = "postgres"
)

// DetectBackend picks the store implementation from the connection string scheme.
func DetectBackend(databaseURL string) (Backend, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return "", fmt.Errorf("%w: database connection string is empty", config.ErrConfiguration)
	}

	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("%w: parse database url: %v", config.ErrConfiguration, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "mongodb", "mongodb+srv":
		return BackendMongo, nil
	case "postgres", "postgresql":
		return BackendPostgres, nil
	default:
		return "", fmt.Errorf("%w: unsupported database scheme %q", config.ErrConfiguration, u.Scheme)
	}
}
