package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// quoteDSNValue quotes a DSN value if it contains special characters.
// Per the libpq keyword/value format, values containing spaces, quotes, or
// backslashes must be single-quoted with internal quotes and backslashes
// escaped.
func quoteDSNValue(value string) string {
	if value == "" {
		return "''"
	}
	if !strings.ContainsAny(value, " '\\") {
		return value
	}
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `'`, `\'`)
	return "'" + escaped + "'"
}

// PostgresConnectionString builds a keyword/value DSN for pgx.
func (c *Config) PostgresConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		quoteDSNValue(c.PostgresHost),
		c.PostgresPort,
		quoteDSNValue(c.PostgresUser),
		quoteDSNValue(c.PostgresPassword),
		quoteDSNValue(c.PostgresDBName),
		quoteDSNValue(c.PostgresSSLMode),
	)
}

// PostgresURL builds a postgres:// URL, as required by golang-migrate.
// Credentials are percent-encoded via net/url.
func (c *Config) PostgresURL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.PostgresUser, c.PostgresPassword),
		Host:   fmt.Sprintf("%s:%d", c.PostgresHost, c.PostgresPort),
		Path:   "/" + c.PostgresDBName,
	}
	q := u.Query()
	q.Set("sslmode", c.PostgresSSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// parseDatabaseURL applies the DATABASE_URL environment variable, if set,
// over the individual postgres_* fields. Supports postgres:// and
// postgresql:// schemes.
func (c *Config) parseDatabaseURL() error {
	raw := os.Getenv("DATABASE_URL")
	if raw == "" {
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	if host := u.Hostname(); host != "" {
		c.PostgresHost = host
	}
	if port := u.Port(); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid port %q: %w", port, err)
		}
		c.PostgresPort = p
	}
	if u.User != nil {
		if user := u.User.Username(); user != "" {
			c.PostgresUser = user
		}
		if password, ok := u.User.Password(); ok {
			c.PostgresPassword = password
		}
	}
	if dbname := strings.TrimPrefix(u.Path, "/"); dbname != "" {
		c.PostgresDBName = dbname
	}
	if sslmode := u.Query().Get("sslmode"); sslmode != "" {
		c.PostgresSSLMode = sslmode
	}

	return nil
}
