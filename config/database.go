package config

import (
	"net"
	"net/url"
	"strconv"
)

type DatabaseConfiguration struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
}

// DatabaseFromEnvironmentWithFallback reads the DATABASE_* keys, using the
// given values for any that are unset.
func DatabaseFromEnvironmentWithFallback(host string, port int, username string, password string, database string) DatabaseConfiguration {
	return databaseFrom(lookupEnv, host, port, username, password, database)
}

func databaseFrom(lookup Lookup, host string, port int, username string, password string, database string) DatabaseConfiguration {
	cfg := DatabaseConfiguration{
		Host:     get(lookup, "DATABASE_HOST"),
		Port:     get(lookup, "DATABASE_PORT"),
		Username: get(lookup, "DATABASE_USERNAME"),
		Password: get(lookup, "DATABASE_PASSWORD"),
		Database: get(lookup, "DATABASE_DATABASE"),
	}
	if cfg.Host == "" {
		cfg.Host = host
	}
	if cfg.Port == "" {
		cfg.Port = strconv.Itoa(port)
	}
	if cfg.Username == "" {
		cfg.Username = username
	}
	if cfg.Password == "" {
		cfg.Password = password
	}
	if cfg.Database == "" {
		cfg.Database = database
	}
	return cfg
}

// GetConnectionString renders a postgres:// URL with credentials escaped.
func (self *DatabaseConfiguration) GetConnectionString() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(self.Username, self.Password),
		Host:   net.JoinHostPort(self.Host, self.Port),
		Path:   "/" + self.Database,
	}
	return u.String()
}
