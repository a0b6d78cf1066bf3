package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/vidsession/internal/logger"
)

const (
	defaultListenAddr   = "localhost:8000"
	defaultRedisURL     = "redis://127.0.0.1:6379/0"
	defaultLoggingLevel = logger.LevelInfo
	defaultEnvironment  = logger.EnvProduction
	defaultAccessTTL    = 30 * time.Minute
	defaultRefreshTTL   = 30 * 24 * time.Hour
	defaultCacheTimeout = 2 * time.Second
	defaultFrontendURL  = "http://localhost:3000/"
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Redis keeping refresh token hashes, issuance markers and oauth states
	RedisURL string

	// Secret keys to sign access and refresh tokens
	// Must be different, so one kind of token never verifies as the other
	SecretKey        string
	RefreshSecretKey string

	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// How long a rotation collapses parallel refresh calls
	// Zero means access token TTL
	IssuanceWindow time.Duration

	// Deadline of every redis call
	CacheTimeout time.Duration

	// Send refresh cookie over https only
	CookieSecure bool

	// Where the browser lands after social login
	FrontendURL string

	// Google OpenID Connect client. Provider disabled if client id is empty
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Environment
	Environment string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:     defaultLoggingLevel,
		ListenAddr:   defaultListenAddr,
		RedisURL:     defaultRedisURL,
		AccessTTL:    defaultAccessTTL,
		RefreshTTL:   defaultRefreshTTL,
		CacheTimeout: defaultCacheTimeout,
		FrontendURL:  defaultFrontendURL,
		Environment:  defaultEnvironment,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			*o = d
			return nil
		}
	}
	setBool := func(o *bool) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			b, err := strconv.ParseBool(value)
			if err != nil {
				return err
			}
			*o = b
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":          setString(&c.ListenAddr),
		"DATABASE_URI":         setString(&c.DatabaseDSN),
		"REDIS_URI":            setString(&c.RedisURL),
		"SECRET_KEY":           setString(&c.SecretKey),
		"REFRESH_SECRET_KEY":   setString(&c.RefreshSecretKey),
		"ACCESS_TOKEN_TTL":     setDuration(&c.AccessTTL),
		"REFRESH_TOKEN_TTL":    setDuration(&c.RefreshTTL),
		"ISSUANCE_WINDOW":      setDuration(&c.IssuanceWindow),
		"CACHE_TIMEOUT":        setDuration(&c.CacheTimeout),
		"COOKIE_SECURE":        setBool(&c.CookieSecure),
		"FRONTEND_URL":         setString(&c.FrontendURL),
		"LOG_LEVEL":            setString(&c.LogLevel),
		"ENVIRONMENT":          setString(&c.Environment),
		"GOOGLE_CLIENT_ID":     setString(&c.GoogleClientID),
		"GOOGLE_CLIENT_SECRET": setString(&c.GoogleClientSecret),
		"GOOGLE_REDIRECT_URL":  setString(&c.GoogleRedirectURL),
	}

	var errs []error
	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
		}
	}

	return errors.Join(errs...)
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("vidsession", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.RedisURL, "redis", "r", c.RedisURL, "Redis connection url")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key to sign access tokens")
	fs.StringVar(&c.RefreshSecretKey, "refresh-secret-key", c.RefreshSecretKey, "Secret key to sign refresh tokens")
	fs.DurationVar(&c.AccessTTL, "access-ttl", c.AccessTTL, "Access token lifetime")
	fs.DurationVar(&c.RefreshTTL, "refresh-ttl", c.RefreshTTL, "Refresh token lifetime")
	fs.DurationVar(&c.IssuanceWindow, "issuance-window", c.IssuanceWindow, "Window collapsing parallel refreshes (default access ttl)")
	fs.DurationVar(&c.CacheTimeout, "cache-timeout", c.CacheTimeout, "Redis call timeout")
	fs.BoolVar(&c.CookieSecure, "cookie-secure", c.CookieSecure, "Send refresh cookie over https only")
	fs.StringVar(&c.FrontendURL, "frontend-url", c.FrontendURL, "Redirect target after social login")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.StringVar(&c.GoogleClientID, "google-client-id", c.GoogleClientID, "Google OAuth client id")
	fs.StringVar(&c.GoogleClientSecret, "google-client-secret", c.GoogleClientSecret, "Google OAuth client secret")
	fs.StringVar(&c.GoogleRedirectURL, "google-redirect-url", c.GoogleRedirectURL, "Google OAuth callback url")

	return fs.Parse(args)
}

// Validate checks options required to start
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseDSN == "" {
		errs = append(errs, errors.New("database uri is required"))
	}
	if c.SecretKey == "" || c.RefreshSecretKey == "" {
		errs = append(errs, errors.New("secret key and refresh secret key are required"))
	}
	if c.SecretKey != "" && c.SecretKey == c.RefreshSecretKey {
		errs = append(errs, errors.New("secret key and refresh secret key must differ"))
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= c.AccessTTL {
		errs = append(errs, errors.New("refresh token ttl must be longer than positive access token ttl"))
	}
	if c.GoogleClientID != "" && (c.GoogleClientSecret == "" || c.GoogleRedirectURL == "") {
		errs = append(errs, errors.New("google client secret and redirect url are required with client id"))
	}

	return errors.Join(errs...)
}
