package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/nkiryanov/vidsession/internal/client"
	"github.com/nkiryanov/vidsession/internal/logger"
)

type Config struct {
	ServerURL string
	Login     string
	Password  string
	Register  bool

	// Profile is requested Repeat times, Interval apart
	Repeat   int
	Interval time.Duration

	Logout   bool
	Cooldown time.Duration
	LogLevel string
}

func parseFlags(args []string) (*Config, error) {
	c := &Config{}
	fs := pflag.NewFlagSet("sessionctl", pflag.ContinueOnError)

	fs.StringVarP(&c.ServerURL, "server", "s", "http://localhost:8000", "Server address")
	fs.StringVarP(&c.Login, "login", "u", "", "Login")
	fs.StringVarP(&c.Password, "password", "p", "", "Password")
	fs.BoolVar(&c.Register, "register", false, "Register instead of login")
	fs.IntVarP(&c.Repeat, "repeat", "n", 1, "How many times to request the profile")
	fs.DurationVarP(&c.Interval, "interval", "i", time.Minute, "Pause between profile requests")
	fs.BoolVar(&c.Logout, "logout", false, "Logout at the end")
	fs.DurationVar(&c.Cooldown, "cooldown", client.DefaultCooldown, "Refresh suppression after token update")
	fs.StringVarP(&c.LogLevel, "log-level", "l", logger.LevelInfo, "Logging level (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if c.Login == "" || c.Password == "" {
		return nil, errors.New("login and password are required")
	}
	if c.Repeat < 1 {
		return nil, errors.New("repeat must be positive")
	}

	return c, nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		slog.Error("session failed", "error", err.Error())
		os.Exit(1)
	}
}

// run drives one session: start, profile requests with transparent refresh, optional logout
func run(ctx context.Context, args []string, out io.Writer) error {
	c, err := parseFlags(args)
	if err != nil {
		return err
	}

	l, err := logger.NewTextLogger(c.LogLevel)
	if err != nil {
		return err
	}

	api, err := client.New(client.Config{BaseURL: c.ServerURL, Cooldown: c.Cooldown, Logger: l})
	if err != nil {
		return err
	}

	start := api.Login
	if c.Register {
		start = api.Register
	}
	if err := start(ctx, c.Login, c.Password); err != nil {
		return fmt.Errorf("can't start session: %w", err)
	}
	l.Info("Session started", "login", c.Login)

	for i := range c.Repeat {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.Interval):
			}
		}

		token := api.Tokens().Token()
		p, err := api.Me(ctx)
		if err != nil {
			return fmt.Errorf("can't get profile: %w", err)
		}
		refreshed := token != api.Tokens().Token()
		_, _ = fmt.Fprintf(out, "%s\t%s\t%s\trefreshed=%t\n", p.ID, p.Username, p.Role, refreshed)
	}

	if c.Logout {
		msg, err := api.Logout(ctx)
		if err != nil {
			return fmt.Errorf("can't logout: %w", err)
		}
		_, _ = fmt.Fprintln(out, msg)
	}

	return nil
}
