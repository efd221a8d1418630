package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	supa "github.com/supabase-community/supabase-go"

	"github.com/aretw0/notesync/pkg/core"
)

// ClientConfig configures the Supabase client.
type ClientConfig struct {
	URL     string
	AnonKey string
	Logger  *slog.Logger
	// Breaker settings; zero values pick defaults.
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
}

// Client implements Backend with supabase-go. Calls go through a circuit
// breaker so a dead backend fails fast instead of stalling every sync.
type Client struct {
	config  ClientConfig
	api     *supa.Client
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger

	mu      sync.Mutex
	session Session
}

// NewClient creates a Client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.URL == "" || config.AnonKey == "" {
		return nil, core.Userf("remote store url and anon key are required")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.MaxRequests == 0 {
		config.MaxRequests = 1
	}
	if config.Interval == 0 {
		config.Interval = 30 * time.Second
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	api, err := supa.NewClient(config.URL, config.AnonKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}

	logger := config.Logger
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "supabase",
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})

	return &Client{config: config, api: api, breaker: breaker, logger: logger}, nil
}

// call runs fn through the breaker.
func (c *Client) call(ctx context.Context, fn func() (any, error)) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err := c.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("remote store unavailable: %w", err)
	}
	return out, err
}

// SignIn implements Backend.
func (c *Client) SignIn(ctx context.Context, email, password string) (Session, error) {
	out, err := c.call(ctx, func() (any, error) {
		s, err := c.api.SignInWithEmailPassword(email, password)
		if err != nil {
			return nil, err
		}
		return Session{
			UserID:       s.User.ID.String(),
			Email:        s.User.Email,
			AccessToken:  s.AccessToken,
			RefreshToken: s.RefreshToken,
			ExpiresAt:    time.Unix(s.ExpiresAt, 0),
		}, nil
	})
	if err != nil {
		return Session{}, &core.UserError{Msg: "failed to sign in", Err: err}
	}
	sess := out.(Session)
	c.setSession(sess)
	return sess, nil
}

// Refresh implements Backend.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	out, err := c.call(ctx, func() (any, error) {
		s, err := c.api.RefreshToken(refreshToken)
		if err != nil {
			return nil, err
		}
		return Session{
			UserID:       s.User.ID.String(),
			Email:        s.User.Email,
			AccessToken:  s.AccessToken,
			RefreshToken: s.RefreshToken,
			ExpiresAt:    time.Unix(s.ExpiresAt, 0),
		}, nil
	})
	if err != nil {
		return Session{}, fmt.Errorf("failed to refresh session: %w", err)
	}
	sess := out.(Session)
	c.setSession(sess)
	return sess, nil
}

// SignOut implements Backend.
func (c *Client) SignOut(ctx context.Context) error {
	_, err := c.call(ctx, func() (any, error) {
		return nil, c.api.Auth.Logout()
	})
	c.setSession(Session{})
	if err != nil {
		return fmt.Errorf("failed to sign out: %w", err)
	}
	return nil
}

func (c *Client) setSession(s Session) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
}

// AccessToken returns the current session token, if any.
func (c *Client) AccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.AccessToken
}

// Select implements Backend.
func (c *Client) Select(ctx context.Context, q Query) ([]Record, error) {
	out, err := c.call(ctx, func() (any, error) {
		f := c.api.From(Table).Select("*", "", false).In("_partition", q.Partitions)
		if !q.IncludeDeleted {
			f = f.Eq("deleted", "false")
		}
		if len(q.IDs) > 0 {
			f = f.In("id", q.IDs)
		}
		if q.Title != "" {
			f = f.Eq("title", q.Title)
		}
		var records []Record
		if _, err := f.ExecuteTo(&records); err != nil {
			return nil, err
		}
		return records, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]Record), nil
}

// Upsert implements Backend.
func (c *Client) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	_, err := c.call(ctx, func() (any, error) {
		_, _, err := c.api.From(Table).Upsert(records, "id", "minimal", "").Execute()
		return nil, err
	})
	return err
}

// Insert implements Backend.
func (c *Client) Insert(ctx context.Context, r Record) error {
	_, err := c.call(ctx, func() (any, error) {
		_, _, err := c.api.From(Table).Insert(r, false, "", "minimal", "").Execute()
		return nil, err
	})
	return err
}

// Download implements Backend.
func (c *Client) Download(ctx context.Context, bucket, path string) ([]byte, error) {
	out, err := c.call(ctx, func() (any, error) {
		return c.api.Storage.DownloadFile(bucket, path)
	})
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

// Subscribe implements Backend over the Realtime websocket.
func (c *Client) Subscribe(ctx context.Context, h func(Record)) (core.Subscription, error) {
	ch, err := newChannel(channelConfig{
		URL:     c.config.URL,
		APIKey:  c.config.AnonKey,
		Token:   c.AccessToken,
		Logger:  c.logger,
		Handler: func(raw json.RawMessage) { decodeRecord(raw, h, c.logger) },
	})
	if err != nil {
		return nil, err
	}
	if err := ch.start(ctx); err != nil {
		return nil, err
	}
	return ch, nil
}

func decodeRecord(raw json.RawMessage, h func(Record), logger *slog.Logger) {
	var r Record
	if err := json.Unmarshal(raw, &r); err != nil {
		logger.Warn("dropping malformed change record", "error", err)
		return
	}
	if r.ID == "" {
		return
	}
	h(r)
}

var _ Backend = (*Client)(nil)
