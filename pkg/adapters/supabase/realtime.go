package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/lifecycle"
	"github.com/coder/websocket"
)

const (
	realtimeTopic     = "realtime:public:" + Table
	heartbeatInterval = 25 * time.Second
	maxBackoff        = 30 * time.Second
	readLimit         = 8 << 20
)

// message is a Phoenix channel frame.
type message struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref,omitempty"`
}

type changePayload struct {
	Data struct {
		Type      string          `json:"type"`
		Record    json.RawMessage `json:"record"`
		OldRecord json.RawMessage `json:"old_record"`
	} `json:"data"`
}

type channelConfig struct {
	URL     string
	APIKey  string
	Token   func() string
	Logger  *slog.Logger
	Handler func(json.RawMessage)
}

// channel is one subscription to Postgres changes on the notes table. It
// reconnects with backoff until closed.
type channel struct {
	config channelConfig
	wsURL  string
	ref    atomic.Int64

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func newChannel(config channelConfig) (*channel, error) {
	wsURL, err := websocketURL(config.URL, config.APIKey)
	if err != nil {
		return nil, err
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &channel{config: config, wsURL: wsURL, done: make(chan struct{})}, nil
}

// websocketURL maps https://<ref>.supabase.co to the realtime endpoint.
func websocketURL(base, apiKey string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid remote store url %q: %w", base, err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("invalid remote store url %q: unsupported scheme", base)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/realtime/v1/websocket"
	q := url.Values{}
	q.Set("apikey", apiKey)
	q.Set("vsn", "1.0.0")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// start connects once synchronously so configuration errors surface to the
// caller, then keeps the connection alive in the background.
func (ch *channel) start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	conn, err := ch.connect(runCtx)
	if err != nil {
		cancel()
		return err
	}
	ch.cancel = cancel

	lifecycle.Go(runCtx, func(ctx context.Context) error {
		defer close(ch.done)
		ch.loop(ctx, conn)
		return nil
	}, lifecycle.WithErrorHandler(func(err error) {
		ch.config.Logger.Error("realtime channel failed", "error", err)
	}))
	return nil
}

// Close implements core.Subscription.
func (ch *channel) Close() error {
	ch.once.Do(func() {
		if ch.cancel != nil {
			ch.cancel()
			<-ch.done
		}
	})
	return nil
}

func (ch *channel) nextRef() string {
	return strconv.FormatInt(ch.ref.Add(1), 10)
}

func (ch *channel) connect(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, ch.wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to realtime: %w", err)
	}
	conn.SetReadLimit(readLimit)

	join := map[string]any{
		"config": map[string]any{
			"broadcast": map[string]any{"self": false},
			"presence":  map[string]any{"key": ""},
			"postgres_changes": []map[string]string{
				{"event": "*", "schema": "public", "table": Table},
			},
		},
	}
	if ch.config.Token != nil {
		if tok := ch.config.Token(); tok != "" {
			join["access_token"] = tok
		}
	}
	if err := ch.send(ctx, conn, realtimeTopic, "phx_join", join); err != nil {
		_ = conn.Close(websocket.StatusInternalError, "join failed")
		return nil, fmt.Errorf("failed to join realtime channel: %w", err)
	}
	return conn, nil
}

func (ch *channel) send(ctx context.Context, conn *websocket.Conn, topic, event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(message{Topic: topic, Event: event, Payload: raw, Ref: ch.nextRef()})
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

func (ch *channel) loop(ctx context.Context, conn *websocket.Conn) {
	backoff := time.Second
	for {
		err := ch.serve(ctx, conn)
		_ = conn.Close(websocket.StatusNormalClosure, "")
		if ctx.Err() != nil {
			return
		}
		ch.config.Logger.Warn("realtime connection lost", "error", err, "retry_in", backoff)

		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
			if conn, err = ch.connect(ctx); err == nil {
				backoff = time.Second
				break
			}
			ch.config.Logger.Warn("realtime reconnect failed", "error", err, "retry_in", backoff)
		}
	}
}

// serve reads frames until the connection fails, sending heartbeats.
func (ch *channel) serve(ctx context.Context, conn *websocket.Conn) error {
	hbCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		t := time.NewTicker(heartbeatInterval)
		defer t.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-t.C:
				if err := ch.send(hbCtx, conn, "phoenix", "heartbeat", map[string]any{}); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			ch.config.Logger.Debug("ignoring malformed realtime frame", "error", err)
			continue
		}
		switch msg.Event {
		case "postgres_changes":
			var p changePayload
			if err := json.Unmarshal(msg.Payload, &p); err != nil {
				ch.config.Logger.Debug("ignoring malformed change", "error", err)
				continue
			}
			rec := p.Data.Record
			if len(rec) == 0 || string(rec) == "null" || string(rec) == "{}" {
				rec = p.Data.OldRecord
			}
			if len(rec) > 0 && string(rec) != "null" {
				ch.config.Handler(rec)
			}
		case "phx_reply":
			if strings.Contains(string(msg.Payload), `"status":"error"`) {
				ch.config.Logger.Error("realtime join rejected", "payload", string(msg.Payload))
			}
		case "phx_error", "phx_close":
			return fmt.Errorf("realtime channel closed: %s", msg.Event)
		}
	}
}
