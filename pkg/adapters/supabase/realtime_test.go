package supabase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebsocketURL(t *testing.T) {
	cases := []struct {
		base string
		want string
	}{
		{"https://proj.supabase.co", "wss://proj.supabase.co/realtime/v1/websocket?apikey=k&vsn=1.0.0"},
		{"https://proj.supabase.co/", "wss://proj.supabase.co/realtime/v1/websocket?apikey=k&vsn=1.0.0"},
		{"http://localhost:54321", "ws://localhost:54321/realtime/v1/websocket?apikey=k&vsn=1.0.0"},
	}
	for _, c := range cases {
		got, err := websocketURL(c.base, "k")
		require.NoError(t, err)
		assert.Equal(t, c.want, got)
	}

	_, err := websocketURL("ftp://nope", "k")
	assert.Error(t, err)
}

func TestChannel(t *testing.T) {
	joined := make(chan message, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/realtime/v1/websocket", r.URL.Path)
		assert.Equal(t, "anon", r.URL.Query().Get("apikey"))

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()

		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var join message
		if json.Unmarshal(data, &join) == nil {
			joined <- join
		}

		change := `{"topic":"realtime:public:notes","event":"postgres_changes","payload":{"data":{"type":"UPDATE","record":{"id":"n1","content":"hi","_partition":"user-1"}}}}`
		_ = conn.Write(ctx, websocket.MessageText, []byte(`not json`))
		_ = conn.Write(ctx, websocket.MessageText, []byte(change))
		del := `{"topic":"realtime:public:notes","event":"postgres_changes","payload":{"data":{"type":"DELETE","record":null,"old_record":{"id":"n2"}}}}`
		_ = conn.Write(ctx, websocket.MessageText, []byte(del))

		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	records := make(chan Record, 4)
	ch, err := newChannel(channelConfig{
		URL:    srv.URL,
		APIKey: "anon",
		Token:  func() string { return "jwt" },
		Handler: func(raw json.RawMessage) {
			var r Record
			if json.Unmarshal(raw, &r) == nil {
				records <- r
			}
		},
	})
	require.NoError(t, err)
	require.NoError(t, ch.start(context.Background()))
	defer ch.Close()

	select {
	case join := <-joined:
		assert.Equal(t, realtimeTopic, join.Topic)
		assert.Equal(t, "phx_join", join.Event)
		assert.Contains(t, string(join.Payload), `"access_token":"jwt"`)
		assert.Contains(t, string(join.Payload), `"table":"notes"`)
	case <-time.After(5 * time.Second):
		t.Fatal("no join received")
	}

	for _, want := range []string{"n1", "n2"} {
		select {
		case r := <-records:
			assert.Equal(t, want, r.ID)
		case <-time.After(5 * time.Second):
			t.Fatalf("no change received for %s", want)
		}
	}

	require.NoError(t, ch.Close())
}

func TestChannelDialFailure(t *testing.T) {
	ch, err := newChannel(channelConfig{URL: "http://127.0.0.1:1", Handler: func(json.RawMessage) {}})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.Error(t, ch.start(ctx))
	assert.NoError(t, ch.Close())
}
