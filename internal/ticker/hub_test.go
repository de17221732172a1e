package ticker

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func dialTestHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.HandleConnection(w, r)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForSubscribers(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.Subscribers() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d subscribers, have %d", want, hub.Subscribers())
}

func TestHubBroadcastsToSubscriber(t *testing.T) {
	hub := NewHub(zap.NewNop())
	defer hub.Stop()

	conn := dialTestHub(t, hub)
	waitForSubscribers(t, hub, 1)

	change := 1.25
	hub.Publish(PriceUpdate{
		Instrument: "cea",
		Price:      41.24,
		Change24h:  &change,
		Timestamp:  time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC),
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var update PriceUpdate
	require.NoError(t, conn.ReadJSON(&update))
	assert.Equal(t, "cea", update.Instrument)
	assert.InDelta(t, 41.24, update.Price, 0.001)
	require.NotNil(t, update.Change24h)
	assert.InDelta(t, 1.25, *update.Change24h, 0.001)
}

func TestHubRemovesClosedSubscriber(t *testing.T) {
	hub := NewHub(zap.NewNop())
	defer hub.Stop()

	conn := dialTestHub(t, hub)
	waitForSubscribers(t, hub, 1)

	conn.Close()
	waitForSubscribers(t, hub, 0)

	// publishing with no subscribers must not block or panic
	hub.Publish(PriceUpdate{Instrument: "eua", Price: 75.0, Timestamp: time.Now()})
}

func TestHubStopIsIdempotent(t *testing.T) {
	hub := NewHub(zap.NewNop())
	dialTestHub(t, hub)
	waitForSubscribers(t, hub, 1)

	hub.Stop()
	hub.Stop()

	hub.Publish(PriceUpdate{Instrument: "cea", Price: 40.0, Timestamp: time.Now()})
}
