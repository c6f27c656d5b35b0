package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agenttycoon/sim-engine/internal/events"
)

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for hub.clientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func TestHub_BroadcastReachesClient(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	conn := dialHub(t, hub)

	hub.Broadcast(EventMessage{
		EpisodeID: "ep-1",
		Type:      "simulation_tick",
		Tick:      3,
		Timestamp: time.Now().UTC(),
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var msg EventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.EpisodeID != "ep-1" {
		t.Errorf("expected episode ep-1, got %q", msg.EpisodeID)
	}
	if msg.Type != "simulation_tick" || msg.Tick != 3 {
		t.Errorf("unexpected message: %+v", msg)
	}
}

func TestWSSink_TagsEventsWithEpisode(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	conn := dialHub(t, hub)

	sink := wsSink{episodeID: "ep-9", hub: hub}
	sink.Publish(events.New(events.TypeMarketShock, 7, map[string]any{
		"shock_type": "interest_rate_hike",
	}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var msg EventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.EpisodeID != "ep-9" {
		t.Errorf("expected episode ep-9, got %q", msg.EpisodeID)
	}
	if msg.Type != events.TypeMarketShock || msg.Tick != 7 {
		t.Errorf("unexpected message: %+v", msg)
	}
	if msg.Data["shock_type"] != "interest_rate_hike" {
		t.Errorf("expected shock_type in data, got %v", msg.Data)
	}
}
