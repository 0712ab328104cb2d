package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/mesh-provider/internal/connection"
	"github.com/rickgao/mesh-provider/internal/events"
)

func TestProvider_RealWebSocket(t *testing.T) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()

		// Echo every request back as a relay envelope.
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			reply := `{"jsonrpc":"2.0","method":"mesh_subscription","params":` + string(msg) + `}`
			if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	cfg := connection.DefaultClientConfig()
	cfg.PingInterval = 0

	p := New(url,
		WithDeferredConnect(),
		WithDialer(connection.NewDialer(cfg, nil)),
		WithConnectTimeout(5*time.Second),
	)

	subs := make(chan any, 1)
	p.On(EventSubscription, events.NewListener(func(args ...any) { subs <- args[0] }))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !p.Connected() {
		t.Fatal("Connected() = false after Connect")
	}

	if err := p.Send([]byte(`{"id":"abc"}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case payload := <-subs:
		m, ok := payload.(map[string]any)
		if !ok || m["method"] != "mesh_subscription" {
			t.Errorf("subscription payload = %v", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no subscription event")
	}

	if err := p.Disconnect(); err != nil {
		t.Errorf("Disconnect: %v", err)
	}
	if p.Connected() {
		t.Error("Connected() = true after Disconnect")
	}
}
