package events

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	redislib "github.com/redis/go-redis/v9"
)

func dialRoom(t *testing.T, hub *Hub, rooms ...string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, rooms...)
	}))
	t.Cleanup(srv.Close)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	var hello map[string]any
	if err := conn.ReadJSON(&hello); err != nil || hello["type"] != "connected" {
		t.Fatalf("expected welcome, got %+v (%v)", hello, err)
	}
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func waitClients(t *testing.T, hub *Hub, room string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients(room) != want {
		if time.Now().After(deadline) {
			t.Fatalf("room %s has %d clients, want %d", room, hub.Clients(room), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHubRoutesByRoom(t *testing.T) {
	hub := NewHub(nil, nil)
	projectConn := dialRoom(t, hub, ProjectRoom("p-1"))
	userConn := dialRoom(t, hub, UserRoom("u-2"))
	waitClients(t, hub, ProjectRoom("p-1"), 1)
	waitClients(t, hub, UserRoom("u-2"), 1)

	msg := testMessage(TaskAssigned)
	msg.UserIDs = []string{"u-2"}
	if err := hub.Publish(context.Background(), msg); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got := readMessage(t, projectConn); got.Type != TaskAssigned || got.ProjectID != "p-1" {
		t.Fatalf("unexpected project message: %+v", got)
	}
	if got := readMessage(t, userConn); got.Type != TaskAssigned {
		t.Fatalf("unexpected user message: %+v", got)
	}

	projectConn.Close()
	waitClients(t, hub, ProjectRoom("p-1"), 0)
}

func TestHubRejectsForeignOrigin(t *testing.T) {
	hub := NewHub([]string{"https://app.example.com"}, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, ProjectRoom("p-1"))
	}))
	defer srv.Close()
	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	if _, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), header); err == nil {
		t.Fatalf("expected handshake failure for foreign origin")
	}
}

func TestRedisBridgeRelaysToHub(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redislib.NewClient(&redislib.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	hub := NewHub(nil, nil)
	conn := dialRoom(t, hub, ProjectRoom("p-1"))
	waitClients(t, hub, ProjectRoom("p-1"), 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- Bridge{Client: client, Hub: hub}.Run(ctx, ready)
	}()
	select {
	case <-ready:
	case err := <-done:
		t.Fatalf("bridge exited early: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatalf("bridge did not subscribe")
	}

	pub := RedisPublisher{Client: client}
	if pub.Name() != "redis" {
		t.Fatalf("unexpected publisher name %q", pub.Name())
	}
	if err := pub.Publish(ctx, testMessage(CommentAdded)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got := readMessage(t, conn); got.Type != CommentAdded || got.EntityID != "t-1" {
		t.Fatalf("unexpected relayed message: %+v", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("bridge: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("bridge did not stop")
	}
}

func TestChannelNames(t *testing.T) {
	if got := ProjectChannel(DefaultChannelPrefix, "p-1"); got != "taskflow:events:project:p-1" {
		t.Fatalf("project channel = %q", got)
	}
	if got := UserChannel(DefaultChannelPrefix, "u-1"); got != "taskflow:events:user:u-1" {
		t.Fatalf("user channel = %q", got)
	}
}
