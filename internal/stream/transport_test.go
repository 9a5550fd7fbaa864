package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestWSTransport_ConnectAndReceive(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		// Echo the first client frame back, then hold the connection.
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.WriteMessage(websocket.TextMessage, msg)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	transport := &WSTransport{}
	conn, err := transport.Connect(context.Background(), wsURL(server))
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	if err := conn.Send([]byte(`{"method":"subscribeNewToken"}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	msg, err := conn.Receive(2 * time.Second)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if string(msg) != `{"method":"subscribeNewToken"}` {
		t.Errorf("echo = %s", msg)
	}
}

func TestWSTransport_ReceiveTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		// Never send anything.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	transport := &WSTransport{}
	conn, err := transport.Connect(context.Background(), wsURL(server))
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	_, err = conn.Receive(50 * time.Millisecond)
	if err != ErrReceiveTimeout {
		t.Errorf("Receive on idle = %v; want ErrReceiveTimeout", err)
	}

	// The connection survives a timeout; pings still go through.
	if err := conn.Ping(); err != nil {
		t.Errorf("Ping after timeout: %v", err)
	}
}

func TestWSTransport_ClosedConnection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	defer server.Close()

	transport := &WSTransport{}
	conn, err := transport.Connect(context.Background(), wsURL(server))
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	_, err = conn.Receive(time.Second)
	if err != ErrClosed {
		t.Errorf("Receive on closed = %v; want ErrClosed", err)
	}
}

func TestWSTransport_DialFailure(t *testing.T) {
	transport := &WSTransport{HandshakeTimeout: 200 * time.Millisecond}
	_, err := transport.Connect(context.Background(), "ws://127.0.0.1:1/nope")
	if err == nil {
		t.Fatal("expected dial failure")
	}
}
