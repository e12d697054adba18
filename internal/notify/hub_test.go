package notify

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/HoktusDevs/manpower-platform-app-sub003/internal/domain/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// startHub поднимает сервер, где пользователь берётся из query user,
// а admin=1 включает подписку администратора.
func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(time.Second, testLogger())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.Serve(w, r, r.URL.Query().Get("user"), r.URL.Query().Get("admin") == "1")
	}))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() ошибка: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitConnections(t *testing.T, hub *Hub, key string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.Connections(key) == n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("соединений %s: %d, ожидается %d", key, hub.Connections(key), n)
}

func TestHub_NotifyUser(t *testing.T) {
	hub, srv := startHub(t)
	alice := dial(t, srv, "user=alice")
	waitConnections(t, hub, "alice", 1)

	err := hub.Notify(context.Background(), "alice", model.DocumentUpdate{
		DocumentID:       "doc-1",
		Status:           "processing_in_progress",
		ProcessingStatus: model.ProcessingOCR,
		Phase:            "OCR",
	})
	if err != nil {
		t.Fatalf("Notify() ошибка: %v", err)
	}

	_ = alice.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got model.DocumentUpdate
	if err := alice.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON() ошибка: %v", err)
	}
	if got.Action != model.DocumentUpdateAction || got.DocumentID != "doc-1" || got.Phase != "OCR" {
		t.Errorf("получено %+v", got)
	}
}

func TestHub_AdminReceivesAll(t *testing.T) {
	hub, srv := startHub(t)
	admin := dial(t, srv, "user=root&admin=1")
	waitConnections(t, hub, allUsers, 1)

	_ = hub.Notify(context.Background(), "bob", model.DocumentUpdate{DocumentID: "doc-2"})

	_ = admin.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got model.DocumentUpdate
	if err := admin.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON() ошибка: %v", err)
	}
	if got.DocumentID != "doc-2" {
		t.Errorf("DocumentID = %q", got.DocumentID)
	}
}

func TestHub_PingPong(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, "user=alice")
	waitConnections(t, hub, "alice", 1)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)); err != nil {
		t.Fatal(err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]string
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() ошибка: %v", err)
	}
	if msg["type"] != "pong" {
		t.Errorf("ответ = %v, ожидается pong", msg)
	}
}

func TestHub_Disconnect(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, "user=alice")
	waitConnections(t, hub, "alice", 1)

	_ = conn.Close()
	waitConnections(t, hub, "alice", 0)

	// Уведомление без получателей — не ошибка
	if err := hub.Notify(context.Background(), "alice", model.DocumentUpdate{DocumentID: "x"}); err != nil {
		t.Errorf("Notify() = %v", err)
	}
}

func TestClient_EnqueueAfterClose(t *testing.T) {
	hub := NewHub(time.Second, testLogger())
	c := &client{hub: hub, key: "alice", send: make(chan []byte, 1)}
	hub.register(c)

	if !c.enqueue([]byte("1")) {
		t.Fatal("enqueue() в пустой буфер = false")
	}
	if c.enqueue([]byte("2")) {
		t.Error("enqueue() в полный буфер = true")
	}

	c.close()
	if hub.Connections("alice") != 0 {
		t.Errorf("соединений после close: %d", hub.Connections("alice"))
	}
	if c.enqueue([]byte("3")) {
		t.Error("enqueue() после close = true")
	}
	// Повторное закрытие и уведомление закрытому клиенту не паникуют
	c.close()
	if err := hub.Notify(context.Background(), "alice", model.DocumentUpdate{DocumentID: "x"}); err != nil {
		t.Errorf("Notify() = %v", err)
	}
}

func TestClient_ConcurrentNotifyAndClose(t *testing.T) {
	hub := NewHub(time.Second, testLogger())
	c := &client{hub: hub, key: "bob", send: make(chan []byte, sendBuffer)}
	hub.register(c)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.enqueue([]byte("x"))
			}
		}()
	}
	c.close()
	wg.Wait()
}
