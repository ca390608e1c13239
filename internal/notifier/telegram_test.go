package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestNotifier(t *testing.T, handler http.HandlerFunc) (*TelegramNotifier, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	n := New(Config{BotToken: "test-token", Timeout: time.Second}, zap.NewNop())
	n.apiURL = srv.URL
	return n, srv
}

func TestTelegramNotifier_SendAlertReturnsMessageID(t *testing.T) {
	n, srv := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sendMessage" {
			t.Errorf("path = %s, want /sendMessage", r.URL.Path)
		}
		json.NewEncoder(w).Encode(apiResponse{OK: true, Result: apiResult{MessageID: 42}})
	})
	defer srv.Close()

	id, ok, err := n.SendAlert(context.Background(), "chat1", "hello", nil)
	if err != nil {
		t.Fatalf("SendAlert: %v", err)
	}
	if !ok || id != 42 {
		t.Errorf("SendAlert = (%d, %v), want (42, true)", id, ok)
	}
}

func TestTelegramNotifier_SendAlertAPIFailureIsNotFatal(t *testing.T) {
	n, srv := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(apiResponse{OK: false, Description: "chat not found"})
	})
	defer srv.Close()

	_, ok, err := n.SendAlert(context.Background(), "chat1", "hello", nil)
	if err != nil {
		t.Errorf("expected a nil error on an API-level failure, got %v", err)
	}
	if ok {
		t.Error("expected ok=false on an API-level failure")
	}
}

func TestTelegramNotifier_SerializesPerChat(t *testing.T) {
	var concurrent int32
	var maxConcurrent int32
	n, srv := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		cur := atomic.AddInt32(&concurrent, 1)
		if cur > atomic.LoadInt32(&maxConcurrent) {
			atomic.StoreInt32(&maxConcurrent, cur)
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&concurrent, -1)
		json.NewEncoder(w).Encode(apiResponse{OK: true, Result: apiResult{MessageID: 1}})
	})
	defer srv.Close()

	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		go func() {
			n.SendAlert(context.Background(), "same-chat", "msg", nil)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 5; i++ {
		<-done
	}

	if maxConcurrent > 1 {
		t.Errorf("max concurrent sends to the same chat = %d, want 1", maxConcurrent)
	}
}

func TestTelegramNotifier_RemoveMarkup(t *testing.T) {
	n, srv := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/editMessageReplyMarkup" {
			t.Errorf("path = %s, want /editMessageReplyMarkup", r.URL.Path)
		}
		json.NewEncoder(w).Encode(apiResponse{OK: true})
	})
	defer srv.Close()

	if err := n.RemoveMarkup(context.Background(), "chat1", 7); err != nil {
		t.Fatalf("RemoveMarkup: %v", err)
	}
}
