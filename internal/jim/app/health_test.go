package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bdobrica/Jim/internal/jim/memory"
	"github.com/bdobrica/Jim/internal/jim/trigger"
)

type fakeStatus struct {
	memErr error
}

func (fakeStatus) GuardStats() trigger.Stats { return trigger.Stats{InFlight: 1, Tracked: 4} }
func (fakeStatus) ActivePreset() string      { return "genz" }
func (fakeStatus) GatewayNames() []string    { return []string{"matrix", "telegram"} }
func (f fakeStatus) MemoryStats(context.Context) (memory.Stats, error) {
	return memory.Stats{Profiles: 2, Facts: 5, Contexts: 3}, f.memErr
}

func TestHealthServer_Health(t *testing.T) {
	hs := NewHealthServer("127.0.0.1:0", fakeStatus{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	hs.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "healthy" {
		t.Errorf("expected status healthy, got %v", resp["status"])
	}
}

func TestHealthServer_Status(t *testing.T) {
	hs := NewHealthServer("127.0.0.1:0", fakeStatus{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	hs.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp statusResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "ok" || resp.Preset != "genz" {
		t.Errorf("status = %q preset = %q", resp.Status, resp.Preset)
	}
	if diff := cmp.Diff(trigger.Stats{InFlight: 1, Tracked: 4}, resp.Guard); diff != "" {
		t.Errorf("guard (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(&memory.Stats{Profiles: 2, Facts: 5, Contexts: 3}, resp.Memory); diff != "" {
		t.Errorf("memory (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"matrix", "telegram"}, resp.Gateways); diff != "" {
		t.Errorf("gateways (-want +got):\n%s", diff)
	}
}

func TestHealthServer_StatusWithoutMemory(t *testing.T) {
	hs := NewHealthServer("127.0.0.1:0", fakeStatus{memErr: errors.New("locked")}, nil)

	w := httptest.NewRecorder()
	hs.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))

	var resp map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if _, ok := resp["memory"]; ok {
		t.Errorf("memory reported despite an error: %v", resp["memory"])
	}
}

func TestHealthServer_RejectsPost(t *testing.T) {
	hs := NewHealthServer("127.0.0.1:0", fakeStatus{}, nil)
	w := httptest.NewRecorder()
	hs.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/health", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /health = %d, want 405", w.Code)
	}
}

func TestHealthServer_ServeAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	hs := NewHealthServer(ln.Addr().String(), fakeStatus{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hs.serve(ctx, ln) }()

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s/health", ln.Addr()))
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /health = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
