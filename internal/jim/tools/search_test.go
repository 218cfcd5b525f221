package tools

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const testSearchKey = "AIzaSearchKeyAbcdefghijklmnopqrs"

func TestNewGoogleSearch_Disabled(t *testing.T) {
	for _, cfg := range []GoogleSearchConfig{{}, {APIKey: testSearchKey}, {EngineID: "cx"}} {
		s := NewGoogleSearch(cfg)
		if _, err := s.Search(context.Background(), "go", 2); !errors.Is(err, ErrDisabled) {
			t.Errorf("cfg %+v: err = %v, want ErrDisabled", cfg, err)
		}
	}
}

func TestGoogleSearch(t *testing.T) {
	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"items":[
			{"title":" Go ","link":"https://go.dev","snippet":"The Go\n programming   language"},
			{"title":"Tour","link":"https://go.dev/tour","snippet":"A tour"},
			{"title":"Blog","link":"https://go.dev/blog","snippet":"News"}
		]}`)
	}))
	defer srv.Close()

	s := NewGoogleSearch(GoogleSearchConfig{APIKey: testSearchKey, EngineID: "engine-1", Endpoint: srv.URL})
	results, err := s.Search(context.Background(), " golang ", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	want := []SearchResult{
		{Title: "Go", Link: "https://go.dev", Snippet: "The Go programming language"},
		{Title: "Tour", Link: "https://go.dev/tour", Snippet: "A tour"},
	}
	if diff := cmp.Diff(want, results); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
	if got.Get("q") != "golang" || got.Get("cx") != "engine-1" || got.Get("num") != "2" || got.Get("key") != testSearchKey {
		t.Errorf("query = %v", got)
	}
}

func TestGoogleSearch_ClampsCount(t *testing.T) {
	var num string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		num = r.URL.Query().Get("num")
		_, _ = io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	s := NewGoogleSearch(GoogleSearchConfig{APIKey: testSearchKey, EngineID: "cx", Endpoint: srv.URL})
	for n, want := range map[int]string{0: "1", 50: "10", 3: "3"} {
		results, err := s.Search(context.Background(), "go", n)
		if err != nil {
			t.Fatalf("Search(n=%d): %v", n, err)
		}
		if len(results) != 0 {
			t.Errorf("results = %v, want none", results)
		}
		if num != want {
			t.Errorf("n=%d: num = %q, want %q", n, num, want)
		}
	}
}

func TestGoogleSearch_APIErrorRedacted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"code":400,"message":"API key not valid: `+testSearchKey+`","status":"INVALID_ARGUMENT"}}`)
	}))
	defer srv.Close()

	s := NewGoogleSearch(GoogleSearchConfig{APIKey: testSearchKey, EngineID: "cx", Endpoint: srv.URL})
	_, err := s.Search(context.Background(), "go", 2)
	if err == nil {
		t.Fatal("expected error")
	}
	if strings.Contains(err.Error(), testSearchKey) {
		t.Errorf("key leaked: %v", err)
	}
	if !strings.Contains(err.Error(), "INVALID_ARGUMENT") {
		t.Errorf("err = %v", err)
	}
}

func TestGoogleSearch_TransportErrorRedacted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	endpoint := srv.URL
	srv.Close()

	s := NewGoogleSearch(GoogleSearchConfig{APIKey: testSearchKey, EngineID: "cx", Endpoint: endpoint})
	_, err := s.Search(context.Background(), "go", 2)
	if err == nil {
		t.Fatal("expected error from closed server")
	}
	if strings.Contains(err.Error(), testSearchKey) {
		t.Errorf("key leaked: %v", err)
	}
}

func TestGoogleSearch_EmptyQuery(t *testing.T) {
	s := NewGoogleSearch(GoogleSearchConfig{APIKey: testSearchKey, EngineID: "cx", Endpoint: "http://127.0.0.1:0"})
	if _, err := s.Search(context.Background(), "  ", 2); err == nil {
		t.Fatal("expected error for empty query")
	}
}
