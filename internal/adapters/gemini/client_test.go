package gemini_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"friendly_eats/internal/adapters/gemini"
)

func reply(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"candidates": []any{
			map[string]any{"content": map[string]any{"role": "model", "parts": []any{map[string]any{"text": text}}}},
		},
	})
}

func TestClient_Summarize_RequestShape(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/models/test-model:generateContent" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "test-key" {
			t.Errorf("api key header missing")
		}
		var body struct {
			Contents []struct {
				Parts []struct{ Text string } `json:"parts"`
			} `json:"contents"`
			SystemInstruction struct {
				Parts []struct{ Text string } `json:"parts"`
			} `json:"systemInstruction"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if body.Contents[0].Parts[0].Text != "the prompt" || body.SystemInstruction.Parts[0].Text != "one sentence" {
			t.Errorf("unexpected body: %+v", body)
		}
		reply(w, "  People love it.\n")
	}))
	defer ts.Close()

	cl, err := gemini.New(ts.URL, "test-key", "test-model", 100) // high RPS for tests
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	got, err := cl.Summarize(context.Background(), "the prompt", "one sentence")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got != "People love it." {
		t.Fatalf("unexpected text: %q", got)
	}
}

func TestClient_Summarize_RetriesThenSuccess(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch atomic.AddInt32(&hits, 1) {
		case 1:
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			reply(w, "ok")
		}
	}))
	defer ts.Close()

	cl, _ := gemini.New(ts.URL, "test-key", "", 100)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if _, err := cl.Summarize(ctx, "p", ""); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if atomic.LoadInt32(&hits) < 3 {
		t.Fatalf("expected at least 3 calls due to retries, got %d", hits)
	}
}

func TestClient_Summarize_Errors(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{"unauthorized", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusUnauthorized) }, gemini.ErrUnauthorized},
		{"no candidates", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{"candidates":[]}`)) }, gemini.ErrEmpty},
		{"blank text", func(w http.ResponseWriter, r *http.Request) { reply(w, "  ") }, gemini.ErrEmpty},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			ts := httptest.NewServer(c.handler)
			defer ts.Close()
			cl, _ := gemini.New(ts.URL, "test-key", "", 100)
			if _, err := cl.Summarize(context.Background(), "p", ""); !errors.Is(err, c.want) {
				t.Fatalf("want %v, got %v", c.want, err)
			}
		})
	}
}

func TestClient_BadRequestBodyInError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"prompt too long"}}`))
	}))
	defer ts.Close()

	cl, _ := gemini.New(ts.URL, "test-key", "", 100)
	_, err := cl.Summarize(context.Background(), "p", "")
	if err == nil || !strings.Contains(err.Error(), "prompt too long") {
		t.Fatalf("unexpected err: %v", err)
	}
}

func TestClient_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	cl, _ := gemini.New(ts.URL, "test-key", "", 100)
	for i := 0; i < 5; i++ {
		_, _ = cl.Summarize(context.Background(), "p", "")
	}
	_, err := cl.Summarize(context.Background(), "p", "")
	if !errors.Is(err, gemini.ErrCircuitOpen) {
		t.Fatalf("want open circuit, got %v", err)
	}
	if n := atomic.LoadInt32(&hits); n != 5 {
		t.Fatalf("calls reached server with open circuit: %d", n)
	}
}

func TestNew_RequiresKey(t *testing.T) {
	if _, err := gemini.New("", "", "", 0); err == nil {
		t.Fatal("expected error without key")
	}
}
