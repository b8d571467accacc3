package delivery

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ashureev/incident-intake/internal/domain"
)

func TestAPIForwarderPayloadAndEcho(t *testing.T) {
	var got map[string]map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected JSON content type, got %q", ct)
		}
		data, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(data, &got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		// httpbin echoes the parsed body under "json".
		_, _ = w.Write([]byte(`{"json":` + string(data) + `}`))
	}))
	defer srv.Close()

	fwd := NewAPIForwarder(srv.URL, srv.Client())
	if err := fwd.Forward(context.Background(), domain.Report{Theme: "Bad signal", Description: "Was better before"}); err != nil {
		t.Fatalf("Forward failed: %v", err)
	}

	incident := got["incident"]
	if incident["theme"] != "Bad signal" || incident["description"] != "Was better before" {
		t.Fatalf("unexpected payload: %v", got)
	}
	if v, ok := incident["contact"]; !ok || v != nil {
		t.Fatalf("expected contact to be null, got %v (present=%v)", v, ok)
	}
	if v, ok := incident["file"]; !ok || v != nil {
		t.Fatalf("expected file to be null, got %v (present=%v)", v, ok)
	}
}

func TestAPIForwarderRejectsBadResponses(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `{"incident":{"theme":"a","description":"b"}}`},
		{name: "created is not ok", status: http.StatusCreated, body: `{"incident":{"theme":"a","description":"b"}}`},
		{name: "malformed body", status: http.StatusOK, body: `not json`},
		{name: "missing description", status: http.StatusOK, body: `{"incident":{"theme":"a"}}`},
		{name: "no incident", status: http.StatusOK, body: `{"ok":true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			fwd := NewAPIForwarder(srv.URL, srv.Client())
			if err := fwd.Forward(context.Background(), domain.Report{Theme: "a", Description: "b"}); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestAPIForwarderTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	fwd := NewAPIForwarder(url, nil)
	if err := fwd.Forward(context.Background(), domain.Report{Theme: "a", Description: "b"}); err == nil {
		t.Fatal("expected transport error")
	}
}
