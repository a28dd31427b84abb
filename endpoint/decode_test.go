package endpoint

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func statusOf(err error) int {
	var ee *EndpointError
	if errors.As(err, &ee) {
		return ee.Status
	}
	return 0
}

func TestUnmarshal_PathAndHeaders(t *testing.T) {
	type params struct {
		Service  string    `path:"service"`
		Trace    string    `header:"traceparent"`
		Accept   []string  `header:"Accept"`
		Retries  int       `header:"X-Retries"`
		Deadline time.Time `header:"X-Deadline"`
		Missing  string    `header:"X-Missing"`
		Skipped  string    `header:"-"`
		Untagged string
	}

	var got params
	mux := http.NewServeMux()
	mux.HandleFunc("/rpc/{service}", func(w http.ResponseWriter, r *http.Request) {
		if err := Unmarshal(r, &got); err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
	})

	req := httptest.NewRequest(http.MethodPost, "/rpc/Calculator", nil)
	req.Header.Set("Traceparent", "00-abc-def-01")
	req.Header.Add("Accept", "application/json")
	req.Header.Add("Accept", "application/cbor")
	req.Header.Set("X-Retries", "3")
	req.Header.Set("X-Deadline", "2026-01-02T03:04:05Z")
	req.Header.Set("Skipped", "x")
	req.Header.Set("Untagged", "x")
	mux.ServeHTTP(httptest.NewRecorder(), req)

	if got.Service != "Calculator" {
		t.Errorf("Service = %q", got.Service)
	}
	if got.Trace != "00-abc-def-01" {
		t.Errorf("Trace = %q", got.Trace)
	}
	if len(got.Accept) != 2 || got.Accept[1] != "application/cbor" {
		t.Errorf("Accept = %v", got.Accept)
	}
	if got.Retries != 3 {
		t.Errorf("Retries = %d", got.Retries)
	}
	if got.Deadline.Year() != 2026 {
		t.Errorf("Deadline = %v", got.Deadline)
	}
	if got.Missing != "" || got.Skipped != "" || got.Untagged != "" {
		t.Errorf("unexpected values: %+v", got)
	}
}

func TestUnmarshal_RawBody(t *testing.T) {
	var p struct {
		Body []byte `body:"" maxLength:"64"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"method":"Test"}`))
	req.Header.Set("Content-Type", "application/cbor")
	if err := Unmarshal(req, &p); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if string(p.Body) != `{"method":"Test"}` {
		t.Fatalf("Body = %q", p.Body)
	}
}

func TestUnmarshal_BodyTooLarge(t *testing.T) {
	var p struct {
		Body string `body:"" maxLength:"8"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 100)))
	err := Unmarshal(req, &p)
	if statusOf(err) != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %v", err)
	}
}

func TestUnmarshal_JSONBody(t *testing.T) {
	type body struct {
		Method string `json:"method"`
	}

	t.Run("decoded", func(t *testing.T) {
		var p struct {
			Body body `body:""`
		}
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"method":"Test"}`))
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
		if err := Unmarshal(req, &p); err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		if p.Body.Method != "Test" {
			t.Fatalf("Method = %q", p.Body.Method)
		}
	})

	t.Run("wrong media type", func(t *testing.T) {
		var p struct {
			Body body `body:",json"`
		}
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "text/plain")
		if s := statusOf(Unmarshal(req, &p)); s != http.StatusUnsupportedMediaType {
			t.Fatalf("expected 415, got %d", s)
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		var p struct {
			Body *body `body:""`
		}
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"method":`))
		req.Header.Set("Content-Type", "application/json")
		if s := statusOf(Unmarshal(req, &p)); s != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", s)
		}
	})
}

func TestUnmarshal_Errors(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-N", "many")

	tests := []struct {
		name   string
		dst    any
		status int
	}{
		{"nil pointer", (*struct{})(nil), http.StatusInternalServerError},
		{"not a pointer", struct{}{}, http.StatusInternalServerError},
		{"not a struct", new(int), http.StatusInternalServerError},
		{"bad header value", &struct {
			N int `header:"X-N"`
		}{}, http.StatusBadRequest},
		{"unknown flag", &struct {
			N int `header:"X-N,base64"`
		}{}, http.StatusInternalServerError},
		{"bad maxLength", &struct {
			N int `header:"X-N" maxLength:"big"`
		}{}, http.StatusInternalServerError},
		{"two bodies", &struct {
			A string `body:""`
			B string `body:""`
		}{}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if s := statusOf(Unmarshal(req, tt.dst)); s != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, s)
			}
		})
	}
}

func TestUnmarshal_PointerToPointer(t *testing.T) {
	type params struct {
		Trace string `header:"traceparent"`
	}
	var p *params
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Traceparent", "t")
	if err := Unmarshal(req, &p); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if p == nil || p.Trace != "t" {
		t.Fatalf("unexpected %+v", p)
	}
}
