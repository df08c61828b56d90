package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestMiddleware_RequestIDAndScopedLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	l := New(Options{Env: "local", Output: &buf})

	r := gin.New()
	r.Use(Middleware(l))
	r.GET("/x", func(c *gin.Context) {
		if FromGin(c) != From(c.Request.Context()) {
			t.Errorf("gin and context loggers differ")
		}
		From(c.Request.Context()).Info("inside")
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderRequestID, "rid-1")
	r.ServeHTTP(w, req)

	if got := w.Header().Get(HeaderRequestID); got != "rid-1" {
		t.Fatalf("expected request id echoed, got %q", got)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %s", len(lines), buf.String())
	}
	for _, line := range lines {
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("bad json %q: %v", line, err)
		}
		if rec["request_id"] != "rid-1" {
			t.Fatalf("missing request_id in %q", line)
		}
	}
}

func TestMiddleware_GeneratesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer

	r := gin.New()
	r.Use(Middleware(New(Options{Env: "production", Output: &buf})))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusUnauthorized) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Header().Get(HeaderRequestID) == "" {
		t.Fatalf("expected generated request id")
	}
	if !strings.Contains(buf.String(), `"level":"WARN"`) {
		t.Fatalf("expected 4xx logged at warn, got %s", buf.String())
	}
}

func TestFrom_FallsBackToDefault(t *testing.T) {
	if From(context.Background()) == nil {
		t.Fatalf("expected default logger")
	}
}

func TestLevel(t *testing.T) {
	cases := []struct {
		env, override string
		want          slog.Level
	}{
		{"local", "", slog.LevelDebug},
		{"dev", "", slog.LevelDebug},
		{"production", "", slog.LevelInfo},
		{"production", "debug", slog.LevelDebug},
		{"local", "WARN", slog.LevelWarn},
		{"staging", "error", slog.LevelError},
		{"staging", "verbose", slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := Level(tc.env, tc.override); got != tc.want {
			t.Errorf("Level(%q, %q) = %s, want %s", tc.env, tc.override, got, tc.want)
		}
	}
}

func TestNew_StampsService(t *testing.T) {
	var buf bytes.Buffer
	New(Options{Env: "production", Service: "svc", Output: &buf}).Debug("hidden")
	New(Options{Env: "production", Service: "svc", Output: &buf}).Info("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug record written at info level: %s", out)
	}
	if !strings.Contains(out, `"service":"svc"`) {
		t.Fatalf("expected service attr, got %s", out)
	}
}
