package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestCheckAccess(t *testing.T) {
	tests := []struct {
		name       string
		presented  string
		configured string
		want       bool
	}{
		{"gate disabled, no token", "", "", true},
		{"gate disabled, any token", "whatever", "", true},
		{"exact match", "s3cret", "s3cret", true},
		{"absent token", "", "s3cret", false},
		{"wrong token", "nope", "s3cret", false},
		{"case differs", "S3CRET", "s3cret", false},
		{"prefix only", "s3c", "s3cret", false},
		{"surrounding space not normalized", " s3cret", "s3cret", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CheckAccess(tt.presented, tt.configured); got != tt.want {
				t.Errorf("CheckAccess(%q, %q) = %v, want %v", tt.presented, tt.configured, got, tt.want)
			}
		})
	}
}

func TestRelayToken(t *testing.T) {
	tests := []struct {
		name       string
		token      string
		header     string
		wantStatus int
		wantCalled bool
	}{
		{"open relay without header", "", "", http.StatusOK, true},
		{"open relay ignores header", "", "anything", http.StatusOK, true},
		{"matching header", "tok", "tok", http.StatusOK, true},
		{"missing header", "tok", "", http.StatusUnauthorized, false},
		{"wrong header", "tok", "bad", http.StatusUnauthorized, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			e := echo.New()
			e.Use(RelayToken(tt.token, slog.New(slog.NewTextHandler(io.Discard, nil))))
			e.GET("/weather", func(c echo.Context) error {
				called = true
				return c.String(http.StatusOK, "ok")
			})

			req := httptest.NewRequest(http.MethodGet, "/weather?city=Pune", http.NoBody)
			if tt.header != "" {
				req.Header.Set(HeaderRelayKey, tt.header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if called != tt.wantCalled {
				t.Errorf("handler called = %v, want %v", called, tt.wantCalled)
			}
			if tt.wantStatus == http.StatusUnauthorized {
				if got := strings.TrimSpace(rec.Body.String()); got != `{"detail":"bad token"}` {
					t.Errorf("body = %q, want %q", got, `{"detail":"bad token"}`)
				}
			}
		})
	}
}
