package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestRequestIDGeneratedAndPropagated(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || rr.Header().Get(RequestIDHeader) != seen {
		t.Fatalf("request id not generated: ctx=%q header=%q", seen, rr.Header().Get(RequestIDHeader))
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "abc" {
		t.Fatalf("incoming request id not kept, got %q", seen)
	}
}

func TestLoggerWritesAccessLine(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(&buf)
	handler := RequestID(Logger(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		zerolog.Ctx(r.Context()).Info().Msg("inside")
		w.WriteHeader(http.StatusTeapot)
	})))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))
	out := buf.String()
	for _, want := range []string{`"message":"inside"`, `"status":418`, `"path":"/v1/healthz"`, `"request_id":"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output %q missing %s", out, want)
		}
	}
}

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	listed := CORS([]string{"https://app.example"})(next)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://app.example")
	rr := httptest.NewRecorder()
	listed.ServeHTTP(rr, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Fatalf("allow origin = %q", got)
	}

	req.Header.Set("Origin", "https://evil.example")
	rr = httptest.NewRecorder()
	listed.ServeHTTP(rr, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unlisted origin allowed: %q", got)
	}

	open := CORS([]string{"*"})(next)
	pre := httptest.NewRequest(http.MethodOptions, "/", nil)
	pre.Header.Set("Origin", "https://evil.example")
	rr = httptest.NewRecorder()
	open.ServeHTTP(rr, pre)
	if rr.Code != http.StatusNoContent || rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("wildcard preflight: code=%d origin=%q", rr.Code, rr.Header().Get("Access-Control-Allow-Origin"))
	}
}

type fixedCountry map[string]string

func (f fixedCountry) CountryCode(addr string) (string, error) {
	return f[addr], nil
}

func TestCountryTagsAccessLog(t *testing.T) {
	var buf bytes.Buffer
	var seen string
	handler := Country(fixedCountry{"203.0.113.7": "NL"})(Logger(zerolog.New(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CountryFromContext(r.Context())
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:4000"
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "NL" {
		t.Fatalf("country = %q, want NL", seen)
	}
	if !strings.Contains(buf.String(), `"country":"NL"`) {
		t.Fatalf("access log missing country: %q", buf.String())
	}

	buf.Reset()
	req.RemoteAddr = "198.51.100.1:1"
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if strings.Contains(buf.String(), "country") {
		t.Fatalf("unknown address tagged: %q", buf.String())
	}

	if Country(nil)(http.NotFoundHandler()) == nil {
		t.Fatal("nil resolver must pass through")
	}
}
