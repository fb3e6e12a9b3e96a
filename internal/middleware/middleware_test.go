package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/burrow/internal/errors"
	"github.com/conneroisu/burrow/internal/logging"
)

type originFunc func(string) bool

func (f originFunc) IsAllowedOrigin(origin string) bool { return f(origin) }

func allowOnly(allowed string) OriginValidator {
	return originFunc(func(origin string) bool { return origin == allowed })
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	c := &Chain{}
	c.Use(mark("outer"))
	c.Use(mark("inner"))
	h := c.Apply(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func TestNewChainDefaultStack(t *testing.T) {
	c := NewChain(Dependencies{Origins: allowOnly("https://ok.test")})
	assert.Equal(t, 4, c.Len())

	assert.Panics(t, func() { NewChain(Dependencies{}) })
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, ContentSecurityPolicy, rec.Header().Get("Content-Security-Policy"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("Referrer-Policy"))
}

func TestCORS(t *testing.T) {
	reached := false
	h := CORS(allowOnly("https://ok.test"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	}))

	testCases := []struct {
		name    string
		method  string
		origin  string
		allowed bool
		reached bool
	}{
		{"allowed preflight", http.MethodOptions, "https://ok.test", true, false},
		{"rejected preflight", http.MethodOptions, "https://evil.test", false, false},
		{"allowed request", http.MethodPost, "https://ok.test", true, true},
		{"no origin", http.MethodGet, "", false, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			reached = false
			req := httptest.NewRequest(tc.method, "/api/serialize", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tc.reached, reached)
			if tc.allowed {
				assert.Equal(t, tc.origin, rec.Header().Get("Access-Control-Allow-Origin"))
			} else {
				assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
			}
			if tc.method == http.MethodOptions {
				assert.Equal(t, http.StatusNoContent, rec.Code)
			}
		})
	}
}

func TestLogging(t *testing.T) {
	recorder := logging.NewRecorder()
	h := Logging(recorder)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/pot", nil))

	entries := recorder.Filter(logging.LevelDebug)
	require.Len(t, entries, 1)
	assert.Equal(t, "HTTP request", entries[0].Message)
	assert.Equal(t, "/pot", entries[0].Fields["path"])
	assert.Equal(t, http.StatusTeapot, entries[0].Fields["status"])
	assert.Equal(t, 15, entries[0].Fields["bytes"])
}

func TestRecovery(t *testing.T) {
	recorder := logging.NewRecorder()
	h := Recovery(recorder)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	entries := recorder.Filter(logging.LevelError)
	require.Len(t, entries, 1)
	assert.True(t, errors.HasType(entries[0].Err, errors.TypeInternal))
}
