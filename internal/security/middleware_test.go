package security

import (
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func echo() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		_, _ = w.Write(data)
	})
}

func TestBodyLimitPassesSmallBody(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("hello"))
	BodyLimit{Max: 10}.Middleware(echo()).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "hello", rr.Body.String())
}

func TestBodyLimitRejectsOversizedBody(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("excessive"))
	req.ContentLength = -1
	BodyLimit{Max: 5}.Middleware(echo()).ServeHTTP(rr, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	require.Contains(t, rr.Body.String(), "PAYLOAD_TOO_LARGE")
}

func TestHeadersSetsHSTSOnlyOverTLS(t *testing.T) {
	h := Headers{HSTSMaxAge: 600}.Middleware(echo())

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	require.Empty(t, rr.Header().Get("Strict-Transport-Security"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.TLS = &tls.ConnectionState{}
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, "max-age=600; includeSubDomains", rr.Header().Get("Strict-Transport-Security"))
}

func TestCSRFOnlyGuardsCookieSessions(t *testing.T) {
	h := CSRF{SessionCookie: "access_token"}.Middleware(echo())

	cases := []struct {
		name   string
		setup  func(*http.Request)
		status int
	}{
		{"no session cookie", func(*http.Request) {}, http.StatusOK},
		{"bearer token", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: "access_token", Value: "jwt"})
			r.Header.Set("Authorization", "Bearer jwt")
		}, http.StatusOK},
		{"cookie without token", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: "access_token", Value: "jwt"})
		}, http.StatusForbidden},
		{"cookie with mismatched token", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: "access_token", Value: "jwt"})
			r.AddCookie(&http.Cookie{Name: "X-CSRF-Token", Value: "abc"})
			r.Header.Set("X-CSRF-Token", "abd")
		}, http.StatusForbidden},
		{"cookie with matching token", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: "access_token", Value: "jwt"})
			r.AddCookie(&http.Cookie{Name: "X-CSRF-Token", Value: "abc"})
			r.Header.Set("X-CSRF-Token", "abc")
		}, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}"))
			tc.setup(req)
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			require.Equal(t, tc.status, rr.Code)
		})
	}
}
