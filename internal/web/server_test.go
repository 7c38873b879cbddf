package web_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/visawatch/internal/auth"
	"github.com/example/visawatch/internal/bot"
	"github.com/example/visawatch/internal/web"
)

func newServer(t *testing.T) *web.Server {
	t.Helper()
	hash, err := auth.HashPassword("opensesame")
	require.NoError(t, err)
	return &web.Server{
		Auth: auth.NewStore(hash,
			[]byte("0123456789abcdef0123456789abcdef"), []byte("0123456789abcdef")),
		Status: func() bot.Status {
			return bot.Status{
				Running:        true,
				StartedAt:      time.Now(),
				Attempts:       12,
				ActiveLocation: "Toronto",
			}
		},
		Log: zerolog.Nop(),
	}
}

func TestHealthz(t *testing.T) {
	w := httptest.NewRecorder()
	newServer(t).Routes().ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStatusPageRequiresLogin(t *testing.T) {
	w := httptest.NewRecorder()
	newServer(t).Routes().ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Result().Header.Get("Location"))
}

func TestLoginFlow(t *testing.T) {
	s := newServer(t)
	routes := s.Routes()

	// Wrong password re-renders the form.
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/login",
		strings.NewReader(url.Values{"password": {"wrong"}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	routes.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Wrong password")

	// Right password sets a session and redirects home.
	w = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/login",
		strings.NewReader(url.Values{"password": {"opensesame"}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	routes.ServeHTTP(w, req)
	require.Equal(t, http.StatusFound, w.Code)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)

	// The session cookie unlocks the status page.
	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	routes.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Toronto")
}

func TestLogoutClearsSession(t *testing.T) {
	w := httptest.NewRecorder()
	newServer(t).Routes().ServeHTTP(w, httptest.NewRequest("GET", "/logout", nil))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Result().Header.Get("Location"))
}
