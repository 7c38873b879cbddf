// Package web serves a small read-only status page for the running bot.
package web

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/visawatch/internal/auth"
	"github.com/example/visawatch/internal/bot"
	"github.com/example/visawatch/internal/history"
)

//go:embed templates/*.html
var fs embed.FS

type Server struct {
	Auth    *auth.Store
	Status  func() bot.Status
	History *history.Repo // optional
	Log     zerolog.Logger
}

type tmplData struct {
	Title    string
	Flash    string
	Status   bot.Status
	Attempts []history.Attempt
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/logout", s.handleLogout)
	mux.Handle("/", s.Auth.RequireAuth(http.HandlerFunc(s.handleStatus)))

	return mux
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	data := tmplData{Title: "visawatch", Status: s.Status()}
	if s.History != nil {
		attempts, err := s.History.Recent(r.Context(), 50)
		if err != nil {
			s.Log.Warn().Err(err).Msg("loading attempt history")
		}
		data.Attempts = attempts
	}
	s.render(w, "templates/status.html", data)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.render(w, "templates/login.html", tmplData{Title: "Login"})
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if !s.Auth.Authenticate(r.FormValue("password")) {
			s.render(w, "templates/login.html", tmplData{Title: "Login", Flash: "Wrong password"})
			return
		}
		if err := s.Auth.SetSession(w, r); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, "/", http.StatusFound)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.Auth.ClearSession(w)
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (s *Server) render(w http.ResponseWriter, name string, data tmplData) {
	t, err := template.ParseFS(fs, "templates/base.html", name)
	if err != nil {
		http.Error(w, "template error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := t.ExecuteTemplate(w, "base", data); err != nil {
		s.Log.Warn().Err(err).Msg("rendering template")
	}
}

// Start serves until ctx is canceled, then shuts down gracefully.
func Start(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
