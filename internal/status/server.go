// Package status serves a plain-text status page for a running session.
package status

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"text/template"
	"time"

	"mudlink/internal/gmcp"
)

//go:embed templates/status.tmpl
var pageFS embed.FS

// Documents looks up the latest GMCP document of a package.
type Documents interface {
	Get(pkg string) string
}

type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Start listens on addr and serves until ctx is done. GET / renders the
// status page from provider; GET /gmcp/{pkg} pretty-prints a stored GMCP
// document when docs is set.
func Start(ctx context.Context, addr string, provider func() Data, docs Documents) (*Server, error) {
	if addr == "" {
		return nil, fmt.Errorf("status addr is empty")
	}

	tmpl, err := template.New("status.tmpl").Option("missingkey=zero").ParseFS(pageFS, "templates/status.tmpl")
	if err != nil {
		return nil, fmt.Errorf("status page template: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		if !allowRead(w, r) {
			return
		}

		var data Data
		if provider != nil {
			data = provider()
		}

		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			http.Error(w, "Status Template Error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, ensureNewline(buf.String()))
	})
	mux.HandleFunc("/gmcp/{pkg}", func(w http.ResponseWriter, r *http.Request) {
		if !allowRead(w, r) {
			return
		}
		if docs == nil {
			http.NotFound(w, r)
			return
		}
		raw := docs.Get(r.PathValue("pkg"))
		if raw == "" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, gmcp.Format(raw)+"\n")
	})

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("status listen %s: %w", addr, err)
	}
	s := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ss := &Server{srv: s, ln: ln}
	go func() {
		<-ctx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	}()

	go func() {
		if err := s.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("status server stopped", "addr", ln.Addr().String(), "err", err)
		}
	}()
	return ss, nil
}

// Addr is the address the server listens on.
func (s *Server) Addr() string { return s.ln.Addr().String() }

func allowRead(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func ensureNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
