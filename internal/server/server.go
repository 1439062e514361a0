package server

import (
	"context"
	"io/fs"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/danshapiro/gamecrew/internal/handoff"
)

// MaxBodyBytes caps request bodies; histories are resent on every turn.
const MaxBodyBytes = 4 << 20

// Config holds server configuration.
type Config struct {
	Addr     string // listen address, e.g. ":8080"
	Model    string
	Provider string

	// StaticGlobs selects which embedded assets are served.
	StaticGlobs []string
}

// TurnHandler runs one agent turn.
type TurnHandler interface {
	Handle(ctx context.Context, req handoff.TurnRequest) (handoff.TurnResult, error)
}

// Server is the HTTP front of the handoff controller.
type Server struct {
	config  Config
	turns   TurnHandler
	credErr error
	static  *staticAssets
	events  *Broadcaster
	baseCtx context.Context
	cancel  context.CancelFunc
	httpSrv *http.Server
}

type Option func(*Server) error

// WithCredentialError makes every chat request fail with 500 and err's text.
// Used when no API key is configured.
func WithCredentialError(err error) Option {
	return func(s *Server) error {
		s.credErr = err
		return nil
	}
}

// WithStatic serves the assets of fsys matching Config.StaticGlobs.
func WithStatic(fsys fs.FS) Option {
	return func(s *Server) error {
		a, err := loadStatic(fsys, s.config.StaticGlobs)
		if err != nil {
			return err
		}
		s.static = a
		return nil
	}
}

// WithEvents exposes b as an SSE stream on GET /api/events.
func WithEvents(b *Broadcaster) Option {
	return func(s *Server) error {
		s.events = b
		return nil
	}
}

// New creates a Server. turns may be nil only together with a credential
// error.
func New(cfg Config, turns TurnHandler, opts ...Option) (*Server, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:  cfg,
		turns:   turns,
		baseCtx: ctx,
		cancel:  cancel,
	}
	for _, o := range opts {
		if err := o(s); err != nil {
			cancel()
			return nil, err
		}
	}
	if s.turns == nil && s.credErr == nil {
		cancel()
		return nil, errors.New("server: turn handler is required")
	}

	mux := http.NewServeMux()

	// Go 1.22+ method+pattern routing.
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/roles", s.handleRoles)
	if s.events != nil {
		mux.HandleFunc("GET /api/events", s.handleEvents)
	}
	if s.static != nil {
		mux.Handle("GET /", s.static)
	}

	s.httpSrv = &http.Server{
		Handler:      withRequestID(accessLog(csrfProtect(mux))),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // turns can run for minutes and SSE never ends
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	return s, nil
}

// Handler returns the root handler, middleware included.
func (s *Server) Handler() http.Handler { return s.httpSrv.Handler }

// ListenAndServe starts the server and blocks until ctx is done, a signal
// arrives, or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case sig := <-sigCh:
			log.Info().Str("signal", sig.String()).Msg("shutting down")
		case <-ctx.Done():
			log.Info().Msg("context done, shutting down")
		case <-stop:
			return
		}
		s.Shutdown()
	}()

	log.Info().Str("addr", s.config.Addr).Str("model", s.config.Model).Msg("listening")
	s.httpSrv.Addr = s.config.Addr
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// csrfProtect rejects cross-origin POST requests. Browsers set Origin on
// cross-origin requests; CLI callers omit it or match the server.
func csrfProtect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			origin := r.Header.Get("Origin")
			if origin != "" {
				u, err := url.Parse(origin)
				if err != nil {
					writeError(w, http.StatusForbidden, "invalid Origin header")
					return
				}
				host := u.Hostname()
				if host != "localhost" && host != "127.0.0.1" && host != "::1" && u.Host != r.Host {
					writeError(w, http.StatusForbidden, "cross-origin request blocked")
					return
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if s.events != nil {
		// Ends open SSE streams so Shutdown does not wait on them.
		s.events.Close()
	}
	_ = s.httpSrv.Shutdown(shutdownCtx)
	s.cancel()
}
