// Package server is the HTTP trigger surface for scheduled invocations.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rustyeddy/rebalancer/engine"
	"github.com/rustyeddy/rebalancer/journal"
	"github.com/rustyeddy/rebalancer/pkg/logging"
)

// TokenHeader carries the shared invocation secret.
const TokenHeader = "X-Invoke-Token"

// DefaultReportWindow is how far back /report looks without a since param.
const DefaultReportWindow = 30 * 24 * time.Hour

// DefaultRunTimeout bounds a triggered run.
const DefaultRunTimeout = 5 * time.Minute

// Engine is the subset of the coordinator the server triggers.
type Engine interface {
	Run(ctx context.Context) engine.Result
	Rebalance(ctx context.Context) engine.Result
	Report(ctx context.Context, since, until time.Time) (journal.Summary, error)
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type Server struct {
	eng        Engine
	secret     string
	gatherer   prometheus.Gatherer
	runTimeout time.Duration
	now        func() time.Time
	log        *zap.Logger
}

type Option func(*Server)

// WithSecret requires the token on every trigger. Empty disables the check.
func WithSecret(secret string) Option {
	return func(s *Server) { s.secret = secret }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.log = logging.OrNop(l) }
}

// WithGatherer exposes g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

func WithRunTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.runTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

func New(eng Engine, opts ...Option) *Server {
	s := &Server{
		eng:        eng,
		runTimeout: DefaultRunTimeout,
		now:        time.Now,
		log:        zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.secret == "" {
		s.log.Warn("no invoke secret configured, triggers are unauthenticated")
	}
	return s
}

// Handler builds the router.
//
//	GET|POST /run        signal job
//	POST     /rebalance  weighting job
//	GET|POST /report     ledger summary, ?since=&until= (YYYY-MM-DD or RFC3339)
//	GET      /healthz
//	GET      /metrics
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(s.recovery)
	router.Use(s.logging)

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	if s.gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	api := router.NewRoute().Subrouter()
	api.Use(s.auth)
	api.HandleFunc("/run", s.trigger(s.eng.Run)).Methods(http.MethodGet, http.MethodPost)
	api.HandleFunc("/rebalance", s.trigger(s.eng.Rebalance)).Methods(http.MethodPost)
	api.HandleFunc("/report", s.report).Methods(http.MethodGet, http.MethodPost)

	return router
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight runs.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.runTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) trigger(run func(context.Context) engine.Result) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// A dropped connection must not abort a run halfway through its orders.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.runTimeout)
		defer cancel()

		res := run(ctx)
		code := http.StatusOK
		if res.Status == engine.StatusError {
			code = http.StatusInternalServerError
		}
		respondWithJSON(w, code, res)
	}
}

func (s *Server) report(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	since := now.Add(-DefaultReportWindow)
	var until time.Time

	q := r.URL.Query()
	if v := q.Get("since"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "invalid since", err.Error())
			return
		}
		since = t
	}
	if v := q.Get("until"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "invalid until", err.Error())
			return
		}
		until = t
	}

	sum, err := s.eng.Report(r.Context(), since, until)
	switch {
	case errors.Is(err, engine.ErrConfiguration):
		respondWithError(w, http.StatusBadRequest, "invalid report window", err.Error())
		return
	case err != nil:
		s.log.Error("report failed", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "report failed", err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, sum)
}

func parseTime(v string) (time.Time, error) {
	if t, err := time.Parse(journal.DayLayout, v); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, v)
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.secret == "" {
			next.ServeHTTP(w, r)
			return
		}
		token := strings.TrimSpace(r.Header.Get(TokenHeader))
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.secret)) != 1 {
			respondWithError(w, http.StatusUnauthorized, "unauthorized", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, code int, message, details string) {
	respondWithJSON(w, code, ErrorResponse{Error: message, Details: details})
}
