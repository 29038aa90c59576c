package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gregtusar/fomo-trader/pkg/trader"
	"github.com/sirupsen/logrus"
)

const tokenHeader = "X-Bot-Token"

// ErrMissingToken is returned by Start when no control token is configured.
var ErrMissingToken = errors.New("control token is required")

type Server struct {
	scheduler *trader.Scheduler
	logger    *logrus.Logger
	token     string
	addr      string
	srv       *http.Server
}

func NewServer(scheduler *trader.Scheduler, logger *logrus.Logger, host string, port int, token string) *Server {
	return &Server{
		scheduler: scheduler,
		logger:    logger,
		token:     token,
		addr:      net.JoinHostPort(host, strconv.Itoa(port)),
	}
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	r.HandleFunc("/start", s.authenticate(s.handleStart)).Methods(http.MethodPost)
	r.HandleFunc("/stop", s.authenticate(s.handleStop)).Methods(http.MethodPost)
	r.HandleFunc("/run-once", s.authenticate(s.handleRunOnce)).Methods(http.MethodPost)
	r.HandleFunc("/trade", s.authenticate(s.handleTrade)).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method_not_allowed"})
	})

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", tokenHeader}),
	)
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(s.logger),
		handlers.PrintRecoveryStack(false),
	)

	return recovery(handlers.LoggingHandler(s.logger.WriterLevel(logrus.DebugLevel), cors(r)))
}

// Start blocks serving the control API until Shutdown is called.
func (s *Server) Start() error {
	if s.token == "" {
		return ErrMissingToken
	}

	s.srv = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Infof("Control server listening on %s", s.addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provided := r.Header.Get(tokenHeader)
		if s.token == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(s.token)) != 1 {
			s.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	Running                  bool       `json:"running"`
	Symbol                   string     `json:"symbol"`
	DryRun                   bool       `json:"dry_run"`
	WindowSize               int        `json:"window_size"`
	ShortWindow              int        `json:"short_window"`
	LongWindow               int        `json:"long_window"`
	MaxPositionSize          float64    `json:"max_position_size"`
	StopLossPct              float64    `json:"stop_loss_pct"`
	TakeProfitPct            float64    `json:"take_profit_pct"`
	LastTradeAt              *time.Time `json:"last_trade_at,omitempty"`
	CooldownRemainingSeconds float64    `json:"cooldown_remaining_seconds"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.scheduler.Engine().Snapshot()
	s.writeJSON(w, http.StatusOK, statusResponse{
		Running:                  s.scheduler.IsRunning(),
		Symbol:                   snap.Symbol,
		DryRun:                   snap.DryRun,
		WindowSize:               snap.WindowSize,
		ShortWindow:              snap.ShortWindow,
		LongWindow:               snap.LongWindow,
		MaxPositionSize:          snap.Risk.MaxPositionSize,
		StopLossPct:              snap.Risk.StopLossPct,
		TakeProfitPct:            snap.Risk.TakeProfitPct,
		LastTradeAt:              snap.LastTradeAt,
		CooldownRemainingSeconds: snap.CooldownRemaining.Seconds(),
	})
}

// handleStart reports already_running when a loop is active, including one still
// draining after a Stop that timed out.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if !s.scheduler.Start() {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "already_running"})
		return
	}
	s.logger.Info("Trading loop started via control API")
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if !s.scheduler.Stop() {
		s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "stopping"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *Server) handleRunOnce(w http.ResponseWriter, r *http.Request) {
	result, err := s.scheduler.RunOnce(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

type tradeRequest struct {
	Action string `json:"action"`
}

type tradeResponse struct {
	Status        string `json:"status"`
	Action        string `json:"action"`
	ClientOrderID string `json:"client_order_id"`
	DryRun        bool   `json:"dry_run"`
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json body", "kind": "validation"})
			return
		}
	}

	result, err := s.scheduler.ForceTrade(r.Context(), req.Action)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, tradeResponse{
		Status:        "ok",
		Action:        string(result.Action),
		ClientOrderID: result.ClientOrderID,
		DryRun:        result.DryRun,
	})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := trader.ErrorKind(err)

	status := http.StatusInternalServerError
	switch kind {
	case "validation":
		status = http.StatusBadRequest
	case "collaborator":
		status = http.StatusBadGateway
	}

	s.logger.WithError(err).WithField("kind", kind).Warn("Control request failed")
	s.writeJSON(w, status, map[string]string{"error": err.Error(), "kind": kind})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}
