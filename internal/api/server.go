// Package api exposes the call coordinator over HTTP and streams its
// events to websocket clients.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/opd-ai/toxcall"
	"github.com/sirupsen/logrus"
)

// Controller is the part of the coordinator the API drives.
type Controller interface {
	Call(peerID, audioBitRate uint32) error
	Answer(peerID, audioBitRate uint32) error
	End(peerID uint32) error
	SetForegroundActive(active bool)
	GlobalState() toxcall.CallState
	LastCallIncoming() bool
	Initialized() bool
}

// Options configures a Server.
type Options struct {
	// AudioBitRate is used when a request does not name one.
	AudioBitRate uint32
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

// Server is the HTTP control surface.
type Server struct {
	ctrl     Controller
	hub      *Hub
	opts     Options
	upgrader websocket.Upgrader
}

// NewServer creates a Server for ctrl. Events reach websocket clients
// through hub.
func NewServer(ctrl Controller, hub *Hub, opts Options) *Server {
	if opts.AudioBitRate == 0 {
		opts.AudioBitRate = 48
	}
	return &Server{
		ctrl: ctrl,
		hub:  hub,
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The API listens on loopback by default and serves a local UI.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.getState)
		r.Put("/foreground", s.putForeground)
		r.Get("/events", s.serveEvents)

		r.Route("/calls/{peer}", func(r chi.Router) {
			r.Post("/", s.postCall)
			r.Post("/answer", s.postAnswer)
			r.Delete("/", s.deleteCall)
		})
	})

	if s.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.opts.Metrics)
	}

	return r
}

// Serve listens on addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.WithFields(logrus.Fields{
			"function": "Server.Serve",
			"addr":     addr,
		}).Info("API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type stateResponse struct {
	GlobalState      toxcall.CallState `json:"global_state"`
	LastCallIncoming bool              `json:"last_call_incoming"`
	Initialized      bool              `json:"initialized"`
}

type callRequest struct {
	AudioBitRate uint32 `json:"audio_bit_rate"`
}

type foregroundRequest struct {
	Active *bool `json:"active"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) getState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state())
}

func (s *Server) state() stateResponse {
	return stateResponse{
		GlobalState:      s.ctrl.GlobalState(),
		LastCallIncoming: s.ctrl.LastCallIncoming(),
		Initialized:      s.ctrl.Initialized(),
	}
}

func (s *Server) putForeground(w http.ResponseWriter, r *http.Request) {
	var req foregroundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Active == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "body must be {\"active\": bool}"})
		return
	}
	s.ctrl.SetForegroundActive(*req.Active)
	writeJSON(w, http.StatusOK, s.state())
}

func (s *Server) postCall(w http.ResponseWriter, r *http.Request) {
	s.callOp(w, r, func(peerID, bitRate uint32) error { return s.ctrl.Call(peerID, bitRate) })
}

func (s *Server) postAnswer(w http.ResponseWriter, r *http.Request) {
	s.callOp(w, r, func(peerID, bitRate uint32) error { return s.ctrl.Answer(peerID, bitRate) })
}

func (s *Server) deleteCall(w http.ResponseWriter, r *http.Request) {
	s.callOp(w, r, func(peerID, _ uint32) error { return s.ctrl.End(peerID) })
}

// callOp parses the peer and optional bit rate, runs op and maps its
// outcome to a response.
func (s *Server) callOp(w http.ResponseWriter, r *http.Request, op func(peerID, bitRate uint32) error) {
	peer, err := strconv.ParseUint(chi.URLParam(r, "peer"), 10, 32)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "peer must be an unsigned 32-bit integer"})
		return
	}

	req := callRequest{AudioBitRate: s.opts.AudioBitRate}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}
	if req.AudioBitRate == 0 {
		req.AudioBitRate = s.opts.AudioBitRate
	}

	if !s.ctrl.Initialized() {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "call engine not initialized"})
		return
	}

	if err := guard(func() error { return op(uint32(peer), req.AudioBitRate) }); err != nil {
		var opErr *toxcall.OperationError
		var cv *toxcall.ContractViolationError
		switch {
		case errors.As(err, &opErr):
			writeJSON(w, http.StatusConflict, errorResponse{Error: opErr.Message})
		case errors.As(err, &cv):
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: cv.Reason})
		default:
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		}
		return
	}

	writeJSON(w, http.StatusOK, s.state())
}

// guard turns a contract violation panic into an error. The engine can go
// away between the Initialized check and the call.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			cv, ok := r.(*toxcall.ContractViolationError)
			if !ok {
				panic(r)
			}
			err = cv
		}
	}()
	return fn()
}

func (s *Server) serveEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Server.serveEvents",
			"error":    err.Error(),
		}).Warn("Websocket upgrade failed")
		return
	}

	c := newClient(conn)
	if !s.hub.add(c) {
		conn.Close()
		return
	}
	go c.writeLoop()

	// Clients only listen; reading detects when they go away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logrus.WithFields(logrus.Fields{
					"function":  "Server.serveEvents",
					"client_id": c.id,
					"error":     err.Error(),
				}).Debug("Event client closed unexpectedly")
			}
			break
		}
	}
	s.hub.remove(c)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "writeJSON",
			"error":    err.Error(),
		}).Debug("Response write failed")
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		logrus.WithFields(logrus.Fields{
			"function":   "requestLogger",
			"request_id": middleware.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start),
		}).Debug("HTTP request")
	})
}
