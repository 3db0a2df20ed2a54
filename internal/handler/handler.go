package handler

import (
	"encoding/json"
	"net/http"
	"sync"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"gugudan/internal/config"
	"gugudan/internal/model"
)

// Relay is the part of the message relay the bridge exposes.
type Relay interface {
	Messages() []model.Message
	Connected() bool
	Send(text string) bool
	ShowExplanations() bool
	ToggleExplanations() bool
	Subscribe() <-chan struct{}
	Unsubscribe(<-chan struct{})
}

// StatusReporter exposes the liveness tracker's last results.
type StatusReporter interface {
	Status() model.ServiceStatus
	IsChecking() bool
}

// Handler holds application dependencies
type Handler struct {
	Relay     Relay
	Tracker   StatusReporter
	Config    config.Config
	Logger    zerolog.Logger
	Clients   map[*websocket.Conn]bool
	ClientMu  sync.RWMutex
	Broadcast chan model.SnapshotEvent
}

// New creates a new Handler with the given dependencies
func New(relay Relay, tracker StatusReporter, cfg config.Config, logger zerolog.Logger) *Handler {
	return &Handler{
		Relay:     relay,
		Tracker:   tracker,
		Config:    cfg,
		Logger:    logger.With().Str("component", "bridge").Logger(),
		Clients:   make(map[*websocket.Conn]bool),
		Broadcast: make(chan model.SnapshotEvent, 100),
	}
}

// SetupRouter configures and returns the HTTP router
func (h *Handler) SetupRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(Logger(h.Logger))

	// REST API
	r.HandleFunc("/messages", h.GetMessages).Methods("GET")
	r.HandleFunc("/messages", h.SendMessage).Methods("POST")
	r.HandleFunc("/status", h.GetStatus).Methods("GET")
	r.HandleFunc("/preferences/explanations", h.ToggleExplanations).Methods("POST")
	r.HandleFunc("/health", h.Health).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// WebSocket
	r.HandleFunc("/ws", h.HandleWebSocket).Methods("GET")

	return r
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}
