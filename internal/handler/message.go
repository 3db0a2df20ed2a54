package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"gugudan/internal/model"
)

// maxContentLength は1メッセージの最大文字数
const maxContentLength = 4000

// sendRequest is the body of POST /messages.
type sendRequest struct {
	Content string `json:"content"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Connected        bool                `json:"connected"`
	ShowExplanations bool                `json:"showExplanations"`
	Checking         bool                `json:"checking"`
	Services         model.ServiceStatus `json:"services"`
}

// GetMessages handles GET /messages
// explanation は設定がオフなら除外する (?all=1 で全件)
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	msgs := h.Relay.Messages()
	if r.URL.Query().Get("all") != "1" && !h.Relay.ShowExplanations() {
		msgs = withoutExplanations(msgs)
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	h.JSON(w, http.StatusOK, msgs)
}

func withoutExplanations(msgs []model.Message) []model.Message {
	out := msgs[:0]
	for _, m := range msgs {
		if m.Type != model.TypeExplanation {
			out = append(out, m)
		}
	}
	return out
}

// SendMessage handles POST /messages
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	// リクエストボディサイズを1MBに制限
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Warn().Err(err).Msg("invalid send body")
		h.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	content := strings.TrimSpace(req.Content)
	if content == "" {
		h.Error(w, http.StatusBadRequest, "content is required")
		return
	}
	if len([]rune(content)) > maxContentLength {
		h.Error(w, http.StatusBadRequest, "content is too long")
		return
	}

	if !h.Relay.Send(content) {
		h.Error(w, http.StatusConflict, "relay is disconnected")
		return
	}

	h.JSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

// GetStatus handles GET /status
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Connected:        h.Relay.Connected(),
		ShowExplanations: h.Relay.ShowExplanations(),
	}
	if h.Tracker != nil {
		resp.Services = h.Tracker.Status()
		resp.Checking = h.Tracker.IsChecking()
	}
	h.JSON(w, http.StatusOK, resp)
}

// ToggleExplanations handles POST /preferences/explanations
func (h *Handler) ToggleExplanations(w http.ResponseWriter, r *http.Request) {
	v := h.Relay.ToggleExplanations()
	h.Logger.Info().Bool("show_explanations", v).Msg("explanations toggled")
	h.JSON(w, http.StatusOK, map[string]bool{"showExplanations": v})
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
