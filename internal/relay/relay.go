// Package relay owns the single WebSocket connection to the supervisor and
// the buffer of chat messages exchanged over it.
//
// Socket failures never reach callers. They are folded into the connection
// state, announced as system messages, and followed by a reconnect attempt
// after a fixed delay. The pending attempt is held as a timer handle so a
// manual Connect or Dispose can cancel it.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"gugudan/internal/metrics"
	"gugudan/internal/model"
	"gugudan/internal/prefs"
)

// DefaultReconnectDelay is the pause between a socket failure and the next dial.
const DefaultReconnectDelay = 3 * time.Second

const writeTimeout = 10 * time.Second

// System notices appended on socket events.
const (
	WelcomeText      = "연결되었습니다. 구구단을 시작해보세요!"
	DisconnectedText = "연결이 종료되었습니다. 자동으로 재연결을 시도합니다..."
	ErrorText        = "연결 오류가 발생했습니다. 자동으로 재연결을 시도합니다..."
)

type socketState int

const (
	socketPending socketState = iota
	socketOpen
	socketClosed
)

// socket is one dial attempt and, if it succeeds, the resulting connection.
type socket struct {
	state   socketState
	conn    *websocket.Conn
	cancel  context.CancelFunc
	writeMu sync.Mutex
}

// Relay is the sole owner of the supervisor socket and the message buffer.
type Relay struct {
	url            string
	reconnectDelay time.Duration
	dialer         *websocket.Dialer
	logger         zerolog.Logger
	prefs          *prefs.Store
	sessionID      string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu               sync.Mutex
	buffer           *Buffer
	state            model.ConnectionState
	sock             *socket
	retry            *time.Timer
	showExplanations bool
	disposed         bool
	subscribers      map[chan struct{}]struct{}
}

// Option configures a Relay.
type Option func(*Relay)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Relay) { r.logger = logger }
}

// WithReconnectDelay overrides DefaultReconnectDelay.
func WithReconnectDelay(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.reconnectDelay = d
		}
	}
}

// WithDialer overrides websocket.DefaultDialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(r *Relay) { r.dialer = d }
}

// WithPreferences backs the show-explanations flag with a preference store.
func WithPreferences(s *prefs.Store) Option {
	return func(r *Relay) { r.prefs = s }
}

// WithCapacity overrides DefaultCapacity.
func WithCapacity(n int) Option {
	return func(r *Relay) { r.buffer = NewBuffer(n) }
}

// New creates a relay for the given ws:// or wss:// URL. Nothing is dialed
// until Start or Connect is called.
func New(url string, opts ...Option) *Relay {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Relay{
		url:              url,
		reconnectDelay:   DefaultReconnectDelay,
		dialer:           websocket.DefaultDialer,
		logger:           zerolog.Nop(),
		sessionID:        uuid.NewString(),
		ctx:              ctx,
		cancel:           cancel,
		buffer:           NewBuffer(DefaultCapacity),
		state:            model.Disconnected,
		showExplanations: true,
		subscribers:      make(map[chan struct{}]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With().Str("component", "relay").Str("session", r.sessionID).Logger()

	if r.prefs != nil {
		r.showExplanations = r.prefs.Bool(prefs.KeyShowExplanations, true)
	}
	return r
}

// URL returns the supervisor address.
func (r *Relay) URL() string {
	return r.url
}

// Start opens the first connection.
func (r *Relay) Start() {
	r.logger.Info().Str("url", r.url).Msg("relay starting")
	r.Connect()
}

// Dispose cancels any pending reconnect, closes the socket and waits for the
// connection goroutine to exit. Subscriber channels are closed. The relay
// cannot be restarted.
func (r *Relay) Dispose() {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return
	}
	r.disposed = true
	r.stopRetryLocked()
	r.cancel()
	if s := r.sock; s != nil {
		s.state = socketClosed
		if s.conn != nil {
			s.conn.Close()
		}
	}
	r.setStateLocked(model.Disconnected)
	r.mu.Unlock()

	r.wg.Wait()

	r.mu.Lock()
	for ch := range r.subscribers {
		close(ch)
		delete(r.subscribers, ch)
	}
	r.mu.Unlock()
	r.logger.Info().Msg("relay disposed")
}

// Connect dials the supervisor unless a socket is already pending or open.
// A scheduled reconnect is cancelled in favour of this attempt.
func (r *Relay) Connect() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectLocked()
}

func (r *Relay) connectLocked() {
	if r.disposed {
		return
	}
	if r.sock != nil && r.sock.state != socketClosed {
		return
	}
	r.stopRetryLocked()

	ctx, cancel := context.WithCancel(r.ctx)
	s := &socket{state: socketPending, cancel: cancel}
	r.sock = s

	r.wg.Add(1)
	go r.run(ctx, s)
}

func (r *Relay) run(ctx context.Context, s *socket) {
	defer r.wg.Done()
	defer s.cancel()

	metrics.RelayConnectAttempts.Inc()
	r.logger.Info().Str("url", r.url).Msg("connecting")

	header := http.Header{}
	header.Set("X-Client-Session", r.sessionID)

	conn, _, err := r.dialer.DialContext(ctx, r.url, header)
	if err != nil {
		r.handleError(s, fmt.Errorf("dial %s: %w", r.url, err))
		return
	}
	if !r.handleOpen(s, conn) {
		conn.Close()
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if isCloseError(err) {
				r.handleClose(s, err)
			} else {
				r.handleError(s, err)
			}
			return
		}
		r.handleFrame(s, data)
	}
}

// isCloseError separates an orderly or peer-side close from other transport errors.
func isCloseError(err error) bool {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// currentLocked reports whether s is still the relay's live socket. Events from
// superseded sockets are dropped.
func (r *Relay) currentLocked(s *socket) bool {
	return !r.disposed && r.sock == s && s.state != socketClosed
}

func (r *Relay) handleOpen(s *socket, conn *websocket.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.currentLocked(s) {
		return false
	}
	s.conn = conn
	s.state = socketOpen
	r.setStateLocked(model.Connected)
	r.logger.Info().Msg("connected")

	r.addLocked(model.NewSystemMessage(WelcomeText))
	return true
}

func (r *Relay) handleFrame(s *socket, data []byte) {
	msg, err := model.ParseMessage(data)

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.currentLocked(s) {
		return
	}
	if err != nil {
		metrics.FramesDropped.Inc()
		r.logger.Warn().Err(err).Int("bytes", len(data)).Msg("dropping inbound frame")
		return
	}
	metrics.FramesReceived.WithLabelValues(string(msg.Type)).Inc()
	r.logger.Debug().Str("type", string(msg.Type)).Str("sender", msg.Sender).Msg("frame received")
	r.addLocked(msg)
}

func (r *Relay) handleClose(s *socket, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.currentLocked(s) {
		return
	}
	s.state = socketClosed
	s.conn.Close()
	metrics.RelayDisconnects.WithLabelValues("close").Inc()
	r.logger.Info().Err(err).Msg("connection closed")

	r.setStateLocked(model.Disconnected)
	r.addLocked(model.NewSystemMessage(DisconnectedText))
	r.scheduleReconnectLocked()
}

func (r *Relay) handleError(s *socket, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.currentLocked(s) {
		return
	}
	s.state = socketClosed
	metrics.RelayDisconnects.WithLabelValues("error").Inc()
	r.logger.Error().Err(err).Msg("connection error")

	r.setStateLocked(model.Disconnected)
	r.addLocked(model.NewSystemMessage(ErrorText))

	if s.conn != nil {
		if cerr := s.conn.Close(); cerr != nil {
			r.logger.Debug().Err(cerr).Msg("close after error")
		}
	}
	r.scheduleReconnectLocked()
}

func (r *Relay) scheduleReconnectLocked() {
	if r.disposed {
		return
	}
	r.stopRetryLocked()

	var t *time.Timer
	t = time.AfterFunc(r.reconnectDelay, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.retry != t {
			return
		}
		r.retry = nil
		r.connectLocked()
	})
	r.retry = t
	r.logger.Info().Dur("delay", r.reconnectDelay).Msg("reconnect scheduled")
}

func (r *Relay) stopRetryLocked() {
	if r.retry != nil {
		r.retry.Stop()
		r.retry = nil
	}
}

// ReconnectPending reports whether a reconnect timer is armed.
func (r *Relay) ReconnectPending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.retry != nil
}

// Send appends a user message to the buffer and writes it to the socket. It
// does nothing and returns false when there is no open connection. Write
// failures are logged only; the read side reports the broken connection.
func (r *Relay) Send(text string) bool {
	r.mu.Lock()
	s := r.sock
	if r.state != model.Connected || s == nil || s.state != socketOpen {
		r.mu.Unlock()
		return false
	}
	msg := r.addLocked(model.NewUserMessage(text))
	r.mu.Unlock()

	frame, err := json.Marshal(msg.Outbound())
	if err != nil {
		r.logger.Error().Err(err).Msg("encode user message")
		return true
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		r.logger.Warn().Err(err).Msg("send failed")
		return true
	}
	metrics.MessagesSent.Inc()
	r.logger.Debug().Str("id", msg.ID).Msg("message sent")
	return true
}

// AddMessage stores msg in the buffer and returns the stored copy.
func (r *Relay) AddMessage(msg model.Message) model.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addLocked(msg)
}

func (r *Relay) addLocked(msg model.Message) model.Message {
	stored := r.buffer.Add(msg)
	metrics.BufferedMessages.Set(float64(r.buffer.Len()))
	r.notifyLocked()
	return stored
}

func (r *Relay) setStateLocked(state model.ConnectionState) {
	if r.state == state {
		return
	}
	r.state = state
	if state == model.Connected {
		metrics.RelayConnected.Set(1)
	} else {
		metrics.RelayConnected.Set(0)
	}
	r.notifyLocked()
}

// Messages returns the buffered messages in arrival order.
func (r *Relay) Messages() []model.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buffer.Snapshot()
}

// State returns the connection state.
func (r *Relay) State() model.ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Connected reports whether the socket is open.
func (r *Relay) Connected() bool {
	return r.State() == model.Connected
}

// ShowExplanations reports whether explanation messages should be displayed.
func (r *Relay) ShowExplanations() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.showExplanations
}

// ToggleExplanations flips the show-explanations flag, persists it and
// returns the new value.
func (r *Relay) ToggleExplanations() bool {
	r.mu.Lock()
	r.showExplanations = !r.showExplanations
	v := r.showExplanations
	r.notifyLocked()
	r.mu.Unlock()

	if r.prefs != nil {
		if err := r.prefs.SetBool(prefs.KeyShowExplanations, v); err != nil {
			r.logger.Error().Err(err).Msg("save show-explanations preference")
		}
	}
	return v
}

// Subscribe returns a channel that receives a value after each change to the
// buffer, connection state or explanation flag. Notifications coalesce; a
// receiver should re-read state rather than count them. The channel is closed
// by Dispose.
func (r *Relay) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		close(ch)
		return ch
	}
	r.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe stops notifications to ch.
func (r *Relay) Unsubscribe(ch <-chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for c := range r.subscribers {
		if c == ch {
			delete(r.subscribers, c)
			close(c)
			return
		}
	}
}

func (r *Relay) notifyLocked() {
	for ch := range r.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
