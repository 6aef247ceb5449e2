package websocket

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/ao-agents-hackathon-band-of-the-hawk/voicecore/domain/repositories"
	"github.com/ao-agents-hackathon-band-of-the-hawk/voicecore/internal/metrics"
	"github.com/ao-agents-hackathon-band-of-the-hawk/voicecore/internal/voice"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio frames
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Implement proper origin checking
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Hub maintains the set of active voice clients and owns the session
// wiring shared across them.
type Hub struct {
	// Registered clients keyed by session ID.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	sessionCfg voice.Config
	exchange   repositories.ExchangeClient
	fallback   repositories.Synthesizer
	history    voice.HistoryRecorder
	metrics    *metrics.Metrics

	logger *zap.Logger
}

// NewHub creates a new WebSocket hub. fallback and metrics may be nil.
func NewHub(
	sessionCfg voice.Config,
	exchange repositories.ExchangeClient,
	fallback repositories.Synthesizer,
	history voice.HistoryRecorder,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		sessionCfg: sessionCfg,
		exchange:   exchange,
		fallback:   fallback,
		history:    history,
		metrics:    m,
		logger:     logger,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if prior, ok := h.clients[client.sessionID]; ok {
				// One connection per session: the newer one wins.
				prior.session.Close()
				close(prior.send)
			}
			h.clients[client.sessionID] = client
			h.mu.Unlock()
			h.logger.Info("Client registered", zap.String("sessionID", client.sessionID))

		case client := <-h.unregister:
			// Close the session before the send channel: teardown still
			// emits control frames through it.
			client.session.Close()
			h.mu.Lock()
			if current, ok := h.clients[client.sessionID]; ok && current == client {
				delete(h.clients, client.sessionID)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("Client unregistered", zap.String("sessionID", client.sessionID))
		}
	}
}

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is a middleman between the websocket connection and the voice
// session. It implements both the session's Player and its observer:
// synthesized audio goes down the socket as a binary frame, and the
// browser reports completion with a playback_done control message.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	// Session ID for this client
	sessionID string

	// The voice session state machine driven by this connection.
	session *voice.Session

	// Logger
	logger *zap.Logger

	// Pending playback completion channel, nil when nothing plays.
	playMu   sync.Mutex
	playDone chan error
}

// HandleWebSocketWithAuth handles websocket requests with a
// pre-authenticated session ID.
func HandleWebSocketWithAuth(hub *Hub, c echo.Context, sessionID string, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan WriteData, 256),
		sessionID: sessionID,
		logger:    logger,
	}
	client.session = voice.NewSession(
		sessionID,
		hub.sessionCfg,
		hub.exchange,
		hub.fallback,
		hub.history,
		client,
		client,
		hub.metrics,
		logger,
	)

	client.hub.register <- client

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	return nil
}

// readPump pumps messages from the websocket connection into the voice
// session.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			c.processControlMessage(message)
		case websocket.BinaryMessage:
			c.processAudioFrame(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the session to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// processControlMessage routes a text frame from the browser.
func (c *Client) processControlMessage(message []byte) {
	msg, err := ParseControlMessage(message)
	if err != nil {
		c.logger.Error("Failed to parse control message", zap.Error(err))
		return
	}

	switch msg.Type {
	case MessageTypeStart:
		c.session.Start()
	case MessageTypeCaptureReady:
		c.session.CaptureReady()
	case MessageTypeCaptureError:
		err := error(voice.ErrDeviceUnavailable)
		switch {
		case strings.Contains(strings.ToLower(msg.Message), "permission"):
			err = voice.ErrPermissionDenied
		case msg.Message != "":
			err = errors.New(msg.Message)
		}
		c.session.CaptureFailed(err)
	case MessageTypeClick:
		c.session.Click()
	case MessageTypeStop:
		c.session.Close()
	case MessageTypePlaybackDone:
		c.finishPlayback(nil)
	}
}

// processAudioFrame feeds one binary frame of microphone samples to the
// session.
func (c *Client) processAudioFrame(data []byte) {
	frame, err := DecodePCMFrame(data)
	if err != nil {
		c.logger.Warn("Dropping malformed audio frame",
			zap.String("sessionID", c.sessionID),
			zap.Error(err))
		return
	}
	c.session.FeedAudio(frame)
}

// trySend queues an outbound frame without blocking the session.
func (c *Client) trySend(data WriteData) bool {
	select {
	case c.send <- data:
		return true
	default:
		c.logger.Warn("Outbound buffer full, dropping frame",
			zap.String("sessionID", c.sessionID),
			zap.Int("type", data.Type))
		return false
	}
}

func (c *Client) sendControl(msg *ControlMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("Failed to marshal control message", zap.Error(err))
		return
	}
	c.trySend(WriteData{Type: websocket.TextMessage, Payload: payload})
}

// --- voice.Player ---

// Play ships the synthesized WAV to the browser and waits for its
// playback_done report on the returned channel.
func (c *Client) Play(wav []byte) (<-chan error, error) {
	c.playMu.Lock()
	if c.playDone != nil {
		// A stale channel means a previous playback was never resolved;
		// resolve it now so its waiter does not leak.
		close(c.playDone)
	}
	done := make(chan error, 1)
	c.playDone = done
	c.playMu.Unlock()

	c.sendControl(&ControlMessage{
		Type:      MessageTypeSpeakingStart,
		SessionID: c.sessionID,
		Timestamp: time.Now().Unix(),
	})
	if !c.trySend(WriteData{Type: websocket.BinaryMessage, Payload: wav}) {
		c.finishPlayback(errors.New("failed to queue audio for playback"))
	}
	return done, nil
}

// Stop tells the browser to halt playback and resolves the waiter.
func (c *Client) Stop() {
	c.sendControl(&ControlMessage{
		Type:      MessageTypeSpeakingStop,
		SessionID: c.sessionID,
		Timestamp: time.Now().Unix(),
	})
	c.finishPlayback(nil)
}

func (c *Client) finishPlayback(err error) {
	c.playMu.Lock()
	done := c.playDone
	c.playDone = nil
	c.playMu.Unlock()
	if done == nil {
		return
	}
	if err != nil {
		done <- err
	}
	close(done)
}

// --- voice.SessionObserver ---

func (c *Client) OnPhaseChange(from, to voice.Phase) {
	c.sendControl(NewPhaseMessage(c.sessionID, from, to))
}

func (c *Client) OnTurn(userText, assistantText string) {
	c.sendControl(NewTurnMessage(c.sessionID, userText, assistantText))
}

func (c *Client) OnError(err error) {
	c.sendControl(NewErrorMessage(c.sessionID, err.Error()))
}
