package app

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"
	"github.com/relabs-tech/disp_monitor/internal/command"
	"github.com/sirupsen/logrus"
)

//go:embed static
var staticFiles embed.FS

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

const (
	wsSendBuffer   = 32
	wsWriteTimeout = 2 * time.Second
)

// wsMessage is the envelope for everything the server sends over /ws.
type wsMessage struct {
	Type    string          `json:"type"` // "motion", "health", "ack", "error"
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// wsCommand is what dashboards send over /ws.
type wsCommand struct {
	Command string `json:"command"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Web serves the live dashboard: the latest sample over HTTP, a websocket
// stream of motion and health messages, and command buttons that are
// validated here and forwarded to the command topic.
type Web struct {
	log          logrus.FieldLogger
	pub          Publisher // nil disables command forwarding
	commandTopic string

	mu         sync.RWMutex
	last       json.RawMessage
	lastHealth json.RawMessage

	clientsMu sync.Mutex
	clients   map[*wsClient]struct{}
}

func NewWeb(log logrus.FieldLogger) *Web {
	return &Web{
		log:     log.WithField("component", "web"),
		clients: make(map[*wsClient]struct{}),
	}
}

// ForwardCommandsTo enables dashboard commands.
func (w *Web) ForwardCommandsTo(pub Publisher, topic string) {
	w.pub = pub
	w.commandTopic = topic
}

// Handler returns the HTTP routes.
func (w *Web) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/motion", w.serveLatest(func() json.RawMessage {
		w.mu.RLock()
		defer w.mu.RUnlock()
		return w.last
	}))
	mux.HandleFunc("/api/health", w.serveLatest(func() json.RawMessage {
		w.mu.RLock()
		defer w.mu.RUnlock()
		return w.lastHealth
	}))
	mux.HandleFunc("/ws", w.serveWS)

	static, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err) // embedded directory is always present
	}
	mux.Handle("/", http.FileServer(http.FS(static)))
	return mux
}

// Run subscribes to the topics and serves on port until ctx is done.
func (w *Web) Run(ctx context.Context, client Subscriber, motionTopic, healthTopic string, port int) error {
	if err := subscribe(client, motionTopic, func(_ mqtt.Client, msg mqtt.Message) {
		w.OnMotion(msg.Payload())
	}); err != nil {
		return err
	}
	w.log.Infof("subscribed to MQTT topic %s", motionTopic)

	if healthTopic != "" {
		if err := subscribe(client, healthTopic, func(_ mqtt.Client, msg mqtt.Message) {
			w.OnHealth(msg.Payload())
		}); err != nil {
			return err
		}
		w.log.Infof("subscribed to MQTT topic %s", healthTopic)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           w.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	w.log.Infof("web server listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// OnMotion stores and broadcasts a motion payload.
func (w *Web) OnMotion(payload []byte) {
	var s Sample
	if err := json.Unmarshal(payload, &s); err != nil {
		w.log.Warnf("MQTT payload unmarshal error: %v", err)
		return
	}
	raw := json.RawMessage(append([]byte(nil), payload...))
	w.mu.Lock()
	w.last = raw
	w.mu.Unlock()
	w.broadcast(wsMessage{Type: "motion", Data: raw})
}

// OnHealth stores and broadcasts a health payload.
func (w *Web) OnHealth(payload []byte) {
	var r HealthReport
	if err := json.Unmarshal(payload, &r); err != nil {
		w.log.Warnf("MQTT payload unmarshal error: %v", err)
		return
	}
	raw := json.RawMessage(append([]byte(nil), payload...))
	w.mu.Lock()
	w.lastHealth = raw
	w.mu.Unlock()
	w.broadcast(wsMessage{Type: "health", Data: raw})
}

func (w *Web) serveLatest(get func() json.RawMessage) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		data := get()
		if data == nil {
			http.Error(rw, "no data yet", http.StatusServiceUnavailable)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		if _, err := rw.Write(data); err != nil {
			w.log.Debugf("write response: %v", err)
		}
	}
}

func (w *Web) serveWS(rw http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(rw, r, nil)
	if err != nil {
		w.log.Warnf("websocket upgrade error: %v", err)
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, wsSendBuffer)}
	w.mu.RLock()
	last := w.last
	w.mu.RUnlock()
	if last != nil {
		c.send <- mustMarshal(wsMessage{Type: "motion", Data: last})
	}

	w.clientsMu.Lock()
	w.clients[c] = struct{}{}
	w.clientsMu.Unlock()

	done := make(chan struct{})
	go w.writeLoop(c, done)
	w.readLoop(c)

	w.clientsMu.Lock()
	delete(w.clients, c)
	w.clientsMu.Unlock()
	close(done)
	conn.Close()
}

func (w *Web) readLoop(c *wsClient) {
	for {
		var cmd wsCommand
		if err := c.conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				w.log.Warnf("websocket error: %v", err)
			}
			return
		}
		reply := w.forward(cmd.Command)
		select {
		case c.send <- mustMarshal(reply):
		default:
		}
	}
}

func (w *Web) writeLoop(c *wsClient, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				w.log.Debugf("websocket write: %v", err)
				return
			}
		}
	}
}

// forward validates a dashboard command and publishes it in wire form.
func (w *Web) forward(line string) wsMessage {
	cmd, err := command.Parse(line)
	if err != nil {
		return wsMessage{Type: "error", Message: err.Error()}
	}
	if w.pub == nil {
		return wsMessage{Type: "error", Message: "command forwarding disabled"}
	}
	token := w.pub.Publish(w.commandTopic, 1, false, cmd.String())
	if !token.WaitTimeout(2 * time.Second) {
		return wsMessage{Type: "error", Message: "command publish timed out"}
	}
	if err := token.Error(); err != nil {
		return wsMessage{Type: "error", Message: err.Error()}
	}
	w.log.Infof("forwarded command %q", cmd)
	return wsMessage{Type: "ack", Message: cmd.String()}
}

// broadcast never blocks: slow clients miss messages.
func (w *Web) broadcast(m wsMessage) {
	data := mustMarshal(m)
	w.clientsMu.Lock()
	defer w.clientsMu.Unlock()
	for c := range w.clients {
		select {
		case c.send <- data:
		default:
		}
	}
}

func mustMarshal(m wsMessage) []byte {
	data, err := json.Marshal(m)
	if err != nil {
		panic(err) // RawMessage fields are already valid JSON
	}
	return data
}
