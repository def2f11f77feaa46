// Package stream publishes simulator state to browser clients over
// WebSocket and collects their input.
//
// Every Publish sends one binary frame to all connected clients:
//
//	offset  size  field
//	0       8     tick, little endian
//	8       4     node count n, little endian
//	12      ⌈n/8⌉ logic levels, node i at bit i%8 of byte i/8
//
// Clients send JSON text messages to drive input nodes:
//
//	{"toggle": 12}
//	{"set": 12, "level": true}
//
// Decoded commands are delivered on Hub.Commands.
package stream

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gogpu/logisim"
	"github.com/gorilla/websocket"
)

// FrameHeaderSize is the size of the fixed frame header in bytes.
const FrameHeaderSize = 12

const (
	defaultCommandBuffer = 64
	writeTimeout         = 2 * time.Second
)

// ErrHubClosed is returned by Publish after Close.
var ErrHubClosed = errors.New("stream: hub closed")

// ErrBadFrame indicates a frame too short for its header or node count.
var ErrBadFrame = errors.New("stream: malformed frame")

// CommandKind selects what a Command does.
type CommandKind uint8

const (
	// Toggle flips the level of a node.
	Toggle CommandKind = iota
	// Set drives a node to Command.Level.
	Set
)

func (k CommandKind) String() string {
	switch k {
	case Toggle:
		return "toggle"
	case Set:
		return "set"
	default:
		return fmt.Sprintf("CommandKind(%d)", uint8(k))
	}
}

// Command is one decoded client request.
type Command struct {
	Kind  CommandKind
	Addr  logisim.NodeAddr
	Level bool
}

// Apply executes the command on a simulator.
func (c Command) Apply(sim *logisim.Simulator) error {
	if c.Kind == Toggle {
		return sim.Toggle(c.Addr)
	}
	return sim.SetLevel(c.Addr, c.Level)
}

// message is the JSON form of a client command.
type message struct {
	Toggle *uint32 `json:"toggle"`
	Set    *uint32 `json:"set"`
	Level  *bool   `json:"level"`
}

// ParseCommand decodes a JSON client message.
func ParseCommand(data []byte) (Command, error) {
	var m message
	if err := json.Unmarshal(data, &m); err != nil {
		return Command{}, fmt.Errorf("stream: decode command: %w", err)
	}
	switch {
	case m.Toggle != nil && m.Set == nil:
		return Command{Kind: Toggle, Addr: logisim.NodeAddr(*m.Toggle)}, nil
	case m.Set != nil && m.Toggle == nil:
		if m.Level == nil {
			return Command{}, errors.New("stream: set command without level")
		}
		return Command{Kind: Set, Addr: logisim.NodeAddr(*m.Set), Level: *m.Level}, nil
	default:
		return Command{}, errors.New("stream: command needs exactly one of toggle or set")
	}
}

// EncodeFrame appends the frame for nodes at tick to dst.
func EncodeFrame(dst []byte, tick uint64, nodes []logisim.Node) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, tick)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(nodes)))
	start := len(dst)
	dst = append(dst, make([]byte, (len(nodes)+7)/8)...)
	bits := dst[start:]
	for i, n := range nodes {
		if n.Level() {
			bits[i/8] |= 1 << (i % 8)
		}
	}
	return dst
}

// DecodeFrame splits a frame into its tick, node count and level bitset.
func DecodeFrame(frame []byte) (tick uint64, count int, levels []byte, err error) {
	if len(frame) < FrameHeaderSize {
		return 0, 0, nil, fmt.Errorf("%d byte frame: %w", len(frame), ErrBadFrame)
	}
	tick = binary.LittleEndian.Uint64(frame)
	count = int(binary.LittleEndian.Uint32(frame[8:]))
	levels = frame[FrameHeaderSize:]
	if len(levels) != (count+7)/8 {
		return 0, 0, nil, fmt.Errorf("%d nodes in %d bitset bytes: %w", count, len(levels), ErrBadFrame)
	}
	return tick, count, levels, nil
}

// client serializes writes to one connection.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.BinaryMessage, frame)
}

// Hub fans simulator frames out to WebSocket clients. It implements
// http.Handler; mount it on the path clients connect to.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
	last    []byte
	closed  bool

	commands chan Command
	done     chan struct{}
	wg       sync.WaitGroup
}

var _ http.Handler = (*Hub)(nil)

// NewHub returns a hub buffering up to buffer undelivered commands. A
// non-positive buffer selects a default.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultCommandBuffer
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients:  make(map[*client]struct{}),
		commands: make(chan Command, buffer),
		done:     make(chan struct{}),
	}
}

// Commands returns the channel of decoded client commands. It is never
// closed; stop reading when the hub is closed.
func (h *Hub) Commands() <-chan Command { return h.commands }

// Done is closed by Close.
func (h *Hub) Done() <-chan struct{} { return h.done }

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish sends the levels of nodes at tick to every client. Clients whose
// write fails are disconnected. The frame is also kept for clients that
// connect later.
func (h *Hub) Publish(tick uint64, nodes []logisim.Node) error {
	frame := EncodeFrame(nil, tick, nodes)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHubClosed
	}
	h.last = frame
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		if err := c.send(frame); err != nil {
			logisim.Logger().Warn("stream: dropping client", "remote", c.conn.RemoteAddr().String(), "err", err)
			h.remove(c)
		}
	}
	return nil
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	_ = c.conn.Close()
}

// ServeHTTP upgrades the request to a WebSocket connection, sends the most
// recent frame, and reads commands until the client disconnects or the hub
// closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logisim.Logger().Warn("stream: upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	c := &client{conn: conn}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeTimeout))
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	last := h.last
	h.wg.Add(1)
	h.mu.Unlock()
	defer h.wg.Done()
	defer h.remove(c)

	logisim.Logger().Debug("stream: client connected", "remote", r.RemoteAddr)
	if last != nil {
		if err := c.send(last); err != nil {
			return
		}
	}

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logisim.Logger().Debug("stream: read ended", "remote", r.RemoteAddr, "err", err)
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		cmd, err := ParseCommand(data)
		if err != nil {
			logisim.Logger().Warn("stream: bad command", "remote", r.RemoteAddr, "err", err)
			continue
		}
		select {
		case h.commands <- cmd:
		case <-h.done:
			return
		}
	}
}

// Close disconnects every client and waits for their handlers to return.
// Publish fails afterwards and new connections are refused.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	close(h.done)
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down")
	for _, c := range targets {
		c.mu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
		c.mu.Unlock()
		_ = c.conn.Close()
	}
	h.wg.Wait()
	return nil
}
