// Package coordinator elects a single leader among the client processes of
// one user so only one of them ever talks to the network, and relays sync
// requests and status snapshots between them.
//
// The hub is the shared actor: a small control-plane process every client
// connects to over a localhost websocket. It serializes all registration
// and status messages, which gives leader-election decisions a total order.
// Clients that cannot reach a hub degrade to always-leader operation; the
// server dedupes by op semantics, so duplicate pushes from uncoordinated
// clients are safe, just wasteful.
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/tasksync/tasksync/internal/status"
)

// HubConfig holds hub configuration.
type HubConfig struct {
	// Addr to listen on (default: 127.0.0.1:7536).
	Addr string

	// Logger for hub activity (default: stderr logger).
	Logger *log.Logger
}

// DefaultHubConfig returns sensible defaults.
func DefaultHubConfig() *HubConfig {
	return &HubConfig{
		Addr:   "127.0.0.1:7536",
		Logger: log.New(os.Stderr, "[coordinator] ", log.LstdFlags),
	}
}

// registration is one connected client in registration order.
type registration struct {
	tabID         string
	authenticated bool
	conn          *websocket.Conn
}

// Hub is the shared leader-election actor.
type Hub struct {
	addr   string
	logger *log.Logger

	listener net.Listener
	server   *http.Server

	// mu serializes every state transition, giving elections a total
	// order.
	mu           sync.Mutex
	tabs         []*registration
	leaderTabID  string
	leaderStatus status.Snapshot

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHub creates a hub.
func NewHub(config *HubConfig) *Hub {
	if config == nil {
		config = DefaultHubConfig()
	}
	if config.Logger == nil {
		config.Logger = DefaultHubConfig().Logger
	}
	if config.Addr == "" {
		config.Addr = DefaultHubConfig().Addr
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		addr:         config.Addr,
		logger:       config.Logger,
		leaderStatus: status.Snapshot{Pull: status.PhaseIdle, Push: status.PhaseIdle},
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start begins listening. It returns once the listener is bound; serving
// happens in the background until Stop.
func (h *Hub) Start() error {
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.addr, err)
	}
	h.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleWebSocket)
	mux.HandleFunc("/health", h.handleHealth)

	h.server = &http.Server{
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.logger.Printf("Coordinator hub listening on %s", ln.Addr())
		if err := h.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			h.logger.Printf("Server error: %v", err)
		}
	}()

	return nil
}

// Addr returns the bound listen address. Only valid after Start.
func (h *Hub) Addr() string {
	if h.listener == nil {
		return h.addr
	}
	return h.listener.Addr().String()
}

// Stop gracefully shuts down the hub.
func (h *Hub) Stop() error {
	h.logger.Println("Stopping coordinator hub")
	h.cancel()

	h.mu.Lock()
	for _, tab := range h.tabs {
		_ = tab.conn.Close(websocket.StatusGoingAway, "hub shutting down")
	}
	h.tabs = nil
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	h.wg.Wait()
	h.logger.Println("Coordinator hub stopped")
	return nil
}

func (h *Hub) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	h.wg.Add(1)
	go h.readLoop(conn)
}

// readLoop handles one client connection until it closes. A dead
// connection unregisters its tab; the owning process is gone either way.
func (h *Hub) readLoop(conn *websocket.Conn) {
	defer h.wg.Done()
	defer h.dropConn(conn)

	for {
		_, data, err := conn.Read(h.ctx)
		if err != nil {
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Printf("WARNING: ignoring malformed message: %v", err)
			continue
		}
		h.handleMessage(conn, msg)
	}
}

func (h *Hub) handleMessage(conn *websocket.Conn, msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch msg.Type {
	case MessageTypeRegister:
		if msg.TabID == "" {
			return
		}
		h.removeTabLocked(msg.TabID)
		h.tabs = append(h.tabs, &registration{tabID: msg.TabID, conn: conn})
		h.logger.Printf("Registered tab %s (total: %d)", msg.TabID, len(h.tabs))
		h.electLeaderLocked()

	case MessageTypeUnregister:
		h.removeTabLocked(msg.TabID)
		if h.leaderTabID == msg.TabID {
			h.leaderTabID = ""
		}
		h.logger.Printf("Unregistered tab %s (total: %d)", msg.TabID, len(h.tabs))
		h.electLeaderLocked()

	case MessageTypeSetAuth:
		for _, tab := range h.tabs {
			if tab.tabID == msg.TabID {
				tab.authenticated = msg.Authenticated
				h.electLeaderLocked()
				return
			}
		}

	case MessageTypeRequestSync:
		leader := h.leaderLocked()
		if leader == nil {
			return
		}
		reason := msg.Reason
		if reason == "" {
			reason = ReasonManual
		}
		h.send(leader.conn, Message{Type: MessageTypeRunSync, Reason: reason})

	case MessageTypeStatus:
		// Only the leader's snapshot is authoritative.
		if msg.Status == nil || msg.TabID == "" || msg.TabID != h.leaderTabID {
			return
		}
		snap := *msg.Status
		if snap.QueueDepth < 0 {
			snap.QueueDepth = 0
		}
		h.leaderStatus = snap
		h.broadcastStatusLocked()
	}
}

// dropConn unregisters every tab registered over conn and re-elects.
func (h *Hub) dropConn(conn *websocket.Conn) {
	_ = conn.CloseNow()

	h.mu.Lock()
	defer h.mu.Unlock()
	kept := h.tabs[:0]
	removed := false
	for _, tab := range h.tabs {
		if tab.conn == conn {
			if tab.tabID == h.leaderTabID {
				h.leaderTabID = ""
			}
			removed = true
			continue
		}
		kept = append(kept, tab)
	}
	h.tabs = kept
	if removed {
		h.electLeaderLocked()
	}
}

func (h *Hub) removeTabLocked(tabID string) {
	kept := h.tabs[:0]
	for _, tab := range h.tabs {
		if tab.tabID != tabID {
			kept = append(kept, tab)
		}
	}
	h.tabs = kept
}

func (h *Hub) leaderLocked() *registration {
	for _, tab := range h.tabs {
		if tab.tabID == h.leaderTabID {
			return tab
		}
	}
	return nil
}

// electLeaderLocked recomputes the leader: the first authenticated tab in
// registration order, else the first registered tab, else none. A leader
// change resets the shared status snapshot, because a new leader has no
// knowledge of the previous leader's in-flight state.
func (h *Hub) electLeaderLocked() {
	previous := h.leaderTabID

	next := ""
	for _, tab := range h.tabs {
		if tab.authenticated {
			next = tab.tabID
			break
		}
	}
	if next == "" && len(h.tabs) > 0 {
		next = h.tabs[0].tabID
	}
	h.leaderTabID = next

	if previous != h.leaderTabID {
		h.leaderStatus = status.Snapshot{Pull: status.PhaseIdle, Push: status.PhaseIdle}
		h.logger.Printf("Leader changed: %q -> %q", previous, next)
	}

	for _, tab := range h.tabs {
		h.send(tab.conn, Message{Type: MessageTypeLeader, TabID: h.leaderTabID})
	}
	h.broadcastStatusLocked()
}

func (h *Hub) broadcastStatusLocked() {
	snap := h.leaderStatus
	for _, tab := range h.tabs {
		h.send(tab.conn, Message{
			Type:        MessageTypeStatus,
			SourceTabID: h.leaderTabID,
			Status:      &snap,
		})
	}
}

// send writes one frame, tolerating dead connections; the owning tab is
// cleaned up when its read loop exits.
func (h *Hub) send(conn *websocket.Conn, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Printf("Failed to marshal message: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		h.logger.Printf("Failed to send to client: %v", err)
	}
}
