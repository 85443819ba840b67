package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/tasksync/tasksync/internal/status"
)

// Options configures a client-side coordinator.
type Options struct {
	// TabID identifies this client process. Defaults to a random UUID.
	TabID string

	// HubURL is the hub websocket endpoint (ws://host:port/ws). Empty
	// means "no hub": the coordinator starts in always-leader fallback.
	HubURL string

	// OnLeaderChange fires whenever this client's leadership changes.
	OnLeaderChange func(isLeader bool)

	// OnRunSync fires when this client should execute a sync cycle. Only
	// called while this client is the leader.
	OnRunSync func(reason string)

	// OnStatus fires when a status snapshot is rebroadcast by the hub,
	// tagged with the tab id of the leader that published it.
	OnStatus func(snap status.Snapshot, sourceTabID string)

	// Logger defaults to a stderr logger.
	Logger *log.Logger

	// DialTimeout bounds the hub connection attempt (default 3s).
	DialTimeout time.Duration
}

// Coordinator is one client's view of the leader election.
type Coordinator struct {
	tabID  string
	logger *log.Logger

	onLeaderChange func(bool)
	onRunSync      func(string)
	onStatus       func(status.Snapshot, string)

	mu     sync.Mutex
	leader bool
	conn   *websocket.Conn // nil in fallback mode

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New connects to the hub and registers this client.
//
// If the hub is unreachable (or no hub is configured), the coordinator
// degrades to always-leader: every RequestSync runs locally and status
// publishing is a no-op. The degradation is silent, by contract; running
// without cross-process coordination is safe, just duplicative.
func New(ctx context.Context, opts Options) *Coordinator {
	if opts.TabID == "" {
		opts.TabID = uuid.NewString()
	}
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "[coordinator] ", log.LstdFlags)
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 3 * time.Second
	}

	c := &Coordinator{
		tabID:          opts.TabID,
		logger:         opts.Logger,
		onLeaderChange: opts.OnLeaderChange,
		onRunSync:      opts.OnRunSync,
		onStatus:       opts.OnStatus,
		done:           make(chan struct{}),
	}

	if opts.HubURL == "" {
		c.enterFallback("no hub configured")
		return c
	}

	dialCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, opts.HubURL, nil)
	if err != nil {
		c.enterFallback(fmt.Sprintf("hub unreachable: %v", err))
		return c
	}

	c.conn = conn
	c.wg.Add(1)
	go c.readLoop(conn)

	c.send(Message{Type: MessageTypeRegister, TabID: c.tabID})
	return c
}

// enterFallback switches to single-process always-leader mode.
func (c *Coordinator) enterFallback(why string) {
	c.logger.Printf("Running without cross-process coordination (%s)", why)
	c.setLeader(true)
}

// TabID returns this client's id.
func (c *Coordinator) TabID() string {
	return c.tabID
}

// IsLeader reports whether this client currently drives sync.
func (c *Coordinator) IsLeader() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.leader
}

func (c *Coordinator) setLeader(next bool) {
	c.mu.Lock()
	if c.leader == next {
		c.mu.Unlock()
		return
	}
	c.leader = next
	c.mu.Unlock()
	if c.onLeaderChange != nil {
		c.onLeaderChange(next)
	}
}

// readLoop reads from the connection captured at dial time. Close nils
// out c.conn under the lock to gate the senders; reading through the
// field here would race that write.
func (c *Coordinator) readLoop(conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		_, data, err := conn.Read(context.Background())
		if err != nil {
			select {
			case <-c.done:
			default:
				// Hub went away mid-session; keep working alone.
				c.mu.Lock()
				c.conn = nil
				c.mu.Unlock()
				c.enterFallback(fmt.Sprintf("hub connection lost: %v", err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Printf("WARNING: ignoring malformed message: %v", err)
			continue
		}

		switch msg.Type {
		case MessageTypeLeader:
			c.setLeader(msg.TabID == c.tabID)
		case MessageTypeRunSync:
			if c.IsLeader() && c.onRunSync != nil {
				reason := msg.Reason
				if reason == "" {
					reason = ReasonManual
				}
				c.onRunSync(reason)
			}
		case MessageTypeStatus:
			if msg.Status != nil && c.onStatus != nil {
				c.onStatus(*msg.Status, msg.SourceTabID)
			}
		}
	}
}

// SetAuthenticated reports this client's auth state to the hub, which
// prefers authenticated clients when electing a leader.
func (c *Coordinator) SetAuthenticated(authenticated bool) {
	c.send(Message{Type: MessageTypeSetAuth, TabID: c.tabID, Authenticated: authenticated})
}

// RequestSync asks for a sync cycle. The leader runs it immediately in
// process; a follower forwards the request to the hub, which relays it to
// the current leader only.
func (c *Coordinator) RequestSync(reason string) {
	if reason == "" {
		reason = ReasonManual
	}
	c.mu.Lock()
	conn := c.conn
	leader := c.leader
	c.mu.Unlock()

	if conn == nil || leader {
		if c.onRunSync != nil {
			c.onRunSync(reason)
		}
		return
	}
	c.send(Message{Type: MessageTypeRequestSync, Reason: reason})
}

// PublishStatus shares this client's status snapshot with its peers. Only
// the leader may publish; follower calls are dropped.
func (c *Coordinator) PublishStatus(snap status.Snapshot) {
	c.mu.Lock()
	conn := c.conn
	leader := c.leader
	c.mu.Unlock()
	if conn == nil || !leader {
		return
	}
	c.send(Message{Type: MessageTypeStatus, TabID: c.tabID, Status: &snap})
}

// Close unregisters from the hub and tears the connection down. Safe to
// call more than once.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		conn := c.conn
		c.conn = nil
		c.mu.Unlock()
		if conn == nil {
			return
		}
		c.sendOn(conn, Message{Type: MessageTypeUnregister, TabID: c.tabID})
		_ = conn.Close(websocket.StatusNormalClosure, "client shutting down")
		c.wg.Wait()
	})
}

func (c *Coordinator) send(msg Message) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}
	c.sendOn(conn, msg)
}

func (c *Coordinator) sendOn(conn *websocket.Conn, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Printf("Failed to marshal message: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		c.logger.Printf("Failed to send to hub: %v", err)
	}
}
