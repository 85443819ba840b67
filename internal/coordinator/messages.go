package coordinator

import "github.com/tasksync/tasksync/internal/status"

// MessageType defines the coordinator message type
type MessageType string

const (
	// Client to hub.
	MessageTypeRegister    MessageType = "register"
	MessageTypeUnregister  MessageType = "unregister"
	MessageTypeSetAuth     MessageType = "set-auth"
	MessageTypeRequestSync MessageType = "request-sync"

	// Hub to clients. MessageTypeStatus travels both ways: clients publish
	// it with TabID set, the hub rebroadcasts it with SourceTabID set.
	MessageTypeLeader  MessageType = "leader"
	MessageTypeRunSync MessageType = "run-sync"
	MessageTypeStatus  MessageType = "status"
)

// Message is the envelope for every coordinator frame. Fields are populated
// per type; unknown types are ignored by both sides.
type Message struct {
	Type MessageType `json:"type"`

	// TabID identifies the sending client (register, unregister, set-auth,
	// status) or the elected leader (leader broadcast, empty = none).
	TabID string `json:"tabId,omitempty"`

	// SourceTabID tags a rebroadcast status with the leader that
	// published it.
	SourceTabID string `json:"sourceTabId,omitempty"`

	// Authenticated accompanies set-auth.
	Authenticated bool `json:"authenticated,omitempty"`

	// Reason accompanies request-sync and run-sync.
	Reason string `json:"reason,omitempty"`

	// Status accompanies status messages.
	Status *status.Snapshot `json:"status,omitempty"`
}

// Sync reasons. Free-form strings are allowed; these are the ones the
// engine itself produces.
const (
	ReasonManual   = "manual"
	ReasonStartup  = "startup"
	ReasonRetry    = "retry"
	ReasonInterval = "interval"
	ReasonInbox    = "inbox"
)
