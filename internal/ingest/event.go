package ingest

import (
	"time"

	"github.com/coursehub/modhub/internal/store"
)

// Event is one normalized inbound message from any source listener.
// Listeners translate their platform payloads into this shape; the
// coordinator never sees transport types.
type Event struct {
	Source    string
	ChatKind  store.ChatKind
	ChatID    int64
	MessageID int

	// BusinessConnectionID is carried through to the mapping so replies
	// can be dispatched over the same Business API connection.
	BusinessConnectionID string

	SenderID       int64
	SenderIsBot    bool
	SenderName     string
	SenderUsername string
	ChatName       string

	Text      string
	HasMedia  bool
	MediaType string

	// MediaFileID enables download-and-reupload relay when a native
	// copy into the hub chat is not possible.
	MediaFileID   string
	MediaFileSize int64

	Timestamp time.Time

	// PriorityFloor raises the classified priority to at least this level.
	// LMS homework and comment events arrive pre-marked high.
	PriorityFloor store.Priority

	// Card, when set, is a pre-rendered hub card that replaces the default
	// rendering. ForceForward bypasses the classifier's forwarding verdict
	// (the priority and tags are still computed).
	Card         string
	ForceForward bool
}
