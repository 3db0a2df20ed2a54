package relay

import (
	"time"

	"github.com/oklog/ulid/v2"

	"gugudan/internal/model"
)

// DefaultCapacity is the number of messages kept before the oldest is evicted.
const DefaultCapacity = 100

// timestampLayout matches JavaScript's Date.prototype.toISOString.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// Buffer is an ordered, capped list of messages. It is not safe for
// concurrent use; the Relay serializes access.
type Buffer struct {
	capacity int
	messages []model.Message
	now      func() time.Time
}

// NewBuffer returns an empty buffer holding at most capacity messages.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		capacity: capacity,
		messages: make([]model.Message, 0, capacity+1),
		now:      time.Now,
	}
}

// Add stamps and stores msg and returns the stored copy.
//
// Explanations are linked to the most recent answer in the buffer, even if
// that answer already carries an explanation.
func (b *Buffer) Add(msg model.Message) model.Message {
	now := b.now().UTC()
	if msg.Timestamp == "" {
		msg.Timestamp = now.Format(timestampLayout)
	}
	msg.ID = "msg-" + ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()

	if msg.Type == model.TypeExplanation {
		for i := len(b.messages) - 1; i >= 0; i-- {
			if b.messages[i].Type == model.TypeAnswer {
				msg.ParentID = b.messages[i].ID
				b.messages[i].HasExplanation = true
				break
			}
		}
	}

	b.messages = append(b.messages, msg)
	if len(b.messages) > b.capacity {
		copy(b.messages, b.messages[1:])
		b.messages = b.messages[:len(b.messages)-1]
	}
	return msg
}

// Snapshot returns a copy of the buffer in insertion order.
func (b *Buffer) Snapshot() []model.Message {
	out := make([]model.Message, len(b.messages))
	copy(out, b.messages)
	return out
}

// Len returns the number of buffered messages.
func (b *Buffer) Len() int {
	return len(b.messages)
}
