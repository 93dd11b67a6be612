package assistant

import (
	"context"
	"sync"

	"gutcheck/internal/dialog"
	"gutcheck/internal/logging"
)

// ReplyKind tags a reply for rendering.
type ReplyKind string

const (
	KindAck      ReplyKind = "ack"      // something was logged
	KindQuestion ReplyKind = "question" // a clarification or check-in
	KindInfo     ReplyKind = "info"
	KindError    ReplyKind = "error"
	KindNotice   ReplyKind = "notice" // proactive, not a reply to a message
)

// Reply is one assistant message.
type Reply struct {
	Kind    ReplyKind `json:"kind"`
	Text    string    `json:"text"`
	Options []string  `json:"options,omitempty"`
}

// Sender delivers out-of-band replies (reminders, notices) to a channel.
type Sender interface {
	Send(ctx context.Context, userID, channel string, r Reply) error
}

// DefaultOutboxLimit bounds the queued replies per user.
const DefaultOutboxLimit = 50

// Outbox routes replies. During a turn they are collected into the turn's
// response; outside a turn they go to the Sender, or are queued per user
// until drained when there is none.
type Outbox struct {
	sender Sender
	limit  int

	mu     sync.Mutex
	queued map[string][]Reply
}

// NewOutbox creates an outbox. sender may be nil.
func NewOutbox(sender Sender) *Outbox {
	return &Outbox{sender: sender, limit: DefaultOutboxLimit, queued: make(map[string][]Reply)}
}

// Prompt renders a clarification. It makes the Outbox a dialog.Prompter.
func (o *Outbox) Prompt(ctx context.Context, msg dialog.Message, c dialog.Clarification) error {
	return o.Deliver(ctx, msg.UserID, msg.Channel, Reply{Kind: KindQuestion, Text: c.Question, Options: c.Options})
}

// Deliver sends r to the user.
func (o *Outbox) Deliver(ctx context.Context, userID, channel string, r Reply) error {
	if col := collectorFrom(ctx); col != nil && col.userID == userID {
		col.add(r)
		return nil
	}
	if o.sender != nil {
		if err := o.sender.Send(ctx, userID, channel, r); err != nil {
			logging.AssistantWarn("send to user=%s on %s failed: %v", userID, channel, err)
			return err
		}
		return nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	q := append(o.queued[userID], r)
	if len(q) > o.limit {
		q = q[len(q)-o.limit:]
	}
	o.queued[userID] = q
	logging.AssistantDebug("queued %s reply for user=%s (%d waiting)", r.Kind, userID, len(q))
	return nil
}

// Drain returns and clears the user's queued replies, oldest first.
func (o *Outbox) Drain(userID string) []Reply {
	o.mu.Lock()
	defer o.mu.Unlock()
	q := o.queued[userID]
	delete(o.queued, userID)
	return q
}

// Waiting returns how many replies are queued for the user.
func (o *Outbox) Waiting(userID string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queued[userID])
}

// =============================================================================
// TURN COLLECTOR
// =============================================================================

type collectorKey struct{}

type collector struct {
	userID string

	mu      sync.Mutex
	replies []Reply
}

func withCollector(ctx context.Context, userID string) (context.Context, *collector) {
	col := &collector{userID: userID}
	return context.WithValue(ctx, collectorKey{}, col), col
}

func collectorFrom(ctx context.Context) *collector {
	col, _ := ctx.Value(collectorKey{}).(*collector)
	return col
}

func (c *collector) add(r Reply) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies = append(c.replies, r)
}

func (c *collector) collected() []Reply {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Reply(nil), c.replies...)
}
