package testfixtures

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/example/campus-events/internal/application"
	"github.com/example/campus-events/internal/push"
)

// ErrPushUnavailable is returned by PushChannel for batches containing a
// token passed to FailToken.
var ErrPushUnavailable = errors.New("testfixtures: push channel unavailable")

// PushChannel is an in-process application.PushChannel that records every
// batch it receives. Token validation follows the real client.
type PushChannel struct {
	mu       sync.Mutex
	maxBatch int
	batches  [][]application.PushMessage
	failing  map[string]bool
}

var _ application.PushChannel = (*PushChannel)(nil)

// NewPushChannel returns a channel accepting batches of up to maxBatch
// messages. A non-positive maxBatch uses the real client's limit.
func NewPushChannel(maxBatch int) *PushChannel {
	if maxBatch <= 0 {
		maxBatch = push.MaxBatchSize
	}
	return &PushChannel{maxBatch: maxBatch, failing: make(map[string]bool)}
}

func (p *PushChannel) IsValidToken(token string) bool {
	return push.IsValidToken(token)
}

func (p *PushChannel) MaxBatchSize() int {
	return p.maxBatch
}

// FailToken makes every batch containing token fail at the transport level.
func (p *PushChannel) FailToken(token string) {
	p.mu.Lock()
	p.failing[token] = true
	p.mu.Unlock()
}

func (p *PushChannel) SendBatch(ctx context.Context, messages []application.PushMessage) ([]application.PushTicket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, slices.Clone(messages))

	tickets := make([]application.PushTicket, len(messages))
	for i, m := range messages {
		if p.failing[m.To] {
			return nil, ErrPushUnavailable
		}
		tickets[i] = application.PushTicket{ID: "ticket-" + push.Fingerprint(m.To), OK: true}
	}
	return tickets, nil
}

// Batches returns a copy of every batch sent so far.
func (p *PushChannel) Batches() [][]application.PushMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]application.PushMessage, len(p.batches))
	for i, b := range p.batches {
		out[i] = slices.Clone(b)
	}
	return out
}

// Messages flattens every batch into send order.
func (p *PushChannel) Messages() []application.PushMessage {
	var out []application.PushMessage
	for _, b := range p.Batches() {
		out = append(out, b...)
	}
	return out
}
