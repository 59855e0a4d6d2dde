// Package inbox is the client-side triage queue. Captured records are
// flattened into individual cards; each card is either accepted into the
// notebook or rejected, and a record is marked processed once its last card
// has been decided.
package inbox

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/fleetsapp/fleets/internal/model"
	"github.com/fleetsapp/fleets/internal/notebook"
)

// Remote is the subset of the server client the queue needs.
type Remote interface {
	ListInbox(ctx context.Context) ([]model.InboxRecord, error)
	MarkInboxProcessed(ctx context.Context, id uuid.UUID) error
}

// Card is one captured item awaiting triage.
type Card struct {
	RecordID uuid.UUID
	Item     model.InboxItem
}

// Queue drives triage over the pending cards in capture order.
type Queue struct {
	remote Remote
	disp   *notebook.Dispatcher
	log    *zap.Logger

	cards     []Card
	remaining map[uuid.UUID]int
}

func NewQueue(remote Remote, disp *notebook.Dispatcher, log *zap.Logger) *Queue {
	return &Queue{
		remote:    remote,
		disp:      disp,
		log:       log,
		remaining: make(map[uuid.UUID]int),
	}
}

// Load fetches unprocessed records and flattens them into cards.
func (q *Queue) Load(ctx context.Context) error {
	recs, err := q.remote.ListInbox(ctx)
	if err != nil {
		return fmt.Errorf("list inbox: %w", err)
	}
	q.cards = q.cards[:0]
	q.remaining = make(map[uuid.UUID]int)
	for _, rec := range recs {
		for _, item := range rec.Items {
			q.cards = append(q.cards, Card{RecordID: rec.ID, Item: item})
		}
		q.remaining[rec.ID] = len(rec.Items)
	}
	return nil
}

func (q *Queue) Len() int { return len(q.cards) }

// Peek returns the next card without deciding it.
func (q *Queue) Peek() (Card, bool) {
	if len(q.cards) == 0 {
		return Card{}, false
	}
	return q.cards[0], true
}

// Accept turns the next card into a note and advances the queue.
func (q *Queue) Accept(ctx context.Context) error {
	card, ok := q.Peek()
	if !ok {
		return nil
	}
	q.disp.Create(cardContent(card.Item), nil)
	return q.advance(ctx, card)
}

// Reject discards the next card and advances the queue.
func (q *Queue) Reject(ctx context.Context) error {
	card, ok := q.Peek()
	if !ok {
		return nil
	}
	return q.advance(ctx, card)
}

func (q *Queue) advance(ctx context.Context, card Card) error {
	q.cards = q.cards[1:]
	q.remaining[card.RecordID]--
	if q.remaining[card.RecordID] > 0 {
		return nil
	}
	delete(q.remaining, card.RecordID)
	if err := q.remote.MarkInboxProcessed(ctx, card.RecordID); err != nil {
		// the record stays listed and will be offered again on next Load
		q.log.Warn("mark inbox processed", zap.Error(err))
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

// cardContent renders an item as note text, folding tags in as suffixes.
func cardContent(item model.InboxItem) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(item.Content))
	for _, tag := range item.Tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		b.WriteString(" #")
		b.WriteString(strings.TrimPrefix(tag, "#"))
	}
	return b.String()
}
