package notebook

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/fleetsapp/fleets/internal/errs"
	"github.com/fleetsapp/fleets/internal/model"
	"github.com/fleetsapp/fleets/internal/store"
)

const (
	defaultDebounce  = 500 * time.Millisecond
	defaultOpTimeout = 30 * time.Second
)

// AttachmentUpload is the raw binary handed to Create alongside the note text.
type AttachmentUpload struct {
	Name        string
	ContentType string
	Data        []byte
}

// OpKind discriminates queued offline operations.
type OpKind string

const (
	OpCreate OpKind = "create"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// Op is one durable-store operation that failed and awaits replay.
type Op struct {
	Kind OpKind
	Note model.Note // for OpDelete only ID/UserID are meaningful
}

// OpQueue persists failed operations for replay on reconnect.
type OpQueue interface {
	Enqueue(op Op) error
	// List returns queued ops in enqueue order together with their handles.
	List() ([]QueuedOp, error)
	Delete(seq int64) error
}

// QueuedOp pairs an operation with its queue handle.
type QueuedOp struct {
	Seq int64
	Op  Op
}

// Dispatcher accepts user intents, applies them to the cache synchronously
// and issues the matching durable-store operation in the background. A store
// failure never propagates past the dispatcher: it is logged, surfaced as a
// notice and queued for replay. The local state always keeps the user's last
// expressed intent.
type Dispatcher struct {
	cache  *Cache
	store  store.Store
	blobs  store.BlobStore
	queue  OpQueue
	log    *zap.Logger
	userID uuid.UUID

	debounce  time.Duration
	opTimeout time.Duration
	onNotice  func(string)

	mu      sync.Mutex
	pending map[uuid.UUID]*time.Timer // scheduled update flushes, one per note
	wg      sync.WaitGroup
	closed  bool
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDebounce overrides the update flush delay.
func WithDebounce(d time.Duration) DispatcherOption {
	return func(dp *Dispatcher) { dp.debounce = d }
}

// WithNotice installs the non-blocking user notice callback.
func WithNotice(fn func(string)) DispatcherOption {
	return func(dp *Dispatcher) { dp.onNotice = fn }
}

// WithBlobStore enables attachment uploads.
func WithBlobStore(b store.BlobStore) DispatcherOption {
	return func(dp *Dispatcher) { dp.blobs = b }
}

// WithOpQueue enables offline replay of failed operations.
func WithOpQueue(q OpQueue) DispatcherOption {
	return func(dp *Dispatcher) { dp.queue = q }
}

// NewDispatcher constructs a dispatcher for one authenticated user.
func NewDispatcher(cache *Cache, st store.Store, userID uuid.UUID, log *zap.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		cache:     cache,
		store:     st,
		log:       log,
		userID:    userID,
		debounce:  defaultDebounce,
		opTimeout: defaultOpTimeout,
		pending:   make(map[uuid.UUID]*time.Timer),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Create appends an optimistic note and returns it before any network
// operation begins. The background task uploads the attachment (if any), then
// inserts with the client-generated id as the durable primary key so the feed
// echo deduplicates by id.
func (d *Dispatcher) Create(content string, att *AttachmentUpload) model.Note {
	now := time.Now().UTC()
	n := model.Note{
		ID:        uuid.Must(uuid.NewV4()),
		UserID:    d.userID,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if att != nil {
		// placeholder until the upload resolves the URL
		n.Attachment = &model.Attachment{Kind: att.ContentType, Name: att.Name}
	}
	d.cache.Put(n)

	d.background(func(ctx context.Context) {
		if att != nil && d.blobs != nil {
			url, err := d.blobs.UploadBlob(ctx, att.Name, att.ContentType, att.Data)
			if err != nil {
				d.fail("attachment upload failed", Op{Kind: OpCreate, Note: n}, err)
				return
			}
			n.Attachment.URL = url
			d.cache.Mutate(n.ID, func(cached *model.Note) {
				if cached.Attachment != nil {
					cached.Attachment.URL = url
				}
			})
		}
		if err := d.store.InsertNote(ctx, n); err != nil {
			d.fail("note save failed", Op{Kind: OpCreate, Note: n}, err)
		}
	})
	return n
}

// Update mutates the cached note synchronously and schedules a debounced
// background save. Each call cancels the previous pending flush for the same
// note and starts the delay over.
func (d *Dispatcher) Update(id uuid.UUID, content string) {
	now := time.Now().UTC()
	ok := d.cache.Mutate(id, func(n *model.Note) {
		n.Content = content
		n.UpdatedAt = now
	})
	if !ok {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if t := d.pending[id]; t != nil {
		t.Stop()
	}
	d.pending[id] = time.AfterFunc(d.debounce, func() { d.flush(id) })
}

// SetPinned flips the pin flag synchronously and saves it right away. Pin
// toggles are discrete actions, not keystrokes, so they skip the debounce.
func (d *Dispatcher) SetPinned(id uuid.UUID, pinned bool) {
	now := time.Now().UTC()
	ok := d.cache.Mutate(id, func(n *model.Note) {
		n.IsPinned = pinned
		n.UpdatedAt = now
	})
	if !ok {
		return
	}
	n, _ := d.cache.Get(id)
	d.background(func(ctx context.Context) {
		p := pinned
		err := d.store.UpdateNote(ctx, d.userID, id, model.NotePatch{IsPinned: &p, UpdatedAt: now})
		if err == nil || errors.Is(err, errs.ErrNotFound) {
			return
		}
		d.fail("note save failed", Op{Kind: OpUpdate, Note: n}, err)
	})
}

// Delete removes the note synchronously; a failed remote delete is not rolled
// back locally (resolved by the next full reconciliation reload).
func (d *Dispatcher) Delete(id uuid.UUID) {
	d.mu.Lock()
	if t := d.pending[id]; t != nil {
		t.Stop()
		delete(d.pending, id)
	}
	d.mu.Unlock()

	if !d.cache.Remove(id) {
		return
	}
	d.background(func(ctx context.Context) {
		err := d.store.DeleteNote(ctx, d.userID, id)
		if err == nil || errors.Is(err, errs.ErrNotFound) {
			return
		}
		d.fail("note delete failed", Op{Kind: OpDelete, Note: model.Note{ID: id, UserID: d.userID}}, err)
	})
}

// flush sends the note's current cached state to the store.
func (d *Dispatcher) flush(id uuid.UUID) {
	d.mu.Lock()
	delete(d.pending, id)
	d.mu.Unlock()

	n, ok := d.cache.Get(id)
	if !ok {
		return
	}
	d.background(func(ctx context.Context) {
		content, pinned := n.Content, n.IsPinned
		patch := model.NotePatch{Content: &content, IsPinned: &pinned, UpdatedAt: n.UpdatedAt}
		err := d.store.UpdateNote(ctx, d.userID, id, patch)
		if err == nil || errors.Is(err, errs.ErrNotFound) {
			return
		}
		d.fail("note save failed", Op{Kind: OpUpdate, Note: n}, err)
	})
}

// Close cancels pending flush timers, runs their saves now and waits for all
// background operations to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	var ids []uuid.UUID
	for id, t := range d.pending {
		t.Stop()
		ids = append(ids, id)
	}
	d.pending = make(map[uuid.UUID]*time.Timer)
	d.mu.Unlock()

	for _, id := range ids {
		d.flush(id)
	}
	d.wg.Wait()
}

// Wait blocks until in-flight background operations complete (tests, sync points).
func (d *Dispatcher) Wait() { d.wg.Wait() }

func (d *Dispatcher) background(fn func(context.Context)) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.opTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// fail logs, surfaces the non-blocking notice and queues the op for replay.
// Nothing is thrown past the dispatcher boundary.
func (d *Dispatcher) fail(notice string, op Op, err error) {
	d.log.Warn(notice, zap.String("note", op.Note.ID.String()), zap.Error(err))
	if d.onNotice != nil {
		d.onNotice(notice)
	}
	if d.queue != nil {
		if qerr := d.queue.Enqueue(op); qerr != nil {
			d.log.Error("queue op failed", zap.Error(qerr))
		}
	}
}

// Replay drains the offline queue against the store in enqueue order. It
// stops at the first transient failure, keeping the remainder queued. A
// replayed create inserts under the original client id, so the store sees
// exactly one logical insert no matter how many times replay runs.
func Replay(ctx context.Context, q OpQueue, st store.Store, log *zap.Logger) error {
	ops, err := q.List()
	if err != nil {
		return err
	}
	for _, qo := range ops {
		var err error
		switch qo.Op.Kind {
		case OpCreate:
			err = st.InsertNote(ctx, qo.Op.Note)
		case OpUpdate:
			content, pinned := qo.Op.Note.Content, qo.Op.Note.IsPinned
			err = st.UpdateNote(ctx, qo.Op.Note.UserID, qo.Op.Note.ID, model.NotePatch{
				Content:   &content,
				IsPinned:  &pinned,
				UpdatedAt: qo.Op.Note.UpdatedAt,
			})
			if errors.Is(err, errs.ErrNotFound) {
				// deleted remotely in the meantime; nothing to update
				err = nil
			}
		case OpDelete:
			err = st.DeleteNote(ctx, qo.Op.Note.UserID, qo.Op.Note.ID)
			if errors.Is(err, errs.ErrNotFound) {
				err = nil
			}
		}
		if err != nil {
			return err
		}
		if derr := q.Delete(qo.Seq); derr != nil {
			return derr
		}
		log.Debug("replayed op", zap.String("kind", string(qo.Op.Kind)), zap.String("note", qo.Op.Note.ID.String()))
	}
	return nil
}
