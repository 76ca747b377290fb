package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Publisher delivers messages to one outbound transport.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, msg Message) error
}

const (
	defaultPublishTimeout = 2 * time.Second
	defaultMaxRetries     = 5
	defaultDrainBatch     = 100
	defaultQueueSize      = 1024
)

// Dispatcher fans messages out after a mutation has committed. Emit never
// fails and never waits on a publisher: the event row is written inline,
// publishing happens on a background worker, and failed or overflowing
// publishes are parked in the outbox for a later Drain.
type Dispatcher struct {
	Writer     *Writer
	Publishers []Publisher
	Outbox     *Outbox
	Logger     *zap.Logger
	Now        func() time.Time
	MaxRetries int
	Timeout    time.Duration
	QueueSize  int

	once    sync.Once
	queue   chan Message
	quit    chan struct{}
	done    chan struct{}
	mu      sync.RWMutex
	stopped bool
	pending atomic.Int64
}

func (d *Dispatcher) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Dispatcher) Emit(ctx context.Context, msg Message) {
	if d == nil {
		return
	}
	if msg.TS == "" {
		msg.TS = d.now().UTC().Format(time.RFC3339)
	}
	// Detach from request cancellation so a client disconnect does not drop the event.
	ctx = context.WithoutCancel(ctx)
	log := d.logger().With(zap.String("event", msg.Type), zap.String("project_id", msg.ProjectID), zap.String("entity_id", msg.EntityID))
	if d.Writer != nil {
		id, err := d.Writer.Append(ctx, msg)
		if err != nil {
			log.Warn("persist event failed", zap.Error(err))
		} else {
			msg.ID = id
		}
	}
	if len(d.Publishers) == 0 {
		return
	}
	d.enqueue(msg, log)
}

func (d *Dispatcher) start() {
	d.once.Do(func() {
		size := d.QueueSize
		if size <= 0 {
			size = defaultQueueSize
		}
		d.queue = make(chan Message, size)
		d.quit = make(chan struct{})
		d.done = make(chan struct{})
		go d.run()
	})
}

func (d *Dispatcher) enqueue(msg Message, log *zap.Logger) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		d.parkAll(msg, log)
		return
	}
	d.start()
	d.pending.Add(1)
	select {
	case d.queue <- msg:
	default:
		d.pending.Add(-1)
		log.Warn("publish queue full, parking event")
		d.parkAll(msg, log)
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		select {
		case msg := <-d.queue:
			d.deliver(msg)
			d.pending.Add(-1)
		case <-d.quit:
			return
		}
	}
}

func (d *Dispatcher) deliver(msg Message) {
	ctx := context.Background()
	log := d.logger().With(zap.String("event", msg.Type), zap.String("project_id", msg.ProjectID), zap.String("entity_id", msg.EntityID))
	for _, p := range d.Publishers {
		if err := d.publish(ctx, p, msg); err != nil {
			log.Warn("publish event failed", zap.String("publisher", p.Name()), zap.Error(err))
			d.park(p.Name(), msg, log)
		}
	}
}

func (d *Dispatcher) parkAll(msg Message, log *zap.Logger) {
	for _, p := range d.Publishers {
		d.park(p.Name(), msg, log)
	}
}

func (d *Dispatcher) park(publisher string, msg Message, log *zap.Logger) {
	if d.Outbox == nil {
		return
	}
	if err := d.Outbox.Enqueue(OutboxItem{Publisher: publisher, Message: msg}); err != nil {
		log.Error("outbox enqueue failed", zap.String("publisher", publisher), zap.Error(err))
	}
}

// Flush waits until every queued message has been handed to the publishers.
func (d *Dispatcher) Flush(ctx context.Context) error {
	if d == nil {
		return nil
	}
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for d.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Close stops accepting new publishes, flushes the queue and stops the
// worker. Messages emitted afterwards go straight to the outbox.
func (d *Dispatcher) Close(ctx context.Context) error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	already := d.stopped
	d.stopped = true
	d.mu.Unlock()
	if already || d.queue == nil {
		return nil
	}
	err := d.Flush(ctx)
	close(d.quit)
	<-d.done
	for {
		select {
		case msg := <-d.queue:
			d.pending.Add(-1)
			d.parkAll(msg, d.logger())
		default:
			return err
		}
	}
}

func (d *Dispatcher) publish(ctx context.Context, p Publisher, msg Message) error {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Publish(ctx, msg)
}

// Drain retries parked messages once. Items that keep failing are dropped
// after MaxRetries attempts.
func (d *Dispatcher) Drain(ctx context.Context) error {
	if d == nil || d.Outbox == nil {
		return nil
	}
	maxRetries := d.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	items, err := d.Outbox.Batch(defaultDrainBatch)
	if err != nil {
		return err
	}
	byName := make(map[string]Publisher, len(d.Publishers))
	for _, p := range d.Publishers {
		byName[p.Name()] = p
	}
	log := d.logger()
	for _, item := range items {
		p, ok := byName[item.Publisher]
		if !ok {
			log.Warn("dropping outbox item for unknown publisher", zap.String("item_id", item.ID), zap.String("publisher", item.Publisher))
			_ = d.Outbox.Remove(item)
			continue
		}
		if err := d.publish(ctx, p, item.Message); err != nil {
			item.Retries++
			if item.Retries >= maxRetries {
				log.Warn("dropping outbox item (max retries reached)", zap.String("item_id", item.ID), zap.String("event", item.Message.Type), zap.Error(err))
				_ = d.Outbox.Remove(item)
				continue
			}
			if err := d.Outbox.Requeue(item); err != nil {
				log.Error("requeue outbox item failed", zap.String("item_id", item.ID), zap.Error(err))
			}
			continue
		}
		if err := d.Outbox.Remove(item); err != nil {
			log.Warn("remove delivered outbox item failed", zap.String("item_id", item.ID), zap.Error(err))
		}
	}
	return nil
}
