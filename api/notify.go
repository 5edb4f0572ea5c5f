package api

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"taskflow-api/domain"
)

// NotifierConfig sizes the change event worker pool.
type NotifierConfig struct {
	Workers        int
	Buffer         int
	PublishTimeout time.Duration
	HandoffTimeout time.Duration
}

func (c NotifierConfig) withDefaults() NotifierConfig {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.Buffer <= 0 {
		c.Buffer = 256
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 30 * time.Second
	}
	if c.HandoffTimeout < 0 {
		c.HandoffTimeout = 0
	}
	return c
}

// Notifier publishes change events from a bounded pool of workers. Requests
// never wait on the publisher: when the buffer stays full past the handoff
// timeout the event is dropped.
type Notifier struct {
	pub     Publisher
	log     *log.Logger
	cfg     NotifierConfig
	jobs    chan domain.ChangeEvent
	wg      sync.WaitGroup
	closing sync.Once
	dropped atomic.Int64
}

// NewNotifier starts the workers.
func NewNotifier(pub Publisher, logger *log.Logger, cfg NotifierConfig) *Notifier {
	if pub == nil {
		panic("api.NewNotifier: publisher is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	cfg = cfg.withDefaults()
	n := &Notifier{
		pub:  pub,
		log:  logger,
		cfg:  cfg,
		jobs: make(chan domain.ChangeEvent, cfg.Buffer),
	}
	for i := 0; i < cfg.Workers; i++ {
		n.wg.Add(1)
		go n.worker(i)
	}
	logger.Infof("change notifier started, workers: %d, buffer: %d, timeout: %v, handoff: %v",
		cfg.Workers, cfg.Buffer, cfg.PublishTimeout, cfg.HandoffTimeout)
	return n
}

func (n *Notifier) worker(id int) {
	defer n.wg.Done()
	for ev := range n.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), n.cfg.PublishTimeout)
		err := n.pub.Publish(ctx, ev)
		cancel()
		if err != nil {
			n.log.WithError(err).WithFields(log.Fields{
				"event":     ev.Name(),
				"entity_id": ev.EntityID,
				"worker":    id,
			}).Error("publish change event failed")
		}
	}
}

// Notify hands ev to the pool and reports whether it was accepted.
func (n *Notifier) Notify(ev domain.ChangeEvent) bool {
	if n == nil {
		return false
	}
	if ok, closed := trySendNonBlocking(n.jobs, ev); closed {
		return false
	} else if ok {
		return true
	}

	if n.cfg.HandoffTimeout > 0 {
		timer := time.NewTimer(n.cfg.HandoffTimeout)
		defer timer.Stop()
		if ok, _ := sendWithTimer(n.jobs, ev, timer.C); ok {
			return true
		}
	}

	n.dropped.Add(1)
	n.log.WithFields(log.Fields{"event": ev.Name(), "entity_id": ev.EntityID}).Warn("notifier saturated; change event dropped")
	return false
}

// Dropped returns the number of events lost to saturation.
func (n *Notifier) Dropped() int64 {
	return n.dropped.Load()
}

// Close stops accepting events and waits for queued ones to be published.
func (n *Notifier) Close() {
	n.closing.Do(func() {
		close(n.jobs)
	})
	n.wg.Wait()
}

// trySendNonBlocking reports closed instead of panicking when the pool has
// been shut down.
func trySendNonBlocking(ch chan domain.ChangeEvent, ev domain.ChangeEvent) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- ev:
		return true, false
	default:
		return false, false
	}
}

func sendWithTimer(ch chan domain.ChangeEvent, ev domain.ChangeEvent, timer <-chan time.Time) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- ev:
		return true, false
	case <-timer:
		return false, false
	}
}

var lastTimestamp int64

// nextTimestamp returns a strictly increasing unix nano timestamp.
func nextTimestamp() int64 {
	for {
		now := time.Now().UnixNano()
		last := atomic.LoadInt64(&lastTimestamp)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastTimestamp, last, now) {
			return now
		}
	}
}

// newChangeEvent builds an event carrying the JSON form of data.
func newChangeEvent(entityType, changeType, entityID string, data any) domain.ChangeEvent {
	ev := domain.ChangeEvent{
		ID:         uuid.NewString(),
		EntityType: entityType,
		EntityID:   entityID,
		Type:       changeType,
		Timestamp:  nextTimestamp(),
	}
	if data != nil {
		if raw, err := sonic.Marshal(data); err == nil {
			ev.Data = raw
		}
	}
	return ev
}
