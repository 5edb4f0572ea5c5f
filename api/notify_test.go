package api

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"taskflow-api/domain"
)

type blockingPublisher struct {
	release chan struct{}
	count   atomic.Int32
}

func (p *blockingPublisher) Publish(ctx context.Context, _ domain.ChangeEvent) error {
	select {
	case <-p.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	p.count.Add(1)
	return nil
}

func TestNotifierDropsWhenSaturated(t *testing.T) {
	logger, hook := test.NewNullLogger()
	pub := &blockingPublisher{release: make(chan struct{})}
	n := NewNotifier(pub, logger, NotifierConfig{Workers: 1, Buffer: 1})

	// One event is held by the worker, one fills the buffer.
	accepted := 0
	for i := 0; i < 10; i++ {
		if n.Notify(newChangeEvent(domain.EntityTask, domain.ChangeUpdated, "t1", nil)) {
			accepted++
		}
	}
	if accepted < 1 || accepted > 2 {
		t.Fatalf("expected one or two events accepted, got %d", accepted)
	}
	if got := n.Dropped(); got != int64(10-accepted) {
		t.Fatalf("expected %d drops, got %d", 10-accepted, got)
	}

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == log.WarnLevel && e.Data["event"] == "task-updated" {
			warned = true
		}
	}
	if !warned {
		t.Fatal("expected dropped event to be logged")
	}

	close(pub.release)
	n.Close()
	if got := int(pub.count.Load()); got != accepted {
		t.Fatalf("expected %d published, got %d", accepted, got)
	}
}

func TestNotifierHandoffTimeoutWaitsForSpace(t *testing.T) {
	logger, _ := test.NewNullLogger()
	pub := &blockingPublisher{release: make(chan struct{})}
	n := NewNotifier(pub, logger, NotifierConfig{Workers: 1, Buffer: 1, HandoffTimeout: time.Second})

	n.Notify(newChangeEvent(domain.EntityTask, domain.ChangeCreated, "a", nil))
	n.Notify(newChangeEvent(domain.EntityTask, domain.ChangeCreated, "b", nil))
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(pub.release)
	}()
	if !n.Notify(newChangeEvent(domain.EntityTask, domain.ChangeCreated, "c", nil)) {
		t.Fatal("expected event to be handed off once the worker drains")
	}
	n.Close()
	if n.Dropped() != 0 {
		t.Fatalf("expected no drops, got %d", n.Dropped())
	}
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, domain.ChangeEvent) error {
	return errors.New("queue unavailable")
}

func TestNotifierLogsPublishFailures(t *testing.T) {
	logger, hook := test.NewNullLogger()
	n := NewNotifier(failingPublisher{}, logger, NotifierConfig{Workers: 1})
	n.Notify(newChangeEvent(domain.EntityCategory, domain.ChangeDeleted, "c1", nil))
	n.Close()

	entry := hook.LastEntry()
	if entry == nil || entry.Level != log.ErrorLevel || entry.Data["entity_id"] != "c1" {
		t.Fatalf("expected publish failure logged, got %+v", entry)
	}
}

func TestNotifyAfterCloseIsRejected(t *testing.T) {
	logger, _ := test.NewNullLogger()
	n := NewNotifier(failingPublisher{}, logger, NotifierConfig{})
	n.Close()
	n.Close()
	if n.Notify(newChangeEvent(domain.EntityTask, domain.ChangeCreated, "x", nil)) {
		t.Fatal("expected closed notifier to reject events")
	}

	var nilNotifier *Notifier
	if nilNotifier.Notify(domain.ChangeEvent{}) {
		t.Fatal("expected nil notifier to reject events")
	}
}

func TestNewChangeEvent(t *testing.T) {
	task := domain.Task{ID: "t1", Title: "x", Priority: domain.PriorityLow}
	first := newChangeEvent(domain.EntityTask, domain.ChangeCreated, task.ID, task)
	second := newChangeEvent(domain.EntityTask, domain.ChangeDeleted, task.ID, nil)

	if first.ID == "" || first.ID == second.ID {
		t.Fatalf("expected unique event ids, got %q and %q", first.ID, second.ID)
	}
	if second.Timestamp <= first.Timestamp {
		t.Fatalf("expected increasing timestamps, got %d then %d", first.Timestamp, second.Timestamp)
	}
	var decoded domain.Task
	if err := sonic.Unmarshal(first.Data, &decoded); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if decoded.Title != "x" || decoded.Priority != domain.PriorityLow {
		t.Fatalf("unexpected payload: %+v", decoded)
	}
	if len(second.Data) != 0 {
		t.Fatalf("expected no payload for delete, got %s", second.Data)
	}
}
