package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/taskgrid/taskgrid/ext"
	"github.com/taskgrid/taskgrid/task"
	"github.com/taskgrid/taskgrid/tasktype"
)

// Compile-time interface checks.
var (
	_ ext.Extension        = (*Broker)(nil)
	_ ext.TypeRegistered   = (*Broker)(nil)
	_ ext.TaskCreated      = (*Broker)(nil)
	_ ext.TaskClaimed      = (*Broker)(nil)
	_ ext.ProgressUpdated  = (*Broker)(nil)
	_ ext.TaskCompleted    = (*Broker)(nil)
	_ ext.TaskRetrying     = (*Broker)(nil)
	_ ext.TaskDeadLettered = (*Broker)(nil)
	_ ext.LeaseReclaimed   = (*Broker)(nil)
	_ ext.TaskRequeued     = (*Broker)(nil)
	_ ext.Shutdown         = (*Broker)(nil)
)

// DefaultBufferSize is the default per-subscriber event buffer.
const DefaultBufferSize = 256

// DefaultCredits is the default initial credits for new subscribers.
const DefaultCredits int64 = 1000

// Broker is the real-time stream broker. It implements the ext.Extension
// hook interfaces to receive lifecycle events and fans them out to
// subscribers via topic-based pub/sub.
type Broker struct {
	topics *TopicRegistry
	logger *slog.Logger

	subscribers sync.Map // subscriberID → *Subscriber

	totalPublished atomic.Int64

	bufferSize     int
	defaultCredits int64
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscriber event buffer size.
func WithBufferSize(size int) BrokerOption {
	return func(b *Broker) { b.bufferSize = size }
}

// WithDefaultCredits sets the initial credits for new subscribers.
func WithDefaultCredits(credits int64) BrokerOption {
	return func(b *Broker) { b.defaultCredits = credits }
}

// NewBroker creates a new stream broker.
func NewBroker(logger *slog.Logger, opts ...BrokerOption) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Broker{
		topics:         NewTopicRegistry(),
		logger:         logger,
		bufferSize:     DefaultBufferSize,
		defaultCredits: DefaultCredits,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements ext.Extension.
func (b *Broker) Name() string { return "stream-broker" }

// Topics returns the topic registry.
func (b *Broker) Topics() *TopicRegistry { return b.topics }

// Subscribe creates a new subscriber on the given topics.
func (b *Broker) Subscribe(subscriberID string, topics ...string) *Subscriber {
	sub := NewSubscriber(subscriberID, b.bufferSize, b.defaultCredits)
	b.subscribers.Store(subscriberID, sub)
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
	return sub
}

// SubscribeTo adds an existing subscriber to additional topics.
func (b *Broker) SubscribeTo(subscriberID string, topics ...string) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return
	}
	sub := val.(*Subscriber) //nolint:errcheck // sync.Map always stores *Subscriber
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
}

// Unsubscribe removes a subscriber from specific topics.
func (b *Broker) Unsubscribe(subscriberID string, topics ...string) {
	for _, topic := range topics {
		b.topics.Unsubscribe(topic, subscriberID)
	}
}

// RemoveSubscriber removes a subscriber from all topics and closes it.
func (b *Broker) RemoveSubscriber(subscriberID string) {
	b.topics.UnsubscribeAll(subscriberID)
	if val, ok := b.subscribers.LoadAndDelete(subscriberID); ok {
		val.(*Subscriber).Close() //nolint:errcheck // sync.Map always stores *Subscriber
	}
}

// GetSubscriber returns a subscriber by ID.
func (b *Broker) GetSubscriber(subscriberID string) (*Subscriber, bool) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return nil, false
	}
	return val.(*Subscriber), true //nolint:errcheck // sync.Map always stores *Subscriber
}

// Stats returns broker statistics.
func (b *Broker) Stats() BrokerStats {
	count := 0
	b.subscribers.Range(func(_, _ any) bool {
		count++
		return true
	})
	return BrokerStats{
		TopicCount:      b.topics.TopicCount(),
		SubscriberCount: count,
		TotalPublished:  b.totalPublished.Load(),
	}
}

// BrokerStats contains broker metrics.
type BrokerStats struct {
	TopicCount      int   `json:"topic_count"`
	SubscriberCount int   `json:"subscriber_count"`
	TotalPublished  int64 `json:"total_published"`
}

// publish broadcasts an event to all matching topics.
func (b *Broker) publish(evt *Event) {
	topics := resolveTopics(evt)
	delivered := b.topics.Broadcast(topics, evt)
	b.totalPublished.Add(int64(delivered))
}

// publishTask builds and publishes a task lifecycle event.
func (b *Broker) publishTask(evtType EventType, t *task.Task, data TaskEventData) {
	data.TaskID = t.ID.String()
	data.TaskType = t.TypeName
	data.Status = string(t.Status)
	b.publish(&Event{
		Type:      evtType,
		Timestamp: time.Now().UTC(),
		Topic:     TaskTopic(t.ID.String()),
		Data:      mustMarshal(data),
	})
}

// mustMarshal marshals data to JSON, panicking on error (programming error).
func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic("stream: marshal event data: " + err.Error())
	}
	return data
}

// ── Type lifecycle hooks ────────────────────────────

func (b *Broker) OnTypeRegistered(_ context.Context, tt *tasktype.TaskType) error {
	b.publish(&Event{
		Type:      EventTypeRegistered,
		Timestamp: time.Now().UTC(),
		Topic:     TypeTopic(tt.Name),
		Data: mustMarshal(TypeEventData{
			TypeID:  tt.ID.String(),
			Name:    tt.Name,
			Version: tt.Version,
		}),
	})
	return nil
}

// ── Task lifecycle hooks ────────────────────────────

func (b *Broker) OnTaskCreated(_ context.Context, t *task.Task, deduplicated bool) error {
	b.publishTask(EventTaskCreated, t, TaskEventData{
		Priority:     t.Priority,
		Deduplicated: deduplicated,
	})
	return nil
}

func (b *Broker) OnTaskClaimed(_ context.Context, t *task.Task) error {
	b.publishTask(EventTaskClaimed, t, TaskEventData{
		WorkerID: t.ClaimedBy,
		Attempt:  t.Attempts,
	})
	return nil
}

func (b *Broker) OnProgressUpdated(_ context.Context, t *task.Task) error {
	b.publishTask(EventTaskProgress, t, TaskEventData{
		WorkerID: t.ClaimedBy,
		Progress: t.Progress,
	})
	return nil
}

func (b *Broker) OnTaskCompleted(_ context.Context, t *task.Task, elapsed time.Duration) error {
	b.publishTask(EventTaskCompleted, t, TaskEventData{
		WorkerID:  t.ClaimedBy,
		ElapsedMs: elapsed.Milliseconds(),
	})
	return nil
}

func (b *Broker) OnTaskRetrying(_ context.Context, t *task.Task) error {
	b.publishTask(EventTaskRetrying, t, TaskEventData{
		Attempt: t.Attempts,
		Error:   t.ErrorMessage,
	})
	return nil
}

func (b *Broker) OnTaskDeadLettered(_ context.Context, t *task.Task) error {
	b.publishTask(EventTaskDeadLettered, t, TaskEventData{
		Attempt: t.Attempts,
		Error:   t.ErrorMessage,
	})
	return nil
}

func (b *Broker) OnLeaseReclaimed(_ context.Context, t *task.Task) error {
	b.publishTask(EventLeaseReclaimed, t, TaskEventData{
		Attempt: t.Attempts,
	})
	return nil
}

func (b *Broker) OnTaskRequeued(_ context.Context, t *task.Task) error {
	b.publishTask(EventTaskRequeued, t, TaskEventData{})
	return nil
}

// ── Shutdown ────────────────────────────────────────

func (b *Broker) OnShutdown(_ context.Context) error {
	b.subscribers.Range(func(key, value any) bool {
		sub := value.(*Subscriber) //nolint:errcheck // sync.Map always stores *Subscriber
		sub.Close()
		b.subscribers.Delete(key)
		return true
	})
	b.logger.Info("stream broker shut down")
	return nil
}
