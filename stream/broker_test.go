package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/taskgrid/taskgrid/id"
	"github.com/taskgrid/taskgrid/task"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestBrokerSubscribeAndPublish(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())

	sub := b.Subscribe("sub-1", TopicTasks)

	evt := &Event{
		Type:      EventTaskCreated,
		Timestamp: time.Now().UTC(),
		Topic:     TaskTopic("task-123"),
		Data:      json.RawMessage(`{"task_id":"task-123"}`),
	}
	b.publish(evt)

	// Event should arrive on the subscriber channel.
	select {
	case received := <-sub.C():
		if received.Type != EventTaskCreated {
			t.Errorf("Type = %q, want %q", received.Type, EventTaskCreated)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBrokerMultipleTopics(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())

	// Subscribe to firehose — should get everything.
	firehose := b.Subscribe("firehose-sub", TopicFirehose)

	// Subscribe to just tasks.
	tasksSub := b.Subscribe("tasks-sub", TopicTasks)

	evt := &Event{
		Type:      EventTaskCompleted,
		Timestamp: time.Now().UTC(),
		Topic:     TaskTopic("task-456"),
		Data:      json.RawMessage(`{}`),
	}
	b.publish(evt)

	// Both should receive the event.
	for _, sub := range []*Subscriber{firehose, tasksSub} {
		select {
		case <-sub.C():
			// ok
		case <-time.After(time.Second):
			t.Fatalf("subscriber %s timed out", sub.ID())
		}
	}
}

func TestBrokerEntityTopicIsolation(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())

	// Subscribe to one specific task.
	sub := b.Subscribe("task-sub", TaskTopic("task-abc"))

	evt := &Event{
		Type:      EventTaskProgress,
		Timestamp: time.Now().UTC(),
		Topic:     TaskTopic("task-abc"),
		Data:      json.RawMessage(`{"progress":50}`),
	}
	b.publish(evt)

	select {
	case received := <-sub.C():
		if received.Type != EventTaskProgress {
			t.Errorf("Type = %q, want %q", received.Type, EventTaskProgress)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for task event")
	}

	// Event for a different task should NOT arrive.
	evt2 := &Event{
		Type:      EventTaskClaimed,
		Timestamp: time.Now().UTC(),
		Topic:     TaskTopic("task-other"),
		Data:      json.RawMessage(`{}`),
	}
	b.publish(evt2)

	select {
	case <-sub.C():
		t.Fatal("should not receive event for different task")
	case <-time.After(50 * time.Millisecond):
		// ok — no event
	}
}

func TestBrokerLifecycleHooks(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())
	sub := b.Subscribe("hook-sub", TopicFirehose)

	tk := &task.Task{
		ID:        id.NewTaskID(),
		TypeName:  "email.send",
		Status:    task.StatusClaimed,
		ClaimedBy: "wkr-1",
		Attempts:  1,
	}

	if err := b.OnTaskClaimed(context.Background(), tk); err != nil {
		t.Fatalf("OnTaskClaimed() error = %v", err)
	}

	select {
	case evt := <-sub.C():
		if evt.Type != EventTaskClaimed {
			t.Errorf("Type = %q, want %q", evt.Type, EventTaskClaimed)
		}
		var data TaskEventData
		if err := json.Unmarshal(evt.Data, &data); err != nil {
			t.Fatalf("unmarshal event data: %v", err)
		}
		if data.TaskID != tk.ID.String() || data.WorkerID != "wkr-1" || data.Attempt != 1 {
			t.Errorf("event data = %+v", data)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for hook event")
	}
}

func TestBrokerUnsubscribe(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())

	sub := b.Subscribe("sub-rm", TopicFirehose)

	b.RemoveSubscriber("sub-rm")

	evt := &Event{
		Type:      EventTaskCreated,
		Timestamp: time.Now().UTC(),
		Topic:     TaskTopic("t1"),
		Data:      json.RawMessage(`{}`),
	}
	b.publish(evt)

	// Channel should be closed.
	select {
	case _, ok := <-sub.C():
		if ok {
			t.Fatal("channel should be closed after RemoveSubscriber")
		}
	case <-time.After(100 * time.Millisecond):
		// ok
	}
}

func TestBrokerStats(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())

	_ = b.Subscribe("s1", TopicTasks)
	_ = b.Subscribe("s2", TopicTypes, TopicFirehose)

	stats := b.Stats()
	if stats.SubscriberCount != 2 {
		t.Errorf("SubscriberCount = %d, want 2", stats.SubscriberCount)
	}
	if stats.TopicCount < 2 {
		t.Errorf("TopicCount = %d, want >= 2", stats.TopicCount)
	}
}

func TestSubscriberCredits(t *testing.T) {
	t.Parallel()

	sub := NewSubscriber("credit-sub", 10, 2)

	evt := &Event{Type: EventTaskCreated, Timestamp: time.Now().UTC(), Data: json.RawMessage(`{}`)}

	// Should accept 2 events (initial credits).
	if !sub.send(evt) {
		t.Fatal("first send should succeed")
	}
	if !sub.send(evt) {
		t.Fatal("second send should succeed")
	}

	// Third should fail — no credits.
	if sub.send(evt) {
		t.Fatal("third send should fail (no credits)")
	}

	// Replenish credits.
	sub.AddCredits(5)
	if sub.Credits() != 5 {
		t.Errorf("Credits = %d, want 5", sub.Credits())
	}

	if !sub.send(evt) {
		t.Fatal("send after credit replenishment should succeed")
	}
}

func TestSubscriberFilter(t *testing.T) {
	t.Parallel()

	sub := NewSubscriber("filter-sub", 10, 100)
	sub.SetFilter(func(e *Event) bool {
		return e.Type == EventTaskDeadLettered
	})

	// Should be rejected by filter without consuming a credit.
	if sub.send(&Event{Type: EventTaskCompleted, Timestamp: time.Now().UTC(), Data: json.RawMessage(`{}`)}) {
		t.Fatal("completed event should be filtered out")
	}
	if sub.Credits() != 100 {
		t.Errorf("Credits = %d, want 100 (filter mismatch must not consume)", sub.Credits())
	}

	// Should pass filter.
	if !sub.send(&Event{Type: EventTaskDeadLettered, Timestamp: time.Now().UTC(), Data: json.RawMessage(`{}`)}) {
		t.Fatal("dead-letter event should pass filter")
	}
}

func TestTopicValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		topic string
		valid bool
	}{
		{TopicTasks, true},
		{TopicTypes, true},
		{TopicFirehose, true},
		{"task:task-123", true},
		{"type:email.send", true},
		{"invalid", false},
		{"unknown:entity", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			err := ValidateTopic(tt.topic)
			if tt.valid && err != nil {
				t.Errorf("ValidateTopic(%q) returned error: %v", tt.topic, err)
			}
			if !tt.valid && err == nil {
				t.Errorf("ValidateTopic(%q) should return error", tt.topic)
			}
		})
	}
}

func TestTopicRegistry(t *testing.T) {
	t.Parallel()

	tr := NewTopicRegistry()

	sub1 := NewSubscriber("s1", 10, 100)
	sub2 := NewSubscriber("s2", 10, 100)

	tr.Subscribe("topic-a", sub1)
	tr.Subscribe("topic-a", sub2)
	tr.Subscribe("topic-b", sub1)

	if tr.TopicCount() != 2 {
		t.Errorf("TopicCount = %d, want 2", tr.TopicCount())
	}
	if tr.SubscriberCount("topic-a") != 2 {
		t.Errorf("SubscriberCount(topic-a) = %d, want 2", tr.SubscriberCount("topic-a"))
	}

	tr.Unsubscribe("topic-a", "s2")
	if tr.SubscriberCount("topic-a") != 1 {
		t.Errorf("SubscriberCount(topic-a) = %d, want 1", tr.SubscriberCount("topic-a"))
	}

	tr.UnsubscribeAll("s1")
	if tr.TopicCount() != 0 {
		t.Errorf("TopicCount after UnsubscribeAll = %d, want 0", tr.TopicCount())
	}
}

func TestBroadcastDeduplication(t *testing.T) {
	t.Parallel()

	tr := NewTopicRegistry()
	sub := NewSubscriber("dedup-sub", 10, 100)

	tr.Subscribe("topic-x", sub)
	tr.Subscribe("topic-y", sub)

	evt := &Event{Type: EventTaskCreated, Timestamp: time.Now().UTC(), Data: json.RawMessage(`{}`)}

	delivered := tr.Broadcast([]string{"topic-x", "topic-y"}, evt)
	if delivered != 1 {
		t.Errorf("Broadcast delivered to %d subscribers, want 1 (deduplicated)", delivered)
	}
}

func TestResolveTopics(t *testing.T) {
	t.Parallel()

	tests := []struct {
		evt      *Event
		expected []string
	}{
		{
			evt:      &Event{Type: EventTaskCreated, Topic: "task:t1"},
			expected: []string{TopicFirehose, TopicTasks, "task:t1"},
		},
		{
			evt:      &Event{Type: EventTypeRegistered, Topic: "type:email.send"},
			expected: []string{TopicFirehose, TopicTypes, "type:email.send"},
		},
		{
			evt:      &Event{Type: EventTaskRequeued, Topic: ""},
			expected: []string{TopicFirehose, TopicTasks},
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.evt.Type), func(t *testing.T) {
			topics := resolveTopics(tt.evt)
			if len(topics) != len(tt.expected) {
				t.Errorf("got %d topics, want %d: %v", len(topics), len(tt.expected), topics)
				return
			}
			for i, topic := range topics {
				if topic != tt.expected[i] {
					t.Errorf("topic[%d] = %q, want %q", i, topic, tt.expected[i])
				}
			}
		})
	}
}
