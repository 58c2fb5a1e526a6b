package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
)

type schedulerConfig struct {
	redisURL string
	queue    string
}

func (c schedulerConfig) GetRedisURL() string       { return c.redisURL }
func (c schedulerConfig) GetRedisTLSInsecure() bool { return false }
func (c schedulerConfig) GetAsynqQueueName() string { return c.queue }
func (c schedulerConfig) GetAsynqConcurrency() int  { return 1 }

func TestNewClient_RequiresRedisURL(t *testing.T) {
	if _, err := NewClient(schedulerConfig{}); err == nil {
		t.Fatal("expected an error without a redis url")
	}
}

func TestScheduleContactDeadline_EnqueuesScheduledTask(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewClient(schedulerConfig{
		redisURL: "redis://" + mr.Addr(),
		queue:    "leadrouter",
	})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	defer client.Close()

	leadID := uuid.New()
	dueAt := time.Now().Add(24 * time.Hour)
	if err := client.ScheduleContactDeadline(context.Background(), leadID, dueAt); err != nil {
		t.Fatalf("ScheduleContactDeadline returned error: %v", err)
	}

	// asynq keeps future tasks in the queue's scheduled set until ProcessAt.
	members, err := mr.ZMembers("asynq:{leadrouter}:scheduled")
	if err != nil {
		t.Fatalf("reading scheduled set: %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("expected 1 scheduled task, got %d", len(members))
	}
}

func TestContactDeadlinePayload_RoundTrip(t *testing.T) {
	leadID := uuid.New()
	task, err := NewContactDeadlineTask(ContactDeadlinePayload{LeadID: leadID.String()})
	if err != nil {
		t.Fatalf("NewContactDeadlineTask returned error: %v", err)
	}
	if task.Type() != TaskContactDeadline {
		t.Fatalf("unexpected task type %q", task.Type())
	}

	payload, err := ParseContactDeadlinePayload(task)
	if err != nil {
		t.Fatalf("ParseContactDeadlinePayload returned error: %v", err)
	}
	if payload.LeadID != leadID.String() {
		t.Fatalf("expected lead %s, got %s", leadID, payload.LeadID)
	}
}
