package governance

import (
	"context"
	"testing"
	"time"
)

func TestMemoryScheduler_PopDueRespectsFireAt(t *testing.T) {
	s := NewMemoryScheduler()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	timers := []Timer{
		{Kind: TimerRecordingStart, CallID: "a", FireAt: now.Add(-time.Second)},
		{Kind: TimerMaxDuration, CallID: "b", FireAt: now},
		{Kind: TimerMaxDuration, CallID: "c", FireAt: now.Add(time.Minute)},
	}
	for _, tm := range timers {
		if err := s.Schedule(context.Background(), tm); err != nil {
			t.Fatalf("Schedule: %v", err)
		}
	}

	due, err := s.PopDue(context.Background(), now, 100)
	if err != nil {
		t.Fatalf("PopDue: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("due = %d, want 2", len(due))
	}
	if due[0].CallID != "a" || due[1].CallID != "b" {
		t.Fatalf("due order = %v", due)
	}

	// Popped timers are gone; the future one remains.
	if pending := s.Pending(); len(pending) != 1 || pending[0].CallID != "c" {
		t.Fatalf("pending = %v, want only c", pending)
	}

	again, err := s.PopDue(context.Background(), now, 100)
	if err != nil {
		t.Fatalf("PopDue second: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("second pop returned %d timers, want 0", len(again))
	}
}

func TestMemoryScheduler_PopDueHonorsLimit(t *testing.T) {
	s := NewMemoryScheduler()
	now := time.Now()
	for i := 0; i < 5; i++ {
		if err := s.Schedule(context.Background(), Timer{Kind: TimerMaxDuration, CallID: "c", FireAt: now}); err != nil {
			t.Fatalf("Schedule: %v", err)
		}
	}
	due, err := s.PopDue(context.Background(), now, 3)
	if err != nil {
		t.Fatalf("PopDue: %v", err)
	}
	if len(due) != 3 {
		t.Fatalf("due = %d, want limit 3", len(due))
	}
	if len(s.Pending()) != 2 {
		t.Fatalf("pending = %d, want 2", len(s.Pending()))
	}
}
