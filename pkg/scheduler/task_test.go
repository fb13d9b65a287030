package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"
)

func noop(context.Context) error { return nil }

func TestTask_Validate(t *testing.T) {
	tests := []struct {
		name    string
		task    Task
		wantErr bool
	}{
		{name: "valid", task: Task{Name: "drain", Interval: time.Minute, Run: noop}},
		{name: "missing name", task: Task{Interval: time.Minute, Run: noop}, wantErr: true},
		{name: "zero interval", task: Task{Name: "drain", Run: noop}, wantErr: true},
		{name: "negative ttl", task: Task{Name: "drain", Interval: time.Minute, LockTTL: -time.Second, Run: noop}, wantErr: true},
		{name: "missing run", task: Task{Name: "drain", Interval: time.Minute}, wantErr: true},
		{name: "cron schedule", task: Task{Name: "drain", Schedule: "*/5 * * * *", Run: noop}},
		{name: "descriptor schedule", task: Task{Name: "drain", Schedule: "@every 30s", Run: noop}},
		{name: "bad schedule", task: Task{Name: "drain", Schedule: "every five minutes", Run: noop}, wantErr: true},
		{name: "interval and schedule", task: Task{Name: "drain", Interval: time.Minute, Schedule: "@hourly", Run: noop}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.task.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestTask_SlotsAreSharedAcrossInstances(t *testing.T) {
	task := Task{Name: "drain", Interval: time.Minute, Run: noop}
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	// Two instances waking at different moments inside the same minute agree on the slot.
	a := task.nextSlot(base.Add(5 * time.Second))
	b := task.nextSlot(base.Add(59 * time.Second))
	if !a.Equal(b) || !a.Equal(base.Add(time.Minute)) {
		t.Fatalf("expected shared slot %v, got %v and %v", base.Add(time.Minute), a, b)
	}
	if task.lockKey(a) != task.lockKey(b) {
		t.Fatal("expected identical lock keys for the same slot")
	}
	if task.lockKey(a) == task.lockKey(a.Add(time.Minute)) {
		t.Fatal("expected distinct lock keys for consecutive slots")
	}
}

func TestTask_CronSlotsAreUTCAndShared(t *testing.T) {
	task, err := Task{Name: "drain", Schedule: "*/15 * * * *", Run: noop}.compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	berlin := time.FixedZone("CET", 3600)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	a := task.nextSlot(base.Add(time.Minute))
	b := task.nextSlot(base.Add(14 * time.Minute).In(berlin))
	want := base.Add(15 * time.Minute)
	if !a.Equal(want) || !b.Equal(want) {
		t.Fatalf("expected shared slot %v, got %v and %v", want, a, b)
	}
	if task.lockKey(a) != task.lockKey(b) {
		t.Fatal("expected identical lock keys for the same slot")
	}
}

func TestRuntime_RegisterRejectsBadSchedule(t *testing.T) {
	r := NewRuntime(nil, nil, Config{})
	err := r.Register(Task{Name: "drain", Schedule: "61 * * * *", Run: noop})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
