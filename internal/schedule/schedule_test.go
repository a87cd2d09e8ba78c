// internal/schedule/schedule_test.go
package schedule

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

type fakeRunner struct {
	starts atomic.Int32
	stops  atomic.Int32
}

func (f *fakeRunner) Start(ctx context.Context) error { f.starts.Add(1); return nil }
func (f *fakeRunner) Stop()                           { f.stops.Add(1) }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestSchedulerOpensWindow(t *testing.T) {
	runner := &fakeRunner{}
	sched := New("* * * * * *", "", runner, testLogger())
	if err := sched.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer sched.Stop()

	deadline := time.After(2500 * time.Millisecond)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			t.Fatalf("start edge did not fire within 2.5s, starts=%d", runner.starts.Load())
		case <-ticker.C:
			if runner.starts.Load() > 0 {
				return
			}
		}
	}
}

func TestSchedulerClosesWindow(t *testing.T) {
	runner := &fakeRunner{}
	sched := New("", "* * * * * *", runner, testLogger())
	if err := sched.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer sched.Stop()

	deadline := time.After(2500 * time.Millisecond)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			t.Fatalf("stop edge did not fire within 2.5s, stops=%d", runner.stops.Load())
		case <-ticker.C:
			if runner.stops.Load() > 0 {
				if runner.starts.Load() != 0 {
					t.Errorf("start edge should not fire, starts=%d", runner.starts.Load())
				}
				return
			}
		}
	}
}

func TestSchedulerEmptySpecsDoNothing(t *testing.T) {
	runner := &fakeRunner{}
	sched := New("", "", runner, testLogger())
	if err := sched.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	sched.Stop()

	if runner.starts.Load() != 0 || runner.stops.Load() != 0 {
		t.Error("no edges should fire without schedules")
	}
}

func TestSchedulerRejectsInvalidSpec(t *testing.T) {
	sched := New("not a cron line", "", &fakeRunner{}, testLogger())
	if err := sched.Start(context.Background()); err == nil {
		t.Error("invalid start schedule should be rejected")
	}

	sched = New("", "also not cron", &fakeRunner{}, testLogger())
	if err := sched.Start(context.Background()); err == nil {
		t.Error("invalid stop schedule should be rejected")
	}
}
