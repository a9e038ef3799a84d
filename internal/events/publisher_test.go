package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/JonMunkholm/repsync/internal/core"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestPublisher_PublishRun(t *testing.T) {
	w := &fakeWriter{}
	p := newPublisher(w)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	run := core.NewSyncRun("110012345678", core.ModeMerge, "ana", fixed)
	run.File("sedes.xls", core.ShapeHeadquarters).Created = 3
	run.Finish(core.StatusSucceeded, fixed)

	if err := p.PublishRun(context.Background(), run); err != nil {
		t.Fatalf("PublishRun: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "110012345678" {
		t.Errorf("key = %q", msg.Key)
	}

	var ev RunFinishedEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.EventType != EventRunFinished || ev.EventID == "" || !ev.EventTime.Equal(fixed) {
		t.Errorf("event header = %+v", ev)
	}
	if ev.Status != core.StatusSucceeded || ev.Totals.Created != 3 {
		t.Errorf("event status/totals = %s / %+v", ev.Status, ev.Totals)
	}
	if ev.Run == nil || ev.Run.ID != run.ID {
		t.Errorf("event run = %+v", ev.Run)
	}
}

func TestPublisher_WriteError(t *testing.T) {
	boom := errors.New("broker down")
	p := newPublisher(&fakeWriter{err: boom})
	run := core.NewSyncRun("1", core.ModeMerge, "ana", time.Now())
	if err := p.PublishRun(context.Background(), run); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapping %v", err, boom)
	}
}

func TestPublisher_Close(t *testing.T) {
	w := &fakeWriter{}
	if err := newPublisher(w).Close(); err != nil || !w.closed {
		t.Errorf("Close() = %v, closed = %v", err, w.closed)
	}
}
