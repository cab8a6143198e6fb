package local

import (
	"context"
	"testing"

	"github.com/unkn0wn-root/strata/bus"
)

func TestAppendAssignsSequence(t *testing.T) {
	ctx := context.Background()
	b := New(0)

	for i := uint64(1); i <= 3; i++ {
		seq, err := b.Append(ctx, bus.Event{Namespace: "user", Key: "k", Kind: bus.KindSet})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		if seq != i {
			t.Fatalf("seq=%d want %d", seq, i)
		}
	}
	if head, _ := b.Seq(ctx); head != 3 {
		t.Fatalf("Seq=%d want 3", head)
	}
}

func TestReadSince(t *testing.T) {
	ctx := context.Background()
	b := New(0)

	for _, k := range []string{"a", "b", "c"} {
		if _, err := b.Append(ctx, bus.Event{Namespace: "user", Key: k, Kind: bus.KindDelete}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	events, next, gapped, err := b.ReadSince(ctx, 1)
	if err != nil || gapped {
		t.Fatalf("ReadSince: gapped=%v err=%v", gapped, err)
	}
	if next != 3 || len(events) != 2 {
		t.Fatalf("next=%d events=%d", next, len(events))
	}
	if events[0].Key != "b" || events[1].Key != "c" {
		t.Fatalf("wrong events: %+v", events)
	}

	// Caught up: nothing to report, cursor unchanged.
	events, next, gapped, err = b.ReadSince(ctx, 3)
	if err != nil || gapped || len(events) != 0 || next != 3 {
		t.Fatalf("caught up: events=%d next=%d gapped=%v err=%v", len(events), next, gapped, err)
	}
}

func TestRetentionGap(t *testing.T) {
	ctx := context.Background()
	b := New(2)

	for i := 0; i < 5; i++ {
		if _, err := b.Append(ctx, bus.Event{Namespace: "user", Key: "k", Kind: bus.KindSet}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	// Cursor 1 predates the retained window (events 4..5): gap.
	_, next, gapped, err := b.ReadSince(ctx, 1)
	if err != nil {
		t.Fatalf("ReadSince: %v", err)
	}
	if !gapped || next != 5 {
		t.Fatalf("gapped=%v next=%d want gapped next=5", gapped, next)
	}

	// Cursor 3 touches the oldest retained event exactly: no gap.
	events, _, gapped, err := b.ReadSince(ctx, 3)
	if err != nil || gapped {
		t.Fatalf("gapped=%v err=%v", gapped, err)
	}
	if len(events) != 2 {
		t.Fatalf("events=%d want 2", len(events))
	}
}
