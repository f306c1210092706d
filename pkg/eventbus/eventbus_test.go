package eventbus

import (
	"context"
	"testing"
	"time"
)

func TestRaiseCoalesces(t *testing.T) {
	b := New(0)
	b.Raise(NewBurnBlock)
	b.Raise(NewBurnBlock)
	b.Raise(NewHostBlock)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, wakeID := b.Wait(ctx)
	if !got.Has(NewBurnBlock) || !got.Has(NewHostBlock) {
		t.Fatalf("expected both flags coalesced, got %v", got)
	}
	if wakeID == "" {
		t.Fatal("expected a non-empty wake id")
	}
}

func TestWaitDrainsPending(t *testing.T) {
	b := New(0)
	b.Raise(Stop)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	first, firstWakeID := b.Wait(ctx)
	if !first.Has(Stop) {
		t.Fatalf("expected STOP on first wait, got %v", first)
	}
	if firstWakeID == "" {
		t.Fatal("expected a non-empty wake id")
	}

	ctx2, cancel2 := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel2()
	second, secondWakeID := b.Wait(ctx2)
	if second != 0 {
		t.Fatalf("expected no pending signal after drain, got %v", second)
	}
	if secondWakeID == firstWakeID {
		t.Fatal("expected a fresh wake id on each call")
	}
}

func TestPublishAttachmentDropsOnOverflow(t *testing.T) {
	b := New(1)
	ev := AttachmentEvent{Index: 1}
	if !b.PublishAttachment(ev) {
		t.Fatal("expected first publish to succeed")
	}
	if b.PublishAttachment(ev) {
		t.Fatal("expected second publish to be dropped when channel is full")
	}
}

func TestPublishAttachmentDisabled(t *testing.T) {
	b := New(0)
	if b.PublishAttachment(AttachmentEvent{}) {
		t.Fatal("expected publish to report undelivered when attachments disabled")
	}
}
