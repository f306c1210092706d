// Copyright 2025 Certen Protocol
//
// Package eventbus implements the coordinator's inbound signal bus: a
// level-triggered, coalescing bit-flag word delivered to the event loop
// over a bounded-wait doorbell channel (§4.9, §6 "Inbound signals").
// Pending signals merge before each iteration instead of queuing, so a
// burst of NEW_BURN_BLOCK notifications collapses to one wakeup.
package eventbus

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
)

// Signal is a bit-flag word of pending wakeup reasons.
type Signal uint32

const (
	NewHostBlock Signal = 1 << iota
	NewBurnBlock
	Stop
)

func (s Signal) Has(flag Signal) bool { return s&flag != 0 }

func (s Signal) String() string {
	if s == 0 {
		return "none"
	}
	out := ""
	if s.Has(NewHostBlock) {
		out += "NEW_HOST_BLOCK|"
	}
	if s.Has(NewBurnBlock) {
		out += "NEW_BURN_BLOCK|"
	}
	if s.Has(Stop) {
		out += "STOP|"
	}
	if len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out
}

// Bus coalesces signals raised by producers (the burnchain poller, the
// host-block downloader, RPC-triggered shutdown) into a single pending
// word the event loop drains once per wake.
type Bus struct {
	pending atomic.Uint32
	wake    chan struct{}

	attachments chan AttachmentEvent
}

// AttachmentEvent is forwarded from the host-chain store to whatever
// subsystem renders attachments, over a bounded channel with
// drop-on-overflow semantics (§5 Shared resource policy).
type AttachmentEvent struct {
	HostBlockHash [32]byte
	Index         uint32
	ContentHash   [32]byte
}

// New returns a Bus with a bounded attachment channel of the given
// capacity (0 disables attachment forwarding).
func New(attachmentBufferSize int) *Bus {
	b := &Bus{wake: make(chan struct{}, 1)}
	if attachmentBufferSize > 0 {
		b.attachments = make(chan AttachmentEvent, attachmentBufferSize)
	}
	return b
}

// Raise ORs flag into the pending word and nudges the event loop
// awake. Safe to call from any goroutine.
func (b *Bus) Raise(flag Signal) {
	for {
		old := b.pending.Load()
		next := old | uint32(flag)
		if b.pending.CompareAndSwap(old, next) {
			break
		}
	}
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Wait blocks until a signal is pending or ctx is cancelled, then
// atomically drains and returns the pending word. It has no timeout of
// its own: an idle caller wakes only on a signal or on cancellation of
// ctx. The returned wake id is a fresh uuid identifying
// this wake for log correlation across the iteration it triggers — two
// log lines sharing a wake id came from the same coalesced signal.
func (b *Bus) Wait(ctx context.Context) (Signal, string) {
	select {
	case <-b.wake:
	case <-ctx.Done():
	}
	return Signal(b.pending.Swap(0)), uuid.NewString()
}

// PublishAttachment delivers ev over the bounded attachment channel,
// dropping it (and returning false) if the channel is full rather than
// blocking the publisher.
func (b *Bus) PublishAttachment(ev AttachmentEvent) (delivered bool) {
	if b.attachments == nil {
		return false
	}
	select {
	case b.attachments <- ev:
		return true
	default:
		return false
	}
}

// Attachments returns the channel consumers should range over to
// receive forwarded attachment events.
func (b *Bus) Attachments() <-chan AttachmentEvent { return b.attachments }
