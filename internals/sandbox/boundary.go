package sandbox

import (
	"context"
	"sync"
)

// ChannelBoundary is an in-process boundary: a request queue read by the
// worker and a response queue read by the executor. Nothing else is shared.
type ChannelBoundary struct {
	requests  chan Request
	responses chan Response

	closeOnce sync.Once
	done      chan struct{}
}

func NewChannelBoundary(buffer int) *ChannelBoundary {
	return &ChannelBoundary{
		requests:  make(chan Request, buffer),
		responses: make(chan Response, buffer),
		done:      make(chan struct{}),
	}
}

func (b *ChannelBoundary) Send(ctx context.Context, req Request) error {
	select {
	case <-b.done:
		return ErrBoundaryClosed
	default:
	}

	select {
	case b.requests <- req:
		return nil
	case <-b.done:
		return ErrBoundaryClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *ChannelBoundary) Reply(ctx context.Context, resp Response) error {
	select {
	case b.responses <- resp:
		return nil
	case <-b.done:
		return ErrBoundaryClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Requests is the worker's side of the boundary.
func (b *ChannelBoundary) Requests() <-chan Request { return b.requests }

// Responses is the executor's side of the boundary.
func (b *ChannelBoundary) Responses() <-chan Response { return b.responses }

func (b *ChannelBoundary) Close() {
	b.closeOnce.Do(func() { close(b.done) })
}
