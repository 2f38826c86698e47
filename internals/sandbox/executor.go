package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const DefaultTimeout = 10 * time.Second

type Config struct {
	// Timeout bounds each call. Zero means DefaultTimeout; negative disables it.
	Timeout time.Duration

	Logger *slog.Logger
}

type Executor struct {
	boundary Boundary
	timeout  time.Duration
	log      *slog.Logger
	newID    func() string

	mu      sync.Mutex
	pending map[string]chan Response
}

func NewExecutor(boundary Boundary, cfg Config) *Executor {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Executor{
		boundary: boundary,
		timeout:  timeout,
		log:      log,
		newID:    uuid.NewString,
		pending:  make(map[string]chan Response),
	}
}

// Run sends code across the boundary and waits for the response carrying the
// same id.
func (e *Executor) Run(ctx context.Context, code string) (string, error) {
	id := e.newID()
	ch := make(chan Response, 1)

	e.mu.Lock()
	e.pending[id] = ch
	e.mu.Unlock()
	defer e.forget(id)

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	if err := e.boundary.Send(ctx, Request{ID: id, Code: code}); err != nil {
		return "", fmt.Errorf("send to sandbox: %w", e.classify(err))
	}

	select {
	case <-ctx.Done():
		e.log.Warn("sandbox call abandoned", "id", id, "err", ctx.Err())
		return "", e.classify(ctx.Err())
	case resp := <-ch:
		if resp.Error != "" {
			return "", &ScriptError{Message: resp.Error}
		}
		return resp.Result, nil
	}
}

// Deliver resolves the pending call with resp.ID. It reports false, and
// drops the response, when no such call is waiting.
func (e *Executor) Deliver(resp Response) bool {
	e.mu.Lock()
	ch, ok := e.pending[resp.ID]
	if ok {
		delete(e.pending, resp.ID)
	}
	e.mu.Unlock()

	if !ok {
		e.log.Debug("dropping sandbox response with no pending call", "id", resp.ID)
		return false
	}
	ch <- resp
	return true
}

// Listen delivers responses until ctx is done or the channel is closed.
func (e *Executor) Listen(ctx context.Context, responses <-chan Response) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case resp, ok := <-responses:
			if !ok {
				return ErrBoundaryClosed
			}
			e.Deliver(resp)
		}
	}
}

// Pending reports how many calls are still awaiting a response.
func (e *Executor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

func (e *Executor) forget(id string) {
	e.mu.Lock()
	delete(e.pending, id)
	e.mu.Unlock()
}

func (e *Executor) classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrTimeout, e.timeout)
	}
	return err
}
