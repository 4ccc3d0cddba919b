package worker

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Handler performs the work of a child process. Progress may be called from
// any goroutine until the handler returns.
type Handler[Req, Res any] func(ctx context.Context, req Req, progress func(Progress)) (Res, error)

// Serve is the child side of Run. It reads one request from r, runs h and
// writes progress and result messages to w. When a progress message cannot
// be written the handler's context is cancelled and that error is returned.
func Serve[Req, Res any](ctx context.Context, r io.Reader, w io.Writer, h Handler[Req, Res]) error {
	var req Req
	if err := newDecoder(r).Decode(&req); err != nil {
		return fmt.Errorf("decoding request: %w", err)
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	out := newMessageWriter(w)
	var (
		mu       sync.Mutex
		writeErr error
	)
	progress := func(p Progress) {
		err := out.write(Message{Type: TypeProgress, Progress: &p})
		if err == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if writeErr == nil {
			writeErr = fmt.Errorf("writing progress: %w", err)
			cancel(writeErr)
		}
	}

	res, err := h(ctx, req, progress)
	mu.Lock()
	failed := writeErr
	mu.Unlock()
	if failed != nil {
		return failed
	}
	if err != nil {
		return err
	}

	payload, err := marshal(res)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	if err := out.write(Message{Type: TypeResult, Payload: payload}); err != nil {
		return fmt.Errorf("writing result: %w", err)
	}
	return nil
}
