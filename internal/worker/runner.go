package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"
)

// Options configures a single child process invocation.
type Options[Res any] struct {
	// Label names the work in watchdog messages, e.g. "Build of todo-app".
	Label string
	Path  string
	Args  []string
	Dir   string
	Env   []string

	// InactivityTimeout is reset by every message from the child. Zero disables it.
	InactivityTimeout time.Duration
	// TotalTimeout bounds the whole invocation. Zero disables it.
	TotalTimeout time.Duration

	OnProgress func(Progress)
	// Failure builds the result returned when a watchdog stops the child.
	Failure func(message string) Res
}

// ProcessError reports a child that could not be started or exited without
// producing a result.
type ProcessError struct {
	Label  string
	Err    error
	Stderr string
}

func (e *ProcessError) Error() string {
	msg := fmt.Sprintf("%s: worker process failed: %v", e.Label, e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *ProcessError) Unwrap() error { return e.Err }

var errStopped = errors.New("worker stopped")

const maxStderr = 8 << 10

// Run starts a child process, sends it req and waits for its result. The
// child is always killed and reaped before Run returns.
func Run[Req, Res any](ctx context.Context, opts Options[Res], req Req) (Res, error) {
	var zero Res

	payload, err := marshal(req)
	if err != nil {
		return zero, fmt.Errorf("encoding %s request: %w", opts.Label, err)
	}

	procCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(errStopped)

	cmd := exec.CommandContext(procCtx, opts.Path, opts.Args...)
	cmd.Dir = opts.Dir
	cmd.Env = opts.Env
	cmd.WaitDelay = 2 * time.Second
	configureProcessGroup(cmd)

	var stderr bytes.Buffer
	cmd.Stderr = &limitedWriter{buf: &stderr, max: maxStderr}
	cmd.Stdin = bytes.NewReader(payload)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return zero, &ProcessError{Label: opts.Label, Err: err}
	}
	if err := cmd.Start(); err != nil {
		return zero, &ProcessError{Label: opts.Label, Err: err}
	}

	stop := func() error {
		cancel(errStopped)
		return cmd.Wait()
	}

	msgs := make(chan Message)
	readErr := make(chan error, 1)
	go func() {
		defer close(msgs)
		dec := newDecoder(stdout)
		for {
			var m Message
			if err := dec.Decode(&m); err != nil {
				readErr <- err
				return
			}
			select {
			case msgs <- m:
			case <-procCtx.Done():
				return
			}
		}
	}()

	inactivity, stopInactivity := newWatchdog(opts.InactivityTimeout)
	defer stopInactivity()
	total, stopTotal := newWatchdog(opts.TotalTimeout)
	defer stopTotal()

	for {
		select {
		case m, ok := <-msgs:
			if !ok {
				waitErr := stop()
				if cause := context.Cause(ctx); cause != nil {
					return zero, cause
				}
				err := waitErr
				if err == nil {
					select {
					case err = <-readErr:
					default:
						err = io.ErrUnexpectedEOF
					}
				}
				return zero, &ProcessError{
					Label:  opts.Label,
					Err:    fmt.Errorf("exited without a result: %w", err),
					Stderr: strings.TrimSpace(stderr.String()),
				}
			}
			inactivity.reset()

			switch m.Type {
			case TypeProgress:
				if m.Progress != nil && opts.OnProgress != nil {
					opts.OnProgress(*m.Progress)
				}
			case TypeResult:
				var res Res
				decodeErr := unmarshal(m.Payload, &res)
				stop()
				if decodeErr != nil {
					return zero, &ProcessError{Label: opts.Label, Err: fmt.Errorf("decoding result: %w", decodeErr)}
				}
				return res, nil
			}

		case <-inactivity.C():
			stop()
			return failure(opts, fmt.Sprintf("There was no output from %s for %s. Stopping the process...",
				opts.Label, formatDuration(opts.InactivityTimeout)))

		case <-total.C():
			stop()
			return failure(opts, fmt.Sprintf("%s didn't finish within %s. Stopping the process...",
				opts.Label, formatDuration(opts.TotalTimeout)))

		case <-ctx.Done():
			stop()
			return zero, context.Cause(ctx)
		}
	}
}

func failure[Res any](opts Options[Res], msg string) (Res, error) {
	if opts.Failure == nil {
		var zero Res
		return zero, &ProcessError{Label: opts.Label, Err: errors.New(msg)}
	}
	return opts.Failure(msg), nil
}

func formatDuration(d time.Duration) string {
	if d >= time.Minute && d%time.Minute == 0 {
		m := int(d / time.Minute)
		if m == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", m)
	}
	return d.String()
}

// watchdog is a timer that can be disabled; a disabled watchdog never fires.
type watchdog struct {
	t *time.Timer
	d time.Duration
}

func newWatchdog(d time.Duration) (*watchdog, func()) {
	if d <= 0 {
		return &watchdog{}, func() {}
	}
	w := &watchdog{t: time.NewTimer(d), d: d}
	return w, func() { w.t.Stop() }
}

func (w *watchdog) C() <-chan time.Time {
	if w.t == nil {
		return nil
	}
	return w.t.C
}

func (w *watchdog) reset() {
	if w.t != nil {
		w.t.Reset(w.d)
	}
}

type limitedWriter struct {
	buf *bytes.Buffer
	max int
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	if room := l.max - l.buf.Len(); room > 0 {
		if len(p) > room {
			l.buf.Write(p[:room])
		} else {
			l.buf.Write(p)
		}
	}
	return len(p), nil
}
