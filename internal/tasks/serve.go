package tasks

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/x/ansi"

	"github.com/angular/web-codegen-scorer/internal/result"
	"github.com/angular/web-codegen-scorer/internal/worker"
)

var serveURLPattern = regexp.MustCompile(`https?://(?:localhost|127\.0\.0\.1|\[::1\]):\d+/?`)

// WhileServing is called with the URL of a running dev server.
type WhileServing func(ctx context.Context, url string) (*result.ServeTestingResult, error)

// ServeApp starts the serve command in dir, waits for it to print a local URL
// and calls fn while the server runs. The server is stopped before returning.
func ServeApp(ctx context.Context, dir, command string, startTimeout time.Duration, fn WhileServing) (*result.ServeTestingResult, error) {
	if startTimeout <= 0 {
		startTimeout = 2 * time.Minute
	}

	serverCtx, stop := context.WithCancel(ctx)
	defer stop()

	pr, pw := io.Pipe()
	cmd := worker.ShellGroup(serverCtx, dir, command)
	cmd.Stdout = pw
	cmd.Stderr = pw
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %q: %w", command, err)
	}

	exited := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		pw.Close()
		exited <- err
	}()

	var mu sync.Mutex
	var log strings.Builder
	urls := make(chan string, 1)
	scanned := make(chan struct{})
	go func() {
		defer close(scanned)
		sc := bufio.NewScanner(pr)
		sc.Buffer(make([]byte, 64<<10), 1<<20)
		found := false
		for sc.Scan() {
			line := ansi.Strip(sc.Text())
			mu.Lock()
			if log.Len() < maxOutput {
				log.WriteString(line)
				log.WriteByte('\n')
			}
			mu.Unlock()
			if !found {
				if u := serveURLPattern.FindString(line); u != "" {
					found = true
					urls <- u
				}
			}
		}
		io.Copy(io.Discard, pr)
	}()

	output := func() string {
		mu.Lock()
		defer mu.Unlock()
		return strings.TrimSpace(log.String())
	}
	shutdown := func() {
		stop()
		<-exited
	}

	timer := time.NewTimer(startTimeout)
	defer timer.Stop()

	select {
	case url := <-urls:
		res, err := fn(serverCtx, url)
		shutdown()
		return res, err
	case err := <-exited:
		<-scanned
		return &result.ServeTestingResult{
			ErrorMessage: fmt.Sprintf("Server exited before it was ready (%v):\n%s", err, output()),
		}, nil
	case <-timer.C:
		shutdown()
		return &result.ServeTestingResult{
			ErrorMessage: fmt.Sprintf("Server did not report a URL within %s:\n%s", startTimeout, output()),
		}, nil
	case <-ctx.Done():
		shutdown()
		return nil, context.Cause(ctx)
	}
}
