//go:build unix

package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestRunLeavesNoChild(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "pid")
	opts := helperOptions(t, "silent")
	opts.Env = append(opts.Env, "WCS_WORKER_PIDFILE="+pidFile)
	opts.InactivityTimeout = time.Second

	_, err := Run(context.Background(), opts, echoRequest{})
	require.NoError(t, err)

	data, err := os.ReadFile(pidFile)
	require.NoError(t, err)
	pid, err := strconv.Atoi(string(data))
	require.NoError(t, err)

	err = unix.Kill(pid, 0)
	require.True(t, errors.Is(err, unix.ESRCH), "child %d still exists: %v", pid, err)
}
