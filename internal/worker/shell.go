package worker

import (
	"context"
	"os/exec"
	"time"
)

// Shell returns a command running line through sh in dir. It stays in the
// caller's process group, so a worker child killed by its parent takes the
// command down with it.
func Shell(ctx context.Context, dir, line string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "sh", "-c", line)
	cmd.Dir = dir
	cmd.WaitDelay = 2 * time.Second
	return cmd
}

// ShellGroup is like Shell but starts a new process group which is killed as
// a whole when ctx ends. Use it for long lived commands such as dev servers.
func ShellGroup(ctx context.Context, dir, line string) *exec.Cmd {
	cmd := Shell(ctx, dir, line)
	configureProcessGroup(cmd)
	return cmd
}
