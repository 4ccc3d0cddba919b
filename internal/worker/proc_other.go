//go:build !unix

package worker

import "os/exec"

func configureProcessGroup(cmd *exec.Cmd) {}
