//go:build unix

package utils

import (
	"os/exec"
	"syscall"
)

// detachFromTerminal moves cmd into its own process group so terminal
// signals sent to veil's group do not reach it.
func detachFromTerminal(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
