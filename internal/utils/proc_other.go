//go:build !unix

package utils

import "os/exec"

func detachFromTerminal(*exec.Cmd) {}
