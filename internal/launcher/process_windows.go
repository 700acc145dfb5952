//go:build windows

package launcher

import (
	"errors"
	"os/exec"
)

func detach(*exec.Cmd) {}

func interrupt(int) error {
	return errors.New("interrupting the host is not supported on windows")
}
