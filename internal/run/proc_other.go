//go:build !unix

package run

import (
	"os/exec"
)

func setProcessGroup(_ *exec.Cmd) {}

func terminateGroup(cmd *exec.Cmd) {
	killGroup(cmd)
}

func killGroup(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}

func exitSignal(_ *exec.ExitError) (string, bool) {
	return "", false
}
