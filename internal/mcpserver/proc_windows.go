//go:build windows

package mcpserver

import (
	"os"
	"os/exec"
	"syscall"
)

func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}

// Windows has no SIGTERM delivery; the coordinator falls back to Kill when
// this returns an error.
func signalGroup(p *os.Process, sig os.Signal) error {
	return p.Signal(sig)
}

func killGroup(p *os.Process) error {
	return p.Kill()
}
