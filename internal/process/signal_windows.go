//go:build windows

package process

import (
	"errors"
	"os"
	"syscall"
)

// Windows has no job-control signals; only termination is supported.
const (
	sigStop syscall.Signal = 0x13
	sigCont syscall.Signal = 0x12
)

var errNoJobControl = errors.New("stop/continue is not supported on windows")

func signalGroup(pid int, sig syscall.Signal) error {
	if sig != syscall.SIGKILL {
		return errNoJobControl
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}

func stopSignal() syscall.Signal     { return sigStop }
func continueSignal() syscall.Signal { return sigCont }
func killSignal() syscall.Signal     { return syscall.SIGKILL }
