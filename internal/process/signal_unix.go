//go:build !windows

package process

import "syscall"

// signalGroup delivers sig to the worker's process group. The worker is the
// group leader, so -pid addresses it together with any children it spawned.
func signalGroup(pid int, sig syscall.Signal) error {
	return syscall.Kill(-pid, sig)
}

func stopSignal() syscall.Signal     { return syscall.SIGSTOP }
func continueSignal() syscall.Signal { return syscall.SIGCONT }
func killSignal() syscall.Signal     { return syscall.SIGKILL }
