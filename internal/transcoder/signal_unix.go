//go:build linux || darwin

package transcoder

import "syscall"

// terminateSignal returns SIGTERM: the device is a Linux edge box per
// spec §1, but darwin is kept too so `go test` runs on a developer's Mac.
func terminateSignal() syscall.Signal {
	return syscall.SIGTERM
}
