//go:build !linux

package scheduler

import (
	"runtime"

	"github.com/charmbracelet/log"
)

func lockThread(l *log.Logger, priority int) {
	runtime.LockOSThread()
	if priority > 0 {
		l.Warnf("Real-time priority is only supported on Linux")
	}
}
