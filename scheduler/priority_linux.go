//go:build linux

package scheduler

import (
	"runtime"

	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"
)

// lockThread pins the loop to its OS thread and, when priority is set,
// moves that thread to SCHED_FIFO. Failing to raise the priority is not
// fatal; it usually means CAP_SYS_NICE is missing.
func lockThread(l *log.Logger, priority int) {
	runtime.LockOSThread()
	if priority <= 0 {
		return
	}
	attr := unix.SchedAttr{
		Size:     unix.SizeofSchedAttr,
		Policy:   unix.SCHED_FIFO,
		Priority: uint32(priority),
	}
	if err := unix.SchedSetAttr(0, &attr, 0); err != nil {
		l.Warnf("Could not set real-time priority %d: %v", priority, err)
		return
	}
	l.Debugf("Running at SCHED_FIFO priority %d", priority)
}
