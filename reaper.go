package spawntree

import (
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// Reaper is the background SIGCHLD-style worker: a goroutine that waits on exited
// children and maintains a live exited-count, sharing only that counter
// with the main thread under a mutex.
type Reaper struct {
	mu      sync.Mutex
	exited  int
	lastPid int
	stop    chan struct{}
	done    chan struct{}
}

// NewReaper starts the background wait loop.
func NewReaper() *Reaper {
	r := &Reaper{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Reaper) run() {
	defer close(r.done)
	for {
		var status unix.WaitStatus
		pid, err := unix.Wait4(-1, &status, 0, nil)
		if err != nil {
			if err == unix.ECHILD {
				return
			}
			if err == unix.EINTR {
				continue
			}
			return
		}

		r.mu.Lock()
		r.exited++
		r.lastPid = pid
		r.mu.Unlock()

		select {
		case <-r.stop:
			return
		default:
		}
	}
}

// Exited returns the number of children that have exited so far. Safe to
// call from the main thread while the reaper goroutine is running.
func (r *Reaper) Exited() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exited
}

// LastPid returns the most recently reaped pid, or 0 if none yet.
func (r *Reaper) LastPid() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastPid
}

// Stop signals the reaper to exit once its current Wait4 call returns.
// It does not interrupt an in-flight Wait4; that call unblocks on its own
// once a tracked child exits or all children are gone (ECHILD).
func (r *Reaper) Stop() {
	close(r.stop)
}

// Signal sends sig to pid.
func Signal(pid int, sig os.Signal) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return NewIOError("finding process", err)
	}
	return proc.Signal(sig)
}
