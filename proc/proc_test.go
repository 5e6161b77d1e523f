package proc

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stretchr/testify/require"

	"defs"
	"fd"
	"limits"
	"mem"
)

var memOnce sync.Once

func initMem() {
	memOnce.Do(func() {
		mem.Phys_init(256)
	})
}

// mkUnscheduledProc creates a fresh process without any Scheduler
// goroutine running, for tests that only need Fork/Wait/Kill's direct
// bookkeeping and never drive a process through an actual CPU hand-off.
func mkUnscheduledProc() *Proc_t {
	initMem()
	img := make([]uint8, 16)
	rootfd := &fd.Fd_t{}
	return Userinit(img, 0, rootfd)
}

var schedOnce sync.Once

// startScheduler wipes the process table and starts the single shared
// Scheduler goroutine for the rest of the test binary, discarding
// whatever RUNNABLE-but-undrained processes earlier, scheduler-less
// tests may have left behind (those tests never had a Scheduler running
// to act on them, so nothing was ever blocked waiting to deliver to
// them).
func startScheduler() {
	schedOnce.Do(func() {
		initMem()
		Ptable.Lock.Lock()
		MkProctable(limits.Syslimit.Nproc)
		Ptable.Lock.Unlock()
		go Scheduler()
	})
}

// mkRawProc creates a fresh RUNNABLE process under the running
// scheduler. The caller must eventually consume <-p.runnable and call
// Exit, or the shared Scheduler goroutine will block forever trying to
// deliver its next hand-off.
func mkRawProc() *Proc_t {
	startScheduler()
	img := make([]uint8, 16)
	rootfd := &fd.Fd_t{}
	return Userinit(img, 0, rootfd)
}

func TestWaitWithNoChildrenReturnsECHILD(t *testing.T) {
	p := mkUnscheduledProc()
	_, _, err := p.Wait()
	require.Equal(t, -defs.ECHILD, err)
}

func TestKillUnknownPidReturnsESRCH(t *testing.T) {
	err := Kill(999999)
	require.Equal(t, -defs.ESRCH, err)
}

func TestKillSleepingChildMakesItRunnable(t *testing.T) {
	parent := mkUnscheduledProc()
	child, err := parent.Fork()
	require.Equal(t, defs.Err_t(0), err)

	Ptable.Lock.Lock()
	child.State = SLEEPING
	child.Chan = child
	Ptable.Lock.Unlock()

	require.Equal(t, defs.Err_t(0), Kill(child.Pid))

	Ptable.Lock.Lock()
	st := child.State
	killed := child.Killed
	Ptable.Lock.Unlock()
	require.Equal(t, RUNNABLE, st)
	require.True(t, killed)
}

// TestForkExitWaitRoundtrip drives a forked child through the scheduler
// to completion and confirms the parent's Wait observes its pid and
// exit status.
func TestForkExitWaitRoundtrip(t *testing.T) {
	parent := mkRawProc()
	child, err := parent.Fork()
	require.Equal(t, defs.Err_t(0), err)

	go func() {
		<-child.runnable
		child.Exit(7)
	}()

	type result struct {
		pid, status int
		err         defs.Err_t
	}
	resc := make(chan result, 1)
	go func() {
		<-parent.runnable
		pid, status, werr := parent.Wait()
		resc <- result{pid, status, werr}
		parent.Exit(0)
	}()

	select {
	case r := <-resc:
		require.Equal(t, defs.Err_t(0), r.err)
		require.Equal(t, child.Pid, r.pid)
		require.Equal(t, 7, r.status)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for fork/exit/wait roundtrip")
	}
}

// TestSchedulerRunsExactlyOneProcessAtATime forks several children and
// has each record whether it ever observed another process concurrently
// RUNNING, the scheduler's core invariant.
func TestSchedulerRunsExactlyOneProcessAtATime(t *testing.T) {
	const nchildren = 5
	parent := mkRawProc()

	children := make([]*Proc_t, nchildren)
	for i := range children {
		c, err := parent.Fork()
		require.Equal(t, defs.Err_t(0), err)
		children[i] = c
	}

	// Only drain the parent's own hand-off once every child exists, so
	// Fork's unlocked read of parent.Vs can never race Exit's Uvmfree.
	go func() {
		<-parent.runnable
		parent.Exit(0)
	}()

	var running int32
	var g errgroup.Group
	for _, c := range children {
		c := c
		g.Go(func() error {
			<-c.runnable
			n := atomic.AddInt32(&running, 1)
			defer atomic.AddInt32(&running, -1)
			if n > 1 {
				return fmt.Errorf("observed %d processes running concurrently", n)
			}
			time.Sleep(time.Millisecond)
			go c.Exit(0)
			return nil
		})
	}

	require.NoError(t, g.Wait())
}
