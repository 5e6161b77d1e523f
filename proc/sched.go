package proc

import (
	"time"

	"stats"
	"vm"
)

// / Schedstats counts scheduler context switches. The D_STAT device does
// / not report it; it reports only trap.Diskstats.
var Schedstats struct {
	Switches stats.Counter_t
}

// sleepLocked parks the calling process's goroutine on chanv. Ptable.Lock
// must be held on entry; it is released while parked and reacquired
// before returning, mirroring the classic sleep(chan, lk) contract
// where the passed-in resource lock (not modeled as a real spinlock
// here; callers already hold Ptable.Lock for both purposes) stays held
// across the call from the caller's point of view.
func (p *Proc_t) sleepLocked(chanv interface{}) {
	p.Chan = chanv
	p.State = SLEEPING
	Ptable.Lock.Unlock()
	p.yielded <- struct{}{}
	<-p.runnable
	Ptable.Lock.Lock()
}

/// Sleep is the public entry point for a process voluntarily blocking
/// on a wait channel, any comparable value; a Wakeup with an equal
/// value makes it runnable again.
func (p *Proc_t) Sleep(chanv interface{}) {
	Ptable.Lock.Lock()
	p.sleepLocked(chanv)
	Ptable.Lock.Unlock()
}

// wakeupLocked marks every SLEEPING process waiting on chanv RUNNABLE.
// Ptable.Lock must be held.
func wakeupLocked(chanv interface{}) {
	for _, p := range Ptable.Procs {
		if p != nil && p.State == SLEEPING && p.Chan == chanv {
			p.State = RUNNABLE
			p.Chan = nil
		}
	}
}

/// Wakeup marks every process sleeping on chanv RUNNABLE.
func Wakeup(chanv interface{}) {
	Ptable.Lock.Lock()
	wakeupLocked(chanv)
	Ptable.Lock.Unlock()
}

/// Yield gives up the CPU for one scheduling round without sleeping:
/// the caller stays RUNNABLE and will be picked again in its turn.
func (p *Proc_t) Yield() {
	Ptable.Lock.Lock()
	p.State = RUNNABLE
	Ptable.Lock.Unlock()
	p.yielded <- struct{}{}
	<-p.runnable
}

// Scheduler runs forever, picking the next RUNNABLE process in
// round-robin order, installing its vspace, and handing it the CPU by
// signaling its runnable channel; it then blocks until that process
// yields the CPU back (by sleeping, exiting, or calling Yield). This
// is the flat-memory, goroutine-based replacement for looping over a
// core map and calling the assembly swtch primitive: each process is
// its own goroutine, parked on a channel rather than suspended by a
// context switch, and at most one is ever unblocked at a time.
func Scheduler() {
	last := 0
	for {
		Ptable.Lock.Lock()
		n := len(Ptable.Procs)
		var next *Proc_t
		for i := 0; i < n; i++ {
			idx := (last + 1 + i) % n
			p := Ptable.Procs[idx]
			if p != nil && p.State == RUNNABLE {
				next = p
				last = idx
				break
			}
		}
		if next == nil {
			Ptable.Lock.Unlock()
			continue
		}
		next.State = RUNNING
		if next.Vs != nil {
			vm.Vspaceinstall(next.Vs)
		}
		Ptable.Lock.Unlock()

		start := time.Now()
		next.runnable <- struct{}{}
		<-next.yielded
		Schedstats.Switches.Inc()
		if next.Rusage != nil {
			next.Rusage.Systadd(int(time.Since(start)))
		}
	}
}
