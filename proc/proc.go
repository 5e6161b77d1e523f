package proc

import (
	"accnt"
	"defs"
	"fd"
	"limits"
	"vm"
)

/// State_t enumerates a process's position in its lifecycle.
type State_t int

const (
	UNUSED State_t = iota
	EMBRYO
	RUNNABLE
	RUNNING
	SLEEPING
	ZOMBIE
)

func (s State_t) String() string {
	switch s {
	case UNUSED:
		return "UNUSED"
	case EMBRYO:
		return "EMBRYO"
	case RUNNABLE:
		return "RUNNABLE"
	case RUNNING:
		return "RUNNING"
	case SLEEPING:
		return "SLEEPING"
	case ZOMBIE:
		return "ZOMBIE"
	}
	panic("bad state")
}

/// Proc_t is one process table slot. Every field is protected by
/// Ptable.Lock except Vs, which carries its own pmap lock (vspaces are
/// copied or torn down only while the owning proc is not RUNNING).
type Proc_t struct {
	Pid    int
	Parent *Proc_t
	State  State_t
	Killed bool
	Name   string

	Vs    *vm.Vspace_t
	Cwd   *fd.Cwd_t
	Ofile []*fd.Fd_t // limits.Syslimit.Nofile entries

	Chan   interface{} // sleep channel; valid while State == SLEEPING
	Status int         // exit status, valid while State == ZOMBIE

	Rusage *accnt.Accnt_t

	runnable chan struct{} // scheduler -> proc: you may run
	yielded  chan struct{} // proc -> scheduler: I stopped running
}

/// Proctable_t is the single global process table and its lock.
type Proctable_t struct {
	Lock    Spinlock_t
	Procs   []*Proc_t
	nextpid int
}

/// Ptable is the system-wide process table.
var Ptable = &Proctable_t{}

/// Initproc is the first process, adopted as the new parent of any
/// process whose parent exits first.
var Initproc *Proc_t

/// MkProctable allocates the process table, sized to nproc slots.
func MkProctable(nproc int) {
	Ptable.Procs = make([]*Proc_t, nproc)
	Ptable.nextpid = 1
}

func init() {
	MkProctable(limits.Syslimit.Nproc)
}

// allocproc finds an UNUSED slot, assigns it a pid, and moves it to
// EMBRYO. Ptable.Lock must be held.
func allocproc() *Proc_t {
	for i, p := range Ptable.Procs {
		if p == nil {
			p = &Proc_t{}
			Ptable.Procs[i] = p
		}
		if p.State != UNUSED {
			continue
		}
		p.Pid = Ptable.nextpid
		Ptable.nextpid++
		p.State = EMBRYO
		p.Killed = false
		p.Rusage = &accnt.Accnt_t{}
		p.Ofile = make([]*fd.Fd_t, limits.Syslimit.Nofile)
		p.runnable = make(chan struct{})
		p.yielded = make(chan struct{}, 1)
		return p
	}
	return nil
}

/// Userinit creates the first process: a fresh vspace with the given
/// code image mapped in, and a root working directory.
func Userinit(img []uint8, entryoff int, rootfd *fd.Fd_t) *Proc_t {
	Ptable.Lock.Lock()
	p := allocproc()
	if p == nil {
		Ptable.Lock.Unlock()
		panic("userinit: no proc slots")
	}
	p.Name = "init"
	p.Vs = vm.Vspaceinit()
	p.Vs.Vspaceinitcode(len(img))
	p.Vs.Vspaceinitstack(0x1000000)
	if _, err := p.Vs.Vspaceloadcode(img, entryoff); err != 0 {
		panic("userinit: bad code image")
	}
	p.Cwd = fd.MkRootCwd(rootfd)
	p.State = RUNNABLE
	Initproc = p
	Ptable.Lock.Unlock()
	return p
}

/// Fork duplicates parent's vspace via copy-on-write, shares its open
/// files, and returns the new process in RUNNABLE state with the
/// caller as its parent.
func (parent *Proc_t) Fork() (*Proc_t, defs.Err_t) {
	Ptable.Lock.Lock()
	child := allocproc()
	if child == nil {
		Ptable.Lock.Unlock()
		return nil, -defs.ENOMEM
	}
	Ptable.Lock.Unlock()

	child.Vs = vm.Vspaceinit()
	if err := vm.Vspacecopy_cow(child.Vs, parent.Vs); err != 0 {
		Ptable.Lock.Lock()
		child.State = UNUSED
		Ptable.Lock.Unlock()
		return nil, err
	}
	child.Name = parent.Name
	child.Cwd = parent.Cwd
	for i, f := range parent.Ofile {
		if f == nil {
			continue
		}
		nf, err := fd.Copyfd(f)
		if err != 0 {
			continue
		}
		child.Ofile[i] = nf
	}

	Ptable.Lock.Lock()
	child.Parent = parent
	child.State = RUNNABLE
	Ptable.Lock.Unlock()
	return child, 0
}

/// Exit closes every open file, reparents children to Initproc, wakes
/// a parent blocked in Wait, and becomes a ZOMBIE. It never returns to
/// the caller: the scheduler reclaims the goroutine's CPU slot and the
/// slot is freed once the parent calls Wait.
func (p *Proc_t) Exit(status int) {
	for i, f := range p.Ofile {
		if f == nil {
			continue
		}
		fd.Close_panic(f)
		p.Ofile[i] = nil
	}
	p.Vs.Uvmfree()

	Ptable.Lock.Lock()
	for _, c := range Ptable.Procs {
		if c != nil && c.Parent == p {
			c.Parent = Initproc
			if c.State == ZOMBIE {
				wakeupLocked(Initproc)
			}
		}
	}
	p.Status = status
	p.State = ZOMBIE
	wakeupLocked(p.Parent)
	Ptable.Lock.Unlock()

	p.yielded <- struct{}{}
	<-p.runnable // never sent again; blocks forever until freeproc reclaims the slot
}

/// Wait blocks until a child becomes a ZOMBIE, reaps it via freeproc,
/// and returns its pid and exit status. Returns -ECHILD if the caller
/// has no children at all.
func (p *Proc_t) Wait() (int, int, defs.Err_t) {
	for {
		Ptable.Lock.Lock()
		havekids := false
		for _, c := range Ptable.Procs {
			if c == nil || c.Parent != p {
				continue
			}
			havekids = true
			if c.State == ZOMBIE {
				pid := c.Pid
				status := c.Status
				freeproc(c)
				Ptable.Lock.Unlock()
				return pid, status, 0
			}
		}
		if !havekids || p.Killed {
			Ptable.Lock.Unlock()
			return 0, 0, -defs.ECHILD
		}
		p.sleepLocked(p)
		Ptable.Lock.Unlock()
	}
}

// freeproc frees c's kernel-visible resources and returns its slot to
// UNUSED. Ptable.Lock must be held.
func freeproc(c *Proc_t) {
	c.Vs = nil
	c.Cwd = nil
	c.Parent = nil
	c.Chan = nil
	c.State = UNUSED
}

/// Kill marks the target process (by pid) killed and, if it is
/// sleeping, makes it runnable so it observes the flag promptly.
/// Actual termination happens at the target's next trap return.
func Kill(pid int) defs.Err_t {
	Ptable.Lock.Lock()
	defer Ptable.Lock.Unlock()
	for _, p := range Ptable.Procs {
		if p == nil || p.Pid != pid {
			continue
		}
		p.Killed = true
		if p.State == SLEEPING {
			p.State = RUNNABLE
		}
		return 0
	}
	return -defs.ESRCH
}
