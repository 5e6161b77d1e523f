package proc

// Sleeplock_t wraps a spinlock with an owner pid, giving callers a lock
// that may be held across blocking I/O (unlike Spinlock_t, which must
// never be held while a process sleeps or yields).
type Sleeplock_t struct {
	Name  string
	lk    Spinlock_t
	held  bool
	owner int
	wake  chan struct{}
}

/// MkSleeplock constructs an unheld sleep lock.
func MkSleeplock(name string) *Sleeplock_t {
	return &Sleeplock_t{Name: name, wake: make(chan struct{}, 1)}
}

/// Acquire blocks the caller (pid) until the lock is free, then takes it.
func (s *Sleeplock_t) Acquire(pid int) {
	for {
		s.lk.Lock()
		if !s.held {
			s.held = true
			s.owner = pid
			s.lk.Unlock()
			return
		}
		s.lk.Unlock()
		<-s.wake
	}
}

/// Release frees the lock and wakes one waiter, if any.
func (s *Sleeplock_t) Release() {
	s.lk.Lock()
	s.held = false
	s.owner = 0
	s.lk.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

/// Holder reports the pid currently holding the lock, or 0.
func (s *Sleeplock_t) Holder() int {
	s.lk.Lock()
	defer s.lk.Unlock()
	return s.owner
}
