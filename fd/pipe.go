package fd

import (
	"sync"

	"circbuf"
	"defs"
	"fdops"
	"mem"
	"stat"
)

/// Pipe_t implements an anonymous, unidirectional byte stream backed by
/// a circular buffer. Both ends share one Pipe_t; read/write ends are
/// distinguished by which Pipeend_t wraps it.
type Pipe_t struct {
	sync.Mutex
	cb           circbuf.Circbuf_t
	openreaders  int
	openwriters  int
	readwait     chan struct{}
	writewait    chan struct{}
}

/// MkPipe allocates and initializes a pipe whose buffer is backed by
/// one physical page from m.
func MkPipe(m mem.Page_i) *Pipe_t {
	p := &Pipe_t{openreaders: 1, openwriters: 1}
	p.cb.Cb_init(mem.PGSIZE, m)
	p.readwait = make(chan struct{}, 1)
	p.writewait = make(chan struct{}, 1)
	return p
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

/// Pipeend_t is one end (read or write) of a shared pipe.
type Pipeend_t struct {
	pipe  *Pipe_t
	write bool
}

/// MkPipeend wraps p as a read or write end.
func MkPipeend(p *Pipe_t, write bool) *Pipeend_t {
	return &Pipeend_t{pipe: p, write: write}
}

/// Read blocks while the pipe is empty and a writer remains open;
/// returns 0 (EOF) once the pipe is drained and every writer has
/// closed. Returns -EINVAL on a write end.
func (pe *Pipeend_t) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	if pe.write {
		return 0, -defs.EINVAL
	}
	p := pe.pipe
	for {
		p.Lock()
		if !p.cb.Empty() {
			n, err := p.cb.Copyout(dst)
			p.Unlock()
			notify(p.writewait)
			return n, err
		}
		if p.openwriters == 0 {
			p.Unlock()
			return 0, 0
		}
		p.Unlock()
		<-p.readwait
	}
}

/// Write blocks while the pipe is full and a reader remains open;
/// returns -EPIPE once every reader has closed. Returns -EINVAL on a
/// read end.
func (pe *Pipeend_t) Write(src fdops.Userio_i) (int, defs.Err_t) {
	if !pe.write {
		return 0, -defs.EINVAL
	}
	p := pe.pipe
	wrote := 0
	for src.Remain() > 0 {
		p.Lock()
		if p.openreaders == 0 {
			p.Unlock()
			if wrote > 0 {
				return wrote, 0
			}
			return 0, -defs.EPIPE
		}
		if p.cb.Full() {
			p.Unlock()
			<-p.writewait
			continue
		}
		n, err := p.cb.Copyin(src)
		p.Unlock()
		if err != 0 {
			return wrote, err
		}
		wrote += n
		notify(p.readwait)
		if n == 0 {
			<-p.writewait
		}
	}
	return wrote, 0
}

/// Close drops this end's open flag; once both ends are closed the
/// backing page is released.
func (pe *Pipeend_t) Close() defs.Err_t {
	p := pe.pipe
	p.Lock()
	if pe.write {
		p.openwriters--
	} else {
		p.openreaders--
	}
	both := p.openreaders == 0 && p.openwriters == 0
	p.Unlock()
	notify(p.readwait)
	notify(p.writewait)
	if both {
		p.cb.Cb_release()
	}
	return 0
}

/// Reopen bumps this end's open-count, for dup/fork.
func (pe *Pipeend_t) Reopen() defs.Err_t {
	p := pe.pipe
	p.Lock()
	if pe.write {
		p.openwriters++
	} else {
		p.openreaders++
	}
	p.Unlock()
	return 0
}

// s_ififo is the stat mode bit marking a FIFO, matching the standard
// st_mode encoding userspace fstat(2) callers expect.
const s_ififo = 0x1000

/// Fstat reports a FIFO-typed stat record.
func (pe *Pipeend_t) Fstat(st *stat.Stat_t) defs.Err_t {
	st.Wmode(s_ififo)
	return 0
}
