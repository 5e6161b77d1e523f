package fd

import (
	"os"
	"sync"

	"defs"
	"fdops"
	"fs"
	"stats"
)

// Console_t is the D_CONSOLE driver: writes go to the host's standard
// output, the way a real console driver would push bytes to a serial
// port or VGA buffer. There is no keyboard backing Read here (no
// hardware input source exists in this harness), so a read always
// reports EOF rather than blocking forever.
type Console_t struct{}

func (Console_t) Read(dst fdops.Userio_i) (int, defs.Err_t) { return 0, 0 }

func (Console_t) Write(src fdops.Userio_i) (int, defs.Err_t) {
	buf := make([]uint8, src.Remain())
	n, err := src.Uioread(buf)
	if err != 0 {
		return n, err
	}
	if _, werr := os.Stdout.Write(buf[:n]); werr != nil {
		return n, -defs.EIO
	}
	return n, 0
}

// Devnull_t is the D_DEVNULL driver: reads always report EOF, writes
// always succeed and discard their input.
type Devnull_t struct{}

func (Devnull_t) Read(dst fdops.Userio_i) (int, defs.Err_t) { return 0, 0 }

func (Devnull_t) Write(src fdops.Userio_i) (int, defs.Err_t) {
	n := src.Remain()
	buf := make([]uint8, n)
	got, err := src.Uioread(buf)
	return got, err
}

// Statdev_t is the D_STAT driver: the first read of a Statdev_t returns
// one formatted snapshot of the counters in st, and every later read of
// the same instance, through any open, returns EOF.
type Statdev_t struct {
	sync.Mutex
	st   interface{}
	read bool
}

// MkStatdev wraps st (a struct of stats.Counter_t/Cycles_t fields) as a
// readable device.
func MkStatdev(st interface{}) *Statdev_t {
	return &Statdev_t{st: st}
}

func (d *Statdev_t) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	d.Lock()
	defer d.Unlock()
	if d.read {
		return 0, 0
	}
	d.read = true
	s := stats.Stats2String(d.st)
	return dst.Uiowrite([]byte(s))
}

func (d *Statdev_t) Write(src fdops.Userio_i) (int, defs.Err_t) {
	return 0, -defs.EINVAL
}

// Rawdisk_t is the D_RAWDISK driver, test-only: each Read/Write
// transfers exactly one block through the buffer cache, bypassing the log, at
// a cursor that advances by one block per call, the way a sequential
// tape device would.
type Rawdisk_t struct {
	sync.Mutex
	fs  *fs.Fs_t
	blk int
}

// MkRawdisk wraps fsys's disk as a sequential raw-block device starting
// at block start.
func MkRawdisk(fsys *fs.Fs_t, start int) *Rawdisk_t {
	return &Rawdisk_t{fs: fsys, blk: start}
}

func (d *Rawdisk_t) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	d.Lock()
	defer d.Unlock()
	data, err := d.fs.RawBlockRead(d.blk)
	if err != 0 {
		return 0, err
	}
	d.blk++
	return dst.Uiowrite(data)
}

func (d *Rawdisk_t) Write(src fdops.Userio_i) (int, defs.Err_t) {
	d.Lock()
	defer d.Unlock()
	buf := make([]uint8, fs.BSIZE)
	n, err := src.Uioread(buf)
	if err != 0 {
		return n, err
	}
	if err := d.fs.RawBlockWrite(d.blk, buf); err != 0 {
		return 0, err
	}
	d.blk++
	return n, 0
}
