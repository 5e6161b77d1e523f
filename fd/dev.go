package fd

import (
	"defs"
	"fdops"
	"stat"
)

/// Devops_i is one device driver's read/write pair, registered under a
/// device id in Devtable.
type Devops_i interface {
	Read(dst fdops.Userio_i) (int, defs.Err_t)
	Write(src fdops.Userio_i) (int, defs.Err_t)
}

/// Devtable is the devid-indexed dispatch table a device-special inode's
/// Read/Write calls are routed through, per defs.D_FIRST..defs.D_LAST.
var Devtable [defs.D_LAST + 1]Devops_i

/// Dev_t is an open descriptor over a device special file, dispatching
/// through Devtable by devid.
type Dev_t struct {
	Devid int
}

/// MkDev wraps devid as an open device descriptor.
func MkDev(devid int) *Dev_t {
	return &Dev_t{Devid: devid}
}

func (d *Dev_t) driver() (Devops_i, defs.Err_t) {
	if d.Devid < defs.D_FIRST || d.Devid > defs.D_LAST || Devtable[d.Devid] == nil {
		return nil, -defs.ENXIO
	}
	return Devtable[d.Devid], 0
}

func (d *Dev_t) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	drv, err := d.driver()
	if err != 0 {
		return 0, err
	}
	return drv.Read(dst)
}

func (d *Dev_t) Write(src fdops.Userio_i) (int, defs.Err_t) {
	drv, err := d.driver()
	if err != 0 {
		return 0, err
	}
	return drv.Write(src)
}

func (d *Dev_t) Close() defs.Err_t  { return 0 }
func (d *Dev_t) Reopen() defs.Err_t { return 0 }

func (d *Dev_t) Fstat(st *stat.Stat_t) defs.Err_t {
	st.Wmode(1 << 13) // S_IFCHR
	st.Wrdev(uint(d.Devid))
	return 0
}
