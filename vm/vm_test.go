package vm

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"golang.org/x/sync/semaphore"

	"github.com/stretchr/testify/require"

	"defs"
	"mem"
)

func init() {
	mem.Phys_init(256)
}

func TestSbrkZeroReturnsUnchangedBreak(t *testing.T) {
	vs := Vspaceinit()
	vs.Vspaceinitcode(PGSIZE)
	before := vs.Brk()
	got, err := vs.Sbrk(0)
	require.Equal(t, defs.Err_t(0), err)
	require.Equal(t, before, got)
	require.Equal(t, before, vs.Brk())
}

func TestSbrkGrowsForwardFromCodeEnd(t *testing.T) {
	vs := Vspaceinit()
	vs.Vspaceinitcode(PGSIZE)
	codeEnd := vs.Code.end()

	old, err := vs.Sbrk(PGSIZE)
	require.Equal(t, defs.Err_t(0), err)
	require.Equal(t, codeEnd, old)
	require.Equal(t, codeEnd+uintptr(PGSIZE), vs.Brk())

	old2, err := vs.Sbrk(1)
	require.Equal(t, defs.Err_t(0), err)
	require.Equal(t, codeEnd+uintptr(PGSIZE), old2)
	require.Equal(t, codeEnd+uintptr(PGSIZE*2), vs.Brk())
}

func TestHeapgrowIsIdempotentForSameSize(t *testing.T) {
	vs := Vspaceinit()
	vs.Vspaceinitcode(PGSIZE)
	require.Equal(t, defs.Err_t(0), vs.Heapgrow(PGSIZE))
	n := vs.Heap.npages()
	require.Equal(t, defs.Err_t(0), vs.Heapgrow(PGSIZE))
	require.Equal(t, n, vs.Heap.npages())
}

func TestVspaceloadcodeRoundtrip(t *testing.T) {
	vs := Vspaceinit()
	img := []uint8("movq $0, %rax")
	vs.Vspaceinitcode(len(img))
	entry, err := vs.Vspaceloadcode(img, 4)
	require.Equal(t, defs.Err_t(0), err)
	require.Equal(t, vs.Code.Base+4, entry)

	got, rerr := vs.Userdmap8r(int(vs.Code.Base))
	require.Equal(t, defs.Err_t(0), rerr)
	require.Equal(t, img, got[:len(img)])
}

func TestPgfaultDemandZerosNeverMappedPage(t *testing.T) {
	vs := Vspaceinit()
	vs.Vspaceinitcode(PGSIZE)
	require.Equal(t, defs.Err_t(0), vs.Heapgrow(PGSIZE))

	err := vs.Pgfault(vs.Heap.Base, EC_USER)
	require.Equal(t, defs.Err_t(0), err)
	require.True(t, vs.Heap.pages[0].present)
}

func TestPgfaultGrowsStackDownward(t *testing.T) {
	vs := Vspaceinit()
	top := uintptr(0x800000)
	vs.Vspaceinitstack(top)
	origBase := vs.Stack.Base

	fa := origBase - uintptr(PGSIZE)
	err := vs.Pgfault(fa, EC_USER|EC_WRITE)
	require.Equal(t, defs.Err_t(0), err)
	require.True(t, vs.Stack.Base < origBase)
	require.True(t, vs.Stack.contains(fa))
}

func TestPgfaultOnReadonlyCodeWriteIsEfault(t *testing.T) {
	vs := Vspaceinit()
	vs.Vspaceinitcode(PGSIZE)
	require.Equal(t, defs.Err_t(0), vs.Pgfault(vs.Code.Base, EC_USER))
	err := vs.Pgfault(vs.Code.Base, EC_USER|EC_WRITE)
	require.Equal(t, -defs.EFAULT, err)
}

func TestVspacecopyCowSharesFramesReadOnly(t *testing.T) {
	src := Vspaceinit()
	src.Vspaceinitcode(PGSIZE)
	require.Equal(t, defs.Err_t(0), src.Pgfault(src.Code.Base, EC_USER))
	pa := src.Code.pages[0].pa

	dst := Vspaceinit()
	require.Equal(t, defs.Err_t(0), Vspacecopy_cow(dst, src))

	require.True(t, src.Code.pages[0].cow)
	require.True(t, dst.Code.pages[0].cow)
	require.Equal(t, pa, dst.Code.pages[0].pa)
	require.Equal(t, 2, mem.Physmem.Refcnt(pa))
}

func TestResolvecowCopiesOnSharedWriteFault(t *testing.T) {
	src := Vspaceinit()
	src.Vspaceinitcode(PGSIZE)
	require.Equal(t, defs.Err_t(0), src.Pgfault(src.Code.Base, EC_USER))
	src.Code.Writable = true

	dst := Vspaceinit()
	require.Equal(t, defs.Err_t(0), Vspacecopy_cow(dst, src))
	origPa := src.Code.pages[0].pa

	err := dst.Pgfault(dst.Code.Base, EC_USER|EC_WRITE)
	require.Equal(t, defs.Err_t(0), err)
	require.False(t, dst.Code.pages[0].cow)
	require.True(t, dst.Code.pages[0].pa != origPa)
	require.Equal(t, 1, mem.Physmem.Refcnt(origPa))
}

// TestConcurrentHeapFaultsUnderSemaphore drives many independent
// vspaces' heap page faults at once, throttled through a weighted
// semaphore so the run exercises the core allocator's locking under
// real contention without an unbounded goroutine fan-out.
func TestConcurrentHeapFaultsUnderSemaphore(t *testing.T) {
	const nvs = 32
	const maxConcurrent = 4

	sem := semaphore.NewWeighted(maxConcurrent)
	ctx := context.Background()
	errs := make(chan error, nvs)
	var wg sync.WaitGroup

	for i := 0; i < nvs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				errs <- err
				return
			}
			defer sem.Release(1)

			vs := Vspaceinit()
			vs.Vspaceinitcode(PGSIZE)
			if err := vs.Heapgrow(PGSIZE); err != 0 {
				errs <- fmt.Errorf("vspace %d: heapgrow: %v", i, err)
				return
			}
			if err := vs.Pgfault(vs.Heap.Base, EC_USER); err != 0 {
				errs <- fmt.Errorf("vspace %d: pgfault: %v", i, err)
				return
			}
			if !vs.Heap.pages[0].present {
				errs <- fmt.Errorf("vspace %d: heap page not present after fault", i)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestUvmfreeClearsAllPresentPages(t *testing.T) {
	vs := Vspaceinit()
	vs.Vspaceinitcode(PGSIZE)
	require.Equal(t, defs.Err_t(0), vs.Pgfault(vs.Code.Base, EC_USER))
	pa := vs.Code.pages[0].pa

	vs.Uvmfree()
	require.False(t, vs.Code.pages[0].present)
	require.Equal(t, 0, mem.Physmem.Refcnt(pa))
}
