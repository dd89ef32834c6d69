//go:build linux

package barrier

import (
	"context"
	"errors"
	"math"
	"os"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	// shared object layout, all little 32-bit words
	offMagic    = 0
	offParties  = 4
	offArrived  = 8
	offReleased = 12
	objectSize  = 16

	magic = 0x52544742 // "RTGB"

	futexWait = 0
	futexWake = 1

	// waiters re-check ctx at this interval; release itself is a direct wake
	pollInterval = 50 * time.Millisecond
)

// Shared is a cross-process barrier mapped from a named shared object.
type Shared struct {
	name string
	path string
	mem  []byte
}

// Create allocates a new named barrier for exactly parties arrivals.
func Create(dir, name string, parties int) (*Shared, error) {
	if parties < 1 {
		return nil, &InitError{Name: name, Err: ErrInvalidParties}
	}

	path := Path(dir, name)
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, &InitError{Name: name, Err: ErrAlreadyExists}
		}
		return nil, &InitError{Name: name, Err: err}
	}
	defer file.Close()

	if err := file.Truncate(objectSize); err != nil {
		os.Remove(path)
		return nil, &InitError{Name: name, Err: err}
	}

	b, err := mapObject(file, name, path)
	if err != nil {
		os.Remove(path)
		return nil, err
	}

	atomic.StoreUint32(b.word(offParties), uint32(parties))
	atomic.StoreUint32(b.word(offArrived), 0)
	atomic.StoreUint32(b.word(offReleased), 0)
	atomic.StoreUint32(b.word(offMagic), magic)

	return b, nil
}

// Open maps an existing named barrier.
func Open(dir, name string) (*Shared, error) {
	path := Path(dir, name)
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, &InitError{Name: name, Err: err}
	}
	defer file.Close()

	b, err := mapObject(file, name, path)
	if err != nil {
		return nil, err
	}

	if atomic.LoadUint32(b.word(offMagic)) != magic {
		b.Close()
		return nil, &InitError{Name: name, Err: ErrNotInitialized}
	}
	return b, nil
}

// Remove unlinks the named barrier. Mapped instances stay usable.
func Remove(dir, name string) error {
	err := os.Remove(Path(dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func mapObject(file *os.File, name, path string) (*Shared, error) {
	info, err := file.Stat()
	if err != nil {
		return nil, &InitError{Name: name, Err: err}
	}
	if info.Size() < objectSize {
		return nil, &InitError{Name: name, Err: ErrNotInitialized}
	}

	mem, err := unix.Mmap(int(file.Fd()), 0, objectSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, &InitError{Name: name, Err: err}
	}
	return &Shared{name: name, path: path, mem: mem}, nil
}

// Name returns the barrier name.
func (b *Shared) Name() string {
	return b.name
}

// Parties returns the number of arrivals the barrier waits for.
func (b *Shared) Parties() int {
	return int(atomic.LoadUint32(b.word(offParties)))
}

// Arrived returns the number of parties that reached the barrier so far.
func (b *Shared) Arrived() int {
	return int(atomic.LoadUint32(b.word(offArrived)))
}

// Released reports whether the barrier has fired.
func (b *Shared) Released() bool {
	return atomic.LoadUint32(b.word(offReleased)) == 1
}

// Await blocks the calling thread until the last party arrives.
func (b *Shared) Await(ctx context.Context) error {
	released := b.word(offReleased)
	if atomic.LoadUint32(released) == 1 {
		return ErrAlreadyReleased
	}

	n := atomic.AddUint32(b.word(offArrived), 1)
	parties := atomic.LoadUint32(b.word(offParties))
	if n > parties {
		return ErrAlreadyReleased
	}

	if n == parties {
		atomic.StoreUint32(released, 1)
		return futex(released, futexWake, math.MaxInt32, nil)
	}

	ts := unix.NsecToTimespec(int64(pollInterval))
	for atomic.LoadUint32(released) == 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := futex(released, futexWait, 0, &ts); err != nil {
			return err
		}
	}
	return nil
}

// Close unmaps the barrier. It does not remove the name.
func (b *Shared) Close() error {
	if b.mem == nil {
		return nil
	}
	err := unix.Munmap(b.mem)
	b.mem = nil
	return err
}

func (b *Shared) word(off int) *uint32 {
	return (*uint32)(unsafe.Pointer(&b.mem[off]))
}

// futex issues a shared (non-private) futex operation on addr.
func futex(addr *uint32, op int, val uint32, ts *unix.Timespec) error {
	_, _, errno := unix.Syscall6(unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		uintptr(op),
		uintptr(val),
		uintptr(unsafe.Pointer(ts)),
		0, 0)

	switch errno {
	case 0, unix.EAGAIN, unix.EINTR, unix.ETIMEDOUT:
		return nil
	default:
		return errno
	}
}
