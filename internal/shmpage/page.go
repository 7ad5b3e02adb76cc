// Package shmpage implements spec.md §4.2's shared-memory page: a named,
// fixed-size, memory-mappable region of N elements of type T. Grounded on
// shared_mem::SharedMemoryPage (src/shared_memory.hpp/.cpp), with the raw
// shared-memory pointers replaced by a Page value that owns its mmap. Close
// only unmaps; removing the name is a separate Unlink call.
//
// The backing object is a regular file under a base directory rather than
// a POSIX shm_open segment, but the access pattern is identical: open or
// create, mmap read-write, reinterpret the mapped bytes as a packed
// []T view via unsafe.Slice, and shm_unlink-equivalent on Unlink. This is
// the one piece of the system unix.Mmap/unix.Statfs (golang.org/x/sys, a
// direct teacher dependency already used there for flock in
// internal/lockfile/lock_unix.go) serve directly — no higher-level pack
// library offers a typed view over raw mmap'd memory.
package shmpage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/flightdeals/dealsindex/internal/dealerrs"
)

// Header is placed at the start of every page's region, grounded on
// SharedMemoryPage::Page_information{unlinked, expiration_check}. Both
// producers and consumers agree on this layout.
type Header struct {
	Unlinked        int32
	ExpirationCheck int64
}

var headerSize = int(unsafe.Sizeof(Header{}))

// Page is a view over a memory-mapped region of N elements of type T, plus
// its Header. T must be a fixed-layout ("plain old data") type — no
// pointers, strings, maps, or slices — since Elements reinterprets raw
// mapped bytes as []T.
type Page[T any] struct {
	name string
	path string
	data []byte // full mmap'd region, header + elements
	n    int    // element count requested at OpenOrCreate
	mu   sync.Mutex
}

// LowMemPercent is the free-space threshold IsLowMem checks against,
// grounded on shared_mem::LOWMEM_ERROR_PERCENT (10%). OpenOrCreate does not
// consult it and allocates regardless of free space; internal/table uses
// IsLowMem only to decide whether an unexpired page may be evicted.
const LowMemPercent = 10

// IsLowMem reports whether the filesystem backing dir has at most
// LowMemPercent free, grounded on shared_mem::isLowMem (which statvfs's
// /dev/shm; here it statfs's the configured page directory).
func IsLowMem(dir string) bool {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return false
	}
	if st.Blocks == 0 {
		return false
	}
	freePercent := 100 * st.Bavail / st.Blocks
	return freePercent <= LowMemPercent
}

// OpenOrCreate sizes the region to sizeof(Header) + elements*sizeof(T),
// page-aligned, maps it read-write, and returns a handle. Fails with
// dealerrs.KindOutOfMemory or dealerrs.KindNameCollision.
func OpenOrCreate[T any](dir, name string, elements int) (*Page[T], error) {
	var zero T
	elemSize := int(unsafe.Sizeof(zero))
	want := headerSize + elements*elemSize

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, dealerrs.Wrap(dealerrs.KindOutOfMemory, err, "create page dir %q", dir)
	}

	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, dealerrs.Wrap(dealerrs.KindOutOfMemory, err, "open page %q", name)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, dealerrs.Wrap(dealerrs.KindOutOfMemory, err, "stat page %q", name)
	}

	size := pageAlign(want)
	switch {
	case st.Size() == 0:
		if err := f.Truncate(int64(size)); err != nil {
			return nil, dealerrs.Wrap(dealerrs.KindOutOfMemory, err, "size page %q", name)
		}
	case st.Size() != int64(size):
		return nil, dealerrs.New(dealerrs.KindNameCollision,
			"page %q exists with incompatible size (want %d, have %d)", name, size, st.Size())
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, dealerrs.Wrap(dealerrs.KindOutOfMemory, err, "mmap page %q", name)
	}

	return &Page[T]{name: name, path: path, data: data, n: elements}, nil
}

func pageAlign(n int) int {
	psz := os.Getpagesize()
	if n%psz == 0 {
		return n
	}
	return (n/psz + 1) * psz
}

// Name returns the page's name.
func (p *Page[T]) Name() string { return p.name }

// Header returns the page's header.
func (p *Page[T]) Header() *Header {
	return (*Header)(unsafe.Pointer(&p.data[0]))
}

// Elements returns the packed array view over the page's element region.
// Safe for concurrent readers: writers only append past
// page_elements_available and never mutate an already-written slot (see
// spec.md §5), so a reader observing a stale slice length never tears an
// element.
func (p *Page[T]) Elements() []T {
	if p.n == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&p.data[headerSize])), p.n)
}

// MarkUnlinked sets the header's unlinked flag. Writers must check this
// before attempting to write into a page that may be mid-eviction.
func (p *Page[T]) MarkUnlinked() {
	atomic.StoreInt32(&p.Header().Unlinked, 1)
}

// IsUnlinked reports the header's unlinked flag.
func (p *Page[T]) IsUnlinked() bool {
	return atomic.LoadInt32(&p.Header().Unlinked) != 0
}

// Close unmaps the page without removing its backing object; existing
// mappings in other processes remain valid.
func (p *Page[T]) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.data == nil {
		return nil
	}
	err := unix.Munmap(p.data)
	p.data = nil
	return err
}

// Unlink removes the named page's backing object. Existing mappings
// (including this handle's, until Close) remain valid until unmapped,
// matching shm_unlink's semantics (src/shared_memory.hpp's comment on
// SharedMemoryPage::unlink).
func Unlink(dir, name string) error {
	if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("unlink page %q: %w", name, err)
	}
	return nil
}
