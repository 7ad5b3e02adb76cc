// Package table implements spec.md §4.3's Table<T>: a fixed-capacity,
// append-only, time-expiring record store over named shared-memory pages,
// grounded on shared_mem::Table<ELEMENT_T> (src/shared_memory.hpp). Every
// registry mutation (page allocation, eviction) is serialized by a
// internal/namedlock.Lock; scans are lock-free snapshots over the
// registry, matching spec.md §5's concurrency model.
package table

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
	"unsafe"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/semaphore"

	"github.com/flightdeals/dealsindex/internal/dealerrs"
	"github.com/flightdeals/dealsindex/internal/namedlock"
	"github.com/flightdeals/dealsindex/internal/shmpage"
)

// Registry sizing and sweep constants, grounded on shared_mem.hpp's
// MEMPAGE_* defines.
const (
	pageNameLen           = 20
	CheckExpiredInterval  = 5 * time.Second
	RemoveExpiredDelay    = 60 * time.Second
	MaxEvictionsPerSweep  = 5
)

// RegistryEntry is a fixed-layout row of the table's registry page,
// grounded on shared_mem::TablePageIndexElement{expire_at,
// page_elements_available, page_name[20]}.
type RegistryEntry struct {
	ExpireAt          int64
	ElementsAvailable uint32
	PageName          [pageNameLen]byte
}

func (r *RegistryEntry) name() string {
	i := 0
	for i < len(r.PageName) && r.PageName[i] != 0 {
		i++
	}
	return string(r.PageName[:i])
}

func (r *RegistryEntry) setName(name string) {
	for i := range r.PageName {
		r.PageName[i] = 0
	}
	copy(r.PageName[:], name)
}

// Result is what AddRecord returns on success, grounded on
// shared_mem::ElementPointer{page_name, index, size}.
type Result struct {
	PageName string
	Index    uint32
	Count    uint32
}

// Stats is a snapshot of a table's occupancy.
type Stats struct {
	Name                string
	Pages               int
	MaxPages            int
	ElementsPerPage      int
	RecordExpireSeconds int64
	OldestExpireAt      int64
	NewestExpireAt      int64
}

// Table is an ordered list of shared-memory pages plus a registry page,
// as spec.md §3 describes.
type Table[T any] struct {
	name                string
	dir                 string
	maxPages            int
	elementsPerPage     int
	recordExpireSeconds int64
	clock               clock.Clock
	logger              *slog.Logger

	lock *namedlock.Lock
	sem  *semaphore.Weighted

	registry *shmpage.Page[RegistryEntry]

	mu          sync.Mutex // guards the local page cache only
	openPages   map[string]*shmpage.Page[T]
	lastSweepAt int64
}

// Config groups Table construction parameters.
type Config struct {
	Dir                 string
	MaxPages            int
	ElementsPerPage     int
	RecordExpireSeconds int64
	Clock               clock.Clock
	Logger              *slog.Logger
}

// New creates or attaches a table named name, with a registry page named
// "<name>_index" holding MaxPages slots, grounded on
// Table::Table(table_name, table_max_pages, max_elements_in_page,
// record_expire_seconds).
func New[T any](name string, cfg Config) (*Table[T], error) {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	lock, err := namedlock.Open(cfg.Dir, name)
	if err != nil {
		return nil, fmt.Errorf("table %q: %w", name, err)
	}
	registry, err := shmpage.OpenOrCreate[RegistryEntry](cfg.Dir, name+"_index", cfg.MaxPages)
	if err != nil {
		return nil, fmt.Errorf("table %q registry: %w", name, err)
	}

	return &Table[T]{
		name:                name,
		dir:                 cfg.Dir,
		maxPages:            cfg.MaxPages,
		elementsPerPage:     cfg.ElementsPerPage,
		recordExpireSeconds: cfg.RecordExpireSeconds,
		clock:               cfg.Clock,
		logger:              cfg.Logger,
		lock:                lock,
		sem:                 semaphore.NewWeighted(int64(cfg.MaxPages)),
		registry:            registry,
		openPages:           make(map[string]*shmpage.Page[T]),
	}, nil
}

func (t *Table[T]) now() int64 { return t.clock.Now().Unix() }

// registryEntries returns the live (non-zero-name) registry rows.
func (t *Table[T]) registryEntries() []*RegistryEntry {
	els := t.registry.Elements()
	out := make([]*RegistryEntry, 0, len(els))
	for i := range els {
		if els[i].name() != "" {
			out = append(out, &els[i])
		}
	}
	return out
}

// AddRecord appends count elements starting at *values, acquiring the
// table lock for page selection and bump, grounded on
// Table::addRecord. lifetime <= 0 uses the table's default expiry.
func (t *Table[T]) AddRecord(ctx context.Context, values []T, lifetime time.Duration) (Result, error) {
	if len(values) == 0 {
		return Result{}, dealerrs.New(dealerrs.KindBadParameter, "add_record: empty batch")
	}
	if len(values) > t.elementsPerPage {
		return Result{}, dealerrs.New(dealerrs.KindRecordTooLarge,
			"record of %d elements exceeds elements_per_page=%d", len(values), t.elementsPerPage)
	}
	if lifetime <= 0 {
		lifetime = time.Duration(t.recordExpireSeconds) * time.Second
	}

	var result Result
	err := t.lock.WithLock(ctx, func() error {
		t.sweepLocked()

		entry, page, err := t.tailPageForWriteLocked(ctx, len(values), lifetime)
		if err != nil {
			return err
		}

		written := t.elementsPerPage - int(entry.ElementsAvailable)
		dst := page.Elements()[written : written+len(values)]
		copy(dst, values)
		entry.ElementsAvailable -= uint32(len(values))

		result = Result{PageName: entry.name(), Index: uint32(written), Count: uint32(len(values))}
		return nil
	})
	return result, err
}

// tailPageForWriteLocked finds the current tail page with at least count
// free slots, allocating a new one (evicting if necessary) when none
// exists. Must be called with the table lock held.
func (t *Table[T]) tailPageForWriteLocked(ctx context.Context, count int, lifetime time.Duration) (*RegistryEntry, *shmpage.Page[T], error) {
	entries := t.registryEntries()
	if len(entries) > 0 {
		tail := entries[len(entries)-1]
		if int(tail.ElementsAvailable) >= count && !t.isExpiredLocked(tail) {
			page, err := t.attachLocked(tail.name())
			if err != nil {
				return nil, nil, err
			}
			return tail, page, nil
		}
	}

	return t.allocatePageLocked(ctx, len(entries), lifetime)
}

func (t *Table[T]) isExpiredLocked(e *RegistryEntry) bool {
	return t.now() > e.ExpireAt
}

// allocatePageLocked creates a fresh page and registry entry, evicting the
// oldest page first if the registry is already at MaxPages, grounded on
// spec.md §4.3's eviction policy.
func (t *Table[T]) allocatePageLocked(ctx context.Context, liveCount int, lifetime time.Duration) (*RegistryEntry, *shmpage.Page[T], error) {
	if liveCount >= t.maxPages {
		if err := t.evictOldestLocked(); err != nil {
			return nil, nil, err
		}
	}

	if err := t.sem.Acquire(ctx, 1); err != nil {
		return nil, nil, dealerrs.Wrap(dealerrs.KindInternal, err, "acquire page-allocation semaphore")
	}
	defer t.sem.Release(1)

	name := fmt.Sprintf("%s_p%d", t.name, t.now())
	for i := 0; ; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s_%d", name, i)
		}
		if !t.nameInUseLocked(candidate) {
			name = candidate
			break
		}
	}

	page, err := shmpage.OpenOrCreate[T](t.dir, name, t.elementsPerPage)
	if err != nil {
		// NameCollision/OutOfMemory: retry once before failing the request.
		page, err = shmpage.OpenOrCreate[T](t.dir, name, t.elementsPerPage)
	}
	if err != nil {
		return nil, nil, err
	}
	expireAt := t.now() + int64(lifetime/time.Second)
	page.Header().ExpirationCheck = t.now()

	slot, err := t.freeRegistrySlotLocked()
	if err != nil {
		page.Close()
		return nil, nil, err
	}
	slot.setName(name)
	slot.ExpireAt = expireAt
	slot.ElementsAvailable = uint32(t.elementsPerPage)

	t.mu.Lock()
	t.openPages[name] = page
	t.mu.Unlock()

	return slot, page, nil
}

func (t *Table[T]) nameInUseLocked(name string) bool {
	for _, e := range t.registryEntries() {
		if e.name() == name {
			return true
		}
	}
	return false
}

// freeRegistrySlotLocked returns the first zero-named registry slot,
// failing with StoreFull if none exists (the caller is expected to have
// evicted first when the registry is at capacity).
func (t *Table[T]) freeRegistrySlotLocked() (*RegistryEntry, error) {
	els := t.registry.Elements()
	for i := range els {
		if els[i].name() == "" {
			return &els[i], nil
		}
	}
	return nil, dealerrs.New(dealerrs.KindStoreFull, "table %q: no free registry slot", t.name)
}

// evictOldestLocked unlinks the page with the smallest ExpireAt. If that
// page has not yet expired, it is still evicted under low-memory
// pressure (tracing a warning); otherwise StoreFull is returned.
func (t *Table[T]) evictOldestLocked() error {
	entries := t.registryEntries()
	if len(entries) == 0 {
		return dealerrs.New(dealerrs.KindStoreFull, "table %q: full with no pages to evict", t.name)
	}

	oldest := entries[0]
	for _, e := range entries[1:] {
		if e.ExpireAt < oldest.ExpireAt {
			oldest = e
		}
	}

	expired := t.isExpiredLocked(oldest)
	lowMem := shmpage.IsLowMem(t.dir)
	if !expired && !lowMem {
		return dealerrs.New(dealerrs.KindStoreFull, "table %q: full, oldest page not yet expired", t.name)
	}
	if !expired && lowMem {
		t.logger.Warn("evicting unexpired page under low-memory pressure",
			"table", t.name, "page", oldest.name(), "expire_at", oldest.ExpireAt)
	}

	return t.unlinkEntryLocked(oldest)
}

func (t *Table[T]) unlinkEntryLocked(e *RegistryEntry) error {
	name := e.name()

	t.mu.Lock()
	if page, ok := t.openPages[name]; ok {
		page.MarkUnlinked()
		page.Close()
		delete(t.openPages, name)
	}
	t.mu.Unlock()

	if err := shmpage.Unlink(t.dir, name); err != nil {
		return err
	}
	e.setName("")
	e.ExpireAt = 0
	e.ElementsAvailable = 0
	return nil
}

// sweepLocked unlinks up to MaxEvictionsPerSweep pages whose ExpireAt plus
// RemoveExpiredDelay grace has passed, at most once per CheckExpiredInterval,
// grounded on spec.md §4.3's "expiry sweep runs as a side effect of
// add_record to avoid a background thread dependency."
func (t *Table[T]) sweepLocked() {
	now := t.now()
	if now-t.lastSweepAt < int64(CheckExpiredInterval/time.Second) {
		return
	}
	t.lastSweepAt = now

	grace := int64(RemoveExpiredDelay / time.Second)
	evicted := 0
	for _, e := range t.registryEntries() {
		if evicted >= MaxEvictionsPerSweep {
			break
		}
		if now <= e.ExpireAt+grace {
			continue
		}
		if err := t.unlinkEntryLocked(e); err != nil {
			t.logger.Warn("sweep: failed to unlink expired page", "table", t.name, "page", e.name(), "error", err)
			continue
		}
		evicted++
	}
}

// attachLocked returns the process-local mapping for name, opening it if
// not already cached.
func (t *Table[T]) attachLocked(name string) (*shmpage.Page[T], error) {
	t.mu.Lock()
	if page, ok := t.openPages[name]; ok {
		t.mu.Unlock()
		return page, nil
	}
	t.mu.Unlock()

	page, err := shmpage.OpenOrCreate[T](t.dir, name, t.elementsPerPage)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.openPages[name] = page
	t.mu.Unlock()
	return page, nil
}

// snapshotEntry is a value copy of a registry row taken outside the lock,
// so ForEach never holds the table lock during a visit.
type snapshotEntry struct {
	name              string
	expireAt          int64
	elementsAvailable uint32
}

func (t *Table[T]) snapshotRegistry() []snapshotEntry {
	els := t.registry.Elements()
	out := make([]snapshotEntry, 0, len(els))
	for i := range els {
		if els[i].name() == "" {
			continue
		}
		out = append(out, snapshotEntry{
			name:              els[i].name(),
			expireAt:          els[i].ExpireAt,
			elementsAvailable: els[i].ElementsAvailable,
		})
	}
	return out
}

// ForEach snapshots the registry (no lock held during the visit) and calls
// visit for every element of every non-expired page whose insertion
// timestamp (per timestampOf, if non-nil) is newer than
// max(now, page.expiration_check) - record_expire_seconds. Grounded on
// Table::processRecords / DealsSearchQuery::execute's min_timestamp cutoff.
func (t *Table[T]) ForEach(timestampOf func(T) int64, visit func(T)) error {
	now := t.now()
	for _, e := range t.snapshotRegistry() {
		if now > e.expireAt {
			continue
		}

		page, err := t.attachLocked(e.name)
		if err != nil {
			t.logger.Warn("scan: failed to attach page", "table", t.name, "page", e.name, "error", err)
			continue
		}

		cutoff := maxInt64(now, page.Header().ExpirationCheck) - t.recordExpireSeconds
		written := t.elementsPerPage - int(e.elementsAvailable)
		if written > t.elementsPerPage {
			written = t.elementsPerPage
		}
		elems := page.Elements()
		if written > len(elems) {
			written = len(elems)
		}
		for i := 0; i < written; i++ {
			el := elems[i]
			if timestampOf != nil && timestampOf(el) <= cutoff {
				continue
			}
			visit(el)
		}
	}
	return nil
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// ReadAt returns a copy of count elements starting at index on the named
// page, used by internal/dealstore to resolve a Locator back to blob
// bytes.
func (t *Table[T]) ReadAt(pageName string, index, count uint32) ([]T, error) {
	page, err := t.attachLocked(pageName)
	if err != nil {
		return nil, dealerrs.Wrap(dealerrs.KindInternal, err, "read page %q", pageName)
	}
	elems := page.Elements()
	if int(index)+int(count) > len(elems) {
		return nil, dealerrs.New(dealerrs.KindInternal, "read [%d:%d] out of range on page %q (len %d)",
			index, index+count, pageName, len(elems))
	}
	out := make([]T, count)
	copy(out, elems[index:index+count])
	return out, nil
}

// Truncate unlinks every page of the table, used by tests and the
// /clear admin endpoint, grounded on Table::cleanup / DealsDatabase::truncate.
func (t *Table[T]) Truncate(ctx context.Context) error {
	return t.lock.WithLock(ctx, func() error {
		for _, e := range t.registryEntries() {
			if err := t.unlinkEntryLocked(e); err != nil {
				return err
			}
		}
		return nil
	})
}

// Stats reports the table's current occupancy for admin/observability use.
func (t *Table[T]) Stats() Stats {
	entries := t.registryEntries()
	s := Stats{
		Name:                t.name,
		Pages:               len(entries),
		MaxPages:            t.maxPages,
		ElementsPerPage:     t.elementsPerPage,
		RecordExpireSeconds: t.recordExpireSeconds,
	}
	if len(entries) == 0 {
		return s
	}
	expires := make([]int64, 0, len(entries))
	for _, e := range entries {
		expires = append(expires, e.ExpireAt)
	}
	sort.Slice(expires, func(i, j int) bool { return expires[i] < expires[j] })
	s.OldestExpireAt = expires[0]
	s.NewestExpireAt = expires[len(expires)-1]
	return s
}

// ElementSize reports the in-memory size of one T, for reasoning about a
// table's raw memory footprint the way the original's
// DEALINFO_PAGES/DEALINFO_ELEMENTS comments do.
func ElementSize[T any]() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}
