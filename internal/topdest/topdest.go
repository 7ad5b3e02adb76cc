// Package topdest implements the popular-destinations counter spec.md
// §4.7 describes: a (locale, destination, departure_date) table grouped
// by destination and ranked by occurrence count. Grounded on
// top::TopDstDatabase/TopDstSearchQuery (src/top_destinations.hpp/.cpp),
// with its per-locale result cache (top::TopDstDatabase::result_cache_by_locale,
// grounded on cache::Cache) reworked onto golang.org/x/sync/singleflight so
// concurrent identical requests share one table scan instead of racing to
// populate the cache independently.
package topdest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/singleflight"

	"github.com/flightdeals/dealsindex/internal/dealtypes"
	"github.com/flightdeals/dealsindex/internal/table"
)

// Default table sizing, grounded on top_destinations.hpp's TOPDST_PAGES /
// TOPDST_ELEMENTS / TOPDST_EXPIRES (shared with DEALS_EXPIRES, 24h).
const (
	DefaultPages           = 5000
	DefaultElementsPerPage = 10000
	DefaultExpireSeconds   = 24 * 60 * 60
)

// CacheTTL is the per-query result cache lifetime, grounded on
// TopDstDatabase's cache::Cache<std::vector<DstInfo>> instances (the
// original constructs each with a short, call-site-chosen lifetime; we fix
// one TTL here since every call site in this port uses the same value).
const CacheTTL = 10 * time.Second

// Config groups Store construction parameters.
type Config struct {
	Dir                 string
	Pages               int
	ElementsPerPage     int
	RecordExpireSeconds int64
	Clock               clock.Clock
	Logger              *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Pages == 0 {
		c.Pages = DefaultPages
	}
	if c.ElementsPerPage == 0 {
		c.ElementsPerPage = DefaultElementsPerPage
	}
	if c.RecordExpireSeconds == 0 {
		c.RecordExpireSeconds = DefaultExpireSeconds
	}
	return c
}

// Result is a destination's popularity ranking, grounded on top::DstInfo.
type Result struct {
	Destination dealtypes.IATACode
	Count       uint32
}

type cachedResult struct {
	values   []Result
	expireAt int64
}

// Store is the top-destinations counter, grounded on TopDstDatabase.
type Store struct {
	table *table.Table[dealtypes.TopDstInfo]
	clock clock.Clock

	group singleflight.Group

	mu    sync.Mutex
	cache map[string]cachedResult
}

// New opens or creates a Store under cfg.Dir.
func New(cfg Config) (*Store, error) {
	cfg = cfg.withDefaults()
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	t, err := table.New[dealtypes.TopDstInfo]("top_dst", table.Config{
		Dir:                 cfg.Dir,
		MaxPages:            cfg.Pages,
		ElementsPerPage:     cfg.ElementsPerPage,
		RecordExpireSeconds: cfg.RecordExpireSeconds,
		Clock:               cfg.Clock,
		Logger:              cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	return &Store{table: t, clock: cfg.Clock, cache: make(map[string]cachedResult)}, nil
}

// AddDestination records one (locale, destination, departure_date)
// observation, grounded on TopDstDatabase::addDestination.
func (s *Store) AddDestination(ctx context.Context, locale dealtypes.CountryCode, destination dealtypes.IATACode, departureDate dealtypes.DateCode, lifetime time.Duration) error {
	info := dealtypes.TopDstInfo{Locale: locale, Destination: destination, DepartureDate: departureDate}
	_, err := s.table.AddRecord(ctx, []dealtypes.TopDstInfo{info}, lifetime)
	return err
}

// Top returns the limit most-observed destinations for locale within
// [departureFrom, departureTo], grounded on
// TopDstDatabase::getLocaleTop/TopDstSearchQuery::process_function.
// Concurrent calls with identical arguments share a single table scan and a
// short-lived cached result, grounded on TopDstDatabase's per-locale
// cache::Cache.
func (s *Store) Top(ctx context.Context, locale dealtypes.CountryCode, departureFrom, departureTo dealtypes.DateCode, limit int) ([]Result, error) {
	key := fmt.Sprintf("%d|%d|%d|%d", locale, departureFrom, departureTo, limit)

	if cached, ok := s.cached(key); ok {
		return cached, nil
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		if cached, ok := s.cached(key); ok {
			return cached, nil
		}
		result, err := s.scan(locale, departureFrom, departureTo, limit)
		if err != nil {
			return nil, err
		}
		s.store(key, result)
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Result), nil
}

func (s *Store) scan(locale dealtypes.CountryCode, departureFrom, departureTo dealtypes.DateCode, limit int) ([]Result, error) {
	counts := make(map[dealtypes.IATACode]uint32)
	err := s.table.ForEach(nil, func(d dealtypes.TopDstInfo) {
		if d.Locale != locale {
			return
		}
		if departureFrom != 0 && d.DepartureDate < departureFrom {
			return
		}
		if departureTo != 0 && d.DepartureDate > departureTo {
			return
		}
		counts[d.Destination]++
	})
	if err != nil {
		return nil, err
	}

	out := make([]Result, 0, len(counts))
	for dst, count := range counts {
		out = append(out, Result{Destination: dst, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Destination < out[j].Destination
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) cached(key string) ([]Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cache[key]
	if !ok || s.clock.Now().Unix() > c.expireAt {
		return nil, false
	}
	return c.values, true
}

func (s *Store) store(key string, values []Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[key] = cachedResult{values: values, expireAt: s.clock.Now().Unix() + int64(CacheTTL/time.Second)}
}

// Truncate clears the table and invalidates every cached result.
func (s *Store) Truncate(ctx context.Context) error {
	s.mu.Lock()
	s.cache = make(map[string]cachedResult)
	s.mu.Unlock()
	return s.table.Truncate(ctx)
}

// Stats reports table occupancy for admin/observability use.
func (s *Store) Stats() table.Stats { return s.table.Stats() }
