// Package dealstore composes two internal/table.Table instances into the
// deals database spec.md §4.4 describes: a DealsInfo index table of fixed
// DealInfo rows and a DealsData blob table holding the raw JSON/HTML
// payload each deal was scraped from. Grounded on
// deals::DealsDatabase (src/deals_database.hpp/.cpp).
package dealstore

import (
	"context"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/flightdeals/dealsindex/internal/aggregate"
	"github.com/flightdeals/dealsindex/internal/dealerrs"
	"github.com/flightdeals/dealsindex/internal/dealtypes"
	"github.com/flightdeals/dealsindex/internal/query"
	"github.com/flightdeals/dealsindex/internal/table"
)

// Default table sizing, grounded on deals_types.hpp's DEALINFO_PAGES /
// DEALINFO_ELEMENTS / DEALDATA_PAGES / DEALDATA_ELEMENTS and
// DEALS_EXPIRES (24h).
const (
	DefaultInfoPages           = 5000
	DefaultInfoElementsPerPage = 10000
	DefaultDataPages           = 10000
	DefaultDataElementsPerPage = 50_000_000
	DefaultExpireSeconds       = 24 * 60 * 60
)

// Config groups Store construction parameters.
type Config struct {
	Dir                 string
	InfoPages           int
	InfoElementsPerPage int
	DataPages           int
	DataElementsPerPage int
	RecordExpireSeconds int64
	Clock               clock.Clock
	Logger              *slog.Logger
}

// withDefaults fills zero fields with the package defaults, grounded on
// the original's compile-time #defines.
func (c Config) withDefaults() Config {
	if c.InfoPages == 0 {
		c.InfoPages = DefaultInfoPages
	}
	if c.InfoElementsPerPage == 0 {
		c.InfoElementsPerPage = DefaultInfoElementsPerPage
	}
	if c.DataPages == 0 {
		c.DataPages = DefaultDataPages
	}
	if c.DataElementsPerPage == 0 {
		c.DataElementsPerPage = DefaultDataElementsPerPage
	}
	if c.RecordExpireSeconds == 0 {
		c.RecordExpireSeconds = DefaultExpireSeconds
	}
	return c
}

// Store is the deals database: an index table of DealInfo rows plus a data
// table of raw blob bytes, grounded on DealsDatabase{db_index, db_data}.
type Store struct {
	info  *table.Table[dealtypes.DealInfo]
	data  *table.Table[byte]
	clock clock.Clock
}

// New opens or creates a Store under cfg.Dir.
func New(cfg Config) (*Store, error) {
	cfg = cfg.withDefaults()
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	info, err := table.New[dealtypes.DealInfo]("deals_info", table.Config{
		Dir:                 cfg.Dir,
		MaxPages:            cfg.InfoPages,
		ElementsPerPage:     cfg.InfoElementsPerPage,
		RecordExpireSeconds: cfg.RecordExpireSeconds,
		Clock:               cfg.Clock,
		Logger:              cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	data, err := table.New[byte]("deals_data", table.Config{
		Dir:                 cfg.Dir,
		MaxPages:            cfg.DataPages,
		ElementsPerPage:     cfg.DataElementsPerPage,
		RecordExpireSeconds: cfg.RecordExpireSeconds,
		Clock:               cfg.Clock,
		Logger:              cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	return &Store{info: info, data: data, clock: cfg.Clock}, nil
}

// AddDealParams is the input to AddDeal: a validated DealInfo row plus its
// raw source blob.
type AddDealParams struct {
	Deal     dealtypes.DealInfo
	Blob     []byte
	Lifetime time.Duration
}

// AddDeal appends the blob to the data table first, then appends the
// populated index row (with its Locator filled in) to the info table,
// grounded on DealsDatabase::addDeal's two-phase write: a blob written
// without an index entry is harmless orphaned storage, swept on its own
// expiry, whereas the reverse order would risk an index row pointing at
// nothing. An empty blob is not written to the data table; the row keeps a
// zero Locator and Search returns an empty blob for it.
func (s *Store) AddDeal(ctx context.Context, p AddDealParams) (dealtypes.DealInfo, error) {
	if err := p.Deal.Validate(); err != nil {
		return dealtypes.DealInfo{}, err
	}

	deal := p.Deal
	if len(p.Blob) > 0 {
		blobResult, err := s.data.AddRecord(ctx, p.Blob, p.Lifetime)
		if err != nil {
			return dealtypes.DealInfo{}, dealerrs.Wrap(dealerrs.KindInternal, err, "add_deal: write blob")
		}
		deal.Blob = dealtypes.NewLocator(blobResult.PageName, blobResult.Index, blobResult.Count)
	}
	deal.Timestamp = uint32(s.clock.Now().Unix())

	if _, err := s.info.AddRecord(ctx, []dealtypes.DealInfo{deal}, p.Lifetime); err != nil {
		return dealtypes.DealInfo{}, dealerrs.Wrap(dealerrs.KindInternal, err, "add_deal: write index")
	}
	return deal, nil
}

// DealWithBlob pairs a surviving search result with its resolved source
// blob, grounded on DealsDatabase::search's (DealInfo, raw_data) pairing.
type DealWithBlob struct {
	Info dealtypes.DealInfo
	Blob []byte
}

func timestampOf(d dealtypes.DealInfo) int64 { return int64(d.Timestamp) }

// Search scans the info table, feeds every spec.Matches row to agg, and
// resolves each surviving row's Locator back to its blob bytes, grounded
// on DealsDatabase::searchFor.
func (s *Store) Search(spec query.Spec, agg aggregate.Visitor) ([]DealWithBlob, error) {
	var scanErr error
	err := s.info.ForEach(timestampOf, func(d dealtypes.DealInfo) {
		if scanErr != nil {
			return
		}
		if !spec.Matches(d) {
			return
		}
		agg.Feed(d)
	})
	if err != nil {
		return nil, err
	}
	if scanErr != nil {
		return nil, scanErr
	}

	survivors := agg.Result()
	out := make([]DealWithBlob, 0, len(survivors))
	for _, d := range survivors {
		if d.Blob.Size == 0 {
			out = append(out, DealWithBlob{Info: d, Blob: []byte{}})
			continue
		}
		blob, err := s.data.ReadAt(d.Blob.Page(), d.Blob.Index, d.Blob.Size)
		if err != nil {
			return nil, dealerrs.Wrap(dealerrs.KindInternal, err, "resolve blob for deal %s->%s", d.Origin, d.Destination)
		}
		out = append(out, DealWithBlob{Info: d, Blob: blob})
	}
	return out, nil
}

// Truncate clears both tables, used by the /deals/clear and /clear admin
// endpoints.
func (s *Store) Truncate(ctx context.Context) error {
	if err := s.info.Truncate(ctx); err != nil {
		return err
	}
	return s.data.Truncate(ctx)
}

// InfoStats/DataStats expose the occupancy of the index and data tables.
func (s *Store) InfoStats() table.Stats { return s.info.Stats() }
func (s *Store) DataStats() table.Stats { return s.data.Stats() }
