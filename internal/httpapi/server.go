// Package httpapi implements spec.md §6's HTTP surface: the route table,
// the §6.2 self-describing wire format for /deals/top, and the §7
// error-kind-to-status mapping, plus graceful drain on SIGINT/SIGTERM/
// SIGBUS. Grounded on DealsServer::on_data/getTop/addDeal/getDestiantionsTop
// (src/deals_server.cpp) for the routing and handler logic, and on the
// teacher's internal/rpc.HTTPServer (net/http.Server + ctx.Done()-triggered
// Shutdown) for the server shell.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/flightdeals/dealsindex/internal/aggregate"
	"github.com/flightdeals/dealsindex/internal/dealerrs"
	"github.com/flightdeals/dealsindex/internal/dealstore"
	"github.com/flightdeals/dealsindex/internal/dealtypes"
	"github.com/flightdeals/dealsindex/internal/query"
	"github.com/flightdeals/dealsindex/internal/topdest"
)

// Config groups Server construction parameters.
type Config struct {
	Addr  string
	Deals *dealstore.Store
	Dests *topdest.Store

	// RecordLifetime is the lifetime passed to AddDeal/AddDestination,
	// grounded on the owning table's record_expire_seconds.
	RecordLifetime time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// Server is the deals HTTP API, grounded on deals_srv::DealsServer. Unlike
// the original's single-process TCPServer<Context>, net/http owns
// connection handling; Server only owns routing, drain state, and the two
// stores.
type Server struct {
	deals   *dealstore.Store
	dests   *topdest.Store
	lifeti  time.Duration
	clock   clock.Clock
	logger  *slog.Logger
	http    *http.Server
	addr    string
	drain   atomic.Bool
	quitSig atomic.Bool // set on the second drain signal/request
}

// New builds a Server and wires its route table.
func New(cfg Config) *Server {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		deals:  cfg.Deals,
		dests:  cfg.Dests,
		lifeti: cfg.RecordLifetime,
		clock:  cfg.Clock,
		logger: logger,
		addr:   cfg.Addr,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/deals/add", s.withDrainGuard(s.handleDealsAdd))
	mux.HandleFunc("/deals/top", s.withDrainGuard(s.handleDealsTop))
	mux.HandleFunc("/destinations/top", s.withDrainGuard(s.handleDestinationsTop))
	mux.HandleFunc("/deals/clear", s.withDrainGuard(s.handleDealsClear))
	mux.HandleFunc("/destinations/clear", s.withDrainGuard(s.handleDestinationsClear))
	mux.HandleFunc("/clear", s.withDrainGuard(s.handleClear))
	mux.HandleFunc("/ping", s.withDrainGuard(s.handlePing))
	mux.HandleFunc("/quit", s.withDrainGuard(s.handleQuit))

	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Run listens and serves until ctx is cancelled, then drains: requests that
// still reach a handler see 503, the listener is closed, and in-flight
// requests get up to 10s to finish. ctx is cancelled by SIGINT/SIGTERM/SIGBUS
// in cmd/dealsserver. Run has no immediate-exit path of its own; the only
// immediate exit is a second /quit request (see handleQuit).
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("httpapi: listen on %s: %w", s.addr, err)
	}

	go func() {
		<-ctx.Done()
		s.drain.Store(true)
		s.logger.Warn("draining: refusing new connections")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("graceful shutdown did not complete cleanly", "error", err)
		}
	}()

	err = s.http.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// withDrainGuard rejects new requests with 503 once drain has started,
// grounded on DealsServer::on_data's quit_request check at the top of every
// request.
func (s *Server) withDrainGuard(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.drain.Load() {
			http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
			return
		}
		h(w, r)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := dealerrs.KindOf(err)
	status := dealerrs.HTTPStatus(kind)
	if kind == dealerrs.KindBadParameter {
		s.logger.Debug("bad request", "error", err)
	} else {
		s.logger.Error("request failed", "kind", kind, "error", err)
	}
	http.Error(w, err.Error(), status)
}

func (s *Server) now() func() int64 {
	return func() int64 { return s.clock.Now().Unix() }
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("pong\n"))
}

func (s *Server) handleQuit(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("quiting...\n"))
	if s.quitSig.Swap(true) {
		s.logger.Warn("second quit request, exiting immediately")
		go func() { time.Sleep(50 * time.Millisecond); panic("second /quit request") }()
		return
	}
	s.drain.Store(true)
	go func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.http.Shutdown(shutdownCtx)
	}()
}

func (s *Server) handleDealsClear(w http.ResponseWriter, r *http.Request) {
	if err := s.deals.Truncate(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	w.Write([]byte("deals cleared\n"))
}

func (s *Server) handleDestinationsClear(w http.ResponseWriter, r *http.Request) {
	if err := s.dests.Truncate(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	w.Write([]byte("destinations cleared\n"))
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.deals.Truncate(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.dests.Truncate(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	w.Write([]byte("ALL cleared\n"))
}

// handleDealsAdd implements POST /deals/add, grounded on
// DealsServer::addDeal: parse+validate every field, write the blob+index
// row, then record the (locale, destination, departure_date) observation in
// the top-destinations table.
func (s *Server) handleDealsAdd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()

	locale, err := dealtypes.ParseCountry(q.Get("locale"))
	if err != nil || q.Get("locale") == "" {
		s.writeError(w, dealerrs.New(dealerrs.KindBadParameter, "bad locale: %q", q.Get("locale")))
		return
	}
	origin, err := dealtypes.ParseIATA(q.Get("origin"))
	if err != nil || origin.IsZero() {
		s.writeError(w, dealerrs.New(dealerrs.KindBadParameter, "bad origin: %q", q.Get("origin")))
		return
	}
	destination, err := dealtypes.ParseIATA(q.Get("destination"))
	if err != nil || destination.IsZero() {
		s.writeError(w, dealerrs.New(dealerrs.KindBadParameter, "bad destination: %q", q.Get("destination")))
		return
	}

	price, err := parseUint32(q.Get("price"))
	if err != nil {
		s.writeError(w, dealerrs.New(dealerrs.KindBadParameter, "bad price: %q", q.Get("price")))
		return
	}

	directStr := q.Get("direct_flight")
	if directStr != "true" && directStr != "false" {
		s.writeError(w, dealerrs.New(dealerrs.KindBadParameter, "bad direct_flight: %q", directStr))
		return
	}
	direct := directStr == "true"

	departure, err := dealtypes.ParseDate(q.Get("departure_date"))
	if err != nil || departure.IsZero() {
		s.writeError(w, dealerrs.New(dealerrs.KindBadParameter, "bad departure_date: %q", q.Get("departure_date")))
		return
	}

	var ret dealtypes.DateCode
	stayDays := uint8(dealtypes.StayDaysUndefined)
	returnDow := uint8(0)
	if rd := q.Get("return_date"); rd != "" {
		ret, err = dealtypes.ParseDate(rd)
		if err != nil || ret.IsZero() {
			s.writeError(w, dealerrs.New(dealerrs.KindBadParameter, "bad return_date: %q", rd))
			return
		}
		if ret < departure {
			s.writeError(w, dealerrs.New(dealerrs.KindBadParameter, "return_date before departure_date"))
			return
		}
		stayDays = uint8(departure.DaysBetween(ret))
		returnDow = ret.WeekdayBit()
	}

	blob, err := readBody(r)
	if err != nil {
		s.writeError(w, dealerrs.Wrap(dealerrs.KindBadParameter, err, "read body"))
		return
	}

	info := dealtypes.DealInfo{
		Origin:             origin,
		Destination:        destination,
		DestinationCountry: locale,
		DepartureDate:      departure,
		ReturnDate:         ret,
		Price:              price,
		StayDays:           stayDays,
		DepartureDayOfWeek: departure.WeekdayBit(),
		ReturnDayOfWeek:    returnDow,
		Direct:             direct,
	}

	if _, err := s.deals.AddDeal(r.Context(), dealstore.AddDealParams{
		Deal: info, Blob: blob, Lifetime: s.lifeti,
	}); err != nil {
		s.writeError(w, err)
		return
	}

	if err := s.dests.AddDestination(r.Context(), locale, destination, departure, s.lifeti); err != nil {
		s.writeError(w, err)
		return
	}

	w.Write([]byte("Added\n"))
}

// handleDealsTop implements GET /deals/top, grounded on DealsServer::getTop:
// parse the full query.Params bundle, optionally widen destinations with
// the caller's own top-destinations list (add_locale_top), pick an
// aggregator (day_by_day switches to the per-date variant), search, and
// encode the survivors with EncodeDealsTop.
func (s *Server) handleDealsTop(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := query.ParamsFromValues(q)

	if params.AddLocaleTop == "true" {
		locale, err := dealtypes.ParseCountry(params.Locale)
		if err != nil || params.Locale == "" {
			s.writeError(w, dealerrs.New(dealerrs.KindBadParameter, "bad locale: %q", params.Locale))
			return
		}
		depFrom, _ := dealtypes.ParseDate(params.DepartureDateFrom)
		depTo, _ := dealtypes.ParseDate(params.DepartureDateTo)
		limit := query.DefaultLimit
		top, err := s.dests.Top(r.Context(), locale, depFrom, depTo, limit)
		if err != nil {
			s.writeError(w, err)
			return
		}
		for _, t := range top {
			if params.Destinations != "" {
				params.Destinations += ","
			}
			params.Destinations += t.Destination.String()
		}
	}

	spec, err := query.Parse(params, s.now())
	if err != nil {
		s.writeError(w, err)
		return
	}

	kind := aggregate.KindPerDestination
	if len(spec.DestinationCountries) > 0 && len(spec.Destinations) == 0 {
		kind = aggregate.KindPerCountry
	}
	if params.DayByDay == "true" {
		kind = aggregate.KindPerDate
	}

	agg, err := aggregate.New(kind, spec.Limit, spec.DepartureRange(), spec.ReturnRange())
	if err != nil {
		s.writeError(w, dealerrs.Wrap(dealerrs.KindBadParameter, err, "day_by_day"))
		return
	}

	results, err := s.deals.Search(spec, agg)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if len(results) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	blobs := make([][]byte, len(results))
	for i, r := range results {
		blobs[i] = r.Blob
	}
	body := EncodeDealsTop(blobs)

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(body)))
	w.Write(body)
}

// handleDestinationsTop implements GET /destinations/top, grounded on
// DealsServer::getDestiantionsTop: text/plain lines of "DST;count".
func (s *Server) handleDestinationsTop(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	locale, err := dealtypes.ParseCountry(q.Get("locale"))
	if err != nil || q.Get("locale") == "" {
		s.writeError(w, dealerrs.New(dealerrs.KindBadParameter, "bad locale: %q", q.Get("locale")))
		return
	}
	depFrom, err := dealtypes.ParseDate(q.Get("departure_date_from"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	depTo, err := dealtypes.ParseDate(q.Get("departure_date_to"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	limit := 0
	if l := q.Get("destinations_limit"); l != "" {
		n, err := parseUint32(l)
		if err != nil {
			s.writeError(w, dealerrs.New(dealerrs.KindBadParameter, "bad destinations_limit: %q", l))
			return
		}
		limit = int(n)
	}

	top, err := s.dests.Top(r.Context(), locale, depFrom, depTo, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if len(top) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var body []byte
	for _, t := range top {
		body = append(body, fmt.Sprintf("%s;%d\n", t.Destination, t.Count)...)
	}
	w.Header().Set("Content-Type", "text/plain")
	w.Write(body)
}

func parseUint32(v string) (uint32, error) {
	var n uint64
	if v == "" {
		return 0, dealerrs.New(dealerrs.KindBadParameter, "empty number")
	}
	for _, c := range v {
		if c < '0' || c > '9' {
			return 0, dealerrs.New(dealerrs.KindBadParameter, "not a number: %q", v)
		}
		n = n*10 + uint64(c-'0')
	}
	return uint32(n), nil
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}
