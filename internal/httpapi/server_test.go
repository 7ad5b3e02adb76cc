package httpapi

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/flightdeals/dealsindex/internal/dealstore"
	"github.com/flightdeals/dealsindex/internal/topdest"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	mc := clock.NewMock()
	mc.Set(time.Unix(1_700_000_000, 0))

	deals, err := dealstore.New(dealstore.Config{
		Dir: t.TempDir(), InfoPages: 4, InfoElementsPerPage: 64,
		DataPages: 4, DataElementsPerPage: 4096, RecordExpireSeconds: 3600, Clock: mc,
	})
	require.NoError(t, err)
	dests, err := topdest.New(topdest.Config{
		Dir: t.TempDir(), Pages: 4, ElementsPerPage: 64, RecordExpireSeconds: 3600, Clock: mc,
	})
	require.NoError(t, err)

	srv := New(Config{Addr: "unused:0", Deals: deals, Dests: dests, RecordLifetime: time.Hour, Clock: mc})
	ts := httptest.NewServer(srv.http.Handler)
	t.Cleanup(ts.Close)
	return srv, ts
}

func TestPingEndpoint(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/ping")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDealsAddThenTop(t *testing.T) {
	_, ts := newTestServer(t)

	addParams := url.Values{
		"locale":        {"gb"},
		"origin":        {"MOW"},
		"destination":   {"LON"},
		"departure_date": {"2016-03-01"},
		"price":         {"150"},
		"direct_flight": {"true"},
	}
	resp, err := http.Post(ts.URL+"/deals/add?"+addParams.Encode(), "application/octet-stream", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	top, err := http.Get(ts.URL + "/deals/top?origin=MOW")
	require.NoError(t, err)
	defer top.Body.Close()
	require.Equal(t, http.StatusOK, top.StatusCode)

	body, err := io.ReadAll(top.Body)
	require.NoError(t, err)
	blobs, err := DecodeDealsTop(body)
	require.NoError(t, err)
	require.Len(t, blobs, 1)
}

func TestDealsTopNoResultsReturns204(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/deals/top?origin=MOW")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestDealsTopRejectsMissingOrigin(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/deals/top")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDestinationsTopAfterAdd(t *testing.T) {
	_, ts := newTestServer(t)

	addParams := url.Values{
		"locale":        {"gb"},
		"origin":        {"MOW"},
		"destination":   {"LON"},
		"departure_date": {"2016-03-01"},
		"price":         {"150"},
		"direct_flight": {"true"},
	}
	resp, err := http.Post(ts.URL+"/deals/add?"+addParams.Encode(), "application/octet-stream", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	top, err := http.Get(ts.URL + "/destinations/top?locale=gb")
	require.NoError(t, err)
	defer top.Body.Close()
	require.Equal(t, http.StatusOK, top.StatusCode)
	body, err := io.ReadAll(top.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "LON;1")
}

func TestClearEndpoints(t *testing.T) {
	_, ts := newTestServer(t)
	for _, path := range []string{"/deals/clear", "/destinations/clear", "/clear"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}
}

func TestDrainRejectsRequestsAfterQuit(t *testing.T) {
	srv, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/quit")
	require.NoError(t, err)
	resp.Body.Close()
	require.True(t, srv.drain.Load())

	blocked, err := http.Get(ts.URL + "/ping")
	require.NoError(t, err)
	defer blocked.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, blocked.StatusCode)
}
