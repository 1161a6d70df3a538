package extract

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docvault/docvault/internal/apperr"
	"github.com/docvault/docvault/internal/config"
)

// fakeService emulates the extraction service with two pages of text.
type fakeService struct {
	submitFails  int32 // remaining submit attempts to fail with 503
	unitFails    int32 // remaining unit attempts to fail with 503
	brokenUnits  map[string]bool
	unitRequests int32
}

func (f *fakeService) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/documents", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&f.submitFails, -1) >= 0 {
			w.WriteHeader(http.StatusServiceUnavailable)

			return
		}

		_ = json.NewEncoder(w).Encode(Document{
			Token: "tok",
			Units: []Unit{
				{ID: "p1", Kind: UnitPage, Name: "page 1"},
				{ID: "p2", Kind: UnitPage, Name: "page 2"},
			},
		})
	})

	mux.HandleFunc("/documents/tok/units/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.unitRequests, 1)

		parts := strings.Split(r.URL.Path, "/")
		unitID := parts[len(parts)-2]

		if f.brokenUnits[unitID] {
			w.WriteHeader(http.StatusUnprocessableEntity)

			return
		}

		if atomic.AddInt32(&f.unitFails, -1) >= 0 {
			w.WriteHeader(http.StatusServiceUnavailable)

			return
		}

		_ = json.NewEncoder(w).Encode(map[string]string{"text": "text of " + unitID})
	})

	return mux
}

func newTestClient(t *testing.T, f *fakeService) *Client {
	t.Helper()

	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	c := NewClient(config.Extraction{URL: srv.URL, Timeout: 5})
	c.retryBase = time.Millisecond // keep retries fast in tests

	return c
}

func TestRunExtractsAllUnits(t *testing.T) {
	f := &fakeService{}
	c := newTestClient(t, f)

	res, err := Run(context.Background(), c, "doc.pdf", "application/pdf", strings.NewReader("pdf"), nil)
	require.NoError(t, err)
	assert.Equal(t, "text of p1\n\ntext of p2", res.Text)
	assert.Zero(t, res.Failed)
	require.Len(t, res.Units, 2)
}

func TestSubmitRetriesTransientFailures(t *testing.T) {
	f := &fakeService{submitFails: 2}
	c := newTestClient(t, f)

	doc, err := c.Submit(context.Background(), "doc.pdf", "application/pdf", strings.NewReader("pdf"))
	require.NoError(t, err, "two transient failures fit inside three attempts")
	assert.Equal(t, "tok", doc.Token)
}

func TestSubmitGivesUpAfterRetries(t *testing.T) {
	f := &fakeService{submitFails: 99}
	c := newTestClient(t, f)

	_, err := c.Submit(context.Background(), "doc.pdf", "application/pdf", strings.NewReader("pdf"))
	require.Error(t, err)
	assert.Equal(t, apperr.KindExtractionFailed, apperr.KindOf(err))
}

func TestClientErrorIsNotRetried(t *testing.T) {
	f := &fakeService{brokenUnits: map[string]bool{"p1": true, "p2": true}}
	c := newTestClient(t, f)

	_, err := c.ExtractUnit(context.Background(), "tok", Unit{ID: "p1", Kind: UnitPage})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.unitRequests), "4xx must not be retried")
}

func TestRunSkipsBrokenUnit(t *testing.T) {
	f := &fakeService{brokenUnits: map[string]bool{"p1": true}}
	c := newTestClient(t, f)

	res, err := Run(context.Background(), c, "doc.pdf", "application/pdf", strings.NewReader("pdf"), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, "text of p2", res.Text)
}

func TestRunFailsWhenEveryUnitFails(t *testing.T) {
	f := &fakeService{brokenUnits: map[string]bool{"p1": true, "p2": true}}
	c := newTestClient(t, f)

	_, err := Run(context.Background(), c, "doc.pdf", "application/pdf", strings.NewReader("pdf"), nil)
	require.Error(t, err)
	assert.Equal(t, apperr.KindExtractionFailed, apperr.KindOf(err))
}

func TestRunChecksCancellationBetweenUnits(t *testing.T) {
	f := &fakeService{}
	c := newTestClient(t, f)

	calls := 0
	check := func() error {
		calls++
		if calls > 2 {
			// cancelled after the submit check and the first unit check
			return apperr.New(apperr.KindCancelled, "upload cancelled")
		}

		return nil
	}

	_, err := Run(context.Background(), c, "doc.pdf", "application/pdf", strings.NewReader("pdf"), check)
	require.Error(t, err)
	assert.Equal(t, apperr.KindCancelled, apperr.KindOf(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.unitRequests), "no unit may be extracted after cancellation")
}

func TestRunChecksCancellationBeforeSubmit(t *testing.T) {
	f := &fakeService{}
	c := newTestClient(t, f)

	check := func() error { return apperr.New(apperr.KindCancelled, "upload cancelled") }

	_, err := Run(context.Background(), c, "doc.pdf", "application/pdf", strings.NewReader("pdf"), check)
	require.Error(t, err)
	assert.Equal(t, apperr.KindCancelled, apperr.KindOf(err))
}
