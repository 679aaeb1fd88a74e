package marketdata

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/praveen686/omlaxmiquant/internal/book"
	"github.com/praveen686/omlaxmiquant/internal/errs"
	"github.com/praveen686/omlaxmiquant/internal/observability"
)

// bookSync buffers depth events for one symbol while its snapshot is in
// flight, per the exchange's documented synchronisation procedure.
type bookSync struct {
	mu        sync.Mutex
	buffering bool
	buffer    []depthEvent
}

// begin starts buffering. An already-running buffer is preserved: events
// predating the upcoming snapshot are filtered out during replay anyway.
func (s *bookSync) begin() {
	s.mu.Lock()
	if !s.buffering {
		s.buffering = true
		s.buffer = s.buffer[:0]
	}
	s.mu.Unlock()
}

// offer stores ev if the symbol is mid-sync; it reports whether the event
// was absorbed by the buffer.
func (s *bookSync) offer(ev depthEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.buffering {
		return false
	}
	s.buffer = append(s.buffer, ev)
	return true
}

// resync runs the snapshot procedure for one symbol: fetch the REST depth,
// drop buffered events preceding it, verify the first retained event
// straddles lastUpdateId+1, then apply snapshot and buffered diffs. On any
// mismatch the book stays dirty so the refresher retries.
func (c *Consumer) resync(ctx context.Context, sym string, b *book.Book, st *bookSync) error {
	st.begin()

	snap, err := c.fetchSnapshot(ctx, sym)
	if err != nil {
		return err
	}
	bids, err := parseLevels(snap.Bids)
	if err != nil {
		return err
	}
	asks, err := parseLevels(snap.Asks)
	if err != nil {
		return err
	}
	next := snap.LastUpdateID + 1

	st.mu.Lock()
	retained := st.buffer[:0]
	for _, ev := range st.buffer {
		if ev.FinalUpdateID < next {
			continue
		}
		retained = append(retained, ev)
	}
	if len(retained) > 0 {
		first := retained[0]
		if first.FirstUpdateID > next || first.FinalUpdateID < next {
			// The buffer no longer overlaps the snapshot; restart later.
			st.buffer = st.buffer[:0]
			st.mu.Unlock()
			return errs.New("marketdata/resync", errs.CodeSequenceGap,
				errs.WithMessage("buffered events do not straddle snapshot for "+sym))
		}
	}

	b.ApplySnapshot(snap.LastUpdateID, bids, asks)
	for _, ev := range retained {
		if err := c.applyDepth(sym, b, ev); err != nil {
			st.buffer = st.buffer[:0]
			st.mu.Unlock()
			return err
		}
	}
	st.buffering = false
	st.buffer = st.buffer[:0]
	st.mu.Unlock()

	observability.Telemetry().IncCounter(observability.MetricBookResyncs, 1,
		map[string]string{"symbol": sym})
	observability.Log().Info("book resynced",
		observability.F("symbol", sym),
		observability.F("last_update_id", b.LastUpdateID()))
	c.emitBook(b)
	return nil
}

func (c *Consumer) fetchSnapshot(ctx context.Context, sym string) (depthSnapshot, error) {
	query := "symbol=" + strings.ToUpper(sym) + "&limit=" + strconv.Itoa(c.cfg.SnapshotDepth)
	payload, err := c.cfg.REST.Do(ctx, http.MethodGet, c.cfg.RESTBase, "/api/v3/depth", query, nil, nil)
	if err != nil {
		return depthSnapshot{}, err
	}
	var snap depthSnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return depthSnapshot{}, errs.New("marketdata/snapshot", errs.CodeProtocol,
			errs.WithMessage("malformed depth snapshot"), errs.WithCause(err))
	}
	return snap, nil
}
