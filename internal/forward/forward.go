// ABOUTME: One poll cycle: conditional fetch, extraction, dedup filtering and paced delivery
// ABOUTME: Every failure inside a cycle is logged and contained so the next cycle runs independently

package forward

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/harper/herald/internal/extract"
	"github.com/harper/herald/internal/fetch"
	"github.com/harper/herald/internal/ledger"
	"github.com/harper/herald/internal/metrics"
	"github.com/harper/herald/internal/models"
	"github.com/harper/herald/internal/storage"
)

// Fetcher supplies the raw feed document.
type Fetcher interface {
	Fetch(ctx context.Context, url, etag, lastModified string) (*fetch.Result, error)
}

// Deliverer posts one rendered entry.
type Deliverer interface {
	Deliver(ctx context.Context, e models.Entry) error
}

// Options wires a Forwarder.
type Options struct {
	FeedURL   string
	Fetcher   Fetcher
	Extractor *extract.Extractor
	Policy    ledger.Policy
	Store     storage.Store
	Deliverer Deliverer
	Metrics   *metrics.Metrics

	// PostDelay is the minimum spacing between two posts.
	PostDelay time.Duration
}

// Forwarder moves new feed entries into the chat channel.
type Forwarder struct {
	feedURL   string
	fetcher   Fetcher
	extractor *extract.Extractor
	policy    ledger.Policy
	store     storage.Store
	deliverer Deliverer
	metrics   *metrics.Metrics
	limiter   *rate.Limiter

	now func() time.Time
}

// New creates a Forwarder.
func New(opts Options) *Forwarder {
	limit := rate.Inf
	if opts.PostDelay > 0 {
		limit = rate.Every(opts.PostDelay)
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New(nil)
	}
	x := opts.Extractor
	if x == nil {
		x = extract.New(nil, "")
	}
	return &Forwarder{
		feedURL:   opts.FeedURL,
		fetcher:   opts.Fetcher,
		extractor: x,
		policy:    opts.Policy,
		store:     opts.Store,
		deliverer: opts.Deliverer,
		metrics:   m,
		limiter:   rate.NewLimiter(limit, 1),
		now:       time.Now,
	}
}

// Report summarizes one cycle.
type Report struct {
	CycleID   string
	Started   time.Time
	Duration  time.Duration
	Result    string
	Extracted int
	New       int
	Delivered int
	Failed    int
}

// Cycle runs one poll cycle. Transport absence returns a nil error; an
// aborted extraction or unreadable ledger returns the cause. Delivery
// failures never abort the cycle and are only counted.
func (f *Forwarder) Cycle(ctx context.Context) (rep Report, err error) {
	rep = Report{CycleID: uuid.NewString(), Started: f.now()}
	log := slog.With("cycle", rep.CycleID, "feed_url", f.feedURL)

	defer func() {
		rep.Duration = f.now().Sub(rep.Started)
		f.metrics.ObserveCycle(rep.Result, rep.Duration)
	}()

	st, err := f.store.FetchState(ctx)
	if err != nil {
		log.Warn("could not read fetch state, fetching unconditionally", "err", err)
		st = storage.FetchState{}
	}

	res, err := f.fetcher.Fetch(ctx, f.feedURL, st.ETag, st.LastModified)
	if err != nil {
		log.Warn("no feed content this cycle", "err", err)
		rep.Result = metrics.ResultFetchError
		return rep, nil
	}
	if res.NotModified {
		log.Debug("feed not modified")
		rep.Result = metrics.ResultNotModified
		return rep, nil
	}

	feed, err := f.extractor.Extract(res.Body)
	if err != nil {
		log.Error("extraction aborted", "err", err)
		rep.Result = metrics.ResultParseError
		return rep, fmt.Errorf("extract %s: %w", f.feedURL, err)
	}
	rep.Extracted = len(feed.Entries)
	f.metrics.EntriesExtracted.Add(float64(rep.Extracted))

	fresh, err := f.policy.Filter(ctx, ledger.Cycle{ID: rep.CycleID, Start: rep.Started}, feed.Entries)
	if err != nil {
		// Validators stay unsaved so the next cycle sees the document again.
		if errors.Is(err, ledger.ErrLedgerUnavailable) {
			log.Error("ledger unreadable, skipping delivery", "err", err)
		} else {
			log.Error("dedup filter failed, skipping delivery", "err", err)
		}
		rep.Result = metrics.ResultLedgerError
		return rep, err
	}
	rep.New = len(fresh)
	f.metrics.EntriesNew.Add(float64(rep.New))

	saved := storage.FetchState{ETag: res.ETag, LastModified: res.LastModified, FetchedAt: rep.Started}
	if err := f.store.SaveFetchState(ctx, saved); err != nil {
		log.Warn("could not save fetch state", "err", err)
	}

	log.Info("cycle filtered", "extracted", rep.Extracted, "new", rep.New, "policy", f.policy.Name())

	// Feeds list newest first; post oldest first.
	for i := len(fresh) - 1; i >= 0; i-- {
		e := fresh[i]
		if err := f.limiter.Wait(ctx); err != nil {
			log.Warn("delivery interrupted", "remaining", i+1, "err", err)
			rep.Result = metrics.ResultDelivered
			return rep, err
		}

		if err := f.deliverer.Deliver(ctx, e); err != nil {
			log.Error("delivery failed", "entry_id", e.ID, "title", e.Title, "err", err)
			f.metrics.DeliveriesTotal.WithLabelValues(metrics.DeliveryFailed).Inc()
			rep.Failed++
			continue
		}
		f.metrics.DeliveriesTotal.WithLabelValues(metrics.DeliveryOK).Inc()
		rep.Delivered++
		log.Info("delivered", "entry_id", e.ID, "title", e.Title)

		if err := f.policy.Delivered(ctx, e); err != nil {
			log.Error("could not record delivered entry", "entry_id", e.ID, "err", err)
		}
	}

	rep.Result = metrics.ResultDelivered
	return rep, nil
}
