// Package jobs contains the background poll loop. A cycle is a first-class
// unit: RunCycle is synchronous and can be driven directly in tests with a
// mock fetcher.
package jobs

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dcwatch/dcwatch/internal/aggregator"
	"github.com/dcwatch/dcwatch/internal/alerts"
	"github.com/dcwatch/dcwatch/internal/database"
	"github.com/dcwatch/dcwatch/internal/metrics"
	"github.com/dcwatch/dcwatch/internal/notify"
	"github.com/dcwatch/dcwatch/internal/registry"
	"github.com/dcwatch/dcwatch/internal/source"
)

// Fetcher fetches one source's raw alerts and silences
type Fetcher interface {
	Fetch(ctx context.Context, src registry.Source) ([]alerts.RawAlert, []alerts.RawSilence, error)
}

// Options tunes the poller's cycle behavior
type Options struct {
	CycleMaxDuration time.Duration
	FetchRetries     int
	FetchRetryDelay  time.Duration
	RetentionDays    int
}

// knownGood is the last successfully normalized result of one source,
// carried into cycles where the source fails so a transient outage never
// flaps the aggregate view to "all clear".
type knownGood struct {
	alerts   []alerts.Alert
	silences []alerts.Silence
}

// Poller runs poll cycles: fetch all sources in parallel, normalize,
// aggregate, publish, snapshot.
type Poller struct {
	registry   *registry.Registry
	fetcher    Fetcher
	normalizer *alerts.Normalizer
	store      *database.SnapshotStore
	holder     *aggregator.ViewHolder
	notifier   *notify.Notifier
	opts       Options

	// cycleMu serializes cycles so a forced refresh cannot interleave with
	// the ticker-driven one
	cycleMu sync.Mutex

	mu        sync.Mutex
	lastGood  map[string]knownGood
	lastPrune time.Time
}

// NewPoller creates a poller. notifier may be a disabled notifier, store may
// be nil when snapshot persistence is not wanted (tests).
func NewPoller(reg *registry.Registry, fetcher Fetcher, normalizer *alerts.Normalizer, store *database.SnapshotStore, holder *aggregator.ViewHolder, notifier *notify.Notifier, opts Options) *Poller {
	if opts.CycleMaxDuration <= 0 {
		opts.CycleMaxDuration = 5 * time.Minute
	}
	if notifier == nil {
		notifier = notify.NewNotifier("", "")
	}
	return &Poller{
		registry:   reg,
		fetcher:    fetcher,
		normalizer: normalizer,
		store:      store,
		holder:     holder,
		notifier:   notifier,
		opts:       opts,
		lastGood:   make(map[string]knownGood),
	}
}

// Start begins the periodic poll loop. One cycle runs immediately so the
// view is populated before the first tick.
func (p *Poller) Start(interval time.Duration, stop <-chan struct{}) {
	if err := p.RunCycle(context.Background()); err != nil {
		log.Printf("Initial poll cycle failed: %v", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := p.RunCycle(context.Background()); err != nil {
				log.Printf("Poll cycle failed: %v", err)
			}
		case <-stop:
			log.Println("Poller stopped")
			return
		}
	}
}

// RunCycle executes one complete fetch-normalize-aggregate-publish round.
// Nothing is published until the whole cycle has completed; on error the
// previous view remains authoritative.
func (p *Poller) RunCycle(ctx context.Context) error {
	p.cycleMu.Lock()
	defer p.cycleMu.Unlock()

	started := time.Now()
	ctx, cancel := context.WithTimeout(ctx, p.opts.CycleMaxDuration)
	defer cancel()

	cycleID := uuid.New().String()
	sources := p.registry.Sources()

	results := make([]aggregator.SourceResult, len(sources))
	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func(i int, src registry.Source) {
			defer wg.Done()
			results[i] = p.fetchSource(ctx, src)
		}(i, src)
	}
	wg.Wait()

	view, err := aggregator.Aggregate(cycleID, time.Now().UTC(), results)
	if err != nil {
		metrics.CyclesTotal.WithLabelValues("failed").Inc()
		return err
	}

	p.holder.Publish(view)
	p.publishGauges(view)

	if p.store != nil {
		if err := p.store.Record(view); err != nil {
			metrics.SnapshotWriteFailures.Inc()
			log.Printf("Snapshot for cycle %s dropped: %v", cycleID, err)
		}
		p.maybePrune()
	}

	metrics.CyclesTotal.WithLabelValues("ok").Inc()
	metrics.CycleDuration.Observe(time.Since(started).Seconds())
	return nil
}

// fetchSource fetches one source with bounded retries, normalizes its
// payload, and maintains the source's health and known-good state. A failed
// source contributes its previous known-good alerts marked stale.
func (p *Poller) fetchSource(ctx context.Context, src registry.Source) aggregator.SourceResult {
	result := aggregator.SourceResult{SourceName: src.Name, BaseURL: src.BaseURL}

	info := alerts.SourceInfo{ID: src.Name, DC: src.DC, MultiDC: src.MultiDC, BaseURL: src.BaseURL}

	var rawAlerts []alerts.RawAlert
	var rawSilences []alerts.RawSilence
	var err error

	attempts := p.opts.FetchRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		rawAlerts, rawSilences, err = p.fetcher.Fetch(ctx, src)
		if err == nil {
			break
		}
		log.Printf("Source %s fetch attempt %d/%d failed: %v", src.Name, attempt, attempts, err)
		if attempt < attempts {
			select {
			case <-time.After(p.opts.FetchRetryDelay):
			case <-ctx.Done():
				attempt = attempts
			}
		}
	}

	prev, _ := p.registry.HealthOf(src.Name)

	if err != nil {
		metrics.SourceFetchFailures.WithLabelValues(src.Name, string(source.KindOf(err))).Inc()
		p.registry.RecordFailure(src.Name, err)
		if prev.FailureStreak == 0 {
			p.notifier.SourceDown(src.Name, 1, err.Error())
		}

		// surface the previous known-good data as stale instead of dropping
		// the whole DC from the view
		p.mu.Lock()
		cached := p.lastGood[src.Name]
		p.mu.Unlock()

		result.OK = false
		result.Stale = len(cached.alerts) > 0
		result.Error = err.Error()
		result.Alerts = cached.alerts
		result.Silences = cached.silences
		return result
	}

	p.registry.RecordSuccess(src.Name, time.Now().UTC())
	if prev.FailureStreak > 0 {
		p.notifier.SourceRecovered(src.Name)
	}

	normalizedAlerts := p.normalizer.NormalizeAlerts(info, rawAlerts)
	normalizedSilences := p.normalizer.NormalizeSilences(info, rawSilences)

	p.mu.Lock()
	p.lastGood[src.Name] = knownGood{alerts: normalizedAlerts, silences: normalizedSilences}
	p.mu.Unlock()

	result.OK = true
	result.Alerts = normalizedAlerts
	result.Silences = normalizedSilences
	log.Printf("Source %s: OK (alerts=%d, silences=%d)", src.Name, len(normalizedAlerts), len(normalizedSilences))
	return result
}

func (p *Poller) publishGauges(view *aggregator.AggregateView) {
	metrics.AlertsByDC.Reset()
	for dc, counts := range view.Counts {
		metrics.AlertsByDC.WithLabelValues(dc, "active").Set(float64(counts.Active))
		metrics.AlertsByDC.WithLabelValues(dc, "silenced").Set(float64(counts.Silenced))
	}
}

// maybePrune enforces the snapshot retention window at most once a day
func (p *Poller) maybePrune() {
	p.mu.Lock()
	due := time.Since(p.lastPrune) >= 24*time.Hour
	if due {
		p.lastPrune = time.Now()
	}
	p.mu.Unlock()
	if !due || p.opts.RetentionDays <= 0 {
		return
	}

	deleted, err := p.store.Prune(p.opts.RetentionDays, time.Now().UTC())
	if err != nil {
		log.Printf("Snapshot pruning failed: %v", err)
		return
	}
	if deleted > 0 {
		log.Printf("Pruned %d snapshot rows older than %d days", deleted, p.opts.RetentionDays)
	}
}
