package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/studioclock/timeturner/internal/clock"
	"github.com/studioclock/timeturner/internal/clocksync"
	"github.com/studioclock/timeturner/internal/config"
	"github.com/studioclock/timeturner/internal/dsp"
	"github.com/studioclock/timeturner/internal/lineproto"
	"github.com/studioclock/timeturner/internal/ltc"
	"github.com/studioclock/timeturner/internal/observe"
	"github.com/studioclock/timeturner/pkg/timecode"
)

// Fault kinds, as they appear in session counters, metrics labels and
// the status API.
const (
	faultNoSignal           = "no-signal"
	faultInsufficientPulses = "insufficient-pulses"
	faultNotBiphase         = "not-biphase"
	faultRateUnknown        = "rate-unknown"
	faultNoSync             = "no-sync"
	faultInvalidFrame       = "invalid-frame"
	faultUnrecognisedLine   = "unrecognised-line"
	faultSignalLost         = "signal-lost"
	faultDriftWarning       = "drift-warning"
)

// watchdogInterval paces the signal-timeout check. Well under the
// 1.5s default timeout so silence is noticed promptly.
const watchdogInterval = 250 * time.Millisecond

// autoSyncHoldoff keeps auto mode from stepping the clock on every
// window while the offset history settles after a correction.
const autoSyncHoldoff = 10 * time.Second

// SyncResult reports the outcome of one sync request.
type SyncResult struct {
	Allowed       bool      `json:"allowed"`
	Reason        string    `json:"reason,omitempty"`
	CorrectedTime time.Time `json:"corrected_time,omitzero"`
	Applied       bool      `json:"applied"`
	Error         string    `json:"error,omitempty"`
}

// Snapshot is the consumer's published view of the world, rebuilt after
// every state change. It is what the status API and the websocket feed
// serve.
type Snapshot struct {
	Source   string `json:"source"`
	Strategy string `json:"strategy"`

	State        timecode.LockStatus `json:"state"`
	SyncEligible bool                `json:"sync_eligible"`
	StableSince  time.Time           `json:"stable_since,omitzero"`

	LastEvent *timecode.Event `json:"last_event,omitempty"`
	Rate      string          `json:"rate,omitempty"`

	MeanOffsetMs float64 `json:"mean_offset_ms"`
	MeanFrames   float64 `json:"mean_frames"`
	JitterMs     float64 `json:"jitter_ms"`
	JitterBand   string  `json:"jitter_band"`
	HistoryLen   int     `json:"history_len"`
	HistoryCap   int     `json:"history_cap"`

	SyncAllowed   bool      `json:"sync_allowed"`
	DenyReason    string    `json:"deny_reason,omitempty"`
	CorrectedTime time.Time `json:"corrected_time,omitzero"`
	Verdict       string    `json:"verdict"`

	Shift    clocksync.Shift `json:"shift"`
	AutoSync bool            `json:"auto_sync"`
	Setter   string          `json:"setter"`

	Session   clocksync.Session `json:"session"`
	LastFault string            `json:"last_fault,omitempty"`

	LastIngress time.Time `json:"last_ingress,omitzero"`
}

// syncRequest carries one RequestSync call onto the consumer goroutine.
type syncRequest struct {
	ctx   context.Context
	reply chan SyncResult
}

// Consumer drains the ingress channel and owns every piece of mutable
// decode state: the bitstream, the lock tracker, the offset history and
// the sync authority. All of it is confined to the run goroutine; the
// only cross-goroutine surface is the published Snapshot and the two
// request channels.
type Consumer struct {
	cfg     *config.Config
	metrics *observe.Metrics
	decoder *AudioDecoder
	setter  clock.Setter
	notify  func(Snapshot)

	windows <-chan Window
	lines   <-chan Line

	syncReq   chan syncRequest
	shiftReq  chan clocksync.Shift
	retuneReq chan config.SyncConfig

	// syncCfg is the consumer-owned copy of the sync tunables, updated
	// in place by Retune so hot reload never races the shared config.
	syncCfg config.SyncConfig

	tracker   *clocksync.Tracker
	estimator *clocksync.Estimator
	authority *clocksync.Authority
	session   *clocksync.Session

	lastEvent    timecode.Event
	lastFault    string
	lastIngress  time.Time
	lastAutoSync time.Time
	lockedGauge  bool

	mu   sync.RWMutex
	snap Snapshot
}

func newConsumer(cfg *config.Config, m *observe.Metrics, dec *AudioDecoder,
	setter clock.Setter, notify func(Snapshot),
	windows <-chan Window, lines <-chan Line) *Consumer {

	c := &Consumer{
		cfg:     cfg,
		metrics: m,
		decoder: dec,
		setter:  setter,
		notify:  notify,
		windows: windows,
		lines:   lines,

		syncReq:   make(chan syncRequest),
		shiftReq:  make(chan clocksync.Shift, chanCap),
		retuneReq: make(chan config.SyncConfig, chanCap),
		syncCfg:   cfg.Sync,

		tracker:   clocksync.NewTracker(cfg.Sync.StabilityWindow.Std(), cfg.Sync.SignalTimeout.Std()),
		estimator: clocksync.NewEstimator(cfg.Sync.History, cfg.Sync.HardwareOffsetMs, cfg.Sync.DriftMultiple),
		authority: clocksync.NewAuthority(cfg.Sync.HardwareOffsetMs, cfg.Sync.Shift),
		session:   clocksync.NewSession(time.Now()),
	}
	c.publish()
	return c
}

// Snapshot returns the most recently published state.
func (c *Consumer) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// LastIngress supports the readiness freshness probe.
func (c *Consumer) LastIngress() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap.LastIngress
}

// RequestSync asks the consumer to evaluate and, if allowed, apply one
// clock correction. It blocks until the consumer answers or ctx ends.
func (c *Consumer) RequestSync(ctx context.Context) (SyncResult, error) {
	req := syncRequest{ctx: ctx, reply: make(chan SyncResult, 1)}
	select {
	case c.syncReq <- req:
	case <-ctx.Done():
		return SyncResult{}, ctx.Err()
	}
	select {
	case res := <-req.reply:
		return res, nil
	case <-ctx.Done():
		return SyncResult{}, ctx.Err()
	}
}

// Nudge queues a deliberate-shift update. Returns false when the queue
// is full, which only happens if the consumer has stopped draining it.
func (c *Consumer) Nudge(s clocksync.Shift) bool {
	select {
	case c.shiftReq <- s:
		return true
	default:
		return false
	}
}

// Retune queues the hot-reloadable sync tunables: hardware offset,
// drift multiple, deliberate shift, auto-sync and match tolerance.
// Stability window, signal timeout and history capacity stay fixed for
// the life of the pipeline.
func (c *Consumer) Retune(sc config.SyncConfig) bool {
	select {
	case c.retuneReq <- sc:
		return true
	default:
		return false
	}
}

// run is the consumer loop. It returns nil once the ingress channel is
// closed and drained, or ctx.Err on cancellation.
func (c *Consumer) run(ctx context.Context) error {
	watchdog := time.NewTicker(watchdogInterval)
	defer watchdog.Stop()

	windows, lines := c.windows, c.lines
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case w, ok := <-windows:
			if !ok {
				windows = nil
				break
			}
			c.handleWindow(ctx, w)
		case l, ok := <-lines:
			if !ok {
				lines = nil
				break
			}
			c.handleLine(ctx, l)
		case req := <-c.syncReq:
			req.reply <- c.doSync(req.ctx)
		case s := <-c.shiftReq:
			c.authority.SetShift(s)
			slog.Info("deliberate shift updated",
				"hours", s.Hours, "minutes", s.Minutes, "seconds", s.Seconds, "frames", s.Frames)
			c.publish()
		case sc := <-c.retuneReq:
			c.handleRetune(sc)
		case now := <-watchdog.C:
			c.handleTick(ctx, now)
		}
		if windows == nil && lines == nil {
			return nil
		}
	}
}

func (c *Consumer) handleWindow(ctx context.Context, w Window) {
	c.session.Windows++
	c.lastIngress = w.At

	start := time.Now()
	events, stats, err := c.decoder.DecodeWindow(w)
	outcome := "decoded"
	if err != nil {
		outcome = "fault"
	}
	c.metrics.RecordWindow(ctx, outcome, time.Since(start).Seconds(), stats.Pulses)

	for _, ev := range events {
		c.session.Frames++
		c.handleEvent(ctx, ev)
	}
	if err != nil {
		c.fault(ctx, faultKind(err), w.At, err)
	}
	c.publish()
}

func (c *Consumer) handleLine(ctx context.Context, l Line) {
	c.session.Lines++
	c.lastIngress = l.At

	ev, err := lineproto.Parse(l.Text, l.At)
	if err != nil {
		// A malformed line is skipped, not treated as a decode failure:
		// serial feeds interleave debug chatter with status lines.
		c.metrics.Lines.Add(ctx, 1, metric.WithAttributes(observe.Attr("outcome", "fault")))
		c.lastFault = faultUnrecognisedLine
		c.session.Fault(faultUnrecognisedLine)
		c.metrics.RecordFault(ctx, faultUnrecognisedLine)
		slog.Debug("unrecognised line", "line", l.Text)
		c.publish()
		return
	}
	c.metrics.Lines.Add(ctx, 1, metric.WithAttributes(observe.Attr("outcome", "parsed")))
	c.handleEvent(ctx, ev)
	c.publish()
}

func (c *Consumer) handleEvent(ctx context.Context, ev timecode.Event) {
	c.metrics.RecordEvent(ctx, ev.Status.String())
	if ev.Status == timecode.StatusLock {
		c.session.LockEvents++
	} else {
		c.session.FreeEvents++
	}

	if released := c.tracker.Observe(ev); released {
		c.lockReleased(ctx)
	}
	c.lastEvent = ev
	c.lastFault = ""

	if c.tracker.State() != timecode.StatusLock {
		c.publish()
		return
	}
	if !c.lockedGauge {
		c.lockedGauge = true
		c.metrics.SetLocked(ctx, true)
	}

	// Offset samples are trusted only once the lock has held through
	// the stability window; the provisional phase would bias the mean.
	if c.tracker.Eligible() {
		before := c.estimator.Len()
		sample, err := c.estimator.Observe(ev)
		c.metrics.OffsetMs.Record(ctx, sample.OffsetMs)
		if delta := c.estimator.Len() - before; delta != 0 {
			c.metrics.HistoryDepth.Add(ctx, int64(delta))
		}
		if errors.Is(err, clocksync.ErrDriftWarning) {
			c.lastFault = faultDriftWarning
			c.session.Fault(faultDriftWarning)
			c.metrics.RecordFault(ctx, faultDriftWarning)
			slog.Warn("timecode drift", "err", err)
		}
	}

	c.maybeAutoSync(ctx)
	c.publish()
}

// fault records a decode failure and releases any held lock. A lost
// signal additionally resets the bitstream so a stale partial frame
// cannot bridge the gap.
func (c *Consumer) fault(ctx context.Context, kind string, at time.Time, err error) {
	c.lastFault = kind
	c.session.Fault(kind)
	c.metrics.RecordFault(ctx, kind)
	slog.Debug("decode fault", "kind", kind, "err", err)

	if released := c.tracker.Fail(at); released {
		c.lockReleased(ctx)
	}
	if kind == faultNoSignal && c.decoder != nil {
		c.decoder.Reset()
	}
}

func (c *Consumer) handleTick(ctx context.Context, now time.Time) {
	if released := c.tracker.Tick(now); !released {
		return
	}
	c.lastFault = faultSignalLost
	c.session.Fault(faultSignalLost)
	c.metrics.RecordFault(ctx, faultSignalLost)
	c.lockReleased(ctx)
	if c.decoder != nil {
		c.decoder.Reset()
	}
	c.publish()
}

// lockReleased clears the offset history and the lock gauge after the
// tracker dropped to FREE.
func (c *Consumer) lockReleased(ctx context.Context) {
	if n := c.estimator.Len(); n > 0 {
		c.metrics.HistoryDepth.Add(ctx, -int64(n))
	}
	c.estimator.Clear()
	if c.lockedGauge {
		c.lockedGauge = false
		c.metrics.SetLocked(ctx, false)
	}
	slog.Info("lock released", "cause", c.tracker.LastCause().String())
}

// handleRetune applies the hot-reloadable sync tunables in place. Runs
// on the consumer goroutine.
func (c *Consumer) handleRetune(sc config.SyncConfig) {
	c.estimator.SetHardwareOffset(sc.HardwareOffsetMs)
	c.estimator.SetDriftMultiple(sc.DriftMultiple)
	c.authority.SetHardwareOffset(sc.HardwareOffsetMs)
	c.authority.SetShift(sc.Shift)

	c.syncCfg.HardwareOffsetMs = sc.HardwareOffsetMs
	c.syncCfg.DriftMultiple = sc.DriftMultiple
	c.syncCfg.Shift = sc.Shift
	c.syncCfg.AutoSync = sc.AutoSync
	c.syncCfg.MatchTolerance = sc.MatchTolerance

	slog.Info("sync tunables updated",
		"hardware_offset_ms", sc.HardwareOffsetMs,
		"drift_multiple", sc.DriftMultiple,
		"auto_sync", sc.AutoSync,
		"match_tolerance", sc.MatchTolerance.Std())
	c.publish()
}

// doSync evaluates one correction and delegates an allowed one to the
// setter. Runs on the consumer goroutine.
func (c *Consumer) doSync(ctx context.Context) SyncResult {
	ctx, span := observe.StartSpan(ctx, "clock.sync")
	defer span.End()

	d := c.authority.Decide(c.tracker, c.lastEvent)
	res := SyncResult{Allowed: d.Allowed, CorrectedTime: d.CorrectedTime}

	if !d.Allowed {
		res.Reason = d.Reason.String()
		span.SetAttributes(attribute.String("outcome", "denied"),
			attribute.String("reason", res.Reason))
		c.metrics.RecordCorrection(ctx, "denied")
		slog.Info("sync denied", "reason", res.Reason)
		c.publish()
		return res
	}
	if err := c.setter.Set(ctx, d.CorrectedTime); err != nil {
		res.Error = err.Error()
		span.SetAttributes(attribute.String("outcome", "failed"))
		c.metrics.RecordCorrection(ctx, "failed")
		slog.Error("clock correction failed", "err", err)
		c.publish()
		return res
	}
	res.Applied = true
	c.session.Corrections++
	span.SetAttributes(attribute.String("outcome", "applied"))
	c.metrics.RecordCorrection(ctx, "applied")
	slog.Info("clock correction applied",
		"corrected_time", d.CorrectedTime.Format(time.RFC3339Nano),
		"setter", c.setter.Name())
	c.publish()
	return res
}

// maybeAutoSync applies a correction without an explicit request when
// the system clock has drifted outside the match tolerance. Held off
// after each attempt so the history can resettle.
func (c *Consumer) maybeAutoSync(ctx context.Context) {
	if !c.syncCfg.AutoSync {
		return
	}
	if !c.lastAutoSync.IsZero() && time.Since(c.lastAutoSync) < autoSyncHoldoff {
		return
	}
	d := c.authority.Decide(c.tracker, c.lastEvent)
	if !d.Allowed {
		return
	}
	if clocksync.Match(d.CorrectedTime, time.Now(), c.syncCfg.MatchTolerance.Std()) != clocksync.VerdictOutOfSync {
		return
	}
	c.lastAutoSync = time.Now()
	c.doSync(ctx)
}

// publish rebuilds the shared snapshot from the consumer-confined state.
func (c *Consumer) publish() {
	d := c.authority.Decide(c.tracker, c.lastEvent)

	snap := Snapshot{
		Source:       string(c.cfg.Ingress.Source),
		Strategy:     "lines",
		State:        c.tracker.State(),
		SyncEligible: c.tracker.Eligible(),

		MeanOffsetMs: c.estimator.MeanMs(),
		MeanFrames:   c.estimator.MeanFrames(),
		JitterMs:     c.estimator.JitterMs(),
		HistoryLen:   c.estimator.Len(),
		HistoryCap:   c.syncCfg.History,

		SyncAllowed:   d.Allowed,
		CorrectedTime: d.CorrectedTime,
		Verdict:       clocksync.Match(d.CorrectedTime, time.Now(), c.syncCfg.MatchTolerance.Std()).String(),

		Shift:    c.authority.Shift(),
		AutoSync: c.syncCfg.AutoSync,
		Setter:   c.setter.Name(),

		Session:   c.session.Clone(),
		LastFault: c.lastFault,

		LastIngress: c.lastIngress,
	}
	if c.decoder != nil {
		snap.Strategy = c.decoder.Strategy()
	}
	if since, ok := c.tracker.StableSince(); ok {
		snap.StableSince = since
	}
	if !c.lastEvent.At.IsZero() {
		ev := c.lastEvent
		snap.LastEvent = &ev
		snap.Rate = ev.Timecode.Rate.String()
	}
	snap.JitterBand = clocksync.BandFor(snap.JitterMs).String()
	if !d.Allowed {
		snap.DenyReason = d.Reason.String()
	}

	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()

	if c.notify != nil {
		c.notify(snap)
	}
}

// faultKind maps a decode-chain error onto its counter label.
func faultKind(err error) string {
	switch {
	case errors.Is(err, dsp.ErrNoSignal):
		return faultNoSignal
	case errors.Is(err, dsp.ErrInsufficientPulses):
		return faultInsufficientPulses
	case errors.Is(err, ErrNotBiphase):
		return faultNotBiphase
	case errors.Is(err, ErrRateUnknown):
		return faultRateUnknown
	case errors.Is(err, ltc.ErrNoSync):
		return faultNoSync
	case errors.Is(err, ltc.ErrInvalidFrame):
		return faultInvalidFrame
	default:
		return "decode-error"
	}
}
