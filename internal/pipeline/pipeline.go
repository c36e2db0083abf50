// Package pipeline connects an ingress to the decode chain and the
// clock-sync state machine. One producer goroutine reads the source and
// one consumer goroutine owns every piece of decode state; they meet at
// a small bounded channel that evicts the oldest window under
// backpressure, so a slow consumer always sees fresh audio instead of a
// growing backlog.
package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/studioclock/timeturner/internal/clock"
	"github.com/studioclock/timeturner/internal/config"
	"github.com/studioclock/timeturner/internal/ingress"
	"github.com/studioclock/timeturner/internal/observe"
)

// chanCap bounds the producer/consumer channels. Deliberately tiny: the
// consumer keeps up with real-time audio easily, and anything it cannot
// keep up with is better dropped than queued.
const chanCap = 4

// Window is one analysis window of audio samples, stamped with its
// arrival time and the rate it was captured at.
type Window struct {
	Samples    []float64
	SampleRate int
	At         time.Time
}

// Line is one raw status line from a serial-text source.
type Line struct {
	Text string
	At   time.Time
}

// Pipeline owns the producer and consumer goroutines for one configured
// ingress.
type Pipeline struct {
	cfg     *config.Config
	metrics *observe.Metrics
	setter  clock.Setter
	notify  func(Snapshot)
	input   io.Reader

	windows  chan Window
	lines    chan Line
	consumer *Consumer
}

// Option customises a Pipeline at construction time.
type Option func(*Pipeline)

// WithInput substitutes the byte source, bypassing the configured path.
// Used by the decode subcommand and by tests.
func WithInput(r io.Reader) Option {
	return func(p *Pipeline) { p.input = r }
}

// WithSetter substitutes the clock setter corrections are delegated to.
func WithSetter(s clock.Setter) Option {
	return func(p *Pipeline) { p.setter = s }
}

// WithNotify registers a callback invoked with every published
// snapshot. The callback runs on the consumer goroutine and must not
// block.
func WithNotify(fn func(Snapshot)) Option {
	return func(p *Pipeline) { p.notify = fn }
}

// New builds a pipeline for the configured ingress. The returned
// pipeline does nothing until Run is called.
func New(cfg *config.Config, m *observe.Metrics, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		cfg:     cfg,
		metrics: m,
		setter:  clock.Nop{},
	}
	for _, o := range opts {
		o(p)
	}

	var dec *AudioDecoder
	switch cfg.Ingress.Source {
	case config.SourceAudio:
		var err error
		if dec, err = NewAudioDecoder(cfg.Decode); err != nil {
			return nil, err
		}
		p.windows = make(chan Window, chanCap)
	case config.SourceLines:
		p.lines = make(chan Line, chanCap)
	default:
		return nil, fmt.Errorf("pipeline: unknown ingress source %q", cfg.Ingress.Source)
	}

	p.consumer = newConsumer(cfg, m, dec, p.setter, p.notify, p.windows, p.lines)
	return p, nil
}

// Consumer exposes the consumer for the API layer: snapshots, sync
// requests and nudges.
func (p *Pipeline) Consumer() *Consumer { return p.consumer }

// Run starts the producer and consumer and blocks until the source
// drains, a fatal ingress error occurs, or ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	in := p.input
	if in == nil {
		f, err := openPath(p.cfg.Ingress.Path)
		if err != nil {
			return err
		}
		if c, ok := f.(io.Closer); ok {
			defer c.Close()
		}
		in = f
	}

	g, ctx := errgroup.WithContext(ctx)
	if p.windows != nil {
		g.Go(func() error { return runDetached(ctx, func() error { return p.produceAudio(ctx, in) }) })
	} else {
		g.Go(func() error { return runDetached(ctx, func() error { return p.produceLines(ctx, in) }) })
	}
	g.Go(func() error { return p.consumer.run(ctx) })
	return g.Wait()
}

// runDetached runs fn in its own goroutine so a read blocked on an open
// pipe cannot stall shutdown. On cancellation the blocked reader is
// abandoned; it exits with the process.
func runDetached(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// openPath resolves the configured ingress path. "-" selects stdin,
// the usual arrangement behind an arecord or socat pipe.
func openPath(path string) (io.Reader, error) {
	if path == "" || path == "-" {
		return os.Stdin, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pipeline: open ingress: %w", err)
	}
	return f, nil
}

// produceAudio reads fixed-size sample windows from the source and
// offers them to the consumer, dropping the oldest queued window when
// the consumer falls behind. The channel is closed when the source
// drains.
func (p *Pipeline) produceAudio(ctx context.Context, in io.Reader) error {
	defer close(p.windows)

	sampleRate := p.cfg.Ingress.SampleRate
	var pcm *ingress.PCMReader
	if p.cfg.Ingress.Format == config.FormatWAV {
		r, info, err := ingress.OpenWAV(in)
		if err != nil {
			return err
		}
		pcm = r
		// The RIFF header is authoritative for the capture rate.
		sampleRate = info.SampleRate
		slog.Info("wav source opened",
			"sample_rate", info.SampleRate, "data_bytes", info.DataBytes)
	} else {
		pcm = ingress.NewPCMReader(in)
	}

	size := int(p.cfg.Ingress.WindowSeconds * float64(sampleRate))
	if size < 2 {
		return fmt.Errorf("pipeline: window of %d samples is too small", size)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		buf := make([]float64, size)
		n, err := pcm.ReadWindow(buf)
		if n > 0 {
			w := Window{Samples: buf[:n], SampleRate: sampleRate, At: time.Now()}
			if dropped := offer(p.windows, w); dropped > 0 {
				p.metrics.Dropped.Add(ctx, int64(dropped))
				slog.Warn("consumer behind, dropped stale windows", "count", dropped)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("pipeline: read audio: %w", err)
		}
	}
}

// produceLines scans the source line by line and offers each to the
// consumer. Parsing happens on the consumer side so a malformed line
// costs the producer nothing.
func (p *Pipeline) produceLines(ctx context.Context, in io.Reader) error {
	defer close(p.lines)

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 4096), 64<<10)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		l := Line{Text: sc.Text(), At: time.Now()}
		if dropped := offer(p.lines, l); dropped > 0 {
			p.metrics.Dropped.Add(ctx, int64(dropped))
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("pipeline: read lines: %w", err)
	}
	return nil
}

// offer sends v without ever blocking the producer: when the channel is
// full the oldest queued element is evicted and the send retried. With
// a single producer the retry loop terminates after at most cap
// evictions. Returns how many elements were evicted.
func offer[T any](ch chan T, v T) (dropped int) {
	for {
		select {
		case ch <- v:
			return dropped
		default:
		}
		select {
		case <-ch:
			dropped++
		default:
		}
	}
}
