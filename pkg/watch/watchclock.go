package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mpwrd/mpwrd-config/pkg/adapters"
)

// Watchclock defaults. Boards without an RTC boot into 1970 and jump to
// real time on the first NTP sync; a jump past the threshold means the
// mesh daemon is running with a bogus clock and needs a restart.
const (
	DefaultClockThreshold = 7 * 24 * time.Hour
	DefaultClockInterval  = time.Minute
	DefaultClockStatePath = "/var/lib/mpwrd-config/last_time"
	DefaultClockService   = "meshtasticd"
)

// Watchclock restarts the mesh daemon after a large system clock jump.
type Watchclock struct {
	run       adapters.Runner
	statePath string
	service   string
	threshold time.Duration
	interval  time.Duration
	now       func() time.Time
	logger    zerolog.Logger
}

// ClockOption configures the watchclock.
type ClockOption func(*Watchclock)

// WithClockRunner substitutes the command runner.
func WithClockRunner(r adapters.Runner) ClockOption { return func(w *Watchclock) { w.run = r } }

// WithClockStatePath relocates the persisted timestamp file.
func WithClockStatePath(p string) ClockOption { return func(w *Watchclock) { w.statePath = p } }

// WithClockService sets the unit to restart on a jump.
func WithClockService(s string) ClockOption { return func(w *Watchclock) { w.service = s } }

// WithClockThreshold sets the jump size that triggers a restart.
func WithClockThreshold(d time.Duration) ClockOption { return func(w *Watchclock) { w.threshold = d } }

// WithClockInterval sets the polling interval.
func WithClockInterval(d time.Duration) ClockOption { return func(w *Watchclock) { w.interval = d } }

// WithClockNow substitutes the clock source, for tests.
func WithClockNow(now func() time.Time) ClockOption { return func(w *Watchclock) { w.now = now } }

// WithClockLogger sets the logger.
func WithClockLogger(l zerolog.Logger) ClockOption { return func(w *Watchclock) { w.logger = l } }

// NewWatchclock creates a watchclock with the given options.
func NewWatchclock(opts ...ClockOption) *Watchclock {
	w := &Watchclock{
		run:       adapters.ExecRunner(),
		statePath: DefaultClockStatePath,
		service:   DefaultClockService,
		threshold: DefaultClockThreshold,
		interval:  DefaultClockInterval,
		now:       time.Now,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// CheckOnce compares the current clock against the last persisted
// timestamp, restarts the service on a jump past the threshold, and
// persists the current time. Returns whether a jump was handled.
func (w *Watchclock) CheckOnce(ctx context.Context) (bool, error) {
	now := w.now()
	last, err := w.readLast()
	if err != nil {
		return false, err
	}

	jumped := false
	if !last.IsZero() {
		delta := now.Sub(last)
		if delta < 0 {
			delta = -delta
		}
		if delta >= w.threshold {
			w.logger.Info().
				Time("last", last).
				Time("now", now).
				Str("service", w.service).
				Msg("clock jump detected, restarting service")
			if _, err := w.run.Run(ctx, "systemctl", "restart", w.service); err != nil {
				return false, fmt.Errorf("restart %s after clock jump: %w", w.service, err)
			}
			jumped = true
		}
	}

	if err := w.writeLast(now); err != nil {
		return jumped, err
	}
	return jumped, nil
}

// Run polls until ctx is done.
func (w *Watchclock) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		if _, err := w.CheckOnce(ctx); err != nil {
			w.logger.Warn().Err(err).Msg("clock check failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *Watchclock) readLast() (time.Time, error) {
	raw, err := os.ReadFile(w.statePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	unix, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		// A corrupt state file resets the baseline.
		return time.Time{}, nil
	}
	return time.Unix(unix, 0), nil
}

func (w *Watchclock) writeLast(t time.Time) error {
	if err := os.MkdirAll(filepath.Dir(w.statePath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(w.statePath, []byte(strconv.FormatInt(t.Unix(), 10)+"\n"), 0o644)
}
