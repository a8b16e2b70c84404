// Package clock abstracts time so the engine's round loop, driver delays,
// ScheduledPublisher, and MaintenanceLoops can be driven deterministically in
// tests and by robfig/cron/v3 in production.
package clock

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// CronSpec is one of the named schedules spec.md §6 requires Clock.Cron to
// support: EVERY_MINUTE, EVERY_HOUR, "every N hours", "daily at HH:MM".
type CronSpec string

const (
	EveryMinute CronSpec = "EVERY_MINUTE"
	EveryHour   CronSpec = "EVERY_HOUR"
)

// EveryNHours builds the "every N hours" spec form.
func EveryNHours(n int) CronSpec {
	return CronSpec(fmt.Sprintf("every %d hours", n))
}

// DailyAt builds the "daily at HH:MM" spec form.
func DailyAt(hour, minute int) CronSpec {
	return CronSpec(fmt.Sprintf("daily at %02d:%02d", hour, minute))
}

func (s CronSpec) toCronExpr() (string, error) {
	switch s {
	case EveryMinute:
		return "* * * * *", nil
	case EveryHour:
		return "0 * * * *", nil
	}
	raw := string(s)
	if strings.HasPrefix(raw, "every ") && strings.HasSuffix(raw, " hours") {
		n := strings.TrimSuffix(strings.TrimPrefix(raw, "every "), " hours")
		hours, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil || hours <= 0 {
			return "", fmt.Errorf("clock: invalid cron spec %q", raw)
		}
		return fmt.Sprintf("0 */%d * * *", hours), nil
	}
	if strings.HasPrefix(raw, "daily at ") {
		hm := strings.TrimPrefix(raw, "daily at ")
		parts := strings.SplitN(hm, ":", 2)
		if len(parts) != 2 {
			return "", fmt.Errorf("clock: invalid cron spec %q", raw)
		}
		hour, err1 := strconv.Atoi(parts[0])
		minute, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil {
			return "", fmt.Errorf("clock: invalid cron spec %q", raw)
		}
		return fmt.Sprintf("%d %d * * *", minute, hour), nil
	}
	return "", fmt.Errorf("clock: unsupported cron spec %q", raw)
}

// Clock is the sole source of time and sleeping for every engine component.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	// Sleep blocks for d or until ctx is cancelled, whichever comes first.
	Sleep(ctx context.Context, d time.Duration)
	// Cron registers f to run on the given schedule. It returns a function
	// that stops that one registration; it does not stop the Clock itself.
	Cron(spec CronSpec, f func(context.Context)) (func(), error)
}

// Real is the production Clock, backed by time.Sleep/time.Now and a
// robfig/cron/v3 scheduler for Cron registrations.
type Real struct {
	cron *cron.Cron
}

// NewReal builds and starts a Real clock. Callers must call Stop on shutdown.
func NewReal() *Real {
	c := cron.New()
	c.Start()
	return &Real{cron: c}
}

func (r *Real) Now() time.Time { return time.Now() }

func (r *Real) Sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func (r *Real) Cron(spec CronSpec, f func(context.Context)) (func(), error) {
	expr, err := spec.toCronExpr()
	if err != nil {
		return nil, err
	}
	id, err := r.cron.AddFunc(expr, func() { f(context.Background()) })
	if err != nil {
		return nil, fmt.Errorf("clock: register %q: %w", spec, err)
	}
	return func() { r.cron.Remove(id) }, nil
}

// Stop shuts the underlying cron scheduler down, waiting for running jobs.
func (r *Real) Stop() {
	<-r.cron.Stop().Done()
}
