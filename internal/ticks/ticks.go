// Package ticks drives the scheduler's wall-clock timers: the active-hours
// poll, the hourly counter reset and the daily counter reset.
// It uses robfig/cron/v3 so the resets land on real hour and day boundaries
// of the configured timezone.
package ticks

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"

	"github.com/aatumaykin/nexarchive/internal/constants"
	"github.com/aatumaykin/nexarchive/internal/logger"
)

// Target receives the ticks. *archive.Scheduler implements it.
type Target interface {
	ActiveHoursTick()
	HourTick()
	DayTick()
}

// Tick names
const (
	ActiveHours = "active_hours"
	Hour        = "hour"
	Day         = "day"
)

// Entry describes one registered tick.
type Entry struct {
	Name string
	Spec string
	Next time.Time
}

// Driver runs the ticks on a cron scheduler.
type Driver struct {
	cron     *cron.Cron
	target   Target
	location *time.Location
	logger   *logger.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
	specs   map[string]string
	started bool
	cancel  context.CancelFunc
}

// New creates a driver firing in loc (nil means time.Local).
func New(target Target, loc *time.Location, log *logger.Logger) (*Driver, error) {
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = logger.Nop()
	}
	d := &Driver{
		cron:     cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		target:   target,
		location: loc,
		logger:   log.Component("ticks"),
		entries:  make(map[string]cron.EntryID),
		specs:    make(map[string]string),
	}

	for _, t := range []struct {
		name string
		spec string
		fn   func()
	}{
		{ActiveHours, constants.TickActiveHoursSpec, target.ActiveHoursTick},
		{Hour, constants.TickHourSpec, target.HourTick},
		{Day, constants.TickDaySpec, target.DayTick},
	} {
		if err := d.add(t.name, t.spec, t.fn); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *Driver) add(name, spec string, fn func()) error {
	id, err := d.cron.AddFunc(spec, func() {
		d.logger.Debug("tick", logger.Field{Key: "tick", Value: name})
		fn()
	})
	if err != nil {
		return errors.Wrapf(err, "register %s tick %q", name, spec)
	}
	d.entries[name] = id
	d.specs[name] = spec
	return nil
}

// Start starts firing ticks until ctx is cancelled or Stop is called.
func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return errors.New("ticks already started")
	}
	d.started = true

	ctx, d.cancel = context.WithCancel(ctx)
	d.cron.Start()
	d.logger.Info("ticks started", logger.Field{Key: "timezone", Value: d.location.String()})

	go func() {
		<-ctx.Done()
		<-d.cron.Stop().Done()
		d.logger.Info("ticks stopped")
	}()
	return nil
}

// Stop stops the driver. A tick already running is allowed to finish.
func (d *Driver) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
	}
}

// Entries lists the registered ticks with their next fire time.
func (d *Driver) Entries() []Entry {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]Entry, 0, len(d.entries))
	for _, name := range []string{ActiveHours, Hour, Day} {
		id, ok := d.entries[name]
		if !ok {
			continue
		}
		e := d.cron.Entry(id)
		next := e.Next
		if next.IsZero() && e.Schedule != nil {
			next = e.Schedule.Next(time.Now().In(d.location))
		}
		out = append(out, Entry{Name: name, Spec: d.specs[name], Next: next})
	}
	return out
}

// Fire runs a tick immediately, outside of its schedule.
func (d *Driver) Fire(name string) error {
	d.mu.Lock()
	id, ok := d.entries[name]
	d.mu.Unlock()
	if !ok {
		return errors.Newf("unknown tick %q", name)
	}
	d.cron.Entry(id).WrappedJob.Run()
	return nil
}

// LoadLocation resolves a timezone name; an empty name means time.Local.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, errors.Wrapf(err, "load timezone %q", name)
	}
	return loc, nil
}
