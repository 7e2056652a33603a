// Package fatigue derives driver fatigue state from the driving-hours ledger
// and the alert table. Nothing here is cached: every answer is recomputed
// from stored rows.
package fatigue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"transconecta.io/internal/fleet"
	"transconecta.io/internal/obs"
)

const (
	DefaultThreshold = 8.0
	RestPeriod       = 6 * time.Hour
	RecentWindow     = 24 * time.Hour
)

// Engine evaluates the fatigue rules.
type Engine struct {
	store     fleet.Store
	threshold float64
	now       func() time.Time
	loc       *time.Location
}

type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(e *Engine) {
		if fn != nil {
			e.now = fn
		}
	}
}

// WithThreshold sets the daily hours above which an alert is raised.
func WithThreshold(hours float64) Option {
	return func(e *Engine) {
		if hours > 0 {
			e.threshold = hours
		}
	}
}

// WithLocation sets the zone ledger dates and clock times are read in.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

func New(store fleet.Store, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("fleet store is required")
	}
	e := &Engine{
		store:     store,
		threshold: DefaultThreshold,
		now:       time.Now,
		loc:       time.Local,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) Threshold() float64 { return e.threshold }

// RecentAlertIn reports whether the driver has an alert inside the trailing
// window, reading through the caller's unit of work.
func (e *Engine) RecentAlertIn(ctx context.Context, tx fleet.AlertRepo, driverID int64) (bool, error) {
	n, err := tx.AlertsSince(ctx, driverID, e.now().Add(-RecentWindow))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// HasRecentAlert reports whether the driver has an alert in the last 24h.
func (e *Engine) HasRecentAlert(ctx context.Context, driverID int64) (bool, error) {
	var recent bool
	err := e.store.View(ctx, func(tx fleet.Tx) error {
		var err error
		recent, err = e.RecentAlertIn(ctx, tx, driverID)
		return err
	})
	return recent, err
}

// EvaluateAfterRecord recomputes the total for the day of the entry just
// recorded and raises an automatic alert when it exceeds the threshold. The
// rest window runs from that entry's end. The driver status is left
// untouched; the assignment gate enforces the rest period.
func (e *Engine) EvaluateAfterRecord(ctx context.Context, recorded fleet.HoursEntry) (fleet.FatigueEvaluation, error) {
	driverID, date := recorded.DriverID, recorded.Date
	end, err := fleet.EntryEnd(recorded, e.loc)
	if err != nil {
		return fleet.FatigueEvaluation{}, err
	}
	restUntil := end.Add(RestPeriod)
	now := e.now()
	ev := fleet.FatigueEvaluation{Date: date, Threshold: e.threshold}

	err = e.store.Update(ctx, func(tx fleet.Tx) error {
		entries, err := tx.HoursOn(ctx, driverID, date)
		if err != nil {
			return err
		}
		ev.DailyTotal = fleet.SumHours(entries)
		if ev.DailyTotal <= e.threshold {
			return nil
		}

		desc := fmt.Sprintf("Superó el límite de %s horas: total %sh en %s",
			formatHours(e.threshold), formatHours(ev.DailyTotal), date)
		alert, err := tx.InsertAlert(ctx, fleet.FatigueAlert{
			DriverID:    driverID,
			Description: desc,
			Source:      fleet.AlertAutomatic,
			CreatedAt:   now.UTC(),
		})
		if err != nil {
			return err
		}
		fleet.RecordHistory(ctx, tx, fleet.SubjectDriver, driverID,
			fmt.Sprintf("Alerta de fatiga automática: %s. Descanso hasta %s", desc, restUntil.UTC().Format(time.RFC3339)))

		ev.Alert = &alert
		ev.RestUntil = &restUntil
		ev.ActiveNow = restUntil.After(now)
		return nil
	})
	if err != nil {
		return fleet.FatigueEvaluation{}, err
	}
	if ev.Alert != nil {
		obs.FatigueAlerts.WithLabelValues(fleet.AlertAutomatic).Inc()
	}
	return ev, nil
}

// RecordManual stores an alert entered by a recorder.
func (e *Engine) RecordManual(ctx context.Context, driverID int64, description string, recordedBy int64) (fleet.FatigueAlert, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return fleet.FatigueAlert{}, fmt.Errorf("%w: description is required", fleet.ErrValidation)
	}
	if driverID <= 0 {
		return fleet.FatigueAlert{}, fmt.Errorf("%w: driver id is required", fleet.ErrValidation)
	}
	var alert fleet.FatigueAlert
	err := e.store.Update(ctx, func(tx fleet.Tx) error {
		if _, err := tx.Driver(ctx, driverID); err != nil {
			return err
		}
		var err error
		alert, err = tx.InsertAlert(ctx, fleet.FatigueAlert{
			DriverID:    driverID,
			Description: description,
			Source:      fleet.AlertManual,
			RecordedBy:  recordedBy,
			CreatedAt:   e.now().UTC(),
		})
		if err != nil {
			return err
		}
		fleet.RecordHistory(ctx, tx, fleet.SubjectDriver, driverID, "Alerta de fatiga: "+description)
		return nil
	})
	if err != nil {
		return fleet.FatigueAlert{}, err
	}
	obs.FatigueAlerts.WithLabelValues(fleet.AlertManual).Inc()
	return alert, nil
}

// ListAlerts returns the driver's alerts, newest first.
func (e *Engine) ListAlerts(ctx context.Context, driverID int64) ([]fleet.FatigueAlert, error) {
	var out []fleet.FatigueAlert
	err := e.store.View(ctx, func(tx fleet.Tx) error {
		if _, err := tx.Driver(ctx, driverID); err != nil {
			return err
		}
		var err error
		out, err = tx.Alerts(ctx, driverID)
		return err
	})
	return out, err
}

// Active describes a driver inside a mandatory rest window.
type Active struct {
	Driver        fleet.Driver `json:"driver"`
	LastEntryDate string       `json:"last_entry_date"`
	LastEntryEnd  string       `json:"last_entry_end"`
	DailyTotal    float64      `json:"daily_total"`
	RestUntil     time.Time    `json:"rest_until"`
	RemainingMs   int64        `json:"remaining_ms"`
}

// ListActive returns drivers whose latest day exceeded the threshold and
// whose rest window is still open, soonest to clear first.
func (e *Engine) ListActive(ctx context.Context) ([]Active, error) {
	now := e.now()
	var out []Active
	err := e.store.View(ctx, func(tx fleet.Tx) error {
		latest, err := tx.LatestHours(ctx)
		if err != nil {
			return err
		}
		for _, last := range latest {
			day, err := tx.HoursOn(ctx, last.DriverID, last.Date)
			if err != nil {
				return err
			}
			total := fleet.SumHours(day)
			end, err := fleet.EntryEnd(last, e.loc)
			if err != nil {
				return err
			}
			restUntil := end.Add(RestPeriod)
			if total <= e.threshold || !restUntil.After(now) {
				continue
			}
			driver, err := tx.Driver(ctx, last.DriverID)
			if err != nil {
				return err
			}
			out = append(out, Active{
				Driver:        driver,
				LastEntryDate: last.Date,
				LastEntryEnd:  last.End,
				DailyTotal:    total,
				RestUntil:     restUntil,
				RemainingMs:   restUntil.Sub(now).Milliseconds(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RemainingMs < out[j].RemainingMs })
	return out, nil
}

func formatHours(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
