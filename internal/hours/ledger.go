// Package hours is the append-only driving-hours ledger.
package hours

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"transconecta.io/internal/fleet"
	"transconecta.io/internal/obs"
)

// Evaluator is notified after every recorded entry.
type Evaluator interface {
	EvaluateAfterRecord(ctx context.Context, recorded fleet.HoursEntry) (fleet.FatigueEvaluation, error)
}

type Ledger struct {
	store fleet.Store
	eval  Evaluator
}

type Option func(*Ledger)

// WithEvaluator runs ev after each Record. Its failure is logged only.
func WithEvaluator(ev Evaluator) Option {
	return func(l *Ledger) { l.eval = ev }
}

func New(store fleet.Store, opts ...Option) (*Ledger, error) {
	if store == nil {
		return nil, errors.New("fleet store is required")
	}
	l := &Ledger{store: store}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

type RecordInput struct {
	DriverID   int64
	Date       string
	Start      string
	End        string
	Notes      string
	RecordedBy int64
}

// Result is the stored entry plus the fatigue evaluation that followed it.
type Result struct {
	Entry   fleet.HoursEntry         `json:"entry"`
	Fatigue *fleet.FatigueEvaluation `json:"fatigue,omitempty"`
}

// Span is a parsed HH:MM interval in minutes since midnight.
type Span struct {
	Start int
	End   int
}

// ParseSpan parses both clocks of an entry.
func ParseSpan(start, end string) (Span, error) {
	s, err := fleet.ParseClock(start)
	if err != nil {
		return Span{}, err
	}
	e, err := fleet.ParseClock(end)
	if err != nil {
		return Span{}, err
	}
	return Span{Start: s, End: e}, nil
}

// Hours is the span length rounded to 2 decimals, clamped at zero.
func (s Span) Hours() float64 {
	mins := s.End - s.Start
	if mins < 0 {
		mins = 0
	}
	return fleet.Round2(float64(mins) / 60)
}

// Duration returns the hours between two HH:MM clocks, clamped at zero.
func Duration(start, end string) (float64, error) {
	span, err := ParseSpan(start, end)
	if err != nil {
		return 0, err
	}
	return span.Hours(), nil
}

// Record appends an entry for the driver. Equal or inverted times yield a
// zero-hour entry rather than an error.
func (l *Ledger) Record(ctx context.Context, in RecordInput) (Result, error) {
	if in.DriverID <= 0 {
		return Result{}, fmt.Errorf("%w: driver id is required", fleet.ErrValidation)
	}
	if in.Date == "" || in.Start == "" || in.End == "" {
		return Result{}, fmt.Errorf("%w: date, start and end are required", fleet.ErrValidation)
	}
	if _, err := fleet.ParseDate(in.Date); err != nil {
		return Result{}, err
	}
	span, err := ParseSpan(in.Start, in.End)
	if err != nil {
		return Result{}, err
	}
	hrs := span.Hours()

	var res Result
	err = l.store.Update(ctx, func(tx fleet.Tx) error {
		if _, err := tx.Driver(ctx, in.DriverID); err != nil {
			return err
		}
		entry, err := tx.InsertHours(ctx, fleet.HoursEntry{
			DriverID:   in.DriverID,
			Date:       in.Date,
			Start:      fleet.FormatClock(span.Start),
			End:        fleet.FormatClock(span.End),
			Hours:      hrs,
			Notes:      strings.TrimSpace(in.Notes),
			RecordedBy: in.RecordedBy,
		})
		if err != nil {
			return err
		}
		fleet.RecordHistory(ctx, tx, fleet.SubjectDriver, in.DriverID,
			fmt.Sprintf("Registro de horas: %.2f horas en %s", hrs, in.Date))
		res.Entry = entry
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	obs.HoursRecorded.Inc()

	if l.eval != nil {
		ev, err := l.eval.EvaluateAfterRecord(ctx, res.Entry)
		if err != nil {
			obs.Warn("fatigue evaluation failed", map[string]any{
				"driver_id": in.DriverID,
				"date":      in.Date,
				"error":     err.Error(),
			})
		} else {
			res.Fatigue = &ev
		}
	}
	return res, nil
}

// DailyTotal sums the driver's entries for date; zero when there are none.
func (l *Ledger) DailyTotal(ctx context.Context, driverID int64, date string) (float64, error) {
	if _, err := fleet.ParseDate(date); err != nil {
		return 0, err
	}
	var total float64
	err := l.store.View(ctx, func(tx fleet.Tx) error {
		entries, err := tx.HoursOn(ctx, driverID, date)
		if err != nil {
			return err
		}
		total = fleet.SumHours(entries)
		return nil
	})
	return total, err
}

// ListByDriver returns the driver's entries newest first.
func (l *Ledger) ListByDriver(ctx context.Context, driverID int64) ([]fleet.HoursEntry, error) {
	var out []fleet.HoursEntry
	err := l.store.View(ctx, func(tx fleet.Tx) error {
		if _, err := tx.Driver(ctx, driverID); err != nil {
			return err
		}
		var err error
		out, err = tx.HoursByDriver(ctx, driverID)
		return err
	})
	return out, err
}
