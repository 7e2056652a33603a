package hours

import (
	"context"
	"errors"
	"testing"
	"time"

	"transconecta.io/internal/fatigue"
	"transconecta.io/internal/fleet"
)

type stubEvaluator struct {
	evaluateFn func(ctx context.Context, recorded fleet.HoursEntry) (fleet.FatigueEvaluation, error)
}

func (s stubEvaluator) EvaluateAfterRecord(ctx context.Context, recorded fleet.HoursEntry) (fleet.FatigueEvaluation, error) {
	return s.evaluateFn(ctx, recorded)
}

func seedDriver(t *testing.T, store fleet.Store) fleet.Driver {
	t.Helper()
	var d fleet.Driver
	err := store.Update(context.Background(), func(tx fleet.Tx) error {
		var err error
		d, err = tx.InsertDriver(context.Background(), fleet.Driver{Name: "Ana", NationalID: "100", Status: fleet.StatusActive})
		return err
	})
	if err != nil {
		t.Fatalf("seed driver: %v", err)
	}
	return d
}

func TestDuration(t *testing.T) {
	cases := []struct {
		start, end string
		want       float64
	}{
		{"08:00", "12:30", 4.5},
		{"08:00", "08:00", 0},
		{"14:00", "09:00", 0},
		{"06:10", "07:00:00", 0.83},
	}
	for _, tc := range cases {
		got, err := Duration(tc.start, tc.end)
		if err != nil {
			t.Fatalf("duration %s-%s: %v", tc.start, tc.end, err)
		}
		if got != tc.want {
			t.Fatalf("duration %s-%s = %v, want %v", tc.start, tc.end, got, tc.want)
		}
	}
	if _, err := Duration("8am", "09:00"); !errors.Is(err, fleet.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRecordAndDailyTotal(t *testing.T) {
	ctx := context.Background()
	store := fleet.NewInMemory()
	d := seedDriver(t, store)

	calls := 0
	ledger, err := New(store, WithEvaluator(stubEvaluator{
		evaluateFn: func(_ context.Context, recorded fleet.HoursEntry) (fleet.FatigueEvaluation, error) {
			calls++
			if recorded.DriverID != d.ID || recorded.ID == 0 {
				t.Fatalf("unexpected evaluated entry %+v", recorded)
			}
			return fleet.FatigueEvaluation{Date: recorded.Date}, nil
		},
	}))
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}

	res, err := ledger.Record(ctx, RecordInput{DriverID: d.ID, Date: "2024-01-10", Start: "06:00", End: "11:00", RecordedBy: 9})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if res.Entry.Hours != 5 || res.Fatigue == nil {
		t.Fatalf("unexpected result %+v", res)
	}
	if _, err := ledger.Record(ctx, RecordInput{DriverID: d.ID, Date: "2024-01-10", Start: "13:00", End: "17:00"}); err != nil {
		t.Fatalf("record second: %v", err)
	}
	if _, err := ledger.Record(ctx, RecordInput{DriverID: d.ID, Date: "2024-01-11", Start: "13:00", End: "14:00"}); err != nil {
		t.Fatalf("record other day: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected evaluator on every record, got %d", calls)
	}

	for i := 0; i < 2; i++ {
		total, err := ledger.DailyTotal(ctx, d.ID, "2024-01-10")
		if err != nil {
			t.Fatalf("daily total: %v", err)
		}
		if total != 9 {
			t.Fatalf("expected 9h, got %v", total)
		}
	}
	total, err := ledger.DailyTotal(ctx, d.ID, "2024-01-12")
	if err != nil || total != 0 {
		t.Fatalf("expected empty day to total 0, got %v %v", total, err)
	}

	entries, err := ledger.ListByDriver(ctx, d.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 3 || entries[0].Date != "2024-01-11" || entries[1].End != "17:00" {
		t.Fatalf("unexpected order %+v", entries)
	}

	var history []fleet.HistoryEvent
	_ = store.View(ctx, func(tx fleet.Tx) error {
		history, _ = tx.History(ctx, fleet.SubjectDriver, d.ID)
		return nil
	})
	if len(history) != 3 || history[2].Description != "Registro de horas: 5.00 horas en 2024-01-10" {
		t.Fatalf("unexpected history %+v", history)
	}
}

func TestParseSpan(t *testing.T) {
	span, err := ParseSpan("06:10", "07:00:00")
	if err != nil {
		t.Fatalf("parse span: %v", err)
	}
	if span.Start != 370 || span.End != 420 || span.Hours() != 0.83 {
		t.Fatalf("unexpected span %+v (%v h)", span, span.Hours())
	}
	if _, err := ParseSpan("06:00", "25:00"); !errors.Is(err, fleet.ErrValidation) {
		t.Fatalf("expected validation error for end clock, got %v", err)
	}
}

func TestBackfilledEntryRestsFromItsOwnEnd(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := fleet.NewInMemory(fleet.WithClock(clock))
	d := seedDriver(t, store)
	engine, err := fatigue.New(store, fatigue.WithClock(clock), fatigue.WithLocation(time.UTC))
	if err != nil {
		t.Fatalf("fatigue engine: %v", err)
	}
	ledger, err := New(store, WithEvaluator(engine))
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}

	res, err := ledger.Record(ctx, RecordInput{DriverID: d.ID, Date: "2024-01-10", Start: "10:00", End: "18:00"})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if res.Fatigue == nil || res.Fatigue.Alert != nil {
		t.Fatalf("8h must not raise an alert, got %+v", res.Fatigue)
	}

	res, err = ledger.Record(ctx, RecordInput{DriverID: d.ID, Date: "2024-01-10", Start: "06:00", End: "08:00"})
	if err != nil {
		t.Fatalf("record backfill: %v", err)
	}
	ev := res.Fatigue
	if ev == nil || ev.Alert == nil || ev.DailyTotal != 10 {
		t.Fatalf("expected alert over 10h, got %+v", ev)
	}
	want := time.Date(2024, 1, 10, 14, 0, 0, 0, time.UTC)
	if ev.RestUntil == nil || !ev.RestUntil.Equal(want) {
		t.Fatalf("rest until %v, want %v", ev.RestUntil, want)
	}
	if !ev.ActiveNow {
		t.Fatal("rest window should be open at noon")
	}
}

func TestRecordSurvivesEvaluatorFailure(t *testing.T) {
	store := fleet.NewInMemory()
	d := seedDriver(t, store)
	ledger, _ := New(store, WithEvaluator(stubEvaluator{
		evaluateFn: func(context.Context, fleet.HoursEntry) (fleet.FatigueEvaluation, error) {
			return fleet.FatigueEvaluation{}, errors.New("boom")
		},
	}))
	res, err := ledger.Record(context.Background(), RecordInput{DriverID: d.ID, Date: "2024-01-10", Start: "06:00", End: "07:00"})
	if err != nil {
		t.Fatalf("record should not fail: %v", err)
	}
	if res.Fatigue != nil {
		t.Fatal("failed evaluation must not be reported")
	}
}

func TestRecordValidation(t *testing.T) {
	store := fleet.NewInMemory()
	ledger, _ := New(store)
	ctx := context.Background()

	if _, err := ledger.Record(ctx, RecordInput{DriverID: 1, Date: "10/01/2024", Start: "06:00", End: "07:00"}); !errors.Is(err, fleet.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := ledger.Record(ctx, RecordInput{DriverID: 1, Date: "2024-01-10"}); !errors.Is(err, fleet.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := ledger.Record(ctx, RecordInput{DriverID: 42, Date: "2024-01-10", Start: "06:00", End: "07:00"}); !errors.Is(err, fleet.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
