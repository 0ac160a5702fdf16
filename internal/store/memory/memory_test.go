package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fuelstation/backend/internal/domain"
	"fuelstation/backend/internal/store"
)

func TestInsertReadingEnforcesKeyUniqueness(t *testing.T) {
	s := New()
	ctx := context.Background()

	reading := domain.MeterReading{
		ID:          "read-1",
		PumpID:      "pump-a",
		ReadingDate: "2025-03-10",
		Type:        domain.ReadingOpening,
		MeterValue:  decimal.RequireFromString("100"),
	}
	if err := s.InsertReading(ctx, reading); err != nil {
		t.Fatalf("insert: %v", err)
	}

	reading.ID = "read-2"
	if err := s.InsertReading(ctx, reading); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for same pump-date-type, got %v", err)
	}

	reading.Type = domain.ReadingClosing
	if err := s.InsertReading(ctx, reading); err != nil {
		t.Fatalf("closing reading for same pump-day should insert: %v", err)
	}
}

func TestListReadingsAppliesLimit(t *testing.T) {
	s := New()
	ctx := context.Background()

	for i, date := range []string{"2025-03-08", "2025-03-09", "2025-03-10"} {
		if err := s.InsertReading(ctx, domain.MeterReading{
			ID:          "read-" + string(rune('a'+i)),
			PumpID:      "pump-a",
			ReadingDate: date,
			Type:        domain.ReadingOpening,
			MeterValue:  decimal.RequireFromString("100"),
		}); err != nil {
			t.Fatalf("insert %s: %v", date, err)
		}
	}

	readings, err := s.ListReadings(ctx, store.ReadingFilter{PumpID: "pump-a", Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(readings) != 2 {
		t.Fatalf("expected limit of 2, got %d", len(readings))
	}
	if readings[0].ReadingDate != "2025-03-08" {
		t.Fatalf("expected date-ordered page, got %s first", readings[0].ReadingDate)
	}
}

func TestUpsertCalculationKeepsOriginalID(t *testing.T) {
	s := New()
	ctx := context.Background()

	first, err := s.UpsertCalculation(ctx, domain.PmsCalculation{
		PumpID:          "pump-a",
		CalculationDate: "2025-03-10",
		VolumeSold:      decimal.RequireFromString("40"),
	})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if first.ID == "" {
		t.Fatalf("expected generated calculation id")
	}

	second, err := s.UpsertCalculation(ctx, domain.PmsCalculation{
		PumpID:          "pump-a",
		CalculationDate: "2025-03-10",
		VolumeSold:      decimal.RequireFromString("55"),
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected upsert to keep id %s, got %s", first.ID, second.ID)
	}
	if !second.VolumeSold.Equal(decimal.RequireFromString("55")) {
		t.Fatalf("expected overwritten volume, got %s", second.VolumeSold)
	}
}

func TestListPumpCalculationsBeforeFilters(t *testing.T) {
	s := New()
	ctx := context.Background()

	seed := func(date string, state domain.ApprovalState) {
		t.Helper()
		if _, err := s.UpsertCalculation(ctx, domain.PmsCalculation{
			PumpID:          "pump-a",
			CalculationDate: date,
			VolumeSold:      decimal.RequireFromString("10"),
			ApprovalState:   state,
		}); err != nil {
			t.Fatalf("seed %s: %v", date, err)
		}
	}
	seed("2025-03-07", domain.ApprovalAutoApproved)
	seed("2025-03-08", domain.ApprovalRejected)
	seed("2025-03-09", domain.ApprovalApproved)
	seed("2025-03-10", domain.ApprovalAutoApproved)

	calcs, err := s.ListPumpCalculationsBefore(ctx, "pump-a", "2025-03-10", 7,
		[]domain.ApprovalState{domain.ApprovalAutoApproved, domain.ApprovalApproved})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(calcs) != 2 {
		t.Fatalf("expected 2 calculations before the date, got %d", len(calcs))
	}
	if calcs[0].CalculationDate != "2025-03-09" || calcs[1].CalculationDate != "2025-03-07" {
		t.Fatalf("expected newest-first ordering, got %s then %s",
			calcs[0].CalculationDate, calcs[1].CalculationDate)
	}
}

func TestPumpNumberUniquePerStation(t *testing.T) {
	s := New()
	ctx := context.Background()
	capacity := decimal.RequireFromString("999999.9")

	base := domain.PumpConfiguration{
		ID: "pump-a", StationID: "st-1", PumpNumber: "P1",
		ProductCode: domain.ProductPMS, MeterCapacity: capacity,
	}
	if err := s.CreatePump(ctx, base); err != nil {
		t.Fatalf("create: %v", err)
	}

	clash := base
	clash.ID = "pump-b"
	if err := s.CreatePump(ctx, clash); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for same station and number, got %v", err)
	}

	otherStation := base
	otherStation.ID = "pump-c"
	otherStation.StationID = "st-2"
	if err := s.CreatePump(ctx, otherStation); err != nil {
		t.Fatalf("same number at another station should create: %v", err)
	}
}

func TestAuditLogsNewestFirstWithLimit(t *testing.T) {
	s := New()
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		if err := s.CreateAuditLog(ctx, domain.AuditLog{
			ID:        "audit-" + string(rune('a'+i)),
			StationID: "st-1",
			Action:    "test",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}); err != nil {
			t.Fatalf("create audit log: %v", err)
		}
	}

	logs, err := s.ListAuditLogs(ctx, "st-1", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected limit of 2, got %d", len(logs))
	}
	if logs[0].ID != "audit-c" {
		t.Fatalf("expected newest entry first, got %s", logs[0].ID)
	}
}
