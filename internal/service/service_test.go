package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fuelstation/backend/internal/cache"
	"fuelstation/backend/internal/domain"
	"fuelstation/backend/internal/store/memory"
)

const testStation = "st-test"

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()

	repo := memory.New()
	svc := New(repo, cache.NoopStatusCache{}, zap.NewNop(), Params{
		DefaultStationID:          testStation,
		EditWindowMinutes:         180,
		DeviationThresholdPercent: 20,
		DeviationLookbackDays:     7,
		StatusTTLSeconds:          30,
	})
	return svc, repo
}

func TestNewAppliesEngineDefaults(t *testing.T) {
	svc := New(memory.New(), nil, nil, Params{})

	require.True(t, svc.deviationThreshold.Equal(dec(t, "30")))
	require.Equal(t, 14, svc.lookbackDays)
	require.Equal(t, 180*time.Minute, svc.editWindow)
}

func staffCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "attendant", Role: domain.RoleStaff})
}

func managerCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "boss", Role: domain.RoleManager})
}

func dec(t *testing.T, raw string) decimal.Decimal {
	t.Helper()
	value, err := decimal.NewFromString(raw)
	require.NoError(t, err)
	return value
}

func seedPump(t *testing.T, repo *memory.Store, id, number, product string) domain.PumpConfiguration {
	t.Helper()

	now := time.Now().UTC()
	pump := domain.PumpConfiguration{
		ID:            id,
		StationID:     testStation,
		PumpNumber:    number,
		ProductCode:   product,
		MeterCapacity: decimal.RequireFromString("999999.9"),
		InstallDate:   "2023-01-15",
		Status:        domain.PumpStatusActive,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, repo.CreatePump(context.Background(), pump))
	return pump
}

func seedReading(t *testing.T, repo *memory.Store, pumpID, date string, typ domain.ReadingType, value string) domain.MeterReading {
	t.Helper()

	reading := domain.MeterReading{
		ID:          "read-" + pumpID + "-" + date + "-" + string(typ),
		PumpID:      pumpID,
		ReadingDate: date,
		Type:        typ,
		MeterValue:  decimal.RequireFromString(value),
		RecordedBy:  "attendant",
		RecordedAt:  time.Now().UTC(),
		State:       domain.ReadingStateRecorded,
	}
	require.NoError(t, repo.InsertReading(context.Background(), reading))
	return reading
}

func seedCalculation(t *testing.T, repo *memory.Store, pumpID, date, volume string, state domain.ApprovalState) domain.PmsCalculation {
	t.Helper()

	now := time.Now().UTC()
	saved, err := repo.UpsertCalculation(context.Background(), domain.PmsCalculation{
		PumpID:          pumpID,
		StationID:       testStation,
		CalculationDate: date,
		VolumeSold:      decimal.RequireFromString(volume),
		ApprovalState:   state,
		CalculatedAt:    now,
		UpdatedAt:       now,
	})
	require.NoError(t, err)
	return saved
}

func TestRequireRoleWithoutActor(t *testing.T) {
	svc, repo := newTestService(t)
	seedPump(t, repo, "pump-a", "P1", domain.ProductPMS)

	_, err := svc.RecordReading(context.Background(), domain.RecordReadingRequest{
		PumpID:      "pump-a",
		ReadingDate: "2025-03-10",
		Type:        "opening",
		MeterValue:  dec(t, "100"),
	})
	svcErr, ok := AsError(err)
	require.True(t, ok)
	require.Equal(t, KindForbidden, svcErr.Kind)
}

func TestListAuditLogsRequiresManager(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.ListAuditLogs(staffCtx(), "", 10)
	svcErr, ok := AsError(err)
	require.True(t, ok)
	require.Equal(t, KindForbidden, svcErr.Kind)
	require.Equal(t, domain.RoleManager, svcErr.RoleRequired)

	logs, err := svc.ListAuditLogs(managerCtx(), "", 10)
	require.NoError(t, err)
	require.NotNil(t, logs)
}
