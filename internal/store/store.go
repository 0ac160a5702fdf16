package store

import (
	"context"
	"errors"

	"fuelstation/backend/internal/domain"
)

var (
	// ErrNotFound is returned when the requested entity does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicate is returned when a uniqueness constraint would be
	// violated (pump number per station, reading per pump-date-type).
	ErrDuplicate = errors.New("store: duplicate")
	// ErrInvalid is returned for malformed arguments that the storage
	// layer cannot persist.
	ErrInvalid = errors.New("store: invalid argument")
)

// ReadingFilter narrows ListReadings. Zero values mean "any".
type ReadingFilter struct {
	StationID string
	PumpID    string
	DateFrom  string
	DateTo    string
	Type      domain.ReadingType
	Limit     int
}

// CalculationFilter narrows ListCalculations. Zero values mean "any".
type CalculationFilter struct {
	StationID     string
	PumpID        string
	DateFrom      string
	DateTo        string
	FlaggedOnly   bool
	ApprovalState domain.ApprovalState
	Limit         int
}

// Repository is the persistence boundary for the reconciliation
// backend. Implementations must be safe for concurrent use.
type Repository interface {
	// Pumps.
	CreatePump(ctx context.Context, pump domain.PumpConfiguration) error
	UpdatePump(ctx context.Context, pump domain.PumpConfiguration) error
	GetPump(ctx context.Context, id string) (domain.PumpConfiguration, error)
	ListPumps(ctx context.Context, stationID string, includeInactive bool) ([]domain.PumpConfiguration, error)

	// Meter readings. InsertReading returns ErrDuplicate when a row
	// already exists for the (pump, date, type) key.
	InsertReading(ctx context.Context, reading domain.MeterReading) error
	UpdateReading(ctx context.Context, reading domain.MeterReading) error
	GetReadingByID(ctx context.Context, id string) (domain.MeterReading, error)
	GetReadingByKey(ctx context.Context, pumpID, date string, typ domain.ReadingType) (domain.MeterReading, error)
	ListReadings(ctx context.Context, filter ReadingFilter) ([]domain.MeterReading, error)

	// Calculations. UpsertCalculation replaces any existing row for the
	// same (pump, date) key while keeping the original row id.
	UpsertCalculation(ctx context.Context, calc domain.PmsCalculation) (domain.PmsCalculation, error)
	GetCalculationByID(ctx context.Context, id string) (domain.PmsCalculation, error)
	GetCalculationByKey(ctx context.Context, pumpID, date string) (domain.PmsCalculation, error)
	ListCalculations(ctx context.Context, filter CalculationFilter) ([]domain.PmsCalculation, error)
	// ListPumpCalculationsBefore returns up to limit calculations for
	// the pump strictly before the given date, newest first, restricted
	// to the given approval states (empty slice means any state).
	ListPumpCalculationsBefore(ctx context.Context, pumpID, before string, limit int, states []domain.ApprovalState) ([]domain.PmsCalculation, error)
	SetCalculationApproval(ctx context.Context, id string, state domain.ApprovalState, approvedBy, notes string) error
	MarkCalculationStale(ctx context.Context, pumpID, date string) error

	// Pump sales.
	CreatePumpSale(ctx context.Context, sale domain.PumpSale) error
	ListPumpSales(ctx context.Context, pumpID, date string) ([]domain.PumpSale, error)

	// Audit trail.
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, stationID string, limit int) ([]domain.AuditLog, error)

	// User accounts.
	GetUserByUsername(ctx context.Context, username string) (domain.UserAccount, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username, passwordHash string) error
}
