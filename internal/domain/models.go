package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role is the station-level access role carried by every authenticated
// actor. Staff record readings and sales; managers additionally manage
// pump configuration and authorize overrides and approvals.
type Role string

const (
	RoleStaff   Role = "staff"
	RoleManager Role = "manager"
)

func ParseRole(raw string) (Role, bool) {
	switch Role(raw) {
	case RoleStaff:
		return RoleStaff, true
	case RoleManager:
		return RoleManager, true
	default:
		return "", false
	}
}

func (r Role) rank() int {
	switch r {
	case RoleStaff:
		return 1
	case RoleManager:
		return 2
	default:
		return 0
	}
}

// AtLeast reports whether r grants at least the access of min.
func (r Role) AtLeast(min Role) bool {
	return r.rank() >= min.rank()
}

type Actor struct {
	Username string
	Role     Role
}

// Fuel product codes. Only PMS pumps participate in meter reconciliation.
const (
	ProductPMS = "PMS"
	ProductAGO = "AGO"
	ProductDPK = "DPK"
)

type PumpStatus string

const (
	PumpStatusActive      PumpStatus = "active"
	PumpStatusMaintenance PumpStatus = "maintenance"
	PumpStatusCalibration PumpStatus = "calibration"
	PumpStatusRepair      PumpStatus = "repair"
)

func ParsePumpStatus(raw string) (PumpStatus, bool) {
	switch PumpStatus(raw) {
	case PumpStatusActive, PumpStatusMaintenance, PumpStatusCalibration, PumpStatusRepair:
		return PumpStatus(raw), true
	default:
		return "", false
	}
}

type ReadingType string

const (
	ReadingOpening ReadingType = "opening"
	ReadingClosing ReadingType = "closing"
)

func ParseReadingType(raw string) (ReadingType, bool) {
	switch ReadingType(raw) {
	case ReadingOpening, ReadingClosing:
		return ReadingType(raw), true
	default:
		return "", false
	}
}

type EstimationMethod string

const (
	EstimationTransactionBased  EstimationMethod = "transaction_based"
	EstimationHistoricalAverage EstimationMethod = "historical_average"
	EstimationManual            EstimationMethod = "manual"
)

func ParseEstimationMethod(raw string) (EstimationMethod, bool) {
	switch EstimationMethod(raw) {
	case EstimationTransactionBased, EstimationHistoricalAverage, EstimationManual:
		return EstimationMethod(raw), true
	default:
		return "", false
	}
}

// ReadingState tracks a reading's position in the correction workflow.
type ReadingState string

const (
	ReadingStateRecorded              ReadingState = "recorded"
	ReadingStateCorrected             ReadingState = "corrected"
	ReadingStateCorrectedWithOverride ReadingState = "corrected_with_override"
)

type ApprovalState string

const (
	ApprovalAutoApproved    ApprovalState = "auto_approved"
	ApprovalPendingApproval ApprovalState = "pending_approval"
	ApprovalApproved        ApprovalState = "approved"
	ApprovalRejected        ApprovalState = "rejected"
)

// PumpConfiguration describes one physical dispenser. Pumps are never
// hard-deleted; retirement happens via status and IsActive.
type PumpConfiguration struct {
	ID             string          `json:"id"`
	StationID      string          `json:"station_id"`
	PumpNumber     string          `json:"pump_number"`
	ProductCode    string          `json:"product_code"`
	MeterCapacity  decimal.Decimal `json:"meter_capacity"`
	InstallDate    string          `json:"install_date"`
	LastCalibrated string          `json:"last_calibrated,omitempty"`
	Status         PumpStatus      `json:"status"`
	IsActive       bool            `json:"is_active"`
	Notes          string          `json:"notes,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// MeterReading is one cumulative counter value for a (pump, date, type)
// key. There is at most one row per key; later submissions are
// corrections of the same row.
type MeterReading struct {
	ID               string           `json:"id"`
	PumpID           string           `json:"pump_id"`
	ReadingDate      string           `json:"reading_date"`
	Type             ReadingType      `json:"reading_type"`
	MeterValue       decimal.Decimal  `json:"meter_value"`
	RecordedBy       string           `json:"recorded_by"`
	RecordedAt       time.Time        `json:"recorded_at"`
	IsEstimated      bool             `json:"is_estimated"`
	EstimationMethod EstimationMethod `json:"estimation_method,omitempty"`
	Notes            string           `json:"notes,omitempty"`
	State            ReadingState     `json:"state"`
	CorrectedAt      *time.Time       `json:"corrected_at,omitempty"`
	OverrideManager  string           `json:"override_manager,omitempty"`
	OverrideReason   string           `json:"override_reason,omitempty"`
}

// PmsCalculation is the persisted reconciliation result for one pump-day.
// Exactly one row exists per (pump, date); recomputation overwrites it.
type PmsCalculation struct {
	ID                           string          `json:"id"`
	PumpID                       string          `json:"pump_id"`
	StationID                    string          `json:"station_id"`
	CalculationDate              string          `json:"calculation_date"`
	OpeningValue                 decimal.Decimal `json:"opening_value"`
	ClosingValue                 decimal.Decimal `json:"closing_value"`
	RawDelta                     decimal.Decimal `json:"raw_delta"`
	VolumeSold                   decimal.Decimal `json:"volume_sold"`
	RolloverApplied              bool            `json:"rollover_applied"`
	RolloverAmount               decimal.Decimal `json:"rollover_amount"`
	RolloverConfirmationRequired bool            `json:"rollover_confirmation_required"`
	DeviationPercent             decimal.Decimal `json:"deviation_percent"`
	DeviationFlagged             bool            `json:"deviation_flagged"`
	HasEstimatedInput            bool            `json:"has_estimated_input"`
	ApprovalState                ApprovalState   `json:"approval_state"`
	ApprovalNotes                string          `json:"approval_notes,omitempty"`
	ApprovedBy                   string          `json:"approved_by,omitempty"`
	Stale                        bool            `json:"stale"`
	CalculatedAt                 time.Time       `json:"calculated_at"`
	UpdatedAt                    time.Time       `json:"updated_at"`
}

// PumpSale is a discrete fuel sale captured through an alternate channel
// (POS attendant entry). Sales feed transaction-based estimation when a
// meter reading is missing.
type PumpSale struct {
	ID         string          `json:"id"`
	PumpID     string          `json:"pump_id"`
	SaleDate   string          `json:"sale_date"`
	Litres     decimal.Decimal `json:"litres"`
	Amount     decimal.Decimal `json:"amount"`
	RecordedBy string          `json:"recorded_by"`
	CreatedAt  time.Time       `json:"created_at"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	StationID     string    `json:"station_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      Role
	Active    bool
	CreatedAt time.Time
}

// ---- request / response shapes ----

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type StaffCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type StaffUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type PumpCreateRequest struct {
	StationID      string          `json:"station_id"`
	PumpNumber     string          `json:"pump_number"`
	ProductCode    string          `json:"product_code"`
	MeterCapacity  decimal.Decimal `json:"meter_capacity"`
	InstallDate    string          `json:"install_date"`
	LastCalibrated string          `json:"last_calibrated,omitempty"`
	Notes          string          `json:"notes,omitempty"`
}

type PumpUpdateRequest struct {
	PumpNumber     *string          `json:"pump_number,omitempty"`
	ProductCode    *string          `json:"product_code,omitempty"`
	MeterCapacity  *decimal.Decimal `json:"meter_capacity,omitempty"`
	LastCalibrated *string          `json:"last_calibrated,omitempty"`
	Notes          *string          `json:"notes,omitempty"`
}

type PumpStatusUpdateRequest struct {
	Status string `json:"status"`
	Note   string `json:"note,omitempty"`
}

type RecordReadingRequest struct {
	PumpID           string          `json:"pump_id"`
	ReadingDate      string          `json:"reading_date"`
	Type             string          `json:"reading_type"`
	MeterValue       decimal.Decimal `json:"meter_value"`
	Notes            string          `json:"notes,omitempty"`
	IsEstimated      bool            `json:"is_estimated,omitempty"`
	EstimationMethod string          `json:"estimation_method,omitempty"`
}

type BulkReadingEntry struct {
	PumpID     string          `json:"pump_id"`
	MeterValue decimal.Decimal `json:"meter_value"`
	Notes      string          `json:"notes,omitempty"`
}

type BulkReadingsRequest struct {
	StationID   string             `json:"station_id"`
	ReadingDate string             `json:"reading_date"`
	Type        string             `json:"reading_type"`
	Readings    []BulkReadingEntry `json:"readings"`
}

// Bulk submissions apply per item; each entry succeeds or fails on its
// own and the outcome is reported individually.
type BulkReadingOutcome struct {
	PumpID    string `json:"pump_id"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
	ReadingID string `json:"reading_id,omitempty"`
}

const (
	BulkOutcomeAccepted = "accepted"
	BulkOutcomeRejected = "rejected"
)

type BulkReadingsResponse struct {
	StationID   string               `json:"station_id"`
	ReadingDate string               `json:"reading_date"`
	Type        string               `json:"reading_type"`
	Accepted    int                  `json:"accepted"`
	Rejected    int                  `json:"rejected"`
	Outcomes    []BulkReadingOutcome `json:"outcomes"`
}

type PumpReadingStatus struct {
	PumpID           string `json:"pump_id"`
	PumpNumber       string `json:"pump_number"`
	HasOpening       bool   `json:"has_opening"`
	HasClosing       bool   `json:"has_closing"`
	OpeningEstimated bool   `json:"opening_estimated"`
	ClosingEstimated bool   `json:"closing_estimated"`
	Complete         bool   `json:"complete"`
}

type DailyReadingStatus struct {
	StationID    string              `json:"station_id"`
	Date         string              `json:"date"`
	Pumps        []PumpReadingStatus `json:"pumps"`
	PendingCount int                 `json:"pending_count"`
}

type OverridePayload struct {
	IsManager bool   `json:"is_manager"`
	ManagerID string `json:"manager_id"`
	Reason    string `json:"reason"`
}

type UpdateReadingRequest struct {
	MeterValue *decimal.Decimal `json:"meter_value,omitempty"`
	Notes      *string          `json:"notes,omitempty"`
	Override   *OverridePayload `json:"override,omitempty"`
}

type CalculateRequest struct {
	StationID        string `json:"station_id"`
	Date             string `json:"date"`
	ForceRecalculate bool   `json:"force_recalculate,omitempty"`
}

type PumpCalculationOutcome struct {
	PumpID      string          `json:"pump_id"`
	PumpNumber  string          `json:"pump_number"`
	Status      string          `json:"status"`
	Reason      string          `json:"reason,omitempty"`
	Calculation *PmsCalculation `json:"calculation,omitempty"`
}

const (
	CalcOutcomeCalculated = "calculated"
	CalcOutcomeUnchanged  = "unchanged"
	CalcOutcomeSkipped    = "skipped"
)

type CalculateResponse struct {
	StationID  string                   `json:"station_id"`
	Date       string                   `json:"date"`
	Calculated int                      `json:"calculated"`
	Unchanged  int                      `json:"unchanged"`
	Skipped    int                      `json:"skipped"`
	Results    []PumpCalculationOutcome `json:"results"`
}

type ConfirmRolloverRequest struct {
	PumpID          string          `json:"pump_id"`
	CalculationDate string          `json:"calculation_date"`
	RolloverValue   decimal.Decimal `json:"rollover_value"`
	NewReading      decimal.Decimal `json:"new_reading"`
}

type ApprovalRequest struct {
	Approved bool   `json:"approved"`
	Notes    string `json:"notes,omitempty"`
}

type RecordPumpSaleRequest struct {
	PumpID   string          `json:"pump_id"`
	SaleDate string          `json:"sale_date"`
	Litres   decimal.Decimal `json:"litres"`
	Amount   decimal.Decimal `json:"amount"`
}

// DeviationQuery carries raw query parameters for the deviation report.
// Threshold and Days override the engine defaults when non-empty.
type DeviationQuery struct {
	StationID string
	DateFrom  string
	DateTo    string
	Threshold string
	Days      string
}

type DeviationItem struct {
	Calculation     PmsCalculation  `json:"calculation"`
	PumpNumber      string          `json:"pump_number"`
	TrailingAverage decimal.Decimal `json:"trailing_average"`
}

type DeviationReport struct {
	StationID        string          `json:"station_id"`
	ThresholdPercent decimal.Decimal `json:"threshold_percent"`
	LookbackDays     int             `json:"lookback_days"`
	GeneratedAt      string          `json:"generated_at"`
	Items            []DeviationItem `json:"items"`
}
