package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fuelstation/backend/internal/domain"
	"fuelstation/backend/internal/metrics"
	"fuelstation/backend/internal/store"
	"fuelstation/backend/internal/xid"
)

// rolloverAnomalyFactor guards against an undetected double rollover. A
// rollover-corrected volume more than twice the trailing average cannot
// be distinguished from multiple wraps, so it is held for confirmation.
var rolloverAnomalyFactor = decimal.NewFromInt(2)

var hundred = decimal.NewFromInt(100)

// CalculatePmsForDate reconciles every active PMS pump at the station
// for the given day. Each pump is processed independently; a pump that
// cannot be calculated is reported as skipped, never as a batch failure.
func (s *Service) CalculatePmsForDate(ctx context.Context, req domain.CalculateRequest) (domain.CalculateResponse, error) {
	if _, err := s.requireRole(ctx, domain.RoleStaff); err != nil {
		return domain.CalculateResponse{}, err
	}

	if req.StationID == "" {
		req.StationID = s.defaultStationID
	}
	if !validDate(req.Date) {
		return domain.CalculateResponse{}, Invalid("date", "date must be YYYY-MM-DD")
	}

	pumps, err := s.repo.ListPumps(ctx, req.StationID, false)
	if err != nil {
		return domain.CalculateResponse{}, err
	}

	resp := domain.CalculateResponse{
		StationID: req.StationID,
		Date:      req.Date,
		Results:   make([]domain.PumpCalculationOutcome, 0, len(pumps)),
	}

	for _, pump := range pumps {
		if pump.ProductCode != domain.ProductPMS {
			continue
		}
		outcome := s.calculatePump(ctx, pump, req.Date, req.ForceRecalculate)
		switch outcome.Status {
		case domain.CalcOutcomeCalculated:
			resp.Calculated++
		case domain.CalcOutcomeUnchanged:
			resp.Unchanged++
		default:
			resp.Skipped++
		}
		metrics.IncCalculation(outcome.Status)
		resp.Results = append(resp.Results, outcome)
	}

	s.logAudit(ctx, req.StationID, "pms_calculate", "pms_calculation", req.Date,
		fmt.Sprintf("calculated=%d,unchanged=%d,skipped=%d", resp.Calculated, resp.Unchanged, resp.Skipped))
	return resp, nil
}

func (s *Service) calculatePump(ctx context.Context, pump domain.PumpConfiguration, date string, force bool) domain.PumpCalculationOutcome {
	outcome := domain.PumpCalculationOutcome{PumpID: pump.ID, PumpNumber: pump.PumpNumber}

	prior, err := s.repo.GetCalculationByKey(ctx, pump.ID, date)
	if err == nil && !force && !prior.Stale {
		// Calculation is idempotent per pump-day. A pending rollover
		// confirmation is also left alone until a manager resolves it.
		outcome.Status = domain.CalcOutcomeUnchanged
		outcome.Calculation = &prior
		return outcome
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		outcome.Status = domain.CalcOutcomeSkipped
		outcome.Reason = "failed to load prior calculation"
		return outcome
	}

	opening, openErr := s.repo.GetReadingByKey(ctx, pump.ID, date, domain.ReadingOpening)
	closing, closeErr := s.repo.GetReadingByKey(ctx, pump.ID, date, domain.ReadingClosing)
	if openErr != nil && !errors.Is(openErr, store.ErrNotFound) {
		outcome.Status = domain.CalcOutcomeSkipped
		outcome.Reason = "failed to load opening reading"
		return outcome
	}
	if closeErr != nil && !errors.Is(closeErr, store.ErrNotFound) {
		outcome.Status = domain.CalcOutcomeSkipped
		outcome.Reason = "failed to load closing reading"
		return outcome
	}

	missingOpening := errors.Is(openErr, store.ErrNotFound)
	missingClosing := errors.Is(closeErr, store.ErrNotFound)

	switch {
	case missingOpening && missingClosing:
		outcome.Status = domain.CalcOutcomeSkipped
		outcome.Reason = "insufficient data: no readings for this pump-day"
		return outcome
	case missingClosing:
		estimated, reason := s.estimateReading(ctx, pump, date, domain.ReadingClosing, opening.MeterValue)
		if reason != "" {
			outcome.Status = domain.CalcOutcomeSkipped
			outcome.Reason = reason
			return outcome
		}
		closing = estimated
	case missingOpening:
		estimated, reason := s.estimateReading(ctx, pump, date, domain.ReadingOpening, closing.MeterValue)
		if reason != "" {
			outcome.Status = domain.CalcOutcomeSkipped
			outcome.Reason = reason
			return outcome
		}
		opening = estimated
	}

	rawDelta := closing.MeterValue.Sub(opening.MeterValue)
	volume := rawDelta
	rolloverApplied := false
	rolloverAmount := decimal.Zero
	confirmationRequired := false

	trailingAvg, haveBaseline := s.trailingAverage(ctx, pump.ID, date)

	if rawDelta.IsNegative() {
		// The counter wrapped at capacity. Volume is the distance to the
		// wrap point plus the new counter position.
		rolloverAmount = pump.MeterCapacity.Sub(opening.MeterValue)
		volume = rolloverAmount.Add(closing.MeterValue)
		rolloverApplied = true
		metrics.IncRolloverApplied()

		if haveBaseline && trailingAvg.IsPositive() && volume.GreaterThan(trailingAvg.Mul(rolloverAnomalyFactor)) {
			confirmationRequired = true
		}
	}

	deviationPercent := decimal.Zero
	deviationFlagged := false
	if haveBaseline && trailingAvg.IsPositive() {
		deviationPercent = volume.Sub(trailingAvg).Abs().Div(trailingAvg).Mul(hundred).Round(2)
		if deviationPercent.GreaterThan(s.deviationThreshold) {
			deviationFlagged = true
			metrics.IncDeviationFlagged()
		}
	}

	hasEstimated := opening.IsEstimated || closing.IsEstimated
	approval := domain.ApprovalAutoApproved
	if hasEstimated || confirmationRequired {
		approval = domain.ApprovalPendingApproval
	}

	now := time.Now().UTC()
	calc := domain.PmsCalculation{
		PumpID:                       pump.ID,
		StationID:                    pump.StationID,
		CalculationDate:              date,
		OpeningValue:                 opening.MeterValue,
		ClosingValue:                 closing.MeterValue,
		RawDelta:                     rawDelta,
		VolumeSold:                   volume,
		RolloverApplied:              rolloverApplied,
		RolloverAmount:               rolloverAmount,
		RolloverConfirmationRequired: confirmationRequired,
		DeviationPercent:             deviationPercent,
		DeviationFlagged:             deviationFlagged,
		HasEstimatedInput:            hasEstimated,
		ApprovalState:                approval,
		CalculatedAt:                 now,
		UpdatedAt:                    now,
	}

	saved, err := s.repo.UpsertCalculation(ctx, calc)
	if err != nil {
		outcome.Status = domain.CalcOutcomeSkipped
		outcome.Reason = "failed to persist calculation"
		return outcome
	}

	outcome.Status = domain.CalcOutcomeCalculated
	outcome.Calculation = &saved
	return outcome
}

// estimateReading builds and persists a synthetic counterpart reading
// anchored on the one reading that does exist. Pump sales for the day
// are preferred; the trailing average is the fallback. Returns a
// non-empty reason when no estimate is possible.
func (s *Service) estimateReading(ctx context.Context, pump domain.PumpConfiguration, date string, typ domain.ReadingType, anchor decimal.Decimal) (domain.MeterReading, string) {
	volume, method, ok := s.estimateVolume(ctx, pump.ID, date)
	if !ok {
		return domain.MeterReading{}, fmt.Sprintf("insufficient data to estimate %s reading", typ)
	}

	var value decimal.Decimal
	if typ == domain.ReadingClosing {
		value = anchor.Add(volume)
		if value.GreaterThan(pump.MeterCapacity) {
			value = value.Sub(pump.MeterCapacity)
		}
	} else {
		value = anchor.Sub(volume)
		if value.IsNegative() {
			value = value.Add(pump.MeterCapacity)
		}
	}

	reading := domain.MeterReading{
		ID:               xid.New("read"),
		PumpID:           pump.ID,
		ReadingDate:      date,
		Type:             typ,
		MeterValue:       value,
		RecordedBy:       "system",
		RecordedAt:       time.Now().UTC(),
		IsEstimated:      true,
		EstimationMethod: method,
		Notes:            "estimated by reconciliation engine",
		State:            domain.ReadingStateRecorded,
	}

	if err := s.repo.InsertReading(ctx, reading); err != nil {
		return domain.MeterReading{}, "failed to persist estimated reading"
	}
	s.invalidateStatus(ctx, pump.StationID, date)
	metrics.IncReadingRecorded(metrics.SourceEstimated)
	return reading, ""
}

func (s *Service) estimateVolume(ctx context.Context, pumpID, date string) (decimal.Decimal, domain.EstimationMethod, bool) {
	sales, err := s.repo.ListPumpSales(ctx, pumpID, date)
	if err == nil && len(sales) > 0 {
		total := decimal.Zero
		for _, sale := range sales {
			total = total.Add(sale.Litres)
		}
		if total.IsPositive() {
			return total, domain.EstimationTransactionBased, true
		}
	}

	avg, ok := s.trailingAverage(ctx, pumpID, date)
	if ok && avg.IsPositive() {
		return avg, domain.EstimationHistoricalAverage, true
	}
	return decimal.Zero, "", false
}

// trailingAverage is the mean volume of recent finalized calculations
// strictly before the given date. Rejected calculations are excluded.
func (s *Service) trailingAverage(ctx context.Context, pumpID, before string) (decimal.Decimal, bool) {
	prior, err := s.repo.ListPumpCalculationsBefore(ctx, pumpID, before, s.lookbackDays,
		[]domain.ApprovalState{domain.ApprovalAutoApproved, domain.ApprovalApproved})
	if err != nil || len(prior) == 0 {
		return decimal.Zero, false
	}

	total := decimal.Zero
	for _, calc := range prior {
		total = total.Add(calc.VolumeSold)
	}
	return total.Div(decimal.NewFromInt(int64(len(prior)))), true
}

// ConfirmRollover lets a manager settle a rollover calculation by
// supplying the volume dispensed before the wrap and the counter
// position after it.
func (s *Service) ConfirmRollover(ctx context.Context, req domain.ConfirmRolloverRequest) (domain.PmsCalculation, error) {
	actor, err := s.requireRole(ctx, domain.RoleManager)
	if err != nil {
		return domain.PmsCalculation{}, err
	}

	if !validDate(req.CalculationDate) {
		return domain.PmsCalculation{}, Invalid("calculation_date", "calculation date must be YYYY-MM-DD")
	}
	if req.RolloverValue.IsNegative() {
		return domain.PmsCalculation{}, Invalid("rollover_value", "rollover value cannot be negative")
	}
	if req.NewReading.IsNegative() {
		return domain.PmsCalculation{}, Invalid("new_reading", "new reading cannot be negative")
	}

	pump, err := s.repo.GetPump(ctx, req.PumpID)
	if err != nil {
		return domain.PmsCalculation{}, fromStore(err, "pump not found", "")
	}
	if req.NewReading.GreaterThan(pump.MeterCapacity) {
		return domain.PmsCalculation{}, Invalid("new_reading", "new reading exceeds meter capacity")
	}

	calc, err := s.repo.GetCalculationByKey(ctx, pump.ID, req.CalculationDate)
	if err != nil {
		return domain.PmsCalculation{}, fromStore(err, "calculation not found", "")
	}
	// Held calculations are the usual case, but a manager may also
	// restate an auto-resolved rollover the operator has questioned.
	if !calc.RolloverConfirmationRequired && !calc.RolloverApplied {
		return domain.PmsCalculation{}, Conflict("calculation has no rollover to confirm")
	}

	now := time.Now().UTC()
	calc.VolumeSold = req.RolloverValue.Add(req.NewReading)
	calc.ClosingValue = req.NewReading
	calc.RolloverApplied = true
	calc.RolloverAmount = req.RolloverValue
	calc.RolloverConfirmationRequired = false
	calc.ApprovalState = domain.ApprovalApproved
	calc.ApprovedBy = actor.Username
	calc.Stale = false
	calc.UpdatedAt = now

	// Keep the stored closing reading consistent with the confirmation.
	if closing, err := s.repo.GetReadingByKey(ctx, pump.ID, req.CalculationDate, domain.ReadingClosing); err == nil {
		closing.MeterValue = req.NewReading
		closing.State = domain.ReadingStateCorrected
		closing.CorrectedAt = &now
		if err := s.repo.UpdateReading(ctx, closing); err != nil {
			return domain.PmsCalculation{}, err
		}
	}

	saved, err := s.repo.UpsertCalculation(ctx, calc)
	if err != nil {
		return domain.PmsCalculation{}, err
	}

	s.invalidateStatus(ctx, pump.StationID, req.CalculationDate)
	s.logAudit(ctx, pump.StationID, "rollover_confirm", "pms_calculation", saved.ID,
		fmt.Sprintf("pump=%s,date=%s,volume=%s", pump.ID, req.CalculationDate, saved.VolumeSold.String()))
	return saved, nil
}

// ResolveApproval finalizes a calculation that was held for manager
// review because it used estimated inputs.
func (s *Service) ResolveApproval(ctx context.Context, calculationID string, req domain.ApprovalRequest) (domain.PmsCalculation, error) {
	actor, err := s.requireRole(ctx, domain.RoleManager)
	if err != nil {
		return domain.PmsCalculation{}, err
	}

	calc, err := s.repo.GetCalculationByID(ctx, calculationID)
	if err != nil {
		return domain.PmsCalculation{}, fromStore(err, "calculation not found", "")
	}
	if calc.ApprovalState != domain.ApprovalPendingApproval {
		return domain.PmsCalculation{}, Conflict("calculation is not pending approval")
	}
	if calc.RolloverConfirmationRequired {
		return domain.PmsCalculation{}, Conflict("calculation requires rollover confirmation, not approval")
	}

	state := domain.ApprovalRejected
	if req.Approved {
		state = domain.ApprovalApproved
	}
	notes := strings.TrimSpace(req.Notes)
	if state == domain.ApprovalRejected && notes == "" {
		return domain.PmsCalculation{}, Invalid("notes", "rejection requires a note")
	}

	if err := s.repo.SetCalculationApproval(ctx, calc.ID, state, actor.Username, notes); err != nil {
		return domain.PmsCalculation{}, fromStore(err, "calculation not found", "")
	}

	calc.ApprovalState = state
	calc.ApprovedBy = actor.Username
	calc.ApprovalNotes = notes
	s.logAudit(ctx, calc.StationID, "calc_approval", "pms_calculation", calc.ID,
		fmt.Sprintf("state=%s", state))
	return calc, nil
}

func (s *Service) GetCalculation(ctx context.Context, id string) (domain.PmsCalculation, error) {
	calc, err := s.repo.GetCalculationByID(ctx, id)
	if err != nil {
		return domain.PmsCalculation{}, fromStore(err, "calculation not found", "")
	}
	return calc, nil
}

func (s *Service) ListCalculations(ctx context.Context, filter store.CalculationFilter) ([]domain.PmsCalculation, error) {
	if filter.StationID == "" && filter.PumpID == "" {
		filter.StationID = s.defaultStationID
	}
	if filter.DateFrom != "" && !validDate(filter.DateFrom) {
		return nil, Invalid("from", "from date must be YYYY-MM-DD")
	}
	if filter.DateTo != "" && !validDate(filter.DateTo) {
		return nil, Invalid("to", "to date must be YYYY-MM-DD")
	}
	return s.repo.ListCalculations(ctx, filter)
}
