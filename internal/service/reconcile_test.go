package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"fuelstation/backend/internal/domain"
)

func TestCalculateSimpleDelta(t *testing.T) {
	svc, repo := newTestService(t)
	seedPump(t, repo, "pump-a", "P1", domain.ProductPMS)
	seedReading(t, repo, "pump-a", "2025-03-10", domain.ReadingOpening, "1000")
	seedReading(t, repo, "pump-a", "2025-03-10", domain.ReadingClosing, "1050.5")

	resp, err := svc.CalculatePmsForDate(staffCtx(), domain.CalculateRequest{Date: "2025-03-10"})
	require.NoError(t, err)
	require.Equal(t, 1, resp.Calculated)
	require.Equal(t, 0, resp.Skipped)

	calc := resp.Results[0].Calculation
	require.NotNil(t, calc)
	require.True(t, calc.VolumeSold.Equal(dec(t, "50.5")))
	require.True(t, calc.RawDelta.Equal(dec(t, "50.5")))
	require.False(t, calc.RolloverApplied)
	require.False(t, calc.HasEstimatedInput)
	require.Equal(t, domain.ApprovalAutoApproved, calc.ApprovalState)
}

func TestCalculateSkipsNonPmsPumps(t *testing.T) {
	svc, repo := newTestService(t)
	seedPump(t, repo, "pump-d", "D1", domain.ProductAGO)
	seedReading(t, repo, "pump-d", "2025-03-10", domain.ReadingOpening, "100")
	seedReading(t, repo, "pump-d", "2025-03-10", domain.ReadingClosing, "150")

	resp, err := svc.CalculatePmsForDate(staffCtx(), domain.CalculateRequest{Date: "2025-03-10"})
	require.NoError(t, err)
	require.Empty(t, resp.Results)
}

func TestCalculateRolloverCorrection(t *testing.T) {
	svc, repo := newTestService(t)
	seedPump(t, repo, "pump-a", "P1", domain.ProductPMS)
	seedReading(t, repo, "pump-a", "2025-03-10", domain.ReadingOpening, "999990")
	seedReading(t, repo, "pump-a", "2025-03-10", domain.ReadingClosing, "5")

	resp, err := svc.CalculatePmsForDate(staffCtx(), domain.CalculateRequest{Date: "2025-03-10"})
	require.NoError(t, err)
	require.Equal(t, 1, resp.Calculated)

	calc := resp.Results[0].Calculation
	require.NotNil(t, calc)
	require.True(t, calc.RolloverApplied)
	require.True(t, calc.RolloverAmount.Equal(dec(t, "9.9")))
	require.True(t, calc.VolumeSold.Equal(dec(t, "14.9")))
	require.True(t, calc.RawDelta.IsNegative())
	// No trailing history yet, so the correction stands unconfirmed.
	require.False(t, calc.RolloverConfirmationRequired)
	require.Equal(t, domain.ApprovalAutoApproved, calc.ApprovalState)
}

func TestCalculateIsIdempotentPerPumpDay(t *testing.T) {
	svc, repo := newTestService(t)
	seedPump(t, repo, "pump-a", "P1", domain.ProductPMS)
	seedReading(t, repo, "pump-a", "2025-03-10", domain.ReadingOpening, "1000")
	seedReading(t, repo, "pump-a", "2025-03-10", domain.ReadingClosing, "1040")

	first, err := svc.CalculatePmsForDate(staffCtx(), domain.CalculateRequest{Date: "2025-03-10"})
	require.NoError(t, err)
	require.Equal(t, 1, first.Calculated)
	firstID := first.Results[0].Calculation.ID

	second, err := svc.CalculatePmsForDate(staffCtx(), domain.CalculateRequest{Date: "2025-03-10"})
	require.NoError(t, err)
	require.Equal(t, 0, second.Calculated)
	require.Equal(t, 1, second.Unchanged)
	require.Equal(t, firstID, second.Results[0].Calculation.ID)

	forced, err := svc.CalculatePmsForDate(staffCtx(), domain.CalculateRequest{Date: "2025-03-10", ForceRecalculate: true})
	require.NoError(t, err)
	require.Equal(t, 1, forced.Calculated)
	require.Equal(t, firstID, forced.Results[0].Calculation.ID)
}

func TestCalculateRecomputesStale(t *testing.T) {
	svc, repo := newTestService(t)
	seedPump(t, repo, "pump-a", "P1", domain.ProductPMS)
	seedReading(t, repo, "pump-a", "2025-03-10", domain.ReadingOpening, "1000")
	closing := seedReading(t, repo, "pump-a", "2025-03-10", domain.ReadingClosing, "1040")

	_, err := svc.CalculatePmsForDate(staffCtx(), domain.CalculateRequest{Date: "2025-03-10"})
	require.NoError(t, err)

	newValue := dec(t, "1060")
	_, err = svc.UpdateMeterReading(staffCtx(), closing.ID, domain.UpdateReadingRequest{MeterValue: &newValue})
	require.NoError(t, err)

	calc, err := repo.GetCalculationByKey(context.Background(), "pump-a", "2025-03-10")
	require.NoError(t, err)
	require.True(t, calc.Stale)

	resp, err := svc.CalculatePmsForDate(staffCtx(), domain.CalculateRequest{Date: "2025-03-10"})
	require.NoError(t, err)
	require.Equal(t, 1, resp.Calculated)
	require.True(t, resp.Results[0].Calculation.VolumeSold.Equal(dec(t, "60")))
	require.False(t, resp.Results[0].Calculation.Stale)
}

func TestCalculateSkipsWhenNoReadings(t *testing.T) {
	svc, repo := newTestService(t)
	seedPump(t, repo, "pump-a", "P1", domain.ProductPMS)

	resp, err := svc.CalculatePmsForDate(staffCtx(), domain.CalculateRequest{Date: "2025-03-10"})
	require.NoError(t, err)
	require.Equal(t, 1, resp.Skipped)
	require.Contains(t, resp.Results[0].Reason, "insufficient data")
}

func TestCalculateEstimatesClosingFromSales(t *testing.T) {
	svc, repo := newTestService(t)
	seedPump(t, repo, "pump-a", "P1", domain.ProductPMS)
	seedReading(t, repo, "pump-a", "2025-03-10", domain.ReadingOpening, "1000")

	_, err := svc.RecordPumpSale(staffCtx(), domain.RecordPumpSaleRequest{
		PumpID: "pump-a", SaleDate: "2025-03-10", Litres: dec(t, "20"), Amount: dec(t, "15000"),
	})
	require.NoError(t, err)
	_, err = svc.RecordPumpSale(staffCtx(), domain.RecordPumpSaleRequest{
		PumpID: "pump-a", SaleDate: "2025-03-10", Litres: dec(t, "10.5"), Amount: dec(t, "7875"),
	})
	require.NoError(t, err)

	resp, err := svc.CalculatePmsForDate(staffCtx(), domain.CalculateRequest{Date: "2025-03-10"})
	require.NoError(t, err)
	require.Equal(t, 1, resp.Calculated)

	calc := resp.Results[0].Calculation
	require.True(t, calc.VolumeSold.Equal(dec(t, "30.5")))
	require.True(t, calc.HasEstimatedInput)
	require.Equal(t, domain.ApprovalPendingApproval, calc.ApprovalState)

	estimated, err := repo.GetReadingByKey(context.Background(), "pump-a", "2025-03-10", domain.ReadingClosing)
	require.NoError(t, err)
	require.True(t, estimated.IsEstimated)
	require.Equal(t, "system", estimated.RecordedBy)
	require.Equal(t, domain.EstimationTransactionBased, estimated.EstimationMethod)
	require.True(t, estimated.MeterValue.Equal(dec(t, "1030.5")))
}

func TestCalculateEstimatesOpeningFromHistoricalAverage(t *testing.T) {
	svc, repo := newTestService(t)
	seedPump(t, repo, "pump-a", "P1", domain.ProductPMS)
	seedCalculation(t, repo, "pump-a", "2025-03-08", "40", domain.ApprovalAutoApproved)
	seedCalculation(t, repo, "pump-a", "2025-03-09", "60", domain.ApprovalApproved)
	seedReading(t, repo, "pump-a", "2025-03-10", domain.ReadingClosing, "1050")

	resp, err := svc.CalculatePmsForDate(staffCtx(), domain.CalculateRequest{Date: "2025-03-10"})
	require.NoError(t, err)
	require.Equal(t, 1, resp.Calculated)

	calc := resp.Results[0].Calculation
	require.True(t, calc.VolumeSold.Equal(dec(t, "50")))
	require.True(t, calc.HasEstimatedInput)
	require.Equal(t, domain.ApprovalPendingApproval, calc.ApprovalState)

	estimated, err := repo.GetReadingByKey(context.Background(), "pump-a", "2025-03-10", domain.ReadingOpening)
	require.NoError(t, err)
	require.True(t, estimated.IsEstimated)
	require.Equal(t, domain.EstimationHistoricalAverage, estimated.EstimationMethod)
	require.True(t, estimated.MeterValue.Equal(dec(t, "1000")))
}

func TestCalculateExcludesRejectedFromTrailingAverage(t *testing.T) {
	svc, repo := newTestService(t)
	seedPump(t, repo, "pump-a", "P1", domain.ProductPMS)
	seedCalculation(t, repo, "pump-a", "2025-03-08", "40", domain.ApprovalAutoApproved)
	seedCalculation(t, repo, "pump-a", "2025-03-09", "900", domain.ApprovalRejected)
	seedReading(t, repo, "pump-a", "2025-03-10", domain.ReadingClosing, "1050")

	resp, err := svc.CalculatePmsForDate(staffCtx(), domain.CalculateRequest{Date: "2025-03-10"})
	require.NoError(t, err)
	require.Equal(t, 1, resp.Calculated)
	// The rejected outlier does not drag the estimate up.
	require.True(t, resp.Results[0].Calculation.VolumeSold.Equal(dec(t, "40")))
}

func TestCalculateFlagsDeviation(t *testing.T) {
	svc, repo := newTestService(t)
	seedPump(t, repo, "pump-a", "P1", domain.ProductPMS)
	seedCalculation(t, repo, "pump-a", "2025-03-08", "50", domain.ApprovalAutoApproved)
	seedCalculation(t, repo, "pump-a", "2025-03-09", "50", domain.ApprovalAutoApproved)
	seedReading(t, repo, "pump-a", "2025-03-10", domain.ReadingOpening, "1000")
	seedReading(t, repo, "pump-a", "2025-03-10", domain.ReadingClosing, "1080")

	resp, err := svc.CalculatePmsForDate(staffCtx(), domain.CalculateRequest{Date: "2025-03-10"})
	require.NoError(t, err)

	calc := resp.Results[0].Calculation
	// 80 sold vs a 50 average is a 60% deviation against a 20% threshold.
	require.True(t, calc.DeviationFlagged)
	require.True(t, calc.DeviationPercent.Equal(dec(t, "60")))
}

func TestRolloverAnomalyHeldForConfirmation(t *testing.T) {
	svc, repo := newTestService(t)
	seedPump(t, repo, "pump-a", "P1", domain.ProductPMS)
	seedCalculation(t, repo, "pump-a", "2025-03-08", "50", domain.ApprovalAutoApproved)
	seedCalculation(t, repo, "pump-a", "2025-03-09", "50", domain.ApprovalAutoApproved)
	seedReading(t, repo, "pump-a", "2025-03-10", domain.ReadingOpening, "999900")
	seedReading(t, repo, "pump-a", "2025-03-10", domain.ReadingClosing, "50")

	resp, err := svc.CalculatePmsForDate(staffCtx(), domain.CalculateRequest{Date: "2025-03-10"})
	require.NoError(t, err)

	calc := resp.Results[0].Calculation
	// Corrected volume 149.9 is more than double the 50 average.
	require.True(t, calc.RolloverApplied)
	require.True(t, calc.RolloverConfirmationRequired)
	require.Equal(t, domain.ApprovalPendingApproval, calc.ApprovalState)

	// Held calculations stay untouched on the next run.
	again, err := svc.CalculatePmsForDate(staffCtx(), domain.CalculateRequest{Date: "2025-03-10"})
	require.NoError(t, err)
	require.Equal(t, 1, again.Unchanged)
}

func TestConfirmRollover(t *testing.T) {
	svc, repo := newTestService(t)
	seedPump(t, repo, "pump-a", "P1", domain.ProductPMS)
	seedCalculation(t, repo, "pump-a", "2025-03-08", "50", domain.ApprovalAutoApproved)
	seedCalculation(t, repo, "pump-a", "2025-03-09", "50", domain.ApprovalAutoApproved)
	seedReading(t, repo, "pump-a", "2025-03-10", domain.ReadingOpening, "999900")
	seedReading(t, repo, "pump-a", "2025-03-10", domain.ReadingClosing, "50")

	_, err := svc.CalculatePmsForDate(staffCtx(), domain.CalculateRequest{Date: "2025-03-10"})
	require.NoError(t, err)

	_, err = svc.ConfirmRollover(staffCtx(), domain.ConfirmRolloverRequest{
		PumpID: "pump-a", CalculationDate: "2025-03-10", RolloverValue: dec(t, "99.9"), NewReading: dec(t, "50"),
	})
	svcErr, ok := AsError(err)
	require.True(t, ok)
	require.Equal(t, KindForbidden, svcErr.Kind)

	calc, err := svc.ConfirmRollover(managerCtx(), domain.ConfirmRolloverRequest{
		PumpID: "pump-a", CalculationDate: "2025-03-10", RolloverValue: dec(t, "99.9"), NewReading: dec(t, "50"),
	})
	require.NoError(t, err)
	require.True(t, calc.VolumeSold.Equal(dec(t, "149.9")))
	require.True(t, calc.ClosingValue.Equal(dec(t, "50")))
	require.False(t, calc.RolloverConfirmationRequired)
	require.Equal(t, domain.ApprovalApproved, calc.ApprovalState)
	require.Equal(t, "boss", calc.ApprovedBy)

	closing, err := repo.GetReadingByKey(context.Background(), "pump-a", "2025-03-10", domain.ReadingClosing)
	require.NoError(t, err)
	require.Equal(t, domain.ReadingStateCorrected, closing.State)
}

func TestConfirmRolloverRestatesAutoResolvedRollover(t *testing.T) {
	svc, repo := newTestService(t)
	seedPump(t, repo, "pump-a", "P1", domain.ProductPMS)
	seedReading(t, repo, "pump-a", "2025-03-10", domain.ReadingOpening, "999990")
	seedReading(t, repo, "pump-a", "2025-03-10", domain.ReadingClosing, "5")

	resp, err := svc.CalculatePmsForDate(staffCtx(), domain.CalculateRequest{Date: "2025-03-10"})
	require.NoError(t, err)
	require.Equal(t, domain.ApprovalAutoApproved, resp.Results[0].Calculation.ApprovalState)
	require.True(t, resp.Results[0].Calculation.RolloverApplied)

	// The operator reports the counter actually wrapped to 4, not 5.
	calc, err := svc.ConfirmRollover(managerCtx(), domain.ConfirmRolloverRequest{
		PumpID: "pump-a", CalculationDate: "2025-03-10", RolloverValue: dec(t, "9.9"), NewReading: dec(t, "4"),
	})
	require.NoError(t, err)
	require.True(t, calc.VolumeSold.Equal(dec(t, "13.9")))
	require.Equal(t, domain.ApprovalApproved, calc.ApprovalState)
}

func TestConfirmRolloverRejectsUnheldCalculation(t *testing.T) {
	svc, repo := newTestService(t)
	seedPump(t, repo, "pump-a", "P1", domain.ProductPMS)
	seedReading(t, repo, "pump-a", "2025-03-10", domain.ReadingOpening, "1000")
	seedReading(t, repo, "pump-a", "2025-03-10", domain.ReadingClosing, "1050")

	_, err := svc.CalculatePmsForDate(staffCtx(), domain.CalculateRequest{Date: "2025-03-10"})
	require.NoError(t, err)

	_, err = svc.ConfirmRollover(managerCtx(), domain.ConfirmRolloverRequest{
		PumpID: "pump-a", CalculationDate: "2025-03-10", RolloverValue: dec(t, "10"), NewReading: dec(t, "50"),
	})
	svcErr, ok := AsError(err)
	require.True(t, ok)
	require.Equal(t, KindConflict, svcErr.Kind)
}

func TestResolveApproval(t *testing.T) {
	svc, repo := newTestService(t)
	seedPump(t, repo, "pump-a", "P1", domain.ProductPMS)
	seedReading(t, repo, "pump-a", "2025-03-10", domain.ReadingOpening, "1000")
	_, err := svc.RecordPumpSale(staffCtx(), domain.RecordPumpSaleRequest{
		PumpID: "pump-a", SaleDate: "2025-03-10", Litres: dec(t, "30"), Amount: dec(t, "22500"),
	})
	require.NoError(t, err)

	resp, err := svc.CalculatePmsForDate(staffCtx(), domain.CalculateRequest{Date: "2025-03-10"})
	require.NoError(t, err)
	calcID := resp.Results[0].Calculation.ID

	// Rejection must carry a note.
	_, err = svc.ResolveApproval(managerCtx(), calcID, domain.ApprovalRequest{Approved: false})
	svcErr, ok := AsError(err)
	require.True(t, ok)
	require.Equal(t, KindValidation, svcErr.Kind)

	approved, err := svc.ResolveApproval(managerCtx(), calcID, domain.ApprovalRequest{Approved: true, Notes: "sales slip matches"})
	require.NoError(t, err)
	require.Equal(t, domain.ApprovalApproved, approved.ApprovalState)
	require.Equal(t, "boss", approved.ApprovedBy)

	// A second resolution hits an already-final state.
	_, err = svc.ResolveApproval(managerCtx(), calcID, domain.ApprovalRequest{Approved: true})
	svcErr, ok = AsError(err)
	require.True(t, ok)
	require.Equal(t, KindConflict, svcErr.Kind)
}
