package service

import (
	"context"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"fuelstation/backend/internal/domain"
	"fuelstation/backend/internal/store"
)

// GetDeviationReport collects calculations whose volume deviates from the
// pump's trailing average beyond a threshold. Callers may override the
// engine's threshold and lookback; rejected calculations are excluded,
// they were already judged wrong.
func (s *Service) GetDeviationReport(ctx context.Context, q domain.DeviationQuery) (domain.DeviationReport, error) {
	if _, err := s.requireRole(ctx, domain.RoleStaff); err != nil {
		return domain.DeviationReport{}, err
	}

	stationID := q.StationID
	if stationID == "" {
		stationID = s.defaultStationID
	}
	if q.DateFrom != "" && !validDate(q.DateFrom) {
		return domain.DeviationReport{}, Invalid("from", "from date must be YYYY-MM-DD")
	}
	if q.DateTo != "" && !validDate(q.DateTo) {
		return domain.DeviationReport{}, Invalid("to", "to date must be YYYY-MM-DD")
	}

	threshold := s.deviationThreshold
	customThreshold := false
	if q.Threshold != "" {
		parsed, err := decimal.NewFromString(q.Threshold)
		if err != nil || parsed.IsNegative() {
			return domain.DeviationReport{}, Invalid("threshold", "threshold must be a non-negative percentage")
		}
		threshold = parsed
		customThreshold = true
	}

	lookback := s.lookbackDays
	if q.Days != "" {
		parsed, err := strconv.Atoi(q.Days)
		if err != nil || parsed <= 0 {
			return domain.DeviationReport{}, Invalid("days", "days must be a positive integer")
		}
		lookback = parsed
	}

	from := q.DateFrom
	if from == "" {
		from = time.Now().UTC().AddDate(0, 0, -lookback).Format("2006-01-02")
	}

	calcs, err := s.repo.ListCalculations(ctx, store.CalculationFilter{
		StationID: stationID,
		DateFrom:  from,
		DateTo:    q.DateTo,
		// The stored flag only reflects the engine default; a caller
		// threshold needs the full set to re-filter.
		FlaggedOnly: !customThreshold,
	})
	if err != nil {
		return domain.DeviationReport{}, err
	}

	report := domain.DeviationReport{
		StationID:        stationID,
		ThresholdPercent: threshold,
		LookbackDays:     lookback,
		GeneratedAt:      time.Now().UTC().Format(time.RFC3339),
		Items:            make([]domain.DeviationItem, 0, len(calcs)),
	}

	pumpNumbers := map[string]string{}
	for _, calc := range calcs {
		if calc.ApprovalState == domain.ApprovalRejected {
			continue
		}
		if customThreshold && !calc.DeviationPercent.GreaterThan(threshold) {
			continue
		}
		number, ok := pumpNumbers[calc.PumpID]
		if !ok {
			pump, err := s.repo.GetPump(ctx, calc.PumpID)
			if err == nil {
				number = pump.PumpNumber
			}
			pumpNumbers[calc.PumpID] = number
		}
		item := domain.DeviationItem{Calculation: calc, PumpNumber: number}
		if avg, ok := s.trailingAverage(ctx, calc.PumpID, calc.CalculationDate); ok {
			item.TrailingAverage = avg
		}
		report.Items = append(report.Items, item)
	}

	return report, nil
}
