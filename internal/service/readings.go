package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"fuelstation/backend/internal/domain"
	"fuelstation/backend/internal/metrics"
	"fuelstation/backend/internal/store"
	"fuelstation/backend/internal/xid"
)

func (s *Service) RecordReading(ctx context.Context, req domain.RecordReadingRequest) (domain.MeterReading, error) {
	actor, err := s.requireRole(ctx, domain.RoleStaff)
	if err != nil {
		return domain.MeterReading{}, err
	}
	return s.recordReading(ctx, actor, req, "")
}

// recordReading is the shared single-reading path. requireStation, when
// set, rejects pumps that belong to a different station (bulk envelope).
func (s *Service) recordReading(ctx context.Context, actor domain.Actor, req domain.RecordReadingRequest, requireStation string) (domain.MeterReading, error) {
	typ, ok := domain.ParseReadingType(strings.TrimSpace(req.Type))
	if !ok {
		return domain.MeterReading{}, Invalid("reading_type", "reading type must be opening or closing")
	}
	if !validDate(req.ReadingDate) {
		return domain.MeterReading{}, Invalid("reading_date", "reading date must be YYYY-MM-DD")
	}
	if req.MeterValue.IsNegative() {
		return domain.MeterReading{}, Invalid("meter_value", "meter value cannot be negative")
	}

	pump, err := s.repo.GetPump(ctx, req.PumpID)
	if err != nil {
		return domain.MeterReading{}, fromStore(err, "pump not found", "")
	}
	if requireStation != "" && pump.StationID != requireStation {
		return domain.MeterReading{}, Invalid("pump_id", "pump belongs to a different station")
	}
	if !pump.IsActive {
		return domain.MeterReading{}, Conflict("pump is not active")
	}
	if req.MeterValue.GreaterThan(pump.MeterCapacity) {
		return domain.MeterReading{}, Invalid("meter_value", "meter value exceeds meter capacity")
	}

	method := domain.EstimationMethod("")
	if req.IsEstimated {
		raw := strings.TrimSpace(req.EstimationMethod)
		if raw == "" {
			method = domain.EstimationManual
		} else if method, ok = domain.ParseEstimationMethod(raw); !ok {
			return domain.MeterReading{}, Invalid("estimation_method", "unknown estimation method")
		}
	}

	now := time.Now().UTC()

	existing, err := s.repo.GetReadingByKey(ctx, pump.ID, req.ReadingDate, typ)
	switch {
	case err == nil && existing.IsEstimated && !req.IsEstimated:
		// A measured value replaces an earlier estimate as a correction.
		existing.MeterValue = req.MeterValue
		existing.RecordedBy = actor.Username
		existing.IsEstimated = false
		existing.EstimationMethod = ""
		existing.Notes = strings.TrimSpace(req.Notes)
		existing.State = domain.ReadingStateCorrected
		existing.CorrectedAt = &now
		if err := s.repo.UpdateReading(ctx, existing); err != nil {
			return domain.MeterReading{}, fromStore(err, "reading not found", "")
		}
		s.markStale(ctx, pump.ID, req.ReadingDate)
		s.invalidateStatus(ctx, pump.StationID, req.ReadingDate)
		metrics.IncReadingRecorded(metrics.SourceMeasured)
		s.logAudit(ctx, pump.StationID, "reading_supersede", "meter_reading", existing.ID,
			fmt.Sprintf("pump=%s,date=%s,type=%s,value=%s", pump.ID, req.ReadingDate, typ, req.MeterValue.String()))
		return existing, nil
	case err == nil:
		return domain.MeterReading{}, Conflict("reading already exists for this pump, date, and type")
	case !errors.Is(err, store.ErrNotFound):
		return domain.MeterReading{}, err
	}

	reading := domain.MeterReading{
		ID:               xid.New("read"),
		PumpID:           pump.ID,
		ReadingDate:      req.ReadingDate,
		Type:             typ,
		MeterValue:       req.MeterValue,
		RecordedBy:       actor.Username,
		RecordedAt:       now,
		IsEstimated:      req.IsEstimated,
		EstimationMethod: method,
		Notes:            strings.TrimSpace(req.Notes),
		State:            domain.ReadingStateRecorded,
	}

	if err := s.repo.InsertReading(ctx, reading); err != nil {
		return domain.MeterReading{}, fromStore(err, "pump not found",
			"reading already exists for this pump, date, and type")
	}

	s.invalidateStatus(ctx, pump.StationID, req.ReadingDate)
	if reading.IsEstimated {
		metrics.IncReadingRecorded(metrics.SourceEstimated)
	} else {
		metrics.IncReadingRecorded(metrics.SourceMeasured)
	}
	s.logAudit(ctx, pump.StationID, "reading_record", "meter_reading", reading.ID,
		fmt.Sprintf("pump=%s,date=%s,type=%s,value=%s", pump.ID, req.ReadingDate, typ, req.MeterValue.String()))
	return reading, nil
}

// RecordBulkReadings applies each entry independently and reports a
// per-pump outcome. One bad entry never blocks the rest of the batch.
func (s *Service) RecordBulkReadings(ctx context.Context, req domain.BulkReadingsRequest) (domain.BulkReadingsResponse, error) {
	actor, err := s.requireRole(ctx, domain.RoleStaff)
	if err != nil {
		return domain.BulkReadingsResponse{}, err
	}

	if req.StationID == "" {
		req.StationID = s.defaultStationID
	}
	if _, ok := domain.ParseReadingType(strings.TrimSpace(req.Type)); !ok {
		return domain.BulkReadingsResponse{}, Invalid("reading_type", "reading type must be opening or closing")
	}
	if !validDate(req.ReadingDate) {
		return domain.BulkReadingsResponse{}, Invalid("reading_date", "reading date must be YYYY-MM-DD")
	}
	if len(req.Readings) == 0 {
		return domain.BulkReadingsResponse{}, Invalid("readings", "at least one reading is required")
	}

	resp := domain.BulkReadingsResponse{
		StationID:   req.StationID,
		ReadingDate: req.ReadingDate,
		Type:        req.Type,
		Outcomes:    make([]domain.BulkReadingOutcome, 0, len(req.Readings)),
	}

	for _, entry := range req.Readings {
		reading, err := s.recordReading(ctx, actor, domain.RecordReadingRequest{
			PumpID:      entry.PumpID,
			ReadingDate: req.ReadingDate,
			Type:        req.Type,
			MeterValue:  entry.MeterValue,
			Notes:       entry.Notes,
		}, req.StationID)
		if err != nil {
			reason := "internal error"
			if svcErr, ok := AsError(err); ok {
				reason = svcErr.Message
			}
			resp.Rejected++
			resp.Outcomes = append(resp.Outcomes, domain.BulkReadingOutcome{
				PumpID: entry.PumpID,
				Status: domain.BulkOutcomeRejected,
				Reason: reason,
			})
			continue
		}
		resp.Accepted++
		resp.Outcomes = append(resp.Outcomes, domain.BulkReadingOutcome{
			PumpID:    entry.PumpID,
			Status:    domain.BulkOutcomeAccepted,
			ReadingID: reading.ID,
		})
	}

	s.logAudit(ctx, req.StationID, "reading_bulk", "meter_reading", req.ReadingDate,
		fmt.Sprintf("type=%s,accepted=%d,rejected=%d", req.Type, resp.Accepted, resp.Rejected))
	return resp, nil
}

func (s *Service) ListReadings(ctx context.Context, filter store.ReadingFilter) ([]domain.MeterReading, error) {
	if filter.StationID == "" && filter.PumpID == "" {
		filter.StationID = s.defaultStationID
	}
	if filter.DateFrom != "" && !validDate(filter.DateFrom) {
		return nil, Invalid("from", "from date must be YYYY-MM-DD")
	}
	if filter.DateTo != "" && !validDate(filter.DateTo) {
		return nil, Invalid("to", "to date must be YYYY-MM-DD")
	}
	return s.repo.ListReadings(ctx, filter)
}

func (s *Service) GetReading(ctx context.Context, id string) (domain.MeterReading, error) {
	reading, err := s.repo.GetReadingByID(ctx, id)
	if err != nil {
		return domain.MeterReading{}, fromStore(err, "reading not found", "")
	}
	return reading, nil
}

// GetDailyReadingStatus reports which active pumps still miss an opening
// or closing reading for the day. The result is cached briefly since the
// board is polled by the station dashboard.
func (s *Service) GetDailyReadingStatus(ctx context.Context, stationID, date string) (domain.DailyReadingStatus, error) {
	if stationID == "" {
		stationID = s.defaultStationID
	}
	if !validDate(date) {
		return domain.DailyReadingStatus{}, Invalid("date", "date must be YYYY-MM-DD")
	}

	key := statusCacheKey(stationID, date)
	if cached, found, err := s.statusCache.Get(ctx, key); err == nil && found {
		return *cached, nil
	}

	pumps, err := s.repo.ListPumps(ctx, stationID, false)
	if err != nil {
		return domain.DailyReadingStatus{}, err
	}

	status := domain.DailyReadingStatus{
		StationID: stationID,
		Date:      date,
		Pumps:     make([]domain.PumpReadingStatus, 0, len(pumps)),
	}

	for _, pump := range pumps {
		entry := domain.PumpReadingStatus{PumpID: pump.ID, PumpNumber: pump.PumpNumber}
		if opening, err := s.repo.GetReadingByKey(ctx, pump.ID, date, domain.ReadingOpening); err == nil {
			entry.HasOpening = true
			entry.OpeningEstimated = opening.IsEstimated
		} else if !errors.Is(err, store.ErrNotFound) {
			return domain.DailyReadingStatus{}, err
		}
		if closing, err := s.repo.GetReadingByKey(ctx, pump.ID, date, domain.ReadingClosing); err == nil {
			entry.HasClosing = true
			entry.ClosingEstimated = closing.IsEstimated
		} else if !errors.Is(err, store.ErrNotFound) {
			return domain.DailyReadingStatus{}, err
		}
		entry.Complete = entry.HasOpening && entry.HasClosing
		if !entry.Complete {
			status.PendingCount++
		}
		status.Pumps = append(status.Pumps, entry)
	}

	if err := s.statusCache.Set(ctx, key, &status, s.statusTTL); err != nil {
		s.log.Warn("status cache write failed", zap.String("key", key), zap.Error(err))
	}
	return status, nil
}

func (s *Service) RecordPumpSale(ctx context.Context, req domain.RecordPumpSaleRequest) (domain.PumpSale, error) {
	actor, err := s.requireRole(ctx, domain.RoleStaff)
	if err != nil {
		return domain.PumpSale{}, err
	}

	if !validDate(req.SaleDate) {
		return domain.PumpSale{}, Invalid("sale_date", "sale date must be YYYY-MM-DD")
	}
	if !req.Litres.IsPositive() {
		return domain.PumpSale{}, Invalid("litres", "litres must be greater than zero")
	}
	if req.Amount.IsNegative() {
		return domain.PumpSale{}, Invalid("amount", "amount cannot be negative")
	}

	pump, err := s.repo.GetPump(ctx, req.PumpID)
	if err != nil {
		return domain.PumpSale{}, fromStore(err, "pump not found", "")
	}
	if !pump.IsActive {
		return domain.PumpSale{}, Conflict("pump is not active")
	}

	sale := domain.PumpSale{
		ID:         xid.New("sale"),
		PumpID:     pump.ID,
		SaleDate:   req.SaleDate,
		Litres:     req.Litres,
		Amount:     req.Amount,
		RecordedBy: actor.Username,
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.repo.CreatePumpSale(ctx, sale); err != nil {
		return domain.PumpSale{}, err
	}

	s.logAudit(ctx, pump.StationID, "pump_sale", "pump_sale", sale.ID,
		fmt.Sprintf("pump=%s,date=%s,litres=%s", pump.ID, sale.SaleDate, sale.Litres.String()))
	return sale, nil
}

func (s *Service) ListPumpSales(ctx context.Context, pumpID, date string) ([]domain.PumpSale, error) {
	if pumpID == "" {
		return nil, Invalid("pump_id", "pump id is required")
	}
	if date != "" && !validDate(date) {
		return nil, Invalid("date", "date must be YYYY-MM-DD")
	}
	return s.repo.ListPumpSales(ctx, pumpID, date)
}

// markStale flags the pump-day calculation, if any, so a later recompute
// picks up the corrected input. Absence is not an error.
func (s *Service) markStale(ctx context.Context, pumpID, date string) {
	if err := s.repo.MarkCalculationStale(ctx, pumpID, date); err != nil && !errors.Is(err, store.ErrNotFound) {
		s.log.Warn("failed to mark calculation stale",
			zap.String("pump_id", pumpID), zap.String("date", date), zap.Error(err))
	}
}
