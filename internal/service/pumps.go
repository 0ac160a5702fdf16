package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fuelstation/backend/internal/domain"
	"fuelstation/backend/internal/xid"
)

func validProductCode(code string) bool {
	switch code {
	case domain.ProductPMS, domain.ProductAGO, domain.ProductDPK:
		return true
	default:
		return false
	}
}

func (s *Service) CreatePump(ctx context.Context, req domain.PumpCreateRequest) (domain.PumpConfiguration, error) {
	if _, err := s.requireRole(ctx, domain.RoleManager); err != nil {
		return domain.PumpConfiguration{}, err
	}

	if req.StationID == "" {
		req.StationID = s.defaultStationID
	}
	req.PumpNumber = strings.TrimSpace(req.PumpNumber)
	req.ProductCode = strings.ToUpper(strings.TrimSpace(req.ProductCode))

	if req.PumpNumber == "" {
		return domain.PumpConfiguration{}, Invalid("pump_number", "pump number is required")
	}
	if !validProductCode(req.ProductCode) {
		return domain.PumpConfiguration{}, Invalid("product_code", "unknown product code")
	}
	if !req.MeterCapacity.IsPositive() {
		return domain.PumpConfiguration{}, Invalid("meter_capacity", "meter capacity must be greater than zero")
	}
	if !validDate(req.InstallDate) {
		return domain.PumpConfiguration{}, Invalid("install_date", "install date must be YYYY-MM-DD")
	}
	if req.LastCalibrated != "" && !validDate(req.LastCalibrated) {
		return domain.PumpConfiguration{}, Invalid("last_calibrated", "calibration date must be YYYY-MM-DD")
	}

	now := time.Now().UTC()
	pump := domain.PumpConfiguration{
		ID:             xid.New("pump"),
		StationID:      req.StationID,
		PumpNumber:     req.PumpNumber,
		ProductCode:    req.ProductCode,
		MeterCapacity:  req.MeterCapacity,
		InstallDate:    req.InstallDate,
		LastCalibrated: req.LastCalibrated,
		Status:         domain.PumpStatusActive,
		IsActive:       true,
		Notes:          strings.TrimSpace(req.Notes),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.repo.CreatePump(ctx, pump); err != nil {
		return domain.PumpConfiguration{}, fromStore(err, "pump not found",
			fmt.Sprintf("pump number %s already exists at station %s", pump.PumpNumber, pump.StationID))
	}

	s.logAudit(ctx, pump.StationID, "pump_create", "pump", pump.ID,
		fmt.Sprintf("number=%s,product=%s,capacity=%s", pump.PumpNumber, pump.ProductCode, pump.MeterCapacity.String()))
	return pump, nil
}

func (s *Service) UpdatePump(ctx context.Context, id string, req domain.PumpUpdateRequest) (domain.PumpConfiguration, error) {
	if _, err := s.requireRole(ctx, domain.RoleManager); err != nil {
		return domain.PumpConfiguration{}, err
	}

	pump, err := s.repo.GetPump(ctx, id)
	if err != nil {
		return domain.PumpConfiguration{}, fromStore(err, "pump not found", "")
	}

	if req.PumpNumber != nil {
		number := strings.TrimSpace(*req.PumpNumber)
		if number == "" {
			return domain.PumpConfiguration{}, Invalid("pump_number", "pump number is required")
		}
		pump.PumpNumber = number
	}
	if req.ProductCode != nil {
		code := strings.ToUpper(strings.TrimSpace(*req.ProductCode))
		if !validProductCode(code) {
			return domain.PumpConfiguration{}, Invalid("product_code", "unknown product code")
		}
		pump.ProductCode = code
	}
	if req.MeterCapacity != nil {
		if !req.MeterCapacity.IsPositive() {
			return domain.PumpConfiguration{}, Invalid("meter_capacity", "meter capacity must be greater than zero")
		}
		pump.MeterCapacity = *req.MeterCapacity
	}
	if req.LastCalibrated != nil {
		if *req.LastCalibrated != "" && !validDate(*req.LastCalibrated) {
			return domain.PumpConfiguration{}, Invalid("last_calibrated", "calibration date must be YYYY-MM-DD")
		}
		pump.LastCalibrated = *req.LastCalibrated
	}
	if req.Notes != nil {
		pump.Notes = strings.TrimSpace(*req.Notes)
	}
	pump.UpdatedAt = time.Now().UTC()

	if err := s.repo.UpdatePump(ctx, pump); err != nil {
		return domain.PumpConfiguration{}, fromStore(err, "pump not found",
			fmt.Sprintf("pump number %s already exists at station %s", pump.PumpNumber, pump.StationID))
	}

	s.logAudit(ctx, pump.StationID, "pump_update", "pump", pump.ID,
		fmt.Sprintf("number=%s,product=%s", pump.PumpNumber, pump.ProductCode))
	return pump, nil
}

// SetPumpStatus moves a pump through its lifecycle. Pumps are never
// deleted; a retired pump keeps its reading history.
func (s *Service) SetPumpStatus(ctx context.Context, id string, req domain.PumpStatusUpdateRequest) (domain.PumpConfiguration, error) {
	if _, err := s.requireRole(ctx, domain.RoleManager); err != nil {
		return domain.PumpConfiguration{}, err
	}

	status, ok := domain.ParsePumpStatus(strings.TrimSpace(req.Status))
	if !ok {
		return domain.PumpConfiguration{}, Invalid("status", "unknown pump status")
	}

	pump, err := s.repo.GetPump(ctx, id)
	if err != nil {
		return domain.PumpConfiguration{}, fromStore(err, "pump not found", "")
	}

	pump.Status = status
	pump.IsActive = status == domain.PumpStatusActive
	if note := strings.TrimSpace(req.Note); note != "" {
		pump.Notes = note
	}
	pump.UpdatedAt = time.Now().UTC()

	if err := s.repo.UpdatePump(ctx, pump); err != nil {
		return domain.PumpConfiguration{}, fromStore(err, "pump not found", "pump number conflict")
	}

	s.logAudit(ctx, pump.StationID, "pump_status", "pump", pump.ID, "status="+string(status))
	return pump, nil
}

func (s *Service) GetPump(ctx context.Context, id string) (domain.PumpConfiguration, error) {
	pump, err := s.repo.GetPump(ctx, id)
	if err != nil {
		return domain.PumpConfiguration{}, fromStore(err, "pump not found", "")
	}
	return pump, nil
}

func (s *Service) ListPumps(ctx context.Context, stationID string, includeInactive bool) ([]domain.PumpConfiguration, error) {
	if stationID == "" {
		stationID = s.defaultStationID
	}
	return s.repo.ListPumps(ctx, stationID, includeInactive)
}
