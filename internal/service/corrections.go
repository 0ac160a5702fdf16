package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fuelstation/backend/internal/domain"
	"fuelstation/backend/internal/metrics"
)

// UpdateMeterReading corrects a previously recorded reading. Within the
// edit window the original recorder or any manager can fix a value
// freely. After the window closes a change requires a manager override
// with a stated reason; the
// override identity is verified against the user store at call time, not
// against the token, so a revoked manager cannot authorize one.
func (s *Service) UpdateMeterReading(ctx context.Context, readingID string, req domain.UpdateReadingRequest) (domain.MeterReading, error) {
	actor, err := s.requireRole(ctx, domain.RoleStaff)
	if err != nil {
		return domain.MeterReading{}, err
	}

	reading, err := s.repo.GetReadingByID(ctx, readingID)
	if err != nil {
		return domain.MeterReading{}, fromStore(err, "reading not found", "")
	}

	pump, err := s.repo.GetPump(ctx, reading.PumpID)
	if err != nil {
		return domain.MeterReading{}, fromStore(err, "pump not found", "")
	}

	if req.MeterValue == nil && req.Notes == nil {
		return domain.MeterReading{}, Invalid("", "nothing to update")
	}

	now := time.Now().UTC()
	valueChanged := req.MeterValue != nil && !req.MeterValue.Equal(reading.MeterValue)

	overrideUsed := false
	if valueChanged {
		if req.MeterValue.IsNegative() {
			return domain.MeterReading{}, Invalid("meter_value", "meter value cannot be negative")
		}
		if req.MeterValue.GreaterThan(pump.MeterCapacity) {
			return domain.MeterReading{}, Invalid("meter_value", "meter value exceeds meter capacity")
		}

		withinWindow := now.Sub(reading.RecordedAt) <= s.editWindow
		freeEdit := withinWindow &&
			(actor.Role.AtLeast(domain.RoleManager) || actor.Username == reading.RecordedBy)
		if !freeEdit {
			if req.Override == nil || !req.Override.IsManager {
				if withinWindow {
					return domain.MeterReading{}, Forbidden(domain.RoleManager,
						"only the original recorder or a manager may edit this reading")
				}
				return domain.MeterReading{}, Conflict(
					"edit window has closed; a manager override is required")
			}
			if err := s.verifyManagerOverride(ctx, *req.Override); err != nil {
				return domain.MeterReading{}, err
			}
			overrideUsed = true
			reading.State = domain.ReadingStateCorrectedWithOverride
			reading.OverrideManager = req.Override.ManagerID
			reading.OverrideReason = strings.TrimSpace(req.Override.Reason)
		} else {
			reading.State = domain.ReadingStateCorrected
		}

		reading.MeterValue = *req.MeterValue
		reading.CorrectedAt = &now
		if reading.IsEstimated {
			reading.IsEstimated = false
			reading.EstimationMethod = ""
		}
	}
	if req.Notes != nil {
		reading.Notes = strings.TrimSpace(*req.Notes)
	}

	if err := s.repo.UpdateReading(ctx, reading); err != nil {
		return domain.MeterReading{}, fromStore(err, "reading not found", "")
	}

	if valueChanged {
		s.markStale(ctx, reading.PumpID, reading.ReadingDate)
		s.invalidateStatus(ctx, pump.StationID, reading.ReadingDate)
		if overrideUsed {
			metrics.IncOverrideCorrection()
		}
	}

	action := "reading_correct"
	if overrideUsed {
		action = "reading_correct_override"
	}
	s.logAudit(ctx, pump.StationID, action, "meter_reading", reading.ID,
		fmt.Sprintf("pump=%s,date=%s,value=%s,state=%s",
			reading.PumpID, reading.ReadingDate, reading.MeterValue.String(), reading.State))
	return reading, nil
}

func (s *Service) verifyManagerOverride(ctx context.Context, override domain.OverridePayload) error {
	managerID := strings.TrimSpace(override.ManagerID)
	if managerID == "" {
		return Invalid("override.manager_id", "override manager is required")
	}
	if strings.TrimSpace(override.Reason) == "" {
		return Invalid("override.reason", "override reason is required")
	}

	account, err := s.repo.GetUserByUsername(ctx, managerID)
	if err != nil {
		return Forbidden(domain.RoleManager, "override manager not found")
	}
	if !account.Active || !account.Role.AtLeast(domain.RoleManager) {
		return Forbidden(domain.RoleManager, "override requires an active manager account")
	}
	return nil
}
