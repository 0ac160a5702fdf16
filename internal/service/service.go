package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fuelstation/backend/internal/cache"
	"fuelstation/backend/internal/domain"
	"fuelstation/backend/internal/store"
	"fuelstation/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Params carries the tunables of the reconciliation engine. Zero values
// fall back to sensible defaults.
type Params struct {
	DefaultStationID          string
	EditWindowMinutes         int
	DeviationThresholdPercent float64
	DeviationLookbackDays     int
	StatusTTLSeconds          int
}

type Service struct {
	repo               store.Repository
	statusCache        cache.StatusCache
	log                *zap.Logger
	defaultStationID   string
	editWindow         time.Duration
	deviationThreshold decimal.Decimal
	lookbackDays       int
	statusTTL          time.Duration
}

func New(repo store.Repository, statusCache cache.StatusCache, log *zap.Logger, params Params) *Service {
	if params.DefaultStationID == "" {
		params.DefaultStationID = "st-0001"
	}
	if params.EditWindowMinutes < 1 {
		params.EditWindowMinutes = 180
	}
	if params.DeviationThresholdPercent <= 0 {
		params.DeviationThresholdPercent = 30
	}
	if params.DeviationLookbackDays < 1 {
		params.DeviationLookbackDays = 14
	}
	if params.StatusTTLSeconds < 1 {
		params.StatusTTLSeconds = 30
	}
	if statusCache == nil {
		statusCache = cache.NoopStatusCache{}
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Service{
		repo:               repo,
		statusCache:        statusCache,
		log:                log,
		defaultStationID:   params.DefaultStationID,
		editWindow:         time.Duration(params.EditWindowMinutes) * time.Minute,
		deviationThreshold: decimal.NewFromFloat(params.DeviationThresholdPercent),
		lookbackDays:       params.DeviationLookbackDays,
		statusTTL:          time.Duration(params.StatusTTLSeconds) * time.Second,
	}
}

// requireRole returns the acting user when present and holding at least
// the given role.
func (s *Service) requireRole(ctx context.Context, min domain.Role) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, Forbidden(min, "authentication required")
	}
	if !actor.Role.AtLeast(min) {
		return domain.Actor{}, Forbidden(min, string(min)+" role required")
	}
	return actor, nil
}

func (s *Service) logAudit(ctx context.Context, stationID, action, entityType, entityID, detail string) {
	if stationID == "" {
		stationID = s.defaultStationID
	}

	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		StationID:     stationID,
		ActorUsername: actor.Username,
		ActorRole:     string(actor.Role),
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		s.log.Warn("audit log write failed",
			zap.String("action", action),
			zap.String("entity_type", entityType),
			zap.String("entity_id", entityID),
			zap.Error(err))
	}
}

func (s *Service) ListAuditLogs(ctx context.Context, stationID string, limit int) ([]domain.AuditLog, error) {
	if _, err := s.requireRole(ctx, domain.RoleManager); err != nil {
		return nil, err
	}
	if stationID == "" {
		stationID = s.defaultStationID
	}
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, stationID, limit)
}

// validDate reports whether s is a calendar date in YYYY-MM-DD form.
func validDate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

func (s *Service) invalidateStatus(ctx context.Context, stationID, date string) {
	key := statusCacheKey(stationID, date)
	if err := s.statusCache.Delete(ctx, key); err != nil {
		s.log.Warn("status cache invalidation failed", zap.String("key", key), zap.Error(err))
	}
}

func statusCacheKey(stationID, date string) string {
	return "reading-status:" + stationID + ":" + date
}
