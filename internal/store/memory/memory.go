package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"fuelstation/backend/internal/domain"
	"fuelstation/backend/internal/store"
	"fuelstation/backend/internal/xid"
)

type Store struct {
	mu               sync.RWMutex
	pumpsByID        map[string]domain.PumpConfiguration
	pumpNumberIndex  map[string]string
	readingsByID     map[string]domain.MeterReading
	readingKeyIndex  map[string]string
	calculationsByID map[string]domain.PmsCalculation
	calculationIndex map[string]string
	pumpSalesByID    map[string]domain.PumpSale
	auditLogs        []domain.AuditLog
	usersByUsername  map[string]domain.UserAccount
}

func readingKey(pumpID, date string, typ domain.ReadingType) string {
	return pumpID + "|" + date + "|" + string(typ)
}

func calculationKey(pumpID, date string) string {
	return pumpID + "|" + date
}

func pumpNumberKey(stationID, pumpNumber string) string {
	return stationID + "|" + pumpNumber
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Credentials come from SEED_MANAGER_PASSWORD and SEED_STAFF_PASSWORD.
// If unset, hardcoded dev defaults are used with a warning. These
// credentials never apply in production (PostgreSQL mode).
func seedUsers() map[string]domain.UserAccount {
	managerPwd := envOr("SEED_MANAGER_PASSWORD", "manager123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_MANAGER_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_MANAGER_PASSWORD and SEED_STAFF_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     domain.Role
	}{
		{"manager", managerPwd, domain.RoleManager},
		{"attendant", staffPwd, domain.RoleStaff},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	now := time.Now().UTC()
	capacity := decimal.RequireFromString("999999.9")
	pumps := []domain.PumpConfiguration{
		{ID: "pump-01", StationID: "st-0001", PumpNumber: "P1", ProductCode: domain.ProductPMS, MeterCapacity: capacity, InstallDate: "2022-03-14", Status: domain.PumpStatusActive, IsActive: true},
		{ID: "pump-02", StationID: "st-0001", PumpNumber: "P2", ProductCode: domain.ProductPMS, MeterCapacity: capacity, InstallDate: "2022-03-14", Status: domain.PumpStatusActive, IsActive: true},
		{ID: "pump-03", StationID: "st-0001", PumpNumber: "P3", ProductCode: domain.ProductPMS, MeterCapacity: capacity, InstallDate: "2023-07-02", Status: domain.PumpStatusActive, IsActive: true},
		{ID: "pump-04", StationID: "st-0001", PumpNumber: "P4", ProductCode: domain.ProductAGO, MeterCapacity: capacity, InstallDate: "2023-07-02", Status: domain.PumpStatusActive, IsActive: true},
	}

	pumpsByID := make(map[string]domain.PumpConfiguration, len(pumps))
	pumpNumberIndex := make(map[string]string, len(pumps))
	for _, p := range pumps {
		p.CreatedAt = now
		p.UpdatedAt = now
		pumpsByID[p.ID] = p
		pumpNumberIndex[pumpNumberKey(p.StationID, p.PumpNumber)] = p.ID
	}

	return &Store{
		pumpsByID:        pumpsByID,
		pumpNumberIndex:  pumpNumberIndex,
		readingsByID:     make(map[string]domain.MeterReading),
		readingKeyIndex:  make(map[string]string),
		calculationsByID: make(map[string]domain.PmsCalculation),
		calculationIndex: make(map[string]string),
		pumpSalesByID:    make(map[string]domain.PumpSale),
		auditLogs:        make([]domain.AuditLog, 0, 128),
		usersByUsername:  seedUsers(),
	}
}

// New returns an empty store without seeded pumps or users. Used by tests
// that want full control over fixtures.
func New() *Store {
	return &Store{
		pumpsByID:        make(map[string]domain.PumpConfiguration),
		pumpNumberIndex:  make(map[string]string),
		readingsByID:     make(map[string]domain.MeterReading),
		readingKeyIndex:  make(map[string]string),
		calculationsByID: make(map[string]domain.PmsCalculation),
		calculationIndex: make(map[string]string),
		pumpSalesByID:    make(map[string]domain.PumpSale),
		auditLogs:        make([]domain.AuditLog, 0, 16),
		usersByUsername:  make(map[string]domain.UserAccount),
	}
}

func (s *Store) CreatePump(_ context.Context, pump domain.PumpConfiguration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pump.ID == "" || pump.StationID == "" || pump.PumpNumber == "" {
		return store.ErrInvalid
	}
	if _, exists := s.pumpsByID[pump.ID]; exists {
		return store.ErrDuplicate
	}
	numberKey := pumpNumberKey(pump.StationID, pump.PumpNumber)
	if _, exists := s.pumpNumberIndex[numberKey]; exists {
		return store.ErrDuplicate
	}

	s.pumpsByID[pump.ID] = pump
	s.pumpNumberIndex[numberKey] = pump.ID
	return nil
}

func (s *Store) UpdatePump(_ context.Context, pump domain.PumpConfiguration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.pumpsByID[pump.ID]
	if !exists {
		return store.ErrNotFound
	}
	if pump.PumpNumber != current.PumpNumber {
		nextKey := pumpNumberKey(pump.StationID, pump.PumpNumber)
		if ownerID, taken := s.pumpNumberIndex[nextKey]; taken && ownerID != pump.ID {
			return store.ErrDuplicate
		}
		delete(s.pumpNumberIndex, pumpNumberKey(current.StationID, current.PumpNumber))
		s.pumpNumberIndex[nextKey] = pump.ID
	}

	s.pumpsByID[pump.ID] = pump
	return nil
}

func (s *Store) GetPump(_ context.Context, id string) (domain.PumpConfiguration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pump, exists := s.pumpsByID[id]
	if !exists {
		return domain.PumpConfiguration{}, store.ErrNotFound
	}
	return pump, nil
}

func (s *Store) ListPumps(_ context.Context, stationID string, includeInactive bool) ([]domain.PumpConfiguration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pumps := make([]domain.PumpConfiguration, 0, len(s.pumpsByID))
	for _, pump := range s.pumpsByID {
		if stationID != "" && pump.StationID != stationID {
			continue
		}
		if !includeInactive && !pump.IsActive {
			continue
		}
		pumps = append(pumps, pump)
	}

	slices.SortFunc(pumps, func(a, b domain.PumpConfiguration) int {
		if a.PumpNumber == b.PumpNumber {
			return cmpString(a.ID, b.ID)
		}
		return cmpString(a.PumpNumber, b.PumpNumber)
	})
	return pumps, nil
}

func (s *Store) InsertReading(_ context.Context, reading domain.MeterReading) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if reading.ID == "" || reading.PumpID == "" || reading.ReadingDate == "" {
		return store.ErrInvalid
	}
	key := readingKey(reading.PumpID, reading.ReadingDate, reading.Type)
	if _, exists := s.readingKeyIndex[key]; exists {
		return store.ErrDuplicate
	}

	s.readingsByID[reading.ID] = reading
	s.readingKeyIndex[key] = reading.ID
	return nil
}

func (s *Store) UpdateReading(_ context.Context, reading domain.MeterReading) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.readingsByID[reading.ID]; !exists {
		return store.ErrNotFound
	}
	s.readingsByID[reading.ID] = reading
	return nil
}

func (s *Store) GetReadingByID(_ context.Context, id string) (domain.MeterReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reading, exists := s.readingsByID[id]
	if !exists {
		return domain.MeterReading{}, store.ErrNotFound
	}
	return reading, nil
}

func (s *Store) GetReadingByKey(_ context.Context, pumpID, date string, typ domain.ReadingType) (domain.MeterReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.readingKeyIndex[readingKey(pumpID, date, typ)]
	if !exists {
		return domain.MeterReading{}, store.ErrNotFound
	}
	return s.readingsByID[id], nil
}

func (s *Store) ListReadings(_ context.Context, filter store.ReadingFilter) ([]domain.MeterReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stationPumps map[string]struct{}
	if filter.StationID != "" {
		stationPumps = make(map[string]struct{})
		for id, pump := range s.pumpsByID {
			if pump.StationID == filter.StationID {
				stationPumps[id] = struct{}{}
			}
		}
	}

	result := make([]domain.MeterReading, 0, 32)
	for _, reading := range s.readingsByID {
		if filter.PumpID != "" && reading.PumpID != filter.PumpID {
			continue
		}
		if stationPumps != nil {
			if _, ok := stationPumps[reading.PumpID]; !ok {
				continue
			}
		}
		if filter.DateFrom != "" && reading.ReadingDate < filter.DateFrom {
			continue
		}
		if filter.DateTo != "" && reading.ReadingDate > filter.DateTo {
			continue
		}
		if filter.Type != "" && reading.Type != filter.Type {
			continue
		}
		result = append(result, reading)
	}

	slices.SortFunc(result, func(a, b domain.MeterReading) int {
		if a.ReadingDate != b.ReadingDate {
			return cmpString(a.ReadingDate, b.ReadingDate)
		}
		if a.PumpID != b.PumpID {
			return cmpString(a.PumpID, b.PumpID)
		}
		// opening sorts before closing for the same pump-day
		return cmpString(string(b.Type), string(a.Type))
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) UpsertCalculation(_ context.Context, calc domain.PmsCalculation) (domain.PmsCalculation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if calc.PumpID == "" || calc.CalculationDate == "" {
		return domain.PmsCalculation{}, store.ErrInvalid
	}
	key := calculationKey(calc.PumpID, calc.CalculationDate)
	if existingID, exists := s.calculationIndex[key]; exists {
		calc.ID = existingID
	} else if calc.ID == "" {
		calc.ID = xid.New("calc")
	}

	s.calculationsByID[calc.ID] = calc
	s.calculationIndex[key] = calc.ID
	return calc, nil
}

func (s *Store) GetCalculationByID(_ context.Context, id string) (domain.PmsCalculation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	calc, exists := s.calculationsByID[id]
	if !exists {
		return domain.PmsCalculation{}, store.ErrNotFound
	}
	return calc, nil
}

func (s *Store) GetCalculationByKey(_ context.Context, pumpID, date string) (domain.PmsCalculation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.calculationIndex[calculationKey(pumpID, date)]
	if !exists {
		return domain.PmsCalculation{}, store.ErrNotFound
	}
	return s.calculationsByID[id], nil
}

func (s *Store) ListCalculations(_ context.Context, filter store.CalculationFilter) ([]domain.PmsCalculation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.PmsCalculation, 0, 32)
	for _, calc := range s.calculationsByID {
		if filter.StationID != "" && calc.StationID != filter.StationID {
			continue
		}
		if filter.PumpID != "" && calc.PumpID != filter.PumpID {
			continue
		}
		if filter.DateFrom != "" && calc.CalculationDate < filter.DateFrom {
			continue
		}
		if filter.DateTo != "" && calc.CalculationDate > filter.DateTo {
			continue
		}
		if filter.FlaggedOnly && !calc.DeviationFlagged {
			continue
		}
		if filter.ApprovalState != "" && calc.ApprovalState != filter.ApprovalState {
			continue
		}
		result = append(result, calc)
	}

	slices.SortFunc(result, func(a, b domain.PmsCalculation) int {
		if a.CalculationDate != b.CalculationDate {
			return cmpString(b.CalculationDate, a.CalculationDate)
		}
		return cmpString(a.PumpID, b.PumpID)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) ListPumpCalculationsBefore(_ context.Context, pumpID, before string, limit int, states []domain.ApprovalState) ([]domain.PmsCalculation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	allowed := make(map[domain.ApprovalState]struct{}, len(states))
	for _, state := range states {
		allowed[state] = struct{}{}
	}

	result := make([]domain.PmsCalculation, 0, limit)
	for _, calc := range s.calculationsByID {
		if calc.PumpID != pumpID || calc.CalculationDate >= before {
			continue
		}
		if len(allowed) > 0 {
			if _, ok := allowed[calc.ApprovalState]; !ok {
				continue
			}
		}
		result = append(result, calc)
	}

	slices.SortFunc(result, func(a, b domain.PmsCalculation) int {
		return cmpString(b.CalculationDate, a.CalculationDate)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) SetCalculationApproval(_ context.Context, id string, state domain.ApprovalState, approvedBy, notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	calc, exists := s.calculationsByID[id]
	if !exists {
		return store.ErrNotFound
	}
	calc.ApprovalState = state
	calc.ApprovedBy = approvedBy
	calc.ApprovalNotes = notes
	calc.UpdatedAt = time.Now().UTC()
	s.calculationsByID[id] = calc
	return nil
}

func (s *Store) MarkCalculationStale(_ context.Context, pumpID, date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, exists := s.calculationIndex[calculationKey(pumpID, date)]
	if !exists {
		return store.ErrNotFound
	}
	calc := s.calculationsByID[id]
	calc.Stale = true
	calc.UpdatedAt = time.Now().UTC()
	s.calculationsByID[id] = calc
	return nil
}

func (s *Store) CreatePumpSale(_ context.Context, sale domain.PumpSale) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	if sale.PumpID == "" || sale.SaleDate == "" {
		return store.ErrInvalid
	}
	s.pumpSalesByID[sale.ID] = sale
	return nil
}

func (s *Store) ListPumpSales(_ context.Context, pumpID, date string) ([]domain.PumpSale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.PumpSale, 0, 16)
	for _, sale := range s.pumpSalesByID {
		if sale.PumpID != pumpID {
			continue
		}
		if date != "" && sale.SaleDate != date {
			continue
		}
		result = append(result, sale)
	}

	slices.SortFunc(result, func(a, b domain.PumpSale) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, stationID string, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if stationID != "" && entry.StationID != stationID {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.usersByUsername[strings.ToLower(strings.TrimSpace(username))]
	if !exists {
		return domain.UserAccount{}, store.ErrNotFound
	}
	return user, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalid
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrDuplicate
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleStaff
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(passwordHash) == "" {
		return store.ErrInvalid
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = passwordHash
	s.usersByUsername[username] = user
	return nil
}

func cmpString(a, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}
