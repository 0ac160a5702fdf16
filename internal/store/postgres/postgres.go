package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"fuelstation/backend/internal/domain"
	"fuelstation/backend/internal/store"
	"fuelstation/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreatePump(ctx context.Context, pump domain.PumpConfiguration) error {
	if pump.ID == "" || pump.StationID == "" || pump.PumpNumber == "" {
		return store.ErrInvalid
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pumps (id, station_id, pump_number, product_code, meter_capacity,
			install_date, last_calibrated, status, is_active, notes, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,''),$8,$9,$10,$11,$12)
	`, pump.ID, pump.StationID, pump.PumpNumber, pump.ProductCode, pump.MeterCapacity,
		pump.InstallDate, pump.LastCalibrated, pump.Status, pump.IsActive, pump.Notes,
		pump.CreatedAt, pump.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *Store) UpdatePump(ctx context.Context, pump domain.PumpConfiguration) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pumps
		SET pump_number = $2, product_code = $3, meter_capacity = $4,
			last_calibrated = NULLIF($5,''), status = $6, is_active = $7,
			notes = $8, updated_at = $9
		WHERE id = $1
	`, pump.ID, pump.PumpNumber, pump.ProductCode, pump.MeterCapacity,
		pump.LastCalibrated, pump.Status, pump.IsActive, pump.Notes, pump.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

const pumpColumns = `id, station_id, pump_number, product_code, meter_capacity,
	install_date, COALESCE(last_calibrated,''), status, is_active, COALESCE(notes,''), created_at, updated_at`

func scanPump(row interface{ Scan(...any) error }) (domain.PumpConfiguration, error) {
	var p domain.PumpConfiguration
	err := row.Scan(&p.ID, &p.StationID, &p.PumpNumber, &p.ProductCode, &p.MeterCapacity,
		&p.InstallDate, &p.LastCalibrated, &p.Status, &p.IsActive, &p.Notes, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.PumpConfiguration{}, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func (s *Store) GetPump(ctx context.Context, id string) (domain.PumpConfiguration, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+pumpColumns+`
		FROM pumps
		WHERE id = $1
	`, id)
	pump, err := scanPump(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.PumpConfiguration{}, store.ErrNotFound
		}
		return domain.PumpConfiguration{}, err
	}
	return pump, nil
}

func (s *Store) ListPumps(ctx context.Context, stationID string, includeInactive bool) ([]domain.PumpConfiguration, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+pumpColumns+`
		FROM pumps
		WHERE ($1 = '' OR station_id = $1)
		  AND ($2 OR is_active = true)
		ORDER BY pump_number, id
	`, stationID, includeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pumps := make([]domain.PumpConfiguration, 0, 16)
	for rows.Next() {
		pump, err := scanPump(rows)
		if err != nil {
			return nil, err
		}
		pumps = append(pumps, pump)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return pumps, nil
}

const readingColumns = `id, pump_id, reading_date, reading_type, meter_value, recorded_by,
	recorded_at, is_estimated, COALESCE(estimation_method,''), COALESCE(notes,''), state,
	corrected_at, COALESCE(override_manager,''), COALESCE(override_reason,'')`

func scanReading(row interface{ Scan(...any) error }) (domain.MeterReading, error) {
	var r domain.MeterReading
	var correctedAt sql.NullTime
	err := row.Scan(&r.ID, &r.PumpID, &r.ReadingDate, &r.Type, &r.MeterValue, &r.RecordedBy,
		&r.RecordedAt, &r.IsEstimated, &r.EstimationMethod, &r.Notes, &r.State,
		&correctedAt, &r.OverrideManager, &r.OverrideReason)
	if err != nil {
		return domain.MeterReading{}, err
	}
	r.RecordedAt = r.RecordedAt.UTC()
	if correctedAt.Valid {
		t := correctedAt.Time.UTC()
		r.CorrectedAt = &t
	}
	return r, nil
}

func (s *Store) InsertReading(ctx context.Context, reading domain.MeterReading) error {
	if reading.ID == "" || reading.PumpID == "" || reading.ReadingDate == "" {
		return store.ErrInvalid
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meter_readings (id, pump_id, reading_date, reading_type, meter_value,
			recorded_by, recorded_at, is_estimated, estimation_method, notes, state,
			corrected_at, override_manager, override_reason)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NULLIF($9,''),$10,$11,$12,NULLIF($13,''),NULLIF($14,''))
	`, reading.ID, reading.PumpID, reading.ReadingDate, reading.Type, reading.MeterValue,
		reading.RecordedBy, reading.RecordedAt, reading.IsEstimated, string(reading.EstimationMethod),
		reading.Notes, reading.State, reading.CorrectedAt, reading.OverrideManager, reading.OverrideReason)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *Store) UpdateReading(ctx context.Context, reading domain.MeterReading) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE meter_readings
		SET meter_value = $2, recorded_by = $3, is_estimated = $4,
			estimation_method = NULLIF($5,''), notes = $6, state = $7,
			corrected_at = $8, override_manager = NULLIF($9,''), override_reason = NULLIF($10,'')
		WHERE id = $1
	`, reading.ID, reading.MeterValue, reading.RecordedBy, reading.IsEstimated,
		string(reading.EstimationMethod), reading.Notes, reading.State,
		reading.CorrectedAt, reading.OverrideManager, reading.OverrideReason)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetReadingByID(ctx context.Context, id string) (domain.MeterReading, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+readingColumns+`
		FROM meter_readings
		WHERE id = $1
	`, id)
	reading, err := scanReading(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.MeterReading{}, store.ErrNotFound
		}
		return domain.MeterReading{}, err
	}
	return reading, nil
}

func (s *Store) GetReadingByKey(ctx context.Context, pumpID, date string, typ domain.ReadingType) (domain.MeterReading, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+readingColumns+`
		FROM meter_readings
		WHERE pump_id = $1 AND reading_date = $2 AND reading_type = $3
	`, pumpID, date, typ)
	reading, err := scanReading(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.MeterReading{}, store.ErrNotFound
		}
		return domain.MeterReading{}, err
	}
	return reading, nil
}

func (s *Store) ListReadings(ctx context.Context, filter store.ReadingFilter) ([]domain.MeterReading, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+readingColumns+`
		FROM meter_readings r
		WHERE ($1 = '' OR EXISTS (SELECT 1 FROM pumps p WHERE p.id = r.pump_id AND p.station_id = $1))
		  AND ($2 = '' OR r.pump_id = $2)
		  AND ($3 = '' OR r.reading_date >= $3)
		  AND ($4 = '' OR r.reading_date <= $4)
		  AND ($5 = '' OR r.reading_type = $5)
		ORDER BY r.reading_date, r.pump_id, r.reading_type DESC
		LIMIT $6
	`, filter.StationID, filter.PumpID, filter.DateFrom, filter.DateTo, string(filter.Type), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	readings := make([]domain.MeterReading, 0, 32)
	for rows.Next() {
		reading, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		readings = append(readings, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return readings, nil
}

const calcColumns = `id, pump_id, station_id, calculation_date, opening_value, closing_value,
	raw_delta, volume_sold, rollover_applied, rollover_amount, rollover_confirmation_required,
	deviation_percent, deviation_flagged, has_estimated_input, approval_state,
	COALESCE(approval_notes,''), COALESCE(approved_by,''), stale, calculated_at, updated_at`

func scanCalculation(row interface{ Scan(...any) error }) (domain.PmsCalculation, error) {
	var c domain.PmsCalculation
	err := row.Scan(&c.ID, &c.PumpID, &c.StationID, &c.CalculationDate, &c.OpeningValue,
		&c.ClosingValue, &c.RawDelta, &c.VolumeSold, &c.RolloverApplied, &c.RolloverAmount,
		&c.RolloverConfirmationRequired, &c.DeviationPercent, &c.DeviationFlagged,
		&c.HasEstimatedInput, &c.ApprovalState, &c.ApprovalNotes, &c.ApprovedBy,
		&c.Stale, &c.CalculatedAt, &c.UpdatedAt)
	if err != nil {
		return domain.PmsCalculation{}, err
	}
	c.CalculatedAt = c.CalculatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, nil
}

func (s *Store) UpsertCalculation(ctx context.Context, calc domain.PmsCalculation) (domain.PmsCalculation, error) {
	if calc.PumpID == "" || calc.CalculationDate == "" {
		return domain.PmsCalculation{}, store.ErrInvalid
	}
	if calc.ID == "" {
		calc.ID = xid.New("calc")
	}

	// The unique key is (pump_id, calculation_date); a conflict keeps the
	// original row id so references stay stable across recomputation.
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO pms_calculations (id, pump_id, station_id, calculation_date,
			opening_value, closing_value, raw_delta, volume_sold,
			rollover_applied, rollover_amount, rollover_confirmation_required,
			deviation_percent, deviation_flagged, has_estimated_input,
			approval_state, approval_notes, approved_by, stale, calculated_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,NULLIF($16,''),NULLIF($17,''),$18,$19,$20)
		ON CONFLICT (pump_id, calculation_date) DO UPDATE SET
			opening_value = EXCLUDED.opening_value,
			closing_value = EXCLUDED.closing_value,
			raw_delta = EXCLUDED.raw_delta,
			volume_sold = EXCLUDED.volume_sold,
			rollover_applied = EXCLUDED.rollover_applied,
			rollover_amount = EXCLUDED.rollover_amount,
			rollover_confirmation_required = EXCLUDED.rollover_confirmation_required,
			deviation_percent = EXCLUDED.deviation_percent,
			deviation_flagged = EXCLUDED.deviation_flagged,
			has_estimated_input = EXCLUDED.has_estimated_input,
			approval_state = EXCLUDED.approval_state,
			approval_notes = EXCLUDED.approval_notes,
			approved_by = EXCLUDED.approved_by,
			stale = EXCLUDED.stale,
			calculated_at = EXCLUDED.calculated_at,
			updated_at = EXCLUDED.updated_at
		RETURNING id
	`, calc.ID, calc.PumpID, calc.StationID, calc.CalculationDate,
		calc.OpeningValue, calc.ClosingValue, calc.RawDelta, calc.VolumeSold,
		calc.RolloverApplied, calc.RolloverAmount, calc.RolloverConfirmationRequired,
		calc.DeviationPercent, calc.DeviationFlagged, calc.HasEstimatedInput,
		calc.ApprovalState, calc.ApprovalNotes, calc.ApprovedBy, calc.Stale,
		calc.CalculatedAt, calc.UpdatedAt)
	if err := row.Scan(&calc.ID); err != nil {
		return domain.PmsCalculation{}, err
	}
	return calc, nil
}

func (s *Store) GetCalculationByID(ctx context.Context, id string) (domain.PmsCalculation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+calcColumns+`
		FROM pms_calculations
		WHERE id = $1
	`, id)
	calc, err := scanCalculation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.PmsCalculation{}, store.ErrNotFound
		}
		return domain.PmsCalculation{}, err
	}
	return calc, nil
}

func (s *Store) GetCalculationByKey(ctx context.Context, pumpID, date string) (domain.PmsCalculation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+calcColumns+`
		FROM pms_calculations
		WHERE pump_id = $1 AND calculation_date = $2
	`, pumpID, date)
	calc, err := scanCalculation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.PmsCalculation{}, store.ErrNotFound
		}
		return domain.PmsCalculation{}, err
	}
	return calc, nil
}

func (s *Store) ListCalculations(ctx context.Context, filter store.CalculationFilter) ([]domain.PmsCalculation, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+calcColumns+`
		FROM pms_calculations
		WHERE ($1 = '' OR station_id = $1)
		  AND ($2 = '' OR pump_id = $2)
		  AND ($3 = '' OR calculation_date >= $3)
		  AND ($4 = '' OR calculation_date <= $4)
		  AND (NOT $5 OR deviation_flagged = true)
		  AND ($6 = '' OR approval_state = $6)
		ORDER BY calculation_date DESC, pump_id
		LIMIT $7
	`, filter.StationID, filter.PumpID, filter.DateFrom, filter.DateTo,
		filter.FlaggedOnly, string(filter.ApprovalState), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	calcs := make([]domain.PmsCalculation, 0, limit)
	for rows.Next() {
		calc, err := scanCalculation(rows)
		if err != nil {
			return nil, err
		}
		calcs = append(calcs, calc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return calcs, nil
}

func (s *Store) ListPumpCalculationsBefore(ctx context.Context, pumpID, before string, limit int, states []domain.ApprovalState) ([]domain.PmsCalculation, error) {
	if limit < 1 {
		limit = 30
	}
	stateStrings := make([]string, 0, len(states))
	for _, state := range states {
		stateStrings = append(stateStrings, string(state))
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+calcColumns+`
		FROM pms_calculations
		WHERE pump_id = $1 AND calculation_date < $2
		  AND (cardinality($3::text[]) = 0 OR approval_state = ANY($3))
		ORDER BY calculation_date DESC
		LIMIT $4
	`, pumpID, before, stateStrings, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	calcs := make([]domain.PmsCalculation, 0, limit)
	for rows.Next() {
		calc, err := scanCalculation(rows)
		if err != nil {
			return nil, err
		}
		calcs = append(calcs, calc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return calcs, nil
}

func (s *Store) SetCalculationApproval(ctx context.Context, id string, state domain.ApprovalState, approvedBy, notes string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pms_calculations
		SET approval_state = $2, approved_by = NULLIF($3,''), approval_notes = NULLIF($4,''), updated_at = now()
		WHERE id = $1
	`, id, state, approvedBy, notes)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) MarkCalculationStale(ctx context.Context, pumpID, date string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pms_calculations
		SET stale = true, updated_at = now()
		WHERE pump_id = $1 AND calculation_date = $2
	`, pumpID, date)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreatePumpSale(ctx context.Context, sale domain.PumpSale) error {
	if sale.PumpID == "" || sale.SaleDate == "" {
		return store.ErrInvalid
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pump_sales (id, pump_id, sale_date, litres, amount, recorded_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, sale.ID, sale.PumpID, sale.SaleDate, sale.Litres, sale.Amount, sale.RecordedBy, sale.CreatedAt)
	return err
}

func (s *Store) ListPumpSales(ctx context.Context, pumpID, date string) ([]domain.PumpSale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pump_id, sale_date, litres, amount, recorded_by, created_at
		FROM pump_sales
		WHERE pump_id = $1 AND ($2 = '' OR sale_date = $2)
		ORDER BY created_at, id
	`, pumpID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.PumpSale, 0, 16)
	for rows.Next() {
		var sale domain.PumpSale
		if err := rows.Scan(&sale.ID, &sale.PumpID, &sale.SaleDate, &sale.Litres,
			&sale.Amount, &sale.RecordedBy, &sale.CreatedAt); err != nil {
			return nil, err
		}
		sale.CreatedAt = sale.CreatedAt.UTC()
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, station_id, actor_username, actor_role, action,
			entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.StationID, entry.ActorUsername, entry.ActorRole, entry.Action,
		entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, stationID string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, station_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE ($1 = '' OR station_id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, stationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.StationID, &entry.ActorUsername, &entry.ActorRole,
			&entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT username, password_hash, role, active, created_at
		FROM users
		WHERE username = $1
	`, username).Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.UserAccount{}, store.ErrNotFound
		}
		return domain.UserAccount{}, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return user, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrInvalid
	}
	if user.Role == "" {
		user.Role = domain.RoleStaff
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, role, active, created_at)
		VALUES ($1,$2,$3,true,$4)
	`, user.Username, user.Password, user.Role, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password_hash, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username, passwordHash string) error {
	if username == "" || passwordHash == "" {
		return store.ErrInvalid
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash = $2 WHERE username = $1
	`, username, passwordHash)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
