package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tmachen/shopfloor/internal/core/domain"
	"github.com/tmachen/shopfloor/internal/port"
)

// MySQLStore backs the cell with MySQL (see schema.sql). Execute maps the
// atomic unit onto one database transaction; bin, order and assembly reads
// inside a unit take row locks so the database enforces the same isolation
// the engine's own locks already guarantee in process.
type MySQLStore struct {
	db *sql.DB
}

var _ port.CellStore = (*MySQLStore)(nil)

func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

func (s *MySQLStore) Execute(ctx context.Context, fn func(tx port.StoreTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&mysqlTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type mysqlTx struct {
	tx *sql.Tx
}

var _ port.StoreTx = (*mysqlTx)(nil)

func (t *mysqlTx) Part(ctx context.Context, id string) (domain.Part, error) {
	return scanPart(t.tx.QueryRowContext(ctx, `
		SELECT id, name, default_capacity FROM parts WHERE id = ?`, id))
}

func (t *mysqlTx) SavePart(ctx context.Context, p domain.Part) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO parts (id, name, default_capacity) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE name = VALUES(name), default_capacity = VALUES(default_capacity)`,
		p.ID, p.Name, p.DefaultCapacity)
	if err != nil {
		return fmt.Errorf("save part: %w", err)
	}
	return nil
}

func (t *mysqlTx) SaveStation(ctx context.Context, st domain.Station) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO stations (id, name, worker_id, updated_at) VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE name = VALUES(name), worker_id = VALUES(worker_id), updated_at = VALUES(updated_at)`,
		st.ID, st.Name, st.WorkerID, st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save station: %w", err)
	}
	return nil
}

func (t *mysqlTx) SaveWorker(ctx context.Context, w domain.Worker) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO workers (id, name, skill, assembly_time_sec, defect_rate) VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE name = VALUES(name), skill = VALUES(skill),
			assembly_time_sec = VALUES(assembly_time_sec), defect_rate = VALUES(defect_rate)`,
		w.ID, w.Name, string(w.Skill), durationToSec(w.AssemblyTime), nullFloat(w.DefectRate))
	if err != nil {
		return fmt.Errorf("save worker: %w", err)
	}
	return nil
}

func (t *mysqlTx) Bin(ctx context.Context, id string) (domain.Bin, error) {
	return scanBin(t.tx.QueryRowContext(ctx, `
		SELECT id, station_id, part_id, quantity, replenished_at
		FROM bins WHERE id = ? FOR UPDATE`, id))
}

func (t *mysqlTx) SaveBin(ctx context.Context, b domain.Bin) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO bins (id, station_id, part_id, quantity, replenished_at) VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE quantity = VALUES(quantity), replenished_at = VALUES(replenished_at)`,
		b.ID, b.StationID, b.PartID, b.Quantity, b.ReplenishedAt)
	if err != nil {
		return fmt.Errorf("save bin: %w", err)
	}
	return nil
}

func (t *mysqlTx) Assembly(ctx context.Context, id string) (domain.Assembly, error) {
	return scanAssembly(t.tx.QueryRowContext(ctx, `
		SELECT id, station_id, worker_id, order_id, started_at, ended_at, status, defective
		FROM assemblies WHERE id = ? FOR UPDATE`, id))
}

func (t *mysqlTx) SaveAssembly(ctx context.Context, a domain.Assembly) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO assemblies (id, station_id, worker_id, order_id, started_at, ended_at, status, defective)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE ended_at = VALUES(ended_at), status = VALUES(status), defective = VALUES(defective)`,
		a.ID, a.StationID, a.WorkerID, a.OrderID, a.StartedAt, nullTime(a.EndedAt), string(a.Status), a.Defective)
	if err != nil {
		return fmt.Errorf("save assembly: %w", err)
	}
	return nil
}

func (t *mysqlTx) Order(ctx context.Context, id string) (domain.Order, error) {
	return scanOrder(t.tx.QueryRowContext(ctx, `
		SELECT id, amount, completed, in_process, status, created_at
		FROM orders WHERE id = ? FOR UPDATE`, id))
}

func (t *mysqlTx) SaveOrder(ctx context.Context, o domain.Order) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO orders (id, amount, completed, in_process, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE amount = VALUES(amount), completed = VALUES(completed),
			in_process = VALUES(in_process), status = VALUES(status)`,
		o.ID, o.Amount, o.Completed, o.InProcess, string(o.Status), o.CreatedAt)
	if err != nil {
		return fmt.Errorf("save order: %w", err)
	}
	return nil
}

func (t *mysqlTx) OpenNotification(ctx context.Context, binID string) (domain.Notification, bool, error) {
	n, err := scanNotification(t.tx.QueryRowContext(ctx, `
		SELECT id, station_id, bin_id, message, created_at, resolved, resolved_at, resolved_by
		FROM notifications WHERE bin_id = ? AND resolved = 0 LIMIT 1 FOR UPDATE`, binID))
	if errors.Is(err, port.ErrNotFound) {
		return domain.Notification{}, false, nil
	}
	if err != nil {
		return domain.Notification{}, false, err
	}
	return n, true, nil
}

func (t *mysqlTx) SaveNotification(ctx context.Context, n domain.Notification) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO notifications (id, station_id, bin_id, message, created_at, resolved, resolved_at, resolved_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE resolved = VALUES(resolved), resolved_at = VALUES(resolved_at),
			resolved_by = VALUES(resolved_by)`,
		n.ID, n.StationID, n.BinID, n.Message, n.CreatedAt, n.Resolved, nullTime(n.ResolvedAt), n.ResolvedBy)
	if err != nil {
		return fmt.Errorf("save notification: %w", err)
	}
	return nil
}

// Read-side queries.

func (s *MySQLStore) Part(ctx context.Context, id string) (domain.Part, error) {
	return scanPart(s.db.QueryRowContext(ctx, `
		SELECT id, name, default_capacity FROM parts WHERE id = ?`, id))
}

func (s *MySQLStore) Parts(ctx context.Context) ([]domain.Part, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, default_capacity FROM parts ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query parts: %w", err)
	}
	defer rows.Close()

	var out []domain.Part
	for rows.Next() {
		var p domain.Part
		if err := rows.Scan(&p.ID, &p.Name, &p.DefaultCapacity); err != nil {
			return nil, fmt.Errorf("scan part: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *MySQLStore) Station(ctx context.Context, id string) (domain.Station, error) {
	var st domain.Station
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, worker_id, updated_at FROM stations WHERE id = ?`, id).
		Scan(&st.ID, &st.Name, &st.WorkerID, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Station{}, port.ErrNotFound
	}
	if err != nil {
		return domain.Station{}, fmt.Errorf("query station: %w", err)
	}
	return st, nil
}

func (s *MySQLStore) Stations(ctx context.Context) ([]domain.Station, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, worker_id, updated_at FROM stations ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query stations: %w", err)
	}
	defer rows.Close()

	var out []domain.Station
	for rows.Next() {
		var st domain.Station
		if err := rows.Scan(&st.ID, &st.Name, &st.WorkerID, &st.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan station: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *MySQLStore) Worker(ctx context.Context, id string) (domain.Worker, error) {
	return scanWorker(s.db.QueryRowContext(ctx, `
		SELECT id, name, skill, assembly_time_sec, defect_rate FROM workers WHERE id = ?`, id))
}

func (s *MySQLStore) Workers(ctx context.Context) ([]domain.Worker, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, skill, assembly_time_sec, defect_rate FROM workers ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query workers: %w", err)
	}
	defer rows.Close()

	var out []domain.Worker
	for rows.Next() {
		w, err := scanWorkerRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *MySQLStore) Bin(ctx context.Context, id string) (domain.Bin, error) {
	return scanBin(s.db.QueryRowContext(ctx, `
		SELECT id, station_id, part_id, quantity, replenished_at FROM bins WHERE id = ?`, id))
}

func (s *MySQLStore) Bins(ctx context.Context) ([]domain.Bin, error) {
	return s.queryBins(ctx, `
		SELECT id, station_id, part_id, quantity, replenished_at
		FROM bins ORDER BY station_id, part_id`)
}

func (s *MySQLStore) StationBins(ctx context.Context, stationID string) ([]domain.Bin, error) {
	return s.queryBins(ctx, `
		SELECT id, station_id, part_id, quantity, replenished_at
		FROM bins WHERE station_id = ? ORDER BY part_id`, stationID)
}

func (s *MySQLStore) queryBins(ctx context.Context, query string, args ...any) ([]domain.Bin, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bins: %w", err)
	}
	defer rows.Close()

	var out []domain.Bin
	for rows.Next() {
		var b domain.Bin
		if err := rows.Scan(&b.ID, &b.StationID, &b.PartID, &b.Quantity, &b.ReplenishedAt); err != nil {
			return nil, fmt.Errorf("scan bin: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *MySQLStore) Order(ctx context.Context, id string) (domain.Order, error) {
	return scanOrder(s.db.QueryRowContext(ctx, `
		SELECT id, amount, completed, in_process, status, created_at FROM orders WHERE id = ?`, id))
}

func (s *MySQLStore) Assembly(ctx context.Context, id string) (domain.Assembly, error) {
	return scanAssembly(s.db.QueryRowContext(ctx, `
		SELECT id, station_id, worker_id, order_id, started_at, ended_at, status, defective
		FROM assemblies WHERE id = ?`, id))
}

func (s *MySQLStore) StationAssemblies(ctx context.Context, stationID string) ([]domain.Assembly, error) {
	return s.queryAssemblies(ctx, `
		SELECT id, station_id, worker_id, order_id, started_at, ended_at, status, defective
		FROM assemblies WHERE station_id = ? ORDER BY started_at, id`, stationID)
}

func (s *MySQLStore) OrderAssemblies(ctx context.Context, orderID string) ([]domain.Assembly, error) {
	return s.queryAssemblies(ctx, `
		SELECT id, station_id, worker_id, order_id, started_at, ended_at, status, defective
		FROM assemblies WHERE order_id = ? ORDER BY started_at, id`, orderID)
}

func (s *MySQLStore) queryAssemblies(ctx context.Context, query string, args ...any) ([]domain.Assembly, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query assemblies: %w", err)
	}
	defer rows.Close()

	var out []domain.Assembly
	for rows.Next() {
		var a domain.Assembly
		var ended sql.NullTime
		var status string
		if err := rows.Scan(&a.ID, &a.StationID, &a.WorkerID, &a.OrderID, &a.StartedAt, &ended, &status, &a.Defective); err != nil {
			return nil, fmt.Errorf("scan assembly: %w", err)
		}
		if ended.Valid {
			a.EndedAt = &ended.Time
		}
		a.Status = domain.AssemblyStatus(status)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *MySQLStore) OpenNotifications(ctx context.Context, binID string) ([]domain.Notification, error) {
	query := `
		SELECT id, station_id, bin_id, message, created_at, resolved, resolved_at, resolved_by
		FROM notifications WHERE resolved = 0 ORDER BY created_at, id`
	args := []any{}
	if binID != "" {
		query = `
		SELECT id, station_id, bin_id, message, created_at, resolved, resolved_at, resolved_by
		FROM notifications WHERE resolved = 0 AND bin_id = ? ORDER BY created_at, id`
		args = append(args, binID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var resolvedAt sql.NullTime
		if err := rows.Scan(&n.ID, &n.StationID, &n.BinID, &n.Message, &n.CreatedAt, &n.Resolved, &resolvedAt, &n.ResolvedBy); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		if resolvedAt.Valid {
			n.ResolvedAt = &resolvedAt.Time
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// Row scanning helpers shared by the tx and read paths.

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPart(row rowScanner) (domain.Part, error) {
	var p domain.Part
	err := row.Scan(&p.ID, &p.Name, &p.DefaultCapacity)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Part{}, port.ErrNotFound
	}
	if err != nil {
		return domain.Part{}, fmt.Errorf("scan part: %w", err)
	}
	return p, nil
}

func scanBin(row rowScanner) (domain.Bin, error) {
	var b domain.Bin
	err := row.Scan(&b.ID, &b.StationID, &b.PartID, &b.Quantity, &b.ReplenishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Bin{}, port.ErrNotFound
	}
	if err != nil {
		return domain.Bin{}, fmt.Errorf("scan bin: %w", err)
	}
	return b, nil
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var o domain.Order
	var status string
	err := row.Scan(&o.ID, &o.Amount, &o.Completed, &o.InProcess, &status, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, port.ErrNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("scan order: %w", err)
	}
	o.Status = domain.OrderStatus(status)
	return o, nil
}

func scanAssembly(row rowScanner) (domain.Assembly, error) {
	var a domain.Assembly
	var ended sql.NullTime
	var status string
	err := row.Scan(&a.ID, &a.StationID, &a.WorkerID, &a.OrderID, &a.StartedAt, &ended, &status, &a.Defective)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Assembly{}, port.ErrNotFound
	}
	if err != nil {
		return domain.Assembly{}, fmt.Errorf("scan assembly: %w", err)
	}
	if ended.Valid {
		a.EndedAt = &ended.Time
	}
	a.Status = domain.AssemblyStatus(status)
	return a, nil
}

func scanNotification(row rowScanner) (domain.Notification, error) {
	var n domain.Notification
	var resolvedAt sql.NullTime
	err := row.Scan(&n.ID, &n.StationID, &n.BinID, &n.Message, &n.CreatedAt, &n.Resolved, &resolvedAt, &n.ResolvedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Notification{}, port.ErrNotFound
	}
	if err != nil {
		return domain.Notification{}, fmt.Errorf("scan notification: %w", err)
	}
	if resolvedAt.Valid {
		n.ResolvedAt = &resolvedAt.Time
	}
	return n, nil
}

func scanWorker(row rowScanner) (domain.Worker, error) {
	var w domain.Worker
	var skill string
	var timeSec sql.NullInt64
	var rate sql.NullFloat64
	err := row.Scan(&w.ID, &w.Name, &skill, &timeSec, &rate)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Worker{}, port.ErrNotFound
	}
	if err != nil {
		return domain.Worker{}, fmt.Errorf("scan worker: %w", err)
	}
	w.Skill = domain.SkillLevel(skill)
	if timeSec.Valid {
		d := time.Duration(timeSec.Int64) * time.Second
		w.AssemblyTime = &d
	}
	if rate.Valid {
		w.DefectRate = &rate.Float64
	}
	return w, nil
}

func scanWorkerRow(rows *sql.Rows) (domain.Worker, error) {
	var w domain.Worker
	var skill string
	var timeSec sql.NullInt64
	var rate sql.NullFloat64
	if err := rows.Scan(&w.ID, &w.Name, &skill, &timeSec, &rate); err != nil {
		return domain.Worker{}, fmt.Errorf("scan worker: %w", err)
	}
	w.Skill = domain.SkillLevel(skill)
	if timeSec.Valid {
		d := time.Duration(timeSec.Int64) * time.Second
		w.AssemblyTime = &d
	}
	if rate.Valid {
		w.DefectRate = &rate.Float64
	}
	return w, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func durationToSec(d *time.Duration) sql.NullInt64 {
	if d == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(d.Seconds()), Valid: true}
}
