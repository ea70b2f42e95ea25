package decisionlog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Smooother/poolheating/pkg/pool"
	"github.com/Smooother/poolheating/pkg/price"
	"github.com/Smooother/poolheating/pkg/state"
	_ "modernc.org/sqlite"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(dbPath string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// the pure go driver wants a single writer
	db.SetMaxOpenConns(1)

	l := &SQLite{db: db}
	if err := l.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return l, nil
}

func (l *SQLite) Close() error {
	return l.db.Close()
}

func (l *SQLite) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS decisions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		time TEXT NOT NULL,
		device_id TEXT NOT NULL,
		price REAL NOT NULL DEFAULT 0,
		level TEXT NOT NULL DEFAULT '',
		price_avg REAL NOT NULL DEFAULT 0,
		coverage_days REAL NOT NULL DEFAULT 0,
		prev_setpoint REAL NOT NULL DEFAULT 0,
		proposed_setpoint REAL NOT NULL DEFAULT 0,
		applied_setpoint REAL NOT NULL DEFAULT 0,
		outcome TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		status_source TEXT NOT NULL DEFAULT '',
		critical INTEGER NOT NULL DEFAULT 0,
		power_on INTEGER,
		dispatched INTEGER NOT NULL DEFAULT 0,
		pending INTEGER NOT NULL DEFAULT 0,
		meter_power_w REAL,
		synced INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS device_status (
		device_id TEXT PRIMARY KEY,
		setpoint REAL NOT NULL,
		water_temp REAL,
		power TEXT NOT NULL,
		online INTEGER NOT NULL,
		observed_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_decisions_device_time ON decisions(device_id, id DESC);
	CREATE INDEX IF NOT EXISTS idx_decisions_synced ON decisions(synced, id);
	`

	_, err := l.db.Exec(schema)
	return err
}

func (l *SQLite) Append(ctx context.Context, r *pool.Record) (int64, error) {
	var powerOn sql.NullInt64
	if r.PowerOn != nil {
		powerOn = sql.NullInt64{Int64: boolToInt(*r.PowerOn), Valid: true}
	}
	var meterW sql.NullFloat64
	if r.MeterPowerW != nil {
		meterW = sql.NullFloat64{Float64: *r.MeterPowerW, Valid: true}
	}

	query := `INSERT INTO decisions
		(time, device_id, price, level, price_avg, coverage_days,
		 prev_setpoint, proposed_setpoint, applied_setpoint,
		 outcome, reason, status_source, critical, power_on, dispatched, pending, meter_power_w)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := l.db.ExecContext(ctx, query,
		r.Time.UTC().Format(time.RFC3339Nano), r.DeviceID, r.Price, string(r.Level), r.PriceAverage, r.CoverageDays,
		r.PreviousSetpoint, r.ProposedSetpoint, r.AppliedSetpoint,
		string(r.Outcome), r.Reason, string(r.StatusSource), boolToInt(r.Critical), powerOn,
		boolToInt(r.Dispatched), boolToInt(r.Pending), meterW)
	if err != nil {
		return 0, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	r.ID = id
	return id, nil
}

const recordColumns = `id, time, device_id, price, level, price_avg, coverage_days,
	prev_setpoint, proposed_setpoint, applied_setpoint,
	outcome, reason, status_source, critical, power_on, dispatched, pending, meter_power_w`

func (l *SQLite) Recent(ctx context.Context, deviceID string, limit int) ([]*pool.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM decisions WHERE device_id = ? ORDER BY id DESC LIMIT ?`

	rows, err := l.db.QueryContext(ctx, query, deviceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows)
}

func (l *SQLite) LastChange(ctx context.Context, deviceID string) (time.Time, error) {
	query := `SELECT time FROM decisions WHERE device_id = ? AND dispatched = 1 ORDER BY id DESC LIMIT 1`

	var ts string
	err := l.db.QueryRowContext(ctx, query, deviceID).Scan(&ts)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, ts)
}

func (l *SQLite) Unsynced(ctx context.Context, limit int) ([]*pool.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM decisions WHERE synced = 0 ORDER BY id ASC LIMIT ?`

	rows, err := l.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows)
}

func (l *SQLite) MarkSynced(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]interface{}, len(ids))
	placeholders := make([]string, len(ids))
	for i, id := range ids {
		args[i] = id
		placeholders[i] = "?"
	}
	query := `UPDATE decisions SET synced = 1 WHERE id IN (` + strings.Join(placeholders, ",") + `)`
	_, err := l.db.ExecContext(ctx, query, args...)
	return err
}

func (l *SQLite) SaveStatus(ctx context.Context, s state.Status) error {
	var waterTemp sql.NullFloat64
	if s.WaterTemp != nil {
		waterTemp = sql.NullFloat64{Float64: *s.WaterTemp, Valid: true}
	}

	query := `INSERT OR REPLACE INTO device_status (device_id, setpoint, water_temp, power, online, observed_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	_, err := l.db.ExecContext(ctx, query, s.DeviceID, s.Setpoint, waterTemp, string(s.Power),
		boolToInt(s.Online), s.ObservedAt.UTC().Format(time.RFC3339Nano))
	return err
}

func (l *SQLite) LastStatus(ctx context.Context, deviceID string) (*state.Status, error) {
	query := `SELECT setpoint, water_temp, power, online, observed_at FROM device_status WHERE device_id = ?`

	s := &state.Status{DeviceID: deviceID}
	var waterTemp sql.NullFloat64
	var power, observedAt string
	var online int64

	err := l.db.QueryRowContext(ctx, query, deviceID).Scan(&s.Setpoint, &waterTemp, &power, &online, &observedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if waterTemp.Valid {
		s.WaterTemp = &waterTemp.Float64
	}
	s.Power = state.PowerState(power)
	s.Online = online == 1
	s.ObservedAt, err = time.Parse(time.RFC3339Nano, observedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func scanRecords(rows *sql.Rows) ([]*pool.Record, error) {
	records := []*pool.Record{}
	for rows.Next() {
		var r pool.Record
		var ts, level, outcome, source string
		var critical, dispatched, pending int64
		var powerOn sql.NullInt64
		var meterW sql.NullFloat64

		err := rows.Scan(&r.ID, &ts, &r.DeviceID, &r.Price, &level, &r.PriceAverage, &r.CoverageDays,
			&r.PreviousSetpoint, &r.ProposedSetpoint, &r.AppliedSetpoint,
			&outcome, &r.Reason, &source, &critical, &powerOn, &dispatched, &pending, &meterW)
		if err != nil {
			return nil, err
		}

		r.Time, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, err
		}
		r.Level = price.Level(level)
		r.Outcome = pool.Outcome(outcome)
		r.StatusSource = state.Source(source)
		r.Critical = critical == 1
		r.Dispatched = dispatched == 1
		r.Pending = pending == 1
		if powerOn.Valid {
			b := powerOn.Int64 == 1
			r.PowerOn = &b
		}
		if meterW.Valid {
			r.MeterPowerW = &meterW.Float64
		}

		records = append(records, &r)
	}
	return records, rows.Err()
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
