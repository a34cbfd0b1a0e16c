package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cms-tsg-fog/RateMon-sub001/shiftmon/internal/alert"
)

const createAlertLog = `
CREATE TABLE IF NOT EXISTS ratemon_alerts (
	id         UUID PRIMARY KEY,
	alert      TEXT NOT NULL,
	level      TEXT NOT NULL,
	status     TEXT NOT NULL,
	message    TEXT NOT NULL,
	details    TEXT NOT NULL DEFAULT '',
	fired_at   TIMESTAMPTZ NOT NULL
)`

const insertAlert = `
INSERT INTO ratemon_alerts (id, alert, level, status, message, details, fired_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)`

// execer is the part of *pgxpool.Pool the action uses.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PGLog appends every firing to a Postgres table.
type PGLog struct {
	name string
	db   execer
	pool *pgxpool.Pool
	now  func() time.Time
}

// DialPGLog opens a pool on dsn and creates the table when missing.
func DialPGLog(ctx context.Context, name, dsn string) (*PGLog, error) {
	if dsn == "" {
		return nil, errors.New("pglog: dsn is empty")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pglog: connect: %w", err)
	}
	if _, err := pool.Exec(ctx, createAlertLog); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pglog: create table: %w", err)
	}
	p := newPGLog(name, pool)
	p.pool = pool
	return p, nil
}

func newPGLog(name string, db execer) *PGLog {
	return &PGLog{name: name, db: db, now: time.Now}
}

func (p *PGLog) Name() string { return p.name }

func (p *PGLog) Notify(ctx context.Context, a alert.Alert) error {
	ev := NewEvent(a, p.now())
	_, err := p.db.Exec(ctx, insertAlert,
		ev.ID, ev.Alert, ev.Level, ev.Status, ev.Message, ev.Details, ev.FiredAt)
	if err != nil {
		return fmt.Errorf("pglog insert: %w", err)
	}
	return nil
}

// Close releases the pool.
func (p *PGLog) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}
