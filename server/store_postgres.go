package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-gorp/gorp/v3"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgtype"
	_ "github.com/jackc/pgx/v4/stdlib" // database/sql driver registered as "pgx"
	migrate "github.com/rubenv/sql-migrate"
)

// PostgresStore is the persisted-state backend: ticket records in a
// `tickets` table, pool membership in a `pool_entries` table with a
// covering index on (game_mode, score, seq) so RangeByScore/PopMin are
// plain ordered SELECTs and RemoveMany's actual-removed-count comes
// straight out of a DELETE ... RETURNING. It implements the same Store
// interface as MemoryStore so the scheduler never knows which backend it
// is talking to.
type PostgresStore struct {
	dbmap *gorp.DbMap
	ttl   time.Duration
}

// pgTicketRow is the gorp mapping for the tickets table. The ticket
// itself is stored as JSON; relational decomposition buys nothing here
// since the store never queries on ticket fields directly (only by id).
type pgTicketRow struct {
	TicketID  string    `db:"ticket_id"`
	GameMode  string    `db:"game_mode"`
	Data      string    `db:"data"`
	ExpiresAt time.Time `db:"expires_at"`
}

// NewPostgresStore opens dsn (a standard Postgres connection string) via
// the pgx stdlib driver and wraps it in a gorp.DbMap.
func NewPostgresStore(dsn string, ttl time.Duration) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("matchengine: opening postgres store: %w", err)
	}

	dbmap := &gorp.DbMap{Db: db, Dialect: gorp.PostgresDialect{}}
	dbmap.AddTableWithName(pgTicketRow{}, "tickets").SetKeys(false, "TicketID")

	return &PostgresStore{dbmap: dbmap, ttl: ttl}, nil
}

// ticketMigrations is the schema history for the Postgres backend,
// versioned with rubenv/sql-migrate.
var ticketMigrations = &migrate.MemoryMigrationSource{
	Migrations: []*migrate.Migration{
		{
			Id: "0001_init",
			Up: []string{
				`CREATE TABLE IF NOT EXISTS tickets (
					ticket_id  TEXT PRIMARY KEY,
					game_mode  TEXT NOT NULL,
					data       JSONB NOT NULL,
					expires_at TIMESTAMPTZ NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS tickets_expires_at_idx ON tickets (expires_at)`,
				`CREATE TABLE IF NOT EXISTS pool_entries (
					game_mode TEXT NOT NULL,
					ticket_id TEXT NOT NULL,
					score     DOUBLE PRECISION NOT NULL,
					seq       BIGSERIAL NOT NULL,
					PRIMARY KEY (game_mode, ticket_id)
				)`,
				`CREATE INDEX IF NOT EXISTS pool_entries_order_idx ON pool_entries (game_mode, score, seq)`,
			},
			Down: []string{
				`DROP TABLE IF EXISTS pool_entries`,
				`DROP TABLE IF EXISTS tickets`,
			},
		},
	},
}

// Migrate applies every pending migration. Call once at startup before
// serving traffic.
func (s *PostgresStore) Migrate() error {
	_, err := migrate.Exec(s.dbmap.Db, "postgres", ticketMigrations, migrate.Up)
	if err != nil {
		return fmt.Errorf("matchengine: migrating postgres store: %w", err)
	}
	return nil
}

// PutTicket upserts through gorp: Update first, falling back to Insert
// when no row has the ticket id yet. Gorp has no native upsert,
// so the two-call form is the idiomatic shape for this mapping.
func (s *PostgresStore) PutTicket(ctx context.Context, t Ticket) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("matchengine: marshalling ticket: %w", err)
	}
	row := &pgTicketRow{
		TicketID:  t.TicketID,
		GameMode:  t.GameMode,
		Data:      string(data),
		ExpiresAt: time.Now().Add(s.ttl),
	}

	exec := s.dbmap.WithContext(ctx)
	n, err := exec.Update(row)
	if err != nil {
		return wrapStore(err)
	}
	if n == 0 {
		if err := exec.Insert(row); err != nil {
			// Another ingress task inserted the same id between our
			// Update and Insert; their row wins the Insert, ours wins
			// the follow-up Update.
			if isUniqueViolation(err) {
				if _, uerr := exec.Update(row); uerr != nil {
					return wrapStore(uerr)
				}
				return nil
			}
			return wrapStore(err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// SweepExpired deletes ticket records past their TTL. Pool entries are
// deliberately left alone: the scheduler is the pool's sole remover,
// and its stale-ticket path already drops entries whose record is
// gone. Run periodically (see cmd/matchengine).
func (s *PostgresStore) SweepExpired(ctx context.Context) (int64, error) {
	res, err := s.dbmap.WithContext(ctx).Exec(`DELETE FROM tickets WHERE expires_at <= now()`)
	if err != nil {
		return 0, wrapStore(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapStore(err)
	}
	return n, nil
}

func (s *PostgresStore) GetTicket(ctx context.Context, id string) (Ticket, bool, error) {
	obj, err := s.dbmap.WithContext(ctx).Get(pgTicketRow{}, id)
	if err != nil {
		return Ticket{}, false, wrapStore(err)
	}
	if obj == nil {
		return Ticket{}, false, nil
	}
	row := obj.(*pgTicketRow)
	if !row.ExpiresAt.After(time.Now()) {
		return Ticket{}, false, nil
	}

	var t Ticket
	if err := json.Unmarshal([]byte(row.Data), &t); err != nil {
		return Ticket{}, false, fmt.Errorf("matchengine: unmarshalling ticket: %w", err)
	}
	return t, true, nil
}

func (s *PostgresStore) Pool(mode string) PoolHandle {
	return &postgresPool{db: s.dbmap.Db, mode: mode}
}

type postgresPool struct {
	db   *sql.DB
	mode string
}

func (p *postgresPool) Insert(ctx context.Context, id string, score float64) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO pool_entries (game_mode, ticket_id, score)
		VALUES ($1, $2, $3)
		ON CONFLICT (game_mode, ticket_id) DO UPDATE
		SET score = EXCLUDED.score
		WHERE pool_entries.score IS DISTINCT FROM EXCLUDED.score`,
		p.mode, id, score,
	)
	return wrapStore(err)
}

func (p *postgresPool) RemoveMany(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var idArr pgtype.TextArray
	if err := idArr.Set(ids); err != nil {
		return 0, wrapStore(err)
	}
	rows, err := p.db.QueryContext(ctx, `
		DELETE FROM pool_entries
		WHERE game_mode = $1 AND ticket_id = ANY($2)
		RETURNING ticket_id`,
		p.mode, &idArr,
	)
	if err != nil {
		return 0, wrapStore(err)
	}
	defer rows.Close()

	removed := 0
	for rows.Next() {
		removed++
	}
	return removed, wrapStore(rows.Err())
}

func (p *postgresPool) RangeByScore(ctx context.Context, min, max float64) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT ticket_id FROM pool_entries
		WHERE game_mode = $1 AND score BETWEEN $2 AND $3
		ORDER BY score ASC, seq ASC`,
		p.mode, min, max,
	)
	if err != nil {
		return nil, wrapStore(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapStore(err)
		}
		ids = append(ids, id)
	}
	return ids, wrapStore(rows.Err())
}

func (p *postgresPool) PopMin(ctx context.Context) (string, float64, bool, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return "", 0, false, wrapStore(err)
	}
	defer tx.Rollback()

	var id string
	var score float64
	row := tx.QueryRowContext(ctx, `
		SELECT ticket_id, score FROM pool_entries
		WHERE game_mode = $1
		ORDER BY score ASC, seq ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`, p.mode)
	if err := row.Scan(&id, &score); err != nil {
		if err == sql.ErrNoRows {
			return "", 0, false, nil
		}
		return "", 0, false, wrapStore(err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM pool_entries WHERE game_mode = $1 AND ticket_id = $2`, p.mode, id); err != nil {
		return "", 0, false, wrapStore(err)
	}

	if err := tx.Commit(); err != nil {
		return "", 0, false, wrapStore(err)
	}
	return id, score, true, nil
}

func (p *postgresPool) Size(ctx context.Context) (int, error) {
	var n int
	row := p.db.QueryRowContext(ctx, `SELECT count(*) FROM pool_entries WHERE game_mode = $1`, p.mode)
	if err := row.Scan(&n); err != nil {
		return 0, wrapStore(err)
	}
	return n, nil
}
