package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/b0ase/path402/pkg/wallet"
)

// SQLStore implements WalletStore using database/sql.
// It supports both Postgres and SQLite via standard drivers.
type SQLStore struct {
	db    *sql.DB
	clock func() time.Time
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, clock: time.Now}
}

const schema = `
CREATE TABLE IF NOT EXISTS path402_wallets (
	agent_id TEXT PRIMARY KEY,
	balance BIGINT NOT NULL,
	total_spent BIGINT NOT NULL,
	total_earned BIGINT NOT NULL,
	token_count INTEGER NOT NULL,
	state TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
`

func (s *SQLStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init wallet schema: %w", err)
	}
	return nil
}

func (s *SQLStore) Load(ctx context.Context, agentID string) (*wallet.State, error) {
	row := s.db.QueryRowContext(ctx, `SELECT state FROM path402_wallets WHERE agent_id = $1`, agentID)
	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load wallet: %w", err)
	}
	var st wallet.State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, fmt.Errorf("decode wallet %s: %w", agentID, err)
	}
	return &st, nil
}

// Save upserts the full state. The summary columns duplicate the JSON for
// operators querying the table directly.
func (s *SQLStore) Save(ctx context.Context, agentID string, st wallet.State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode wallet %s: %w", agentID, err)
	}
	query := `
		INSERT INTO path402_wallets (agent_id, balance, total_spent, total_earned, token_count, state, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (agent_id) DO UPDATE SET
			balance = EXCLUDED.balance,
			total_spent = EXCLUDED.total_spent,
			total_earned = EXCLUDED.total_earned,
			token_count = EXCLUDED.token_count,
			state = EXCLUDED.state,
			updated_at = EXCLUDED.updated_at
	`
	_, err = s.db.ExecContext(ctx, query,
		agentID, st.Balance, st.TotalSpent, st.TotalEarned, len(st.Tokens), string(raw), s.clock().UTC())
	if err != nil {
		return fmt.Errorf("failed to persist wallet: %w", err)
	}
	return nil
}

func (s *SQLStore) Agents(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT agent_id FROM path402_wallets ORDER BY agent_id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Open connects to Postgres when databaseURL is set, otherwise to a SQLite
// file under dataDir (lite mode).
func Open(ctx context.Context, databaseURL, dataDir string) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)
	if databaseURL != "" {
		db, err = sql.Open("postgres", databaseURL)
	} else {
		if err := os.MkdirAll(dataDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
		db, err = sql.Open("sqlite", filepath.Join(dataDir, "path402.db"))
		if err == nil {
			// SQLite allows one writer.
			db.SetMaxOpenConns(1)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return db, nil
}
