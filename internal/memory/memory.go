// Package memory implements the ConversationMemory contract spec §4.6
// defines: a persistent, append-only (conversation_id, turn_index, role,
// content, created_at) store with a single-writer queue; reads and writes
// share one database connection.
//
// Grounded on vvfs/db/connect.go's embedded-sqlite connection style (WAL
// journal mode, foreign keys on, bounded cache), adapted from libsql to
// modernc.org/sqlite — the pure-Go driver from other_examples/elida's
// manifest, chosen over libsql/mattn's cgo driver so `aipo` stays a single
// static binary with no C toolchain dependency at build time.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/aipolab/aipo/internal/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	conversation_id TEXT PRIMARY KEY,
	root_of TEXT,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS turns (
	conversation_id TEXT NOT NULL,
	turn_index INTEGER NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TEXT NOT NULL,
	PRIMARY KEY (conversation_id, turn_index)
);

CREATE INDEX IF NOT EXISTS idx_turns_conversation ON turns(conversation_id);
`

// Store is a modernc.org/sqlite-backed ConversationMemory. Writes are
// serialized through writeMu (a single-writer queue, per spec §4.6);
// reads go to the database/sql pool directly, but Open caps that pool at
// one connection, so reads also run one at a time and wait for an
// in-flight write.
type Store struct {
	db      *sql.DB
	writeMu sync.Mutex
	now     func() time.Time
}

// Open creates (if absent) and connects to the SQLite database at path,
// applying the same WAL/foreign-key pragma set vvfs/db/connect.go uses for
// its embedded libsql connections.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create memory directory: %v", core.ErrInvalidConfiguration, err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite: %v", core.ErrInvalidConfiguration, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writes per connection anyway; avoid lock contention noise.

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: apply schema: %v", core.ErrInvalidConfiguration, err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// ensureConversation inserts a conversations row if one doesn't already
// exist for conversationID. Must be called with writeMu held.
func (s *Store) ensureConversation(ctx context.Context, tx *sql.Tx, conversationID, rootOf string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO conversations (conversation_id, root_of, created_at) VALUES (?, ?, ?)`,
		conversationID, nullableString(rootOf), s.now().UTC().Format(time.RFC3339Nano))
	return err
}

// Append adds turn to conversationID's turn log, assigning it the next
// monotonic turn_index (invariant I1: strictly monotonic, starting at 0).
func (s *Store) Append(ctx context.Context, conversationID string, role core.Role, content string) (uint32, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin tx: %v", core.ErrTransientError, err)
	}
	defer tx.Rollback()

	if err := s.ensureConversation(ctx, tx, conversationID, ""); err != nil {
		return 0, fmt.Errorf("%w: ensure conversation: %v", core.ErrTransientError, err)
	}

	var maxIndex sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		`SELECT MAX(turn_index) FROM turns WHERE conversation_id = ?`, conversationID).Scan(&maxIndex); err != nil {
		return 0, fmt.Errorf("%w: query max turn_index: %v", core.ErrTransientError, err)
	}

	nextIndex := uint32(0)
	if maxIndex.Valid {
		nextIndex = uint32(maxIndex.Int64) + 1
	}

	now := s.now().UTC()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO turns (conversation_id, turn_index, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		conversationID, nextIndex, string(role), content, now.Format(time.RFC3339Nano)); err != nil {
		return 0, fmt.Errorf("%w: insert turn: %v", core.ErrTransientError, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit: %v", core.ErrTransientError, err)
	}
	return nextIndex, nil
}

// List returns every turn for conversationID in turn_index order.
func (s *Store) List(ctx context.Context, conversationID string) ([]core.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT conversation_id, turn_index, role, content, created_at FROM turns WHERE conversation_id = ? ORDER BY turn_index ASC`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: query turns: %v", core.ErrTransientError, err)
	}
	defer rows.Close()

	var turns []core.Turn
	for rows.Next() {
		var t core.Turn
		var role, createdAt string
		if err := rows.Scan(&t.ConversationID, &t.TurnIndex, &role, &t.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("%w: scan turn: %v", core.ErrTransientError, err)
		}
		t.Role = core.Role(role)
		t.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		turns = append(turns, t)
	}
	if len(turns) == 0 {
		if err := s.conversationExists(ctx, conversationID); err != nil {
			return nil, err
		}
	}
	return turns, rows.Err()
}

func (s *Store) conversationExists(ctx context.Context, conversationID string) error {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM conversations WHERE conversation_id = ?`, conversationID).Scan(&exists)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: %s", core.ErrConversationNotFound, conversationID)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrTransientError, err)
	}
	return nil
}

// ListAll returns every known conversation, oldest first.
func (s *Store) ListAll(ctx context.Context) ([]core.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT conversation_id, root_of, created_at FROM conversations ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: query conversations: %v", core.ErrTransientError, err)
	}
	defer rows.Close()

	var out []core.Conversation
	for rows.Next() {
		var c core.Conversation
		var rootOf sql.NullString
		var createdAt string
		if err := rows.Scan(&c.ConversationID, &rootOf, &createdAt); err != nil {
			return nil, fmt.Errorf("%w: scan conversation: %v", core.ErrTransientError, err)
		}
		c.RootOf = rootOf.String
		c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, c)
	}
	return out, rows.Err()
}

// Branch creates a new conversation whose first upToTurn+1 turns are a copy
// of source's, and whose tail is empty (invariant I2). Appending to source
// afterward still succeeds (invariant I3): branching takes writeMu only for
// the duration of the copy, then releases it.
func (s *Store) Branch(ctx context.Context, sourceConversationID string, upToTurn uint32, newConversationID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", core.ErrTransientError, err)
	}
	defer tx.Rollback()

	if err := s.ensureConversation(ctx, tx, newConversationID, sourceConversationID); err != nil {
		return fmt.Errorf("%w: ensure new conversation: %v", core.ErrTransientError, err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT turn_index, role, content, created_at FROM turns WHERE conversation_id = ? AND turn_index <= ? ORDER BY turn_index ASC`,
		sourceConversationID, upToTurn)
	if err != nil {
		return fmt.Errorf("%w: query source turns: %v", core.ErrTransientError, err)
	}

	type row struct {
		idx       uint32
		role      string
		content   string
		createdAt string
	}
	var copied []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.idx, &r.role, &r.content, &r.createdAt); err != nil {
			rows.Close()
			return fmt.Errorf("%w: scan source turn: %v", core.ErrTransientError, err)
		}
		copied = append(copied, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: iterate source turns: %v", core.ErrTransientError, err)
	}

	for _, r := range copied {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO turns (conversation_id, turn_index, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
			newConversationID, r.idx, r.role, r.content, r.createdAt); err != nil {
			return fmt.Errorf("%w: insert branched turn: %v", core.ErrTransientError, err)
		}
	}

	return tx.Commit()
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
