package broker

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// AuditLog is an append-only record of every EnsureNamespace request.
// It is observational only: nothing in the quota or clamping path reads
// it back.
type AuditLog struct {
	db *sql.DB
}

// AuditEntry is one recorded request.
type AuditEntry struct {
	ID          int64             `yaml:"id"`
	RequestedAt string            `yaml:"requested_at"`
	CallerUID   uint32            `yaml:"caller_uid"`
	Namespace   string            `yaml:"namespace"`
	Options     map[string]string `yaml:"options,omitempty"`
	Outcome     string            `yaml:"outcome"`
	Detail      string            `yaml:"detail,omitempty"`
}

// OpenAuditLog opens (creating if needed) the audit database at path,
// enables WAL mode, and applies pending schema migrations.
func OpenAuditLog(path string) (*AuditLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("loading audit migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("preparing audit migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing audit migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		db.Close()
		return nil, fmt.Errorf("migrating audit schema: %w", err)
	}

	return &AuditLog{db: db}, nil
}

func (a *AuditLog) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

// Record appends one request outcome. Failures here are reported to the
// caller but must not fail the request itself; the daemon logs and
// continues.
func (a *AuditLog) Record(ctx context.Context, uid uint32, namespace string, options map[string]string, outcome, detail string) error {
	if a == nil || a.db == nil {
		return nil
	}
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO audit_log (requested_at, caller_uid, namespace, options, outcome, detail)
		VALUES (?, ?, ?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339Nano),
		uid, namespace, encodeOptions(options), outcome, detail,
	)
	if err != nil {
		return fmt.Errorf("recording audit entry: %w", err)
	}
	return nil
}

// Tail returns the most recent n entries, newest first.
func (a *AuditLog) Tail(ctx context.Context, n int) ([]AuditEntry, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, requested_at, caller_uid, namespace, options, outcome, detail
		FROM audit_log ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var options string
		if err := rows.Scan(&e.ID, &e.RequestedAt, &e.CallerUID, &e.Namespace, &options, &e.Outcome, &e.Detail); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		e.Options = decodeOptions(options)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// encodeOptions flattens the option map into a stable k=v list; the
// audit column is for operators, not for round-tripping.
func encodeOptions(options map[string]string) string {
	if len(options) == 0 {
		return ""
	}
	pairs := make([]string, 0, len(options))
	for k, v := range options {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, " ")
}

func decodeOptions(encoded string) map[string]string {
	if encoded == "" {
		return nil
	}
	out := map[string]string{}
	for _, pair := range strings.Fields(encoded) {
		if k, v, ok := strings.Cut(pair, "="); ok {
			out[k] = v
		}
	}
	return out
}
