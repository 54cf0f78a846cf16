package postgres

import (
	"cmp"
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"
)

//go:embed sql/migrations/*.sql
var migrationsFS embed.FS

const (
	migrationsDir = "sql/migrations"
	// Ключ pg_advisory_lock, общий для всех экземпляров витрины.
	migrationLockKey = int64(0x51305E)

	ledgerDDL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version    BIGINT PRIMARY KEY,
    name       TEXT NOT NULL,
    checksum   TEXT NOT NULL DEFAULT '',
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
ALTER TABLE schema_migrations ADD COLUMN IF NOT EXISTS checksum TEXT NOT NULL DEFAULT ''`
)

// ErrMigrationDrift возвращается, если применённая миграция отличается от встроенного файла.
var ErrMigrationDrift = errors.New("applied migration differs from embedded file")

type migration struct {
	version  int64
	name     string
	up       string
	down     string
	checksum string
}

// MigrationState описывает одну миграцию и факт её применения.
type MigrationState struct {
	Version   int64
	Name      string
	Applied   bool
	AppliedAt time.Time
	// Drifted выставляется, когда checksum в schema_migrations
	// не совпадает с встроенным up-файлом.
	Drifted bool
	// Orphan выставляется для записи schema_migrations без файла.
	Orphan bool
}

type appliedRow struct {
	name      string
	checksum  string
	appliedAt time.Time
}

// MigrateUp применяет до steps недостающих миграций; steps<=0 применяет все.
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	migrations, err := parseMigrations(migrationsFS)
	if err != nil {
		return err
	}
	return s.withMigrationLock(ctx, func(conn *sql.Conn) error {
		applied, err := readLedger(ctx, conn)
		if err != nil {
			return err
		}
		for _, state := range reconcile(migrations, applied) {
			if state.Drifted {
				return fmt.Errorf("%w: %04d_%s", ErrMigrationDrift, state.Version, state.Name)
			}
		}

		done := 0
		for _, m := range migrations {
			if _, ok := applied[m.version]; ok {
				continue
			}
			if steps > 0 && done == steps {
				break
			}
			err := inTx(ctx, conn, m.up, `
				INSERT INTO schema_migrations (version, name, checksum, applied_at)
				VALUES ($1, $2, $3, NOW())
			`, m.version, m.name, m.checksum)
			if err != nil {
				return fmt.Errorf("apply %04d_%s: %w", m.version, m.name, err)
			}
			done++
		}
		return nil
	})
}

// MigrateDown откатывает steps последних миграций; steps<=0 откатывает одну.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	migrations, err := parseMigrations(migrationsFS)
	if err != nil {
		return err
	}
	steps = max(steps, 1)

	byVersion := make(map[int64]migration, len(migrations))
	for _, m := range migrations {
		byVersion[m.version] = m
	}

	return s.withMigrationLock(ctx, func(conn *sql.Conn) error {
		applied, err := readLedger(ctx, conn)
		if err != nil {
			return err
		}
		versions := make([]int64, 0, len(applied))
		for v := range applied {
			versions = append(versions, v)
		}
		slices.Sort(versions)
		slices.Reverse(versions)

		for _, v := range versions[:min(steps, len(versions))] {
			m, ok := byVersion[v]
			if !ok {
				return fmt.Errorf("cannot roll back %04d: no embedded migration", v)
			}
			err := inTx(ctx, conn, m.down, `DELETE FROM schema_migrations WHERE version = $1`, m.version)
			if err != nil {
				return fmt.Errorf("roll back %04d_%s: %w", m.version, m.name, err)
			}
		}
		return nil
	})
}

// MigrationStatus возвращает последнюю применённую версию и число применённых миграций.
func (s *Store) MigrationStatus(ctx context.Context) (int64, int, error) {
	if s == nil || s.db == nil {
		return 0, 0, errNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, ledgerDDL); err != nil {
		return 0, 0, fmt.Errorf("ensure schema_migrations: %w", err)
	}
	var (
		version int64
		count   int
	)
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0), COUNT(*) FROM schema_migrations`).Scan(&version, &count)
	if err != nil {
		return 0, 0, fmt.Errorf("query migration status: %w", err)
	}
	return version, count, nil
}

// MigrationReport сопоставляет встроенные миграции с schema_migrations.
func (s *Store) MigrationReport(ctx context.Context) ([]MigrationState, error) {
	if s == nil || s.db == nil {
		return nil, errNotInitialized
	}
	migrations, err := parseMigrations(migrationsFS)
	if err != nil {
		return nil, err
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	applied, err := readLedger(ctx, conn)
	if err != nil {
		return nil, err
	}
	return reconcile(migrations, applied), nil
}

func (s *Store) withMigrationLock(ctx context.Context, fn func(*sql.Conn) error) error {
	if s == nil || s.db == nil {
		return errNotInitialized
	}
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	lockCtx, cancel := context.WithTimeout(ctx, opTimeout)
	_, err = conn.ExecContext(lockCtx, `SELECT pg_advisory_lock($1)`, migrationLockKey)
	cancel()
	if err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, migrationLockKey)
	}()

	return fn(conn)
}

// inTx выполняет тело миграции и запись в журнал одной транзакцией.
func inTx(ctx context.Context, conn *sql.Conn, body, ledger string, args ...any) (err error) {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, body); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, ledger, args...); err != nil {
		return fmt.Errorf("update schema_migrations: %w", err)
	}
	return tx.Commit()
}

func readLedger(ctx context.Context, conn *sql.Conn) (map[int64]appliedRow, error) {
	if _, err := conn.ExecContext(ctx, ledgerDDL); err != nil {
		return nil, fmt.Errorf("ensure schema_migrations: %w", err)
	}
	rows, err := conn.QueryContext(ctx, `SELECT version, name, checksum, applied_at FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int64]appliedRow)
	for rows.Next() {
		var (
			version int64
			row     appliedRow
		)
		if err := rows.Scan(&version, &row.name, &row.checksum, &row.appliedAt); err != nil {
			return nil, fmt.Errorf("scan schema_migrations: %w", err)
		}
		row.appliedAt = row.appliedAt.UTC()
		applied[version] = row
	}
	return applied, rows.Err()
}

// reconcile строит отчёт: сначала встроенные миграции по версиям, затем сироты.
// Пустой checksum в журнале не считается расхождением.
func reconcile(migrations []migration, applied map[int64]appliedRow) []MigrationState {
	report := make([]MigrationState, 0, len(migrations)+len(applied))
	known := make(map[int64]bool, len(migrations))
	for _, m := range migrations {
		known[m.version] = true
		state := MigrationState{Version: m.version, Name: m.name}
		if row, ok := applied[m.version]; ok {
			state.Applied = true
			state.AppliedAt = row.appliedAt
			state.Drifted = row.checksum != "" && row.checksum != m.checksum
		}
		report = append(report, state)
	}

	var orphans []MigrationState
	for version, row := range applied {
		if known[version] {
			continue
		}
		orphans = append(orphans, MigrationState{
			Version:   version,
			Name:      row.name,
			Applied:   true,
			AppliedAt: row.appliedAt,
			Orphan:    true,
		})
	}
	slices.SortFunc(orphans, func(a, b MigrationState) int { return cmp.Compare(a.Version, b.Version) })
	return append(report, orphans...)
}

// parseMigrations читает пары NNNN_name.up.sql / NNNN_name.down.sql.
func parseMigrations(fsys fs.FS) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	byVersion := make(map[int64]*migration)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		file := entry.Name()
		version, name, direction, err := splitMigrationName(file)
		if err != nil {
			return nil, err
		}

		raw, err := fs.ReadFile(fsys, path.Join(migrationsDir, file))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		body := strings.TrimSpace(string(raw))
		if body == "" {
			return nil, fmt.Errorf("migration %s is empty", file)
		}

		m := byVersion[version]
		if m == nil {
			m = &migration{version: version, name: name}
			byVersion[version] = m
		}
		if m.name != name {
			return nil, fmt.Errorf("version %d has two names: %s and %s", version, m.name, name)
		}

		slot := &m.up
		if direction == "down" {
			slot = &m.down
		}
		if *slot != "" {
			return nil, fmt.Errorf("duplicate %s migration for version %d", direction, version)
		}
		*slot = body
	}
	if len(byVersion) == 0 {
		return nil, errors.New("no migration files found")
	}

	migrations := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.up == "" || m.down == "" {
			return nil, fmt.Errorf("migration %04d_%s must have both up and down files", m.version, m.name)
		}
		sum := sha256.Sum256([]byte(m.up))
		m.checksum = hex.EncodeToString(sum[:])
		migrations = append(migrations, *m)
	}
	slices.SortFunc(migrations, func(a, b migration) int { return cmp.Compare(a.version, b.version) })
	return migrations, nil
}

func splitMigrationName(file string) (version int64, name, direction string, err error) {
	stem, ok := strings.CutSuffix(file, ".sql")
	if ok {
		var found bool
		for _, d := range []string{"up", "down"} {
			if s, cut := strings.CutSuffix(stem, "."+d); cut {
				stem, direction, found = s, d, true
				break
			}
		}
		ok = found
	}
	var digits string
	if ok {
		digits, name, ok = strings.Cut(stem, "_")
	}
	if ok {
		version, err = strconv.ParseInt(digits, 10, 64)
		ok = err == nil && version > 0 && name != "" && !strings.ContainsAny(name, ". -")
	}
	if !ok {
		return 0, "", "", fmt.Errorf("invalid migration file name: %s", file)
	}
	return version, name, direction, nil
}
