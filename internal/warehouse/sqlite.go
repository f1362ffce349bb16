package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"memberlens/internal/metrics"
)

// SQLiteStore implements Store on a local SQLite database. The schema
// mirrors the analytics warehouse tables the reports are built from,
// so ingested CSV exports load without renaming.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// NewSQLiteStore initializes the SQLite database at the given path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	store := &SQLiteStore{db: db, dbPath: path}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initialize creates the required tables.
func (s *SQLiteStore) initialize() error {
	membershipTable := `
	CREATE TABLE IF NOT EXISTS membership_impact (
		org_cd TEXT PRIMARY KEY,
		mbr_cnt_x202511m11_prd INTEGER,
		mbr_cnt_x202512m12_prd INTEGER,
		dropped_mbr_cnt_x202512m12_prd_vs_x202511m11_prd INTEGER,
		new_mbr_cnt_x202512m12_prd_vs_x202511m11_prd INTEGER,
		com_mbr_cnt_x202512m12_prd_vs_x202511m11_prd INTEGER,
		dropped_per REAL,
		new_members_percentage REAL,
		moved_from_org_cd TEXT,
		moved_to_org_cd TEXT,
		retro_term_mem_count INTEGER,
		retro_add_mem_count INTEGER,
		Potential_Reason_ctr TEXT,
		Potential_Reason_mbrship_changes TEXT
	);
	`

	providerTable := `
	CREATE TABLE IF NOT EXISTS provider_config_changes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		org_cd TEXT NOT NULL,
		key_type TEXT,
		keys_changed TEXT,
		test_type TEXT,
		chg_dt TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_provider_org ON provider_config_changes(org_cd);
	`

	for _, table := range []string{membershipTable, providerTable} {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return nil
}

// Membership returns the raw membership_impact row for the
// organization. The row is keyed by column name so downstream
// normalization sees every warehouse column, including ones added
// after this code shipped. Returns (nil, nil) when the organization
// has no row.
func (s *SQLiteStore) Membership(ctx context.Context, orgCode string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT * FROM membership_impact WHERE org_cd = ? LIMIT 1`, orgCode)
	if err != nil {
		return nil, fmt.Errorf("failed to query membership: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	if !rows.Next() {
		return nil, rows.Err()
	}

	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("failed to scan membership row: %w", err)
	}

	row := make(map[string]any, len(cols))
	for i, col := range cols {
		row[col] = values[i]
	}
	return row, nil
}

// ProviderChanges returns the organization's provider configuration
// change records ordered by change date.
func (s *SQLiteStore) ProviderChanges(ctx context.Context, orgCode string) ([]metrics.ProviderChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT org_cd, key_type, keys_changed, test_type, chg_dt
		FROM provider_config_changes
		WHERE org_cd = ?
		ORDER BY chg_dt, id`, orgCode)
	if err != nil {
		return nil, fmt.Errorf("failed to query provider changes: %w", err)
	}
	defer rows.Close()

	var changes []metrics.ProviderChange
	for rows.Next() {
		var keyType, keysChanged, testType, chgDt sql.NullString
		var c metrics.ProviderChange
		if err := rows.Scan(&c.OrgCode, &keyType, &keysChanged, &testType, &chgDt); err != nil {
			return nil, fmt.Errorf("failed to scan provider change: %w", err)
		}
		c.KeyType = keyType.String
		c.KeysChanged = keysChanged.String
		c.TestType = testType.String
		c.ChangeDate = chgDt.String
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

// Organizations lists every organization, largest prior membership
// first. Net change is computed from the period counts.
func (s *SQLiteStore) Organizations(ctx context.Context) ([]OrgSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT org_cd,
		       COALESCE(mbr_cnt_x202511m11_prd, 0),
		       COALESCE(mbr_cnt_x202512m12_prd, 0),
		       COALESCE(dropped_mbr_cnt_x202512m12_prd_vs_x202511m11_prd, 0),
		       COALESCE(new_mbr_cnt_x202512m12_prd_vs_x202511m11_prd, 0)
		FROM membership_impact
		ORDER BY COALESCE(mbr_cnt_x202511m11_prd, 0) DESC, org_cd`)
	if err != nil {
		return nil, fmt.Errorf("failed to query organizations: %w", err)
	}
	defer rows.Close()

	var orgs []OrgSummary
	for rows.Next() {
		var o OrgSummary
		var prior, current, dropped, added any
		if err := rows.Scan(&o.OrgCode, &prior, &current, &dropped, &added); err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		o.PriorMembers = metrics.AsInt(prior)
		o.CurrentMembers = metrics.AsInt(current)
		o.DroppedCount = metrics.AsInt(dropped)
		o.NewCount = metrics.AsInt(added)
		o.NetChange = o.CurrentMembers - o.PriorMembers
		orgs = append(orgs, o)
	}
	return orgs, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
