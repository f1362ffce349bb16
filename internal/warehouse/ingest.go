package warehouse

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
)

// membershipColumns is the membership_impact schema in table order.
// CSV headers must name a subset of these.
var membershipColumns = []string{
	"org_cd",
	"mbr_cnt_x202511m11_prd",
	"mbr_cnt_x202512m12_prd",
	"dropped_mbr_cnt_x202512m12_prd_vs_x202511m11_prd",
	"new_mbr_cnt_x202512m12_prd_vs_x202511m11_prd",
	"com_mbr_cnt_x202512m12_prd_vs_x202511m11_prd",
	"dropped_per",
	"new_members_percentage",
	"moved_from_org_cd",
	"moved_to_org_cd",
	"retro_term_mem_count",
	"retro_add_mem_count",
	"Potential_Reason_ctr",
	"Potential_Reason_mbrship_changes",
}

var providerColumns = []string{
	"org_cd",
	"key_type",
	"keys_changed",
	"test_type",
	"chg_dt",
}

// LoadMembershipCSV loads membership rows from a warehouse CSV export.
// The header row names the columns; org_cd is required and empty cells
// load as NULL. A second load for the same organization replaces its
// row. Returns the number of rows loaded.
func (s *SQLiteStore) LoadMembershipCSV(ctx context.Context, path string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open membership CSV: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	cols, err := readHeader(r, membershipColumns)
	if err != nil {
		return 0, fmt.Errorf("membership CSV: %w", err)
	}

	stmt := fmt.Sprintf("INSERT OR REPLACE INTO membership_impact (%s) VALUES (%s)",
		strings.Join(cols, ", "), placeholders(len(cols)))
	return s.loadRows(ctx, r, stmt, len(cols))
}

// LoadProviderChangesCSV loads provider configuration change records
// from a warehouse CSV export. Records append; reloading the same file
// duplicates its rows.
func (s *SQLiteStore) LoadProviderChangesCSV(ctx context.Context, path string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open provider changes CSV: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	cols, err := readHeader(r, providerColumns)
	if err != nil {
		return 0, fmt.Errorf("provider changes CSV: %w", err)
	}

	stmt := fmt.Sprintf("INSERT INTO provider_config_changes (%s) VALUES (%s)",
		strings.Join(cols, ", "), placeholders(len(cols)))
	return s.loadRows(ctx, r, stmt, len(cols))
}

// readHeader reads and validates the CSV header. Every column must be
// a known warehouse column and org_cd must be present; validated names
// are safe to splice into the insert statement.
func readHeader(r *csv.Reader, allowed []string) ([]string, error) {
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	cols := make([]string, len(header))
	for i, col := range header {
		col = strings.TrimSpace(col)
		if i == 0 {
			col = strings.TrimPrefix(col, "\uFEFF")
		}
		if !slices.Contains(allowed, col) {
			return nil, fmt.Errorf("unknown column %q", col)
		}
		cols[i] = col
	}
	if !slices.Contains(cols, "org_cd") {
		return nil, fmt.Errorf("missing required column org_cd")
	}
	return cols, nil
}

func (s *SQLiteStore) loadRows(ctx context.Context, r *csv.Reader, stmt string, width int) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	prepared, err := tx.PrepareContext(ctx, stmt)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer prepared.Close()

	count := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("failed to read CSV record: %w", err)
		}

		args := make([]any, width)
		for i, cell := range record {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue // NULL
			}
			args[i] = cell
		}
		if _, err := prepared.ExecContext(ctx, args...); err != nil {
			return 0, fmt.Errorf("failed to insert row %d: %w", count+1, err)
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return count, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
