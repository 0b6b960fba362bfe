package postgres

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"
)

// prefixColumns qualifies a comma-separated column list with a table alias,
// so shared column constants work inside joins.
func prefixColumns(columns, alias string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func nullInt64Ptr(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	v := ni.Int64
	return &v
}

// jsonbOrNull marshals v for a JSONB column, writing NULL for nil maps and
// empty slices so the column stays queryable with IS NOT NULL.
func jsonbOrNull(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(data)
	if s == "null" || s == "[]" || s == "{}" {
		return nil, nil
	}
	return s, nil
}

// rawOrNull passes through pre-encoded JSON, writing NULL when empty.
func rawOrNull(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// chunk splits rows into slices of at most size elements, keeping multi-row
// statements under the driver's parameter limit.
func chunk[T any](rows []T, size int) [][]T {
	if size <= 0 || len(rows) == 0 {
		return nil
	}
	var out [][]T
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		out = append(out, rows[start:end])
	}
	return out
}
