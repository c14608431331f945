package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"hospital-assistant/pkg"
)

// AuditFilter narrows ListToolInvocations.
type AuditFilter struct {
	SessionID string
	ToolName  string
	Limit     int
}

// RecordToolInvocation appends an audit record. Records are never updated.
func (r *Repository) RecordToolInvocation(ctx context.Context, inv pkg.ToolInvocation) error {
	if inv.ID == "" {
		inv.ID = ulid.Make().String()
	}
	if inv.Timestamp.IsZero() {
		inv.Timestamp = time.Now()
	}
	var patientID sql.NullInt64
	if inv.PatientID != nil {
		patientID = sql.NullInt64{Int64: *inv.PatientID, Valid: true}
	}
	_, err := r.DB.ExecContext(ctx, r.q(
		`INSERT INTO audit_logs
         (id, timestamp, session_id, user_type, patient_id, channel, tool_name, tool_args, success, result_summary, duration_ms)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		inv.ID, inv.Timestamp.UTC().Format(time.RFC3339Nano), inv.SessionID, string(inv.IdentityLevel), patientID,
		string(inv.Channel), inv.ToolName, inv.Arguments, inv.Success, inv.ResultSummary, inv.DurationMS)
	if err != nil {
		return fmt.Errorf("record tool invocation: %w", err)
	}
	return nil
}

// ListToolInvocations returns audit records, newest first. A non-positive
// limit returns 100 records.
func (r *Repository) ListToolInvocations(ctx context.Context, f AuditFilter) ([]pkg.ToolInvocation, error) {
	if f.Limit <= 0 {
		f.Limit = 100
	}
	query := `SELECT id, timestamp, session_id, user_type, patient_id, channel, tool_name, tool_args,
                success, result_summary, duration_ms
         FROM audit_logs WHERE 1 = 1`
	var args []any
	if f.SessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, f.SessionID)
	}
	if f.ToolName != "" {
		query += ` AND tool_name = ?`
		args = append(args, f.ToolName)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, f.Limit)

	rows, err := r.DB.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []pkg.ToolInvocation
	for rows.Next() {
		var (
			inv       pkg.ToolInvocation
			ts        string
			level     string
			channel   string
			patientID sql.NullInt64
		)
		if err := rows.Scan(&inv.ID, &ts, &inv.SessionID, &level, &patientID, &channel, &inv.ToolName,
			&inv.Arguments, &inv.Success, &inv.ResultSummary, &inv.DurationMS); err != nil {
			return nil, err
		}
		if inv.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse audit timestamp %q: %w", ts, err)
		}
		inv.IdentityLevel = pkg.IdentityLevel(level)
		inv.Channel = pkg.Channel(channel)
		if patientID.Valid {
			id := patientID.Int64
			inv.PatientID = &id
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}
