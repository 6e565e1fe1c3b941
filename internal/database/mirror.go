package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/fluxteam/orchestrator-core/internal/models"
)

// HistoryMirror durably records Quality Gate reports and Agile Metrics
// samples in Postgres, on top of the in-process stores those components
// already keep (internal/quality's file-backed Store, internal/agilemetrics'
// in-memory series). Every write goes through WithTransaction so a report
// and its derived summary row land together, or not at all.
type HistoryMirror struct {
	db *DB
}

// NewHistoryMirror builds a mirror bound to db. db must not be nil.
func NewHistoryMirror(db *DB) *HistoryMirror {
	return &HistoryMirror{db: db}
}

// MirrorGateReport inserts report into quality_gate_history and upserts its
// latest-known decision into quality_gate_latest, in one transaction.
func (m *HistoryMirror) MirrorGateReport(ctx context.Context, report *models.GateReport) error {
	metricsJSON, err := json.Marshal(report.Metrics)
	if err != nil {
		return fmt.Errorf("marshal gate report metrics: %w", err)
	}
	issuesJSON, err := json.Marshal(report.Issues)
	if err != nil {
		return fmt.Errorf("marshal gate report issues: %w", err)
	}

	return m.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO quality_gate_history (id, gate_id, target, decision, metrics, issues, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO NOTHING
		`, report.ID, report.GateID, report.Target, string(report.Decision), metricsJSON, issuesJSON, report.CreatedAt)
		if err != nil {
			if IsUniqueViolation(err) {
				return nil
			}
			return fmt.Errorf("insert quality gate history: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO quality_gate_latest (gate_id, target, decision, report_id, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (gate_id, target) DO UPDATE
			SET decision = EXCLUDED.decision, report_id = EXCLUDED.report_id, updated_at = EXCLUDED.updated_at
		`, report.GateID, report.Target, string(report.Decision), report.ID, report.CreatedAt)
		if err != nil {
			return fmt.Errorf("upsert quality gate latest: %w", err)
		}
		return nil
	})
}

// GateHistory returns the most recent mirrored reports for gateID, newest
// first, read inside a read-only transaction.
func (m *HistoryMirror) GateHistory(ctx context.Context, gateID string, limit int) ([]*models.GateReport, error) {
	var out []*models.GateReport
	err := m.db.WithTransactionReadOnly(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT id, gate_id, target, decision, metrics, issues, created_at
			FROM quality_gate_history
			WHERE gate_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		`, gateID, limit)
		if err != nil {
			return fmt.Errorf("query quality gate history: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var r models.GateReport
			var decision string
			var metricsJSON, issuesJSON []byte
			if err := rows.Scan(&r.ID, &r.GateID, &r.Target, &decision, &metricsJSON, &issuesJSON, &r.CreatedAt); err != nil {
				return fmt.Errorf("scan quality gate history row: %w", err)
			}
			r.Decision = models.Decision(decision)
			_ = json.Unmarshal(metricsJSON, &r.Metrics)
			_ = json.Unmarshal(issuesJSON, &r.Issues)
			out = append(out, &r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MirrorMetricSample inserts sample into agile_metric_history.
func (m *HistoryMirror) MirrorMetricSample(ctx context.Context, sample models.Sample) error {
	metadataJSON, err := json.Marshal(sample.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metric sample metadata: %w", err)
	}

	return m.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO agile_metric_history (type, value, team_id, agent_id, sprint_id, metadata, recorded_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, string(sample.Type), sample.Value, sample.TeamID, sample.AgentID, sample.SprintID, metadataJSON, sample.Timestamp)
		if err != nil {
			return fmt.Errorf("insert agile metric history: %w", err)
		}
		return nil
	})
}
