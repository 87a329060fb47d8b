// ABOUTME: Audit log entity and store methods for tracking console actions
// ABOUTME: Records which operator changed what in the billing backend

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents an auditable action.
type AuditAction string

const (
	AuditSaveSession        AuditAction = "save_session"
	AuditClearSession       AuditAction = "clear_session"
	AuditSaveBillingConfig  AuditAction = "save_billing_config"
	AuditPublishPlans       AuditAction = "publish_plans"
	AuditRunRollout         AuditAction = "run_rollout"
	AuditSavePricingConfig  AuditAction = "save_pricing_config"
	AuditAdjustCredits      AuditAction = "adjust_credits"
	AuditDeleteUser         AuditAction = "delete_user"
	AuditCompleteSetup      AuditAction = "complete_setup"
	AuditResetSetup         AuditAction = "reset_setup"
	AuditRotateCredential   AuditAction = "rotate_credential"
	AuditExportCredentials  AuditAction = "export_credentials"
	AuditSaveFlowMapping    AuditAction = "save_flow_mapping"
	AuditDeleteFlowMapping  AuditAction = "delete_flow_mapping"
	AuditCreateInvite       AuditAction = "create_invite"
	AuditRegisterPasskey    AuditAction = "register_passkey"
	AuditDeletePasskey      AuditAction = "delete_passkey"
	AuditChangePassword     AuditAction = "change_password"
	AuditCreateOperator     AuditAction = "create_operator"
	AuditExecuteFlowProbe   AuditAction = "execute_flow_probe"
	AuditAuthenticateProbe  AuditAction = "authenticate_probe"
	AuditUseProbeToken      AuditAction = "use_probe_token"
	AuditCheckAffordability AuditAction = "check_affordability"
)

// auditTimeFormat is fixed width so timestamps sort lexically.
const auditTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// AuditEntry represents a single audit log entry.
type AuditEntry struct {
	ID              string         // UUID v4
	ActorOperatorID string         // who performed the action
	Action          AuditAction    // what action was performed
	TargetType      string         // "user", "plan", "config", "credential", ...
	TargetID        string         // ID of the affected resource
	Timestamp       time.Time      // when it happened
	Detail          map[string]any // additional context
}

// AuditFilter specifies filtering options for listing audit entries.
type AuditFilter struct {
	Since           *time.Time
	ActorOperatorID *string
	Action          *AuditAction
	TargetType      *string
	TargetID        *string
	Limit           int // default 100, max 1000
}

// AuditStore persists the audit log.
type AuditStore interface {
	AppendAuditLog(ctx context.Context, e *AuditEntry) error
	ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error)
}

// AppendAuditLog appends a new entry to the audit log.
// Generates ID and Timestamp if not set.
func (s *SQLiteStore) AppendAuditLog(ctx context.Context, e *AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	var detailJSON *string
	if e.Detail != nil {
		data, err := json.Marshal(e.Detail)
		if err != nil {
			return fmt.Errorf("marshaling audit detail: %w", err)
		}
		str := string(data)
		detailJSON = &str
	}

	query := `
		INSERT INTO audit_log (audit_id, actor_operator_id, action, target_type, target_id, ts, detail_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		e.ID,
		e.ActorOperatorID,
		e.Action,
		e.TargetType,
		e.TargetID,
		e.Timestamp.UTC().Format(auditTimeFormat),
		detailJSON,
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}

	s.logger.Debug("appended audit log",
		"id", e.ID,
		"actor", e.ActorOperatorID,
		"action", e.Action,
		"target", e.TargetType+"/"+e.TargetID,
	)
	return nil
}

// normalizeAuditLimit applies default (100) and cap (1000) to audit limit.
func normalizeAuditLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

// scanAuditEntry scans a row into an AuditEntry.
func scanAuditEntry(scanner interface{ Scan(dest ...any) error }) (AuditEntry, error) {
	var e AuditEntry
	var actionStr, tsStr string
	var detailJSON *string

	if err := scanner.Scan(
		&e.ID,
		&e.ActorOperatorID,
		&actionStr,
		&e.TargetType,
		&e.TargetID,
		&tsStr,
		&detailJSON,
	); err != nil {
		return e, fmt.Errorf("scanning audit entry: %w", err)
	}

	e.Action = AuditAction(actionStr)
	var err error
	e.Timestamp, err = time.Parse(time.RFC3339Nano, tsStr)
	if err != nil {
		return e, fmt.Errorf("parsing timestamp: %w", err)
	}

	if detailJSON != nil {
		if err := json.Unmarshal([]byte(*detailJSON), &e.Detail); err != nil {
			return e, fmt.Errorf("unmarshaling detail: %w", err)
		}
	}
	return e, nil
}

const auditLogQuery = `
	SELECT audit_id, actor_operator_id, action, target_type, target_id, ts, detail_json
	FROM audit_log
	WHERE (? IS NULL OR ts >= ?)
	  AND (? IS NULL OR actor_operator_id = ?)
	  AND (? IS NULL OR action = ?)
	  AND (? IS NULL OR target_type = ?)
	  AND (? IS NULL OR target_id = ?)
	ORDER BY ts DESC
	LIMIT ?
`

// ListAuditLog returns audit entries matching the filter criteria.
// Results are returned newest first.
func (s *SQLiteStore) ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	limit := normalizeAuditLimit(f.Limit)

	var since, action *string
	if f.Since != nil {
		v := f.Since.UTC().Format(auditTimeFormat)
		since = &v
	}
	if f.Action != nil {
		v := string(*f.Action)
		action = &v
	}

	rows, err := s.db.QueryContext(ctx, auditLogQuery,
		since, since,
		f.ActorOperatorID, f.ActorOperatorID,
		action, action,
		f.TargetType, f.TargetType,
		f.TargetID, f.TargetID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := []AuditEntry{}
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}
	return entries, nil
}
