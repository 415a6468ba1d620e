package audit

import (
	"context"

	"github.com/weiawesome/wes-io-live/pkg/log"
)

// Audit actions for workspace-service.
const (
	ActionConnect        = "workspace.connect"
	ActionDisconnect     = "workspace.disconnect"
	ActionReclaim        = "workspace.reclaim_stale"
	ActionReset          = "workspace.reset"
	ActionSettingsUpdate = "workspace.settings_update"
	ActionArtifactCreate = "workspace.artifact_create"
	ActionArtifactDelete = "workspace.artifact_delete"
	ActionAITurn         = "workspace.ai_turn"
	ActionAITurnFailed   = "workspace.ai_turn_failed"
	ActionRoomEvicted    = "workspace.room_evicted"
)

// Field constants for audit entries.
const (
	FieldAction   = "action"
	FieldTargetID = "target_id"
	FieldDetail   = "detail"
)

// Log emits a structured audit log entry via the context logger.
func Log(ctx context.Context, action string, user string, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUser, user).
		Msg(msg)
}

// LogWithTarget emits an audit log naming the affected object.
func LogWithTarget(ctx context.Context, action string, user string, targetID string, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUser, user).
		Str(FieldTargetID, targetID).
		Msg(msg)
}

// LogWithDetail emits an audit log with extra detail field.
func LogWithDetail(ctx context.Context, action string, user string, detail string, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUser, user).
		Str(FieldDetail, detail).
		Msg(msg)
}
