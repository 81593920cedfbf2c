package audit

import (
	"context"

	"github.com/weiawesome/wes-io-live/conversation-service/pkg/log"
)

// Audit actions for conversation-service.
const (
	ActionCreateRoom          = "room.create"
	ActionReplaceRoom         = "room.replace"
	ActionUpdateRoom          = "room.update"
	ActionCreateSubscriptions = "subscription.create_batch"
	ActionUpdateSubscription  = "subscription.update"
	ActionMarkRead            = "subscription.mark_read"
)

// Field constants for audit entries.
const (
	FieldAction = "action"
	FieldDetail = "detail"
)

// Log emits a structured audit log entry via the context logger.
func Log(ctx context.Context, action, userID, rid, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Str(log.FieldRoomID, rid).
		Msg(msg)
}

// LogWithDetail emits an audit log with extra detail field.
func LogWithDetail(ctx context.Context, action, userID, rid, detail, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Str(log.FieldRoomID, rid).
		Str(FieldDetail, detail).
		Msg(msg)
}
