package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Conversation
	FieldUserID   = "user_id"
	FieldRoomID   = "rid"
	FieldRoomType = "room_type"
	FieldCount    = "count"
	FieldSince    = "since"
	FieldPage     = "page"
	FieldPageSize = "page_size"

	// Store
	FieldDriver     = "driver"
	FieldCollection = "collection"

	// Service
	FieldService = "service"

	// Log type (for audit log)
	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)
