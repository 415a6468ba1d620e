package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Room actor
	FieldRoomID       = "room_id"
	FieldConnectionID = "connection_id"
	FieldClientID     = "client_id"
	FieldUser         = "user"
	FieldFrameType    = "frame_type"
	FieldStoreKey     = "store_key"
	FieldTool         = "tool"

	// Service
	FieldService = "service"

	// Log type (for audit log)
	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)
