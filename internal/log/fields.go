package log

// Common field names for structured logging.
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldUserAgent  = "user_agent"
	FieldError      = "error"
	FieldCollection = "collection"
	FieldProject    = "project"
	FieldHours      = "hours"
	FieldTimestamp  = "timestamp"
	FieldSheetsRef  = "sheets_ref"
)

// Components defines standard component names.
const (
	ComponentApp    = "app"
	ComponentHTTP   = "http"
	ComponentWorker = "worker"
)
