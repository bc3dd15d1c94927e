package protocol

// Tool result error types (error_type field of a failed tool call).
const (
	ErrUnknownTool      = "unknown_tool"
	ErrInvalidArguments = "invalid_arguments"
	ErrExecution        = "execution_error"
	ErrPanic            = "panic"
	ErrRateLimited      = "rate_limited"
	ErrDenied           = "permission_denied"
)
