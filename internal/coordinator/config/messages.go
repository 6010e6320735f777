package config

// Messages and format strings shared by the coordinator and its facades
const (
	// ErrSessionError is the format string for session errors
	ErrSessionError = "session error: %v"
	// ErrUnknownService lists the services the registry knows about
	ErrUnknownService = "service %q not found. Available services: %s"
	// ErrToolNotFound lists the tools a service exposes so the caller can self-correct
	ErrToolNotFound = "tool %q not found on service %q. Available tools: %s"
	// ErrInvalidArguments is returned when arguments fail the tool input schema
	ErrInvalidArguments = "invalid arguments for %s/%s: %v"
	// ErrToolFailed is the sanitized payload for unclassified tool failures
	ErrToolFailed = "tool %s/%s failed unexpectedly (incident %s)"
	// ErrToolReported carries a failure the tool itself described
	ErrToolReported = "tool %s/%s reported an error: %s"
	// ErrNetworkFailure is the caller payload for transient failures
	ErrNetworkFailure = "tool %s/%s unreachable after %d attempt(s): %s"
	// ErrPermissionDenied is the caller payload for authorization failures
	ErrPermissionDenied = "permission denied calling %s/%s"
	// ErrSkipped marks calls that never started because the request was abandoned
	ErrSkipped = "skipped: request canceled before dispatch"

	// NoInputSentinel is the canonical query text for empty input in loose mode
	NoInputSentinel = "NO_INPUT_FOUND"
	// DefaultUserID is used when a caller does not identify itself
	DefaultUserID = "default-user"

	// MsgProcessing echoes the canonical query at the top of every answer
	MsgProcessing = "Processing query: '%s'"
	// MsgRouted names the specialist and strategy chosen for the turn
	MsgRouted = "Routed to: %s (%s)"
	// MsgAnswer prefixes the synthesized answer
	MsgAnswer = "Answer: %s"

	// DefaultRemediationTemplate is rendered with project, account and role
	DefaultRemediationTemplate = "Grant the missing role and retry:\n" +
		"gcloud projects add-iam-policy-binding %s \\\n" +
		"  --member='serviceAccount:%s' \\\n" +
		"  --role='%s'"
)
