// internal/domain/message/shared_types.go
package message

// Status is the delivery state of one outbound message event.
type Status string

const (
	StatusSent    Status = "Sent"
	StatusSeen    Status = "Seen"
	StatusFailed  Status = "Failed"  // retry-eligible: phone stays out of the sent set
	StatusInvalid Status = "Invalid" // terminal: recipient not registered / malformed
)

// FailureReason classifies why a send failed.
type FailureReason string

const (
	ReasonInvalid   FailureReason = "INVALID_RECIPIENT" // not registered or malformed number
	ReasonNotReady  FailureReason = "NOT_READY"         // session not authenticated
	ReasonTransient FailureReason = "TRANSIENT"         // network, timeout, provider hiccup
)
