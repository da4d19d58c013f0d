package entity

// FailureKind classifies the non-fatal failures the relay can observe.
// None of them stop the relay.
type FailureKind string

const (
	FailureNone FailureKind = ""

	// FailureStream is a transport fault on the event subscription.
	FailureStream FailureKind = "stream"

	// FailureRegistration excludes one identity from the registry.
	FailureRegistration FailureKind = "registration"

	// FailureSubmission discards one response attempt.
	FailureSubmission FailureKind = "submission"

	// FailureDecode drops one malformed request event.
	FailureDecode FailureKind = "decode"
)

// Label returns the outcome label used in logs and metrics.
func (k FailureKind) Label() string {
	if k == FailureNone {
		return "success"
	}
	return string(k)
}
