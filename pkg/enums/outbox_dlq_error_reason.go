package enums

import "fmt"

// OutboxDLQErrorReason records why the relay gave up on an outbox row.
type OutboxDLQErrorReason string

const (
	// Retries ran out against a broker that kept failing.
	OutboxDLQReasonMaxAttempts OutboxDLQErrorReason = "max_attempts"
	// The broker refused the message outright.
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
	OutboxDLQReasonUnknownType  OutboxDLQErrorReason = "unknown_type"
	// Envelope, payload or aggregate reference did not decode.
	OutboxDLQReasonMalformed OutboxDLQErrorReason = "malformed_payload"
	// The event type is known but no topic is configured for it.
	OutboxDLQReasonNoRoute OutboxDLQErrorReason = "no_route"
)

// replayable reasons are failures of the broker, not of the row, so an
// operator can requeue them once the broker recovers.
var outboxDLQReasons = map[OutboxDLQErrorReason]bool{
	OutboxDLQReasonMaxAttempts:  true,
	OutboxDLQReasonNonRetryable: false,
	OutboxDLQReasonUnknownType:  false,
	OutboxDLQReasonMalformed:    false,
	OutboxDLQReasonNoRoute:      true,
}

func (r OutboxDLQErrorReason) IsValid() bool {
	_, ok := outboxDLQReasons[r]
	return ok
}

// Replayable reports whether a dead row with this reason may be requeued unchanged.
func (r OutboxDLQErrorReason) Replayable() bool {
	return outboxDLQReasons[r]
}

func ParseOutboxDLQErrorReason(raw string) (OutboxDLQErrorReason, error) {
	r := OutboxDLQErrorReason(raw)
	if !r.IsValid() {
		return "", fmt.Errorf("invalid outbox dlq reason %q", raw)
	}
	return r, nil
}
