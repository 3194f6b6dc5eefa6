package model

// Envelope keys injected by the consumption loop.
const (
	EnvelopeCorrelationID = "correlationID"
	EnvelopeType          = "type"
)

// TestCorrelationID suppresses publishing. Test harnesses only.
const TestCorrelationID = "test"

// Envelope is the response handed to the publisher. Executors fill it and the
// consumption loop adds the correlation id and request type.
type Envelope map[string]string

// Stamp sets the correlation id and type keys.
func (e Envelope) Stamp(correlationID string, kind Kind) {
	e[EnvelopeCorrelationID] = correlationID
	e[EnvelopeType] = string(kind)
}

// Publishable reports whether a response with this correlation id should
// reach the publisher.
func Publishable(correlationID string) bool {
	return correlationID != TestCorrelationID
}
