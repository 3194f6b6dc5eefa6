// Package queue is the Redis list transport for inbound orders and outbound
// responses.
//
// Inbound messages are received reliably with BRPOPLPUSH into a per-consumer
// processing list and only removed from it on acknowledgement. A message the
// handler does not acknowledge is pushed back for redelivery with its
// delivery count incremented; past the redelivery limit it is parked on a
// dead-letter list.
package queue
