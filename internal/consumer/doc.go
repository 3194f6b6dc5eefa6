// Package consumer holds the per-message consumption loop: admission, work
// accounting, decoding, enrichment, dispatch, response publishing and
// acknowledgement, with guaranteed cleanup on every exit path.
package consumer
