// Package dispatch classifies raw messages into typed requests and routes
// them to the executor registered for their kind.
package dispatch
