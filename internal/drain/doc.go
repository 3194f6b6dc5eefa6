// Package drain tracks in-flight work and coordinates graceful shutdown.
// A Tracker counts accepted requests; a Coordinator stops intake on a
// termination signal and blocks until that count reaches zero.
package drain
