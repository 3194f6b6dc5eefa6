// Package enrich stamps liveness and queue-timing metadata onto a request
// before it is dispatched. Each step is independent and never fails the
// request: problems are logged and the request continues partially enriched.
package enrich

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/seantiz/inductor/internal/model"
)

// BusyMarker records that a slot started work on a request.
type BusyMarker interface {
	MarkBusy(slot string, req model.Request)
}

// Enricher mutates requests in place.
type Enricher struct {
	liveness BusyMarker
	logger   *slog.Logger
	now      func() time.Time
}

// New creates an enricher.
func New(liveness BusyMarker, logger *slog.Logger) *Enricher {
	return &Enricher{
		liveness: liveness,
		logger:   logger,
		now:      time.Now,
	}
}

// Enrich marks slot busy with req, then sets the dequeue timestamp and queue
// wait tags. Work orders also get their rfc action as a tag.
func (e *Enricher) Enrich(slot string, req model.Request) {
	e.liveness.MarkBusy(slot, req)
	e.setQueueTime(req)

	if req.Kind() == model.KindWorkOrder {
		req.PutSearchTag(model.TagRfcAction, req.Action())
	}
}

// setQueueTime stores the dequeue time and, when the producer supplied a
// parsable enqueue time, the wait between the two in seconds. Both ends are
// compared at millisecond precision, the resolution of the tag format.
func (e *Enricher) setQueueTime(req model.Request) {
	dequeued := e.now().UTC().Truncate(time.Millisecond)
	req.PutSearchTag(model.TagDequeueTS, model.FormatSearchTime(dequeued))

	raw, ok := req.SearchTags()[model.TagEnqueueTS]
	if !ok || raw == "" {
		e.logger.Error("cannot set queue time: enqueue timestamp missing",
			"type", req.Kind(),
			"ns_path", req.NsPath(),
		)
		return
	}

	enqueued, err := model.ParseSearchTime(raw)
	if err != nil {
		e.logger.Error("cannot set queue time: enqueue timestamp unparsable",
			"type", req.Kind(),
			"value", raw,
			"error", err,
		)
		return
	}

	wait := dequeued.Sub(enqueued.Truncate(time.Millisecond))
	req.PutSearchTag(model.TagQueueTime, FormatSeconds(wait))
}

// FormatSeconds renders d as decimal seconds with millisecond precision and
// at least one fractional digit, e.g. "2.0", "1.5" or "12.034".
func FormatSeconds(d time.Duration) string {
	s := strconv.FormatFloat(float64(d.Milliseconds())/1000.0, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// QueueWait returns the queue wait recorded on req, if any.
func QueueWait(req model.Request) (time.Duration, bool) {
	raw, ok := req.SearchTags()[model.TagQueueTime]
	if !ok {
		return 0, false
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return time.Duration(secs * float64(time.Second)), true
}
