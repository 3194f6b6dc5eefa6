package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/seantiz/inductor/internal/admission"
	"github.com/seantiz/inductor/internal/dispatch"
	"github.com/seantiz/inductor/internal/drain"
	"github.com/seantiz/inductor/internal/enrich"
	"github.com/seantiz/inductor/internal/model"
	"github.com/seantiz/inductor/internal/queue"
)

// Admitter decides whether a new message may be accepted.
type Admitter interface {
	Check(ctx context.Context) admission.Decision
}

// Router dispatches a decoded request to its executor.
type Router interface {
	Route(ctx context.Context, req model.Request, correlationID string) (model.Envelope, error)
}

// Publisher hands a response envelope to the controller.
type Publisher interface {
	Publish(ctx context.Context, env model.Envelope) error
}

// Liveness records what each worker slot is doing.
type Liveness interface {
	MarkBusy(slot string, req model.Request)
	MarkIdle(slot string)
}

// History persists attempt records. Optional.
type History interface {
	RecordAttempt(ctx context.Context, a *model.Attempt) error
}

// Deps are the collaborators of a Loop.
type Deps struct {
	Admission Admitter
	Tracker   *drain.Tracker
	Liveness  Liveness
	Router    Router
	Publisher Publisher
	History   History
	Logger    *slog.Logger
}

// Loop processes one delivery at a time per worker slot. It implements
// queue.Handler.
type Loop struct {
	admission Admitter
	tracker   *drain.Tracker
	liveness  Liveness
	enricher  *enrich.Enricher
	router    Router
	publisher Publisher
	history   History
	logger    *slog.Logger
	now       func() time.Time
}

var _ queue.Handler = (*Loop)(nil)

// NewLoop creates a consumption loop.
func NewLoop(d Deps) *Loop {
	return &Loop{
		admission: d.Admission,
		tracker:   d.Tracker,
		liveness:  d.Liveness,
		enricher:  enrich.New(d.Liveness, d.Logger),
		router:    d.Router,
		publisher: d.Publisher,
		history:   d.History,
		logger:    d.Logger,
		now:       time.Now,
	}
}

// Idle marks a slot idle before it receives anything.
func (l *Loop) Idle(slot string) {
	l.liveness.MarkIdle(slot)
}

// Handle runs one delivery through admission, processing and
// acknowledgement. A refused delivery returns an error wrapping
// queue.ErrRequeue. An execution failure returns an error wrapping
// model.ErrExecutionFailure and leaves the delivery unacknowledged.
func (l *Loop) Handle(ctx context.Context, slot string, d queue.Delivery) error {
	if l.admission.Check(ctx) == admission.Halt {
		return fmt.Errorf("%w: %w", queue.ErrRequeue, model.ErrCapacityExhausted)
	}
	if err := l.tracker.Acquire(); err != nil {
		return fmt.Errorf("%w: %w", queue.ErrRequeue, err)
	}
	activeWork.Inc()

	att := &model.Attempt{
		ID:            model.NewID(),
		CorrelationID: d.CorrelationID(),
		Type:          d.Type(),
		Slot:          slot,
		StartedAt:     l.now().UTC(),
	}
	defer l.finish(ctx, slot, att)

	err := l.process(ctx, slot, d, att)
	if err != nil {
		msg := err.Error()
		att.Error = &msg
	}
	return err
}

func (l *Loop) process(ctx context.Context, slot string, d queue.Delivery, att *model.Attempt) error {
	corr := d.CorrelationID()
	log := l.logger.With("slot", slot, "correlation_id", corr, "type", d.Type())

	req, err := dispatch.Decode(d.Type(), d.Body())
	if err != nil {
		log.Error("dropping unroutable message", "error", err)
		att.Outcome = model.OutcomeDropped
		msg := err.Error()
		att.Error = &msg
		if ackErr := d.Ack(ctx); ackErr != nil {
			log.Error("ack failed", "error", ackErr)
			return ackErr
		}
		return nil
	}

	att.ClassName = req.ClassName()
	att.Action = req.Action()
	att.NsPath = req.NsPath()

	l.enricher.Enrich(slot, req)
	if wait, ok := enrich.QueueWait(req); ok {
		secs := wait.Seconds()
		att.QueueTimeS = &secs
		queueWaitSeconds.Observe(secs)
	}

	env, err := l.router.Route(ctx, req, corr)
	if err != nil {
		log.Error("execution failed, leaving message for redelivery",
			"class_name", req.ClassName(),
			"action", req.Action(),
			"ns_path", req.NsPath(),
			"error", err,
		)
		att.Outcome = model.OutcomeFailed
		return err
	}

	env.Stamp(corr, req.Kind())

	var publishErr error
	if model.Publishable(corr) {
		start := time.Now()
		if err := l.publisher.Publish(ctx, env); err != nil {
			publishErr = fmt.Errorf("%w: %w", model.ErrPublishFailure, err)
			log.Error("publish failed, acknowledging anyway", "error", publishErr)
		}
		elapsed := time.Since(start)
		publishDurationSeconds.Observe(elapsed.Seconds())
		log.Debug("response published", "latency_ms", elapsed.Milliseconds())
	}

	if err := d.Ack(ctx); err != nil {
		log.Error("ack failed", "error", err)
		att.Outcome = model.OutcomeFailed
		return fmt.Errorf("ack: %w", err)
	}

	att.Outcome = model.OutcomeAcknowledged
	if publishErr != nil {
		msg := publishErr.Error()
		att.Error = &msg
	}
	return nil
}

// finish runs exactly once per accepted delivery.
func (l *Loop) finish(ctx context.Context, slot string, att *model.Attempt) {
	l.tracker.Release()
	activeWork.Dec()
	l.liveness.MarkIdle(slot)

	att.FinishedAt = l.now().UTC()
	elapsed := att.FinishedAt.Sub(att.StartedAt)
	att.DurationMS = elapsed.Milliseconds()
	if att.Outcome == "" {
		att.Outcome = model.OutcomeFailed
	}

	label := typeLabel(att.Type)
	messagesTotal.WithLabelValues(label, att.Outcome).Inc()
	processDurationSeconds.WithLabelValues(label).Observe(elapsed.Seconds())

	if l.history == nil {
		return
	}
	if err := l.history.RecordAttempt(context.WithoutCancel(ctx), att); err != nil {
		l.logger.Warn("could not record attempt", "attempt_id", att.ID, "error", err)
	}
}
