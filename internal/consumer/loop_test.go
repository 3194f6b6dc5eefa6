package consumer_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/seantiz/inductor/internal/admission"
	"github.com/seantiz/inductor/internal/consumer"
	"github.com/seantiz/inductor/internal/dispatch"
	"github.com/seantiz/inductor/internal/drain"
	"github.com/seantiz/inductor/internal/liveness"
	"github.com/seantiz/inductor/internal/model"
	"github.com/seantiz/inductor/internal/queue"
)

const dataDir = "/opt/inductor/data"

type fakeDelivery struct {
	msgType string
	corr    string
	body    string
	ackErr  error
	acks    atomic.Int32
}

func (d *fakeDelivery) Type() string          { return d.msgType }
func (d *fakeDelivery) CorrelationID() string { return d.corr }
func (d *fakeDelivery) Body() []byte          { return []byte(d.body) }
func (d *fakeDelivery) Deliveries() int       { return 0 }

func (d *fakeDelivery) Ack(context.Context) error {
	if d.ackErr != nil {
		return d.ackErr
	}
	d.acks.Add(1)
	return nil
}

type fixedAdmitter struct {
	decision admission.Decision
	calls    atomic.Int32
}

func (a *fixedAdmitter) Check(context.Context) admission.Decision {
	a.calls.Add(1)
	return a.decision
}

type recordingPublisher struct {
	mu   sync.Mutex
	envs []model.Envelope
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, env model.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.envs = append(p.envs, env)
	return p.err
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.envs)
}

type recordingHistory struct {
	mu       sync.Mutex
	attempts []*model.Attempt
	err      error
}

func (h *recordingHistory) RecordAttempt(_ context.Context, a *model.Attempt) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attempts = append(h.attempts, a)
	return h.err
}

func (h *recordingHistory) last(t *testing.T) *model.Attempt {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.attempts) == 0 {
		t.Fatal("no attempt recorded")
	}
	return h.attempts[len(h.attempts)-1]
}

type harness struct {
	loop      *consumer.Loop
	tracker   *drain.Tracker
	admitter  *fixedAdmitter
	router    *dispatch.Router
	publisher *recordingPublisher
	history   *recordingHistory
	fs        afero.Fs
	recorder  *liveness.Recorder
	execCalls atomic.Int32
}

func newHarness(t *testing.T, exec dispatch.ExecutorFunc) *harness {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	h := &harness{
		tracker:   drain.NewTracker(),
		admitter:  &fixedAdmitter{decision: admission.Admit},
		router:    dispatch.NewRouter(),
		publisher: &recordingPublisher{},
		history:   &recordingHistory{},
		fs:        afero.NewMemMapFs(),
	}
	h.recorder = liveness.NewRecorder(h.fs, dataDir, logger)

	counting := dispatch.ExecutorFunc(func(ctx context.Context, req model.Request, corr string) (model.Envelope, error) {
		h.execCalls.Add(1)
		return exec(ctx, req, corr)
	})
	h.router.Register(model.KindWorkOrder, counting)
	h.router.Register(model.KindActionOrder, counting)

	h.loop = consumer.NewLoop(consumer.Deps{
		Admission: h.admitter,
		Tracker:   h.tracker,
		Liveness:  h.recorder,
		Router:    h.router,
		Publisher: h.publisher,
		History:   h.history,
		Logger:    logger,
	})
	return h
}

func (h *harness) liveness(t *testing.T, slot string) string {
	t.Helper()
	b, err := afero.ReadFile(h.fs, h.recorder.Path(slot))
	if err != nil {
		t.Fatalf("read liveness file: %v", err)
	}
	return string(b)
}

func (h *harness) assertIdle(t *testing.T, slot string) {
	t.Helper()
	if got := h.liveness(t, slot); !strings.HasPrefix(got, "idle\n") {
		t.Errorf("liveness for slot %s = %q, want idle record", slot, got)
	}
}

func succeed(context.Context, model.Request, string) (model.Envelope, error) {
	return model.Envelope{"status": "success"}, nil
}

func workOrderBody(enqueued time.Time) string {
	return fmt.Sprintf(`{
		"rfcCi": {"ciClassName": "bom.Compute", "rfcAction": "add", "nsPath": "/org/assembly"},
		"searchTags": {"requestEnqueTs": %q}
	}`, model.FormatSearchTime(enqueued))
}

func TestWorkOrderScenario(t *testing.T) {
	var seen model.Request
	h := newHarness(t, func(_ context.Context, req model.Request, _ string) (model.Envelope, error) {
		seen = req
		return model.Envelope{"status": "success"}, nil
	})
	d := &fakeDelivery{msgType: "workorder", corr: "abc123", body: workOrderBody(time.Now().Add(-2 * time.Second))}

	if err := h.loop.Handle(context.Background(), "1", d); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	tags := seen.SearchTags()
	if tags[model.TagDequeueTS] == "" {
		t.Error("dequeue timestamp tag not set")
	}
	qt, err := strconv.ParseFloat(tags[model.TagQueueTime], 64)
	if err != nil || qt < 1.9 || qt > 10 {
		t.Errorf("queue time tag = %q, want about 2 seconds", tags[model.TagQueueTime])
	}
	if tags[model.TagRfcAction] != "add" {
		t.Errorf("rfcAction tag = %q", tags[model.TagRfcAction])
	}

	if h.publisher.count() != 1 {
		t.Fatalf("published %d envelopes, want 1", h.publisher.count())
	}
	env := h.publisher.envs[0]
	want := model.Envelope{"status": "success", "correlationID": "abc123", "type": "workorder"}
	if len(env) != len(want) {
		t.Errorf("envelope = %v, want %v", env, want)
	}
	for k, v := range want {
		if env[k] != v {
			t.Errorf("envelope[%q] = %q, want %q", k, env[k], v)
		}
	}

	if d.acks.Load() != 1 {
		t.Errorf("acks = %d, want 1", d.acks.Load())
	}
	if h.tracker.Active() != 0 {
		t.Errorf("active work = %d, want 0", h.tracker.Active())
	}
	h.assertIdle(t, "1")

	a := h.history.last(t)
	if a.Outcome != model.OutcomeAcknowledged || a.CorrelationID != "abc123" || a.Slot != "1" {
		t.Errorf("attempt = %+v", a)
	}
	if a.ClassName != "bom.Compute" || a.Action != "add" || a.NsPath != "/org/assembly" {
		t.Errorf("attempt request fields = %+v", a)
	}
	if a.QueueTimeS == nil {
		t.Error("attempt queue time not recorded")
	}
}

func TestUnknownTypeIsAcknowledgedAndDropped(t *testing.T) {
	h := newHarness(t, succeed)
	d := &fakeDelivery{msgType: "bogus", corr: "abc123", body: `{}`}

	if err := h.loop.Handle(context.Background(), "2", d); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if d.acks.Load() != 1 {
		t.Errorf("acks = %d, want 1", d.acks.Load())
	}
	if h.execCalls.Load() != 0 {
		t.Error("executor must not run for unknown types")
	}
	if h.publisher.count() != 0 {
		t.Error("publisher must not run for unknown types")
	}
	if h.tracker.Active() != 0 {
		t.Errorf("active work = %d, want 0", h.tracker.Active())
	}
	h.assertIdle(t, "2")

	a := h.history.last(t)
	if a.Outcome != model.OutcomeDropped || a.Error == nil {
		t.Errorf("attempt = %+v, want dropped with error", a)
	}
}

func TestMalformedBodyIsAcknowledgedAndDropped(t *testing.T) {
	h := newHarness(t, succeed)
	d := &fakeDelivery{msgType: "actionorder", corr: "c1", body: `{"actionName": "reboot"`}

	if err := h.loop.Handle(context.Background(), "1", d); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if d.acks.Load() != 1 || h.execCalls.Load() != 0 || h.publisher.count() != 0 {
		t.Errorf("acks=%d exec=%d published=%d", d.acks.Load(), h.execCalls.Load(), h.publisher.count())
	}
}

func TestExecutorFailureLeavesMessageUnacknowledged(t *testing.T) {
	h := newHarness(t, func(context.Context, model.Request, string) (model.Envelope, error) {
		return nil, errors.New("chef run failed")
	})
	d := &fakeDelivery{msgType: "workorder", corr: "c1", body: workOrderBody(time.Now())}

	err := h.loop.Handle(context.Background(), "1", d)
	if !errors.Is(err, model.ErrExecutionFailure) {
		t.Fatalf("Handle error = %v, want ErrExecutionFailure", err)
	}
	if errors.Is(err, queue.ErrRequeue) {
		t.Error("execution failures must count as delivery attempts")
	}
	if d.acks.Load() != 0 {
		t.Error("executor failure must not acknowledge")
	}
	if h.publisher.count() != 0 {
		t.Error("executor failure must not publish")
	}
	if h.tracker.Active() != 0 {
		t.Errorf("active work = %d, want 0", h.tracker.Active())
	}
	h.assertIdle(t, "1")

	if a := h.history.last(t); a.Outcome != model.OutcomeFailed {
		t.Errorf("outcome = %q, want failed", a.Outcome)
	}
}

func TestExecutorPanicLeavesMessageUnacknowledged(t *testing.T) {
	h := newHarness(t, func(context.Context, model.Request, string) (model.Envelope, error) {
		panic("executor bug")
	})
	d := &fakeDelivery{msgType: "workorder", corr: "c-panic", body: workOrderBody(time.Now())}

	err := h.loop.Handle(context.Background(), "1", d)
	if !errors.Is(err, model.ErrExecutionFailure) {
		t.Fatalf("Handle error = %v, want ErrExecutionFailure", err)
	}
	if d.acks.Load() != 0 {
		t.Error("panicking executor must not acknowledge")
	}
	if h.publisher.count() != 0 {
		t.Error("panicking executor must not publish")
	}
	if h.tracker.Active() != 0 {
		t.Errorf("active work = %d, want 0", h.tracker.Active())
	}
	h.assertIdle(t, "1")

	if a := h.history.last(t); a.Outcome != model.OutcomeFailed {
		t.Errorf("outcome = %q, want failed", a.Outcome)
	}

	d2 := &fakeDelivery{msgType: "actionorder", corr: "c-next", body: `{"ci": {}}`}
	if err := h.loop.Handle(context.Background(), "1", d2); !errors.Is(err, model.ErrExecutionFailure) {
		t.Errorf("second Handle error = %v, want ErrExecutionFailure", err)
	}
	if h.tracker.Active() != 0 {
		t.Errorf("active work after second panic = %d, want 0", h.tracker.Active())
	}
}

func TestTestCorrelationIDNeverPublishes(t *testing.T) {
	bodies := map[string]string{
		"workorder":   workOrderBody(time.Now()),
		"actionorder": `{"actionName": "reboot", "ci": {"ciClassName": "bom.Compute"}}`,
	}
	for msgType, body := range bodies {
		t.Run(msgType, func(t *testing.T) {
			h := newHarness(t, succeed)
			d := &fakeDelivery{msgType: msgType, corr: model.TestCorrelationID, body: body}

			if err := h.loop.Handle(context.Background(), "1", d); err != nil {
				t.Fatalf("Handle: %v", err)
			}
			if h.publisher.count() != 0 {
				t.Error("test correlation id must not publish")
			}
			if h.execCalls.Load() != 1 || d.acks.Load() != 1 {
				t.Errorf("exec=%d acks=%d, want 1 and 1", h.execCalls.Load(), d.acks.Load())
			}
		})
	}
}

func TestPublishFailureStillAcknowledges(t *testing.T) {
	h := newHarness(t, succeed)
	h.publisher.err = errors.New("broker unavailable")
	d := &fakeDelivery{msgType: "workorder", corr: "c1", body: workOrderBody(time.Now())}

	if err := h.loop.Handle(context.Background(), "1", d); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if d.acks.Load() != 1 {
		t.Error("publish failure should still acknowledge")
	}
	a := h.history.last(t)
	if a.Outcome != model.OutcomeAcknowledged || a.Error == nil || !strings.Contains(*a.Error, "broker unavailable") {
		t.Errorf("attempt = %+v, want acknowledged with publish error", a)
	}
}

func TestAckFailureIsReported(t *testing.T) {
	h := newHarness(t, succeed)
	d := &fakeDelivery{msgType: "workorder", corr: "c1", body: workOrderBody(time.Now()), ackErr: errors.New("connection reset")}

	if err := h.loop.Handle(context.Background(), "1", d); err == nil {
		t.Fatal("expected ack error")
	}
	if h.tracker.Active() != 0 {
		t.Errorf("active work = %d, want 0", h.tracker.Active())
	}
	h.assertIdle(t, "1")
}

func TestCapacityHaltRefusesDelivery(t *testing.T) {
	h := newHarness(t, succeed)
	h.admitter.decision = admission.Halt
	d := &fakeDelivery{msgType: "workorder", corr: "c1", body: workOrderBody(time.Now())}

	err := h.loop.Handle(context.Background(), "1", d)
	if !errors.Is(err, queue.ErrRequeue) || !errors.Is(err, model.ErrCapacityExhausted) {
		t.Fatalf("Handle error = %v, want requeue for capacity", err)
	}
	if d.acks.Load() != 0 || h.execCalls.Load() != 0 {
		t.Error("halted delivery must not be processed")
	}
	if len(h.history.attempts) != 0 {
		t.Error("refused delivery should not be recorded as an attempt")
	}
}

func TestClosedIntakeRefusesDelivery(t *testing.T) {
	h := newHarness(t, succeed)
	h.tracker.Close()
	d := &fakeDelivery{msgType: "workorder", corr: "c1", body: workOrderBody(time.Now())}

	err := h.loop.Handle(context.Background(), "1", d)
	if !errors.Is(err, queue.ErrRequeue) || !errors.Is(err, drain.ErrIntakeClosed) {
		t.Fatalf("Handle error = %v, want requeue for closed intake", err)
	}
	if h.tracker.Active() != 0 {
		t.Errorf("active work = %d, want 0", h.tracker.Active())
	}
}

func TestLivenessIsBusyOnlyDuringProcessing(t *testing.T) {
	var during string
	var h *harness
	h = newHarness(t, func(context.Context, model.Request, string) (model.Envelope, error) {
		during = h.liveness(t, "4")
		return model.Envelope{}, nil
	})

	h.loop.Idle("4")
	h.assertIdle(t, "4")

	d := &fakeDelivery{msgType: "workorder", corr: "c1", body: workOrderBody(time.Now())}
	if err := h.loop.Handle(context.Background(), "4", d); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if !strings.HasSuffix(during, " bom.Compute::add /org/assembly") {
		t.Errorf("liveness during processing = %q", during)
	}
	h.assertIdle(t, "4")
}

func TestHistoryFailureIsIgnored(t *testing.T) {
	h := newHarness(t, succeed)
	h.history.err = errors.New("database is locked")
	d := &fakeDelivery{msgType: "workorder", corr: "c1", body: workOrderBody(time.Now())}

	if err := h.loop.Handle(context.Background(), "1", d); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if d.acks.Load() != 1 {
		t.Error("history failure must not affect acknowledgement")
	}
}

func TestConcurrentHandlingReturnsCounterToZero(t *testing.T) {
	var calls atomic.Int64
	h := newHarness(t, func(context.Context, model.Request, string) (model.Envelope, error) {
		n := calls.Add(1)
		time.Sleep(5 * time.Millisecond)
		if n%3 == 0 {
			return nil, errors.New("flaky")
		}
		return model.Envelope{"status": "success"}, nil
	})

	var wg sync.WaitGroup
	for i := range 20 {
		slot := strconv.Itoa(i%5 + 1)
		wg.Go(func() {
			msgType := "workorder"
			if i%4 == 0 {
				msgType = "bogus"
			}
			d := &fakeDelivery{msgType: msgType, corr: fmt.Sprintf("c%d", i), body: workOrderBody(time.Now())}
			h.loop.Handle(context.Background(), slot, d)
		})
	}
	wg.Wait()

	if h.tracker.Active() != 0 {
		t.Errorf("active work = %d after all handles returned, want 0", h.tracker.Active())
	}
	if len(h.history.attempts) != 20 {
		t.Errorf("recorded %d attempts, want 20", len(h.history.attempts))
	}
	for slot := 1; slot <= 5; slot++ {
		h.assertIdle(t, strconv.Itoa(slot))
	}
}
