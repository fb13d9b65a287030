package queue

import (
	"context"
	"errors"
	"time"

	"github.com/nimburion/offlinequeue/pkg/mutation"
	"github.com/nimburion/offlinequeue/pkg/observability/logger"
	"github.com/nimburion/offlinequeue/pkg/observability/tracing"
	"github.com/nimburion/offlinequeue/pkg/resilience"
)

// Drain pass outcomes.
const (
	OutcomeCompleted   = "completed"
	OutcomeSkipped     = "skipped"
	OutcomeOffline     = "offline"
	OutcomeInterrupted = "interrupted"
)

// DrainReport summarizes one drain pass.
type DrainReport struct {
	Outcome      string `json:"outcome"`
	Attempted    int    `json:"attempted"`
	Delivered    int    `json:"delivered"`
	Failed       int    `json:"failed"`
	DeadLettered int    `json:"deadLettered"`
}

type deliveryResult int

const (
	resultGone deliveryResult = iota
	resultDelivered
	resultRetry
	resultDeadLettered
	resultInterrupted
)

// ProcessQueue runs one drain pass over a snapshot of the queue, delivering
// each request in FIFO order. It returns immediately when a pass is already
// running, the queue is empty, or the engine is not usable. Cancelling ctx
// stops the pass before the next request; an attempt that fails after ctx
// is done does not count against the retry budget.
func (e *Engine) ProcessQueue(ctx context.Context) DrainReport {
	e.mu.Lock()
	if e.usableLocked() != nil || e.processing || len(e.queue) == 0 {
		e.mu.Unlock()
		recordDrainPass(OutcomeSkipped)
		return DrainReport{Outcome: OutcomeSkipped}
	}
	e.processing = true
	e.syncStatus.LastSyncAttempt = mutation.TimePtr(e.now())
	pending := len(e.queue)
	e.mu.Unlock()
	e.publisher.Notify()

	ctx = logger.ContextWithDrainID(ctx, mutation.NewID())
	ctx, span := tracing.StartDeliverySpan(ctx, tracing.SpanOperationDrain, tracing.WithPending(pending))
	defer span.End()
	log := e.logger.WithContext(ctx)

	report := DrainReport{Outcome: OutcomeOffline}
	defer func() {
		e.finishDrain(ctx, report.Delivered > 0)
		recordDrainPass(report.Outcome)
		log.Info("drain pass finished",
			"outcome", report.Outcome,
			"attempted", report.Attempted,
			"delivered", report.Delivered,
			"failed", report.Failed,
			"dead_lettered", report.DeadLettered,
		)
	}()

	if !e.online(ctx) {
		return report
	}
	report.Outcome = OutcomeCompleted

	e.mu.Lock()
	snapshot := copyQueue(e.queue)
	e.mu.Unlock()

pass:
	for _, item := range snapshot {
		if err := ctx.Err(); err != nil {
			report.Outcome = OutcomeInterrupted
			log.Warn("drain pass interrupted", "error", err)
			break
		}
		result, retries := e.deliver(ctx, item.ID)
		switch result {
		case resultGone:
			continue
		case resultInterrupted:
			report.Attempted++
			report.Outcome = OutcomeInterrupted
			log.Warn("drain pass interrupted during delivery", "request_id", item.ID, "error", ctx.Err())
			break pass
		case resultDelivered:
			report.Delivered++
		case resultDeadLettered:
			report.Failed++
			report.DeadLettered++
		case resultRetry:
			report.Failed++
		}
		report.Attempted++

		if result != resultRetry {
			continue
		}
		if err := e.sleep(ctx, e.policy.Delay(retries-1)); err != nil {
			report.Outcome = OutcomeInterrupted
			log.Warn("drain pass interrupted during backoff", "error", err)
			break
		}
	}

	if report.Failed > 0 {
		tracing.RecordError(span, errors.New("one or more deliveries failed"))
	} else {
		tracing.RecordSuccess(span)
	}
	return report
}

// deliver attempts the queued request with id and applies the outcome to the
// queue. Requests removed since the pass snapshot was taken are skipped. A
// failure observed after ctx is done leaves the request untouched.
func (e *Engine) deliver(ctx context.Context, id string) (deliveryResult, int) {
	e.mu.Lock()
	idx := e.indexLocked(id)
	if idx < 0 {
		e.mu.Unlock()
		return resultGone, 0
	}
	req := e.queue[idx].Clone()
	e.mu.Unlock()

	ctx = logger.ContextWithRequestID(ctx, req.ID)
	log := e.logger.WithContext(ctx)
	failure := e.invoke(ctx, req)
	if failure != nil && ctx.Err() != nil {
		return resultInterrupted, req.Retries
	}
	// Outcomes are persisted even when the pass is being cancelled.
	ctx = context.WithoutCancel(ctx)

	e.mu.Lock()
	idx = e.indexLocked(id)
	if idx < 0 {
		e.mu.Unlock()
		return resultGone, 0
	}

	if failure == nil {
		e.queue = removeAt(e.queue, idx)
		version := e.commitLocked()
		snapshot := copyQueue(e.queue)
		e.mu.Unlock()

		_ = e.persistence.SaveQueue(ctx, version, snapshot)
		e.publisher.Notify()
		log.Debug("mutation delivered", "endpoint", req.Endpoint)
		return resultDelivered, 0
	}

	retries := e.queue[idx].Retries + 1
	if retries >= e.maxRetries {
		dead := e.queue[idx]
		dead.Retries = retries
		e.queue = removeAt(e.queue, idx)
		e.deadLetter = append(e.deadLetter, mutation.DeadLetterItem{
			Request:   dead,
			FailedAt:  e.now(),
			LastError: failure.Error(),
		})
		version := e.commitLocked()
		queueSnapshot := copyQueue(e.queue)
		deadLetterSnapshot := copyDeadLetter(e.deadLetter)
		e.mu.Unlock()

		// Dead-letter first so a crash between the writes cannot lose the item.
		_ = e.persistence.SaveDeadLetter(ctx, version, deadLetterSnapshot)
		_ = e.persistence.SaveQueue(ctx, version, queueSnapshot)
		recordDeadLettered(req.Endpoint)
		e.publisher.Notify()
		log.Error("mutation moved to dead-letter queue",
			"endpoint", req.Endpoint,
			"retries", retries,
			"error", failure,
		)
		return resultDeadLettered, retries
	}

	e.queue[idx].Retries = retries
	version := e.commitLocked()
	snapshot := copyQueue(e.queue)
	e.mu.Unlock()

	_ = e.persistence.SaveQueue(ctx, version, snapshot)
	e.publisher.Notify()
	log.Warn("mutation delivery failed, will retry",
		"endpoint", req.Endpoint,
		"retries", retries,
		"max_retries", e.maxRetries,
		"error", failure,
	)
	return resultRetry, retries
}

// invoke calls the processor registered for req.Endpoint. A missing
// processor and a panicking processor both count as failed attempts.
func (e *Engine) invoke(ctx context.Context, req mutation.QueuedRequest) error {
	ctx, span := tracing.StartDeliverySpan(ctx, tracing.SpanOperationDeliver,
		tracing.WithEndpoint(req.Endpoint),
		tracing.WithRequestID(req.ID),
		tracing.WithRequestType(string(req.Type)),
		tracing.WithAttempt(req.Retries+1),
	)
	defer span.End()

	processor, ok := e.registry.Resolve(req.Endpoint)
	if !ok {
		err := mutation.NoProcessorError(req.Endpoint)
		tracing.RecordError(span, err)
		recordDelivery(req.Endpoint, "no_processor", 0)
		return err
	}

	start := time.Now()
	err := resilience.WithTimeout(ctx, e.attemptTimeout, func(runCtx context.Context) error {
		return processor.Process(runCtx, req)
	})
	elapsed := time.Since(start).Seconds()

	var panicErr *resilience.PanicError
	switch {
	case err == nil:
		tracing.RecordSuccess(span)
		recordDelivery(req.Endpoint, "success", elapsed)
	case errors.As(err, &panicErr):
		e.logger.WithContext(ctx).Error("processor panicked",
			"endpoint", req.Endpoint,
			"panic", panicErr.Error(),
			"stack", string(panicErr.Stack),
		)
		tracing.RecordError(span, err)
		recordDelivery(req.Endpoint, "panic", elapsed)
	default:
		tracing.RecordError(span, err)
		recordDelivery(req.Endpoint, "failure", elapsed)
	}
	return err
}

// finishDrain clears the processing flag, stamps a successful sync when
// anything was delivered, and persists the final state of the pass.
func (e *Engine) finishDrain(ctx context.Context, delivered bool) {
	e.mu.Lock()
	e.processing = false
	if delivered {
		e.syncStatus.LastSuccessfulSync = mutation.TimePtr(e.now())
	}
	version := e.commitLocked()
	syncSnapshot := mutation.SyncStatus{
		LastSyncAttempt:    mutation.CopyTime(e.syncStatus.LastSyncAttempt),
		LastSuccessfulSync: mutation.CopyTime(e.syncStatus.LastSuccessfulSync),
	}
	queueSnapshot := copyQueue(e.queue)
	deadLetterSnapshot := copyDeadLetter(e.deadLetter)
	e.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	_ = e.persistence.SaveDeadLetter(ctx, version, deadLetterSnapshot)
	_ = e.persistence.SaveQueue(ctx, version, queueSnapshot)
	_ = e.persistence.SaveSyncStatus(ctx, version, syncSnapshot)
	e.publisher.Notify()
}
