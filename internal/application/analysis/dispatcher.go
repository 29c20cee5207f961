package analysis

import (
	"context"
	"sync"
	"time"

	domainAnalysis "github.com/turtacn/PriorArt-Intelligence/internal/domain/analysis"
	kafkainfra "github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
	"github.com/turtacn/PriorArt-Intelligence/pkg/types/common"
)

// Processor runs one job to a terminal state.
type Processor interface {
	Process(ctx context.Context, jobID string) error
}

// LocalDispatcher runs jobs on an in-process worker pool with a bounded
// queue. Jobs run detached from the submitting request.
type LocalDispatcher struct {
	processor Processor
	queue     chan string
	logger    logging.Logger
	metrics   *prometheus.AppMetrics

	mu      sync.RWMutex
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewLocalDispatcher starts workers goroutines. Call Stop to drain them.
func NewLocalDispatcher(p Processor, workers, queueSize int, logger logging.Logger, metrics *prometheus.AppMetrics) *LocalDispatcher {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &LocalDispatcher{
		processor: p,
		queue:     make(chan string, queueSize),
		logger:    logger.Named("dispatcher"),
		metrics:   metrics,
		cancel:    cancel,
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.work(ctx)
	}
	return d
}

// Dispatch enqueues job without blocking. A full queue yields
// ErrCodeJobQueueFull.
func (d *LocalDispatcher) Dispatch(_ context.Context, job *domainAnalysis.Job) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return errors.New(errors.ErrCodeServiceUnavailable, "analysis dispatcher stopped")
	}
	select {
	case d.queue <- job.ID:
		d.metrics.SetQueueDepth(len(d.queue))
		return nil
	default:
		return errors.New(errors.ErrCodeJobQueueFull, "analysis queue is full").WithDetail(job.ID)
	}
}

func (d *LocalDispatcher) work(ctx context.Context) {
	defer d.wg.Done()
	for id := range d.queue {
		d.metrics.SetQueueDepth(len(d.queue))
		if err := d.processor.Process(ctx, id); err != nil {
			d.logger.Error("analysis job processing failed", logging.String("job_id", id), logging.Err(err))
		}
	}
}

// Stop refuses new jobs and waits for queued ones until ctx ends, after
// which in-flight jobs are cancelled.
func (d *LocalDispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

// KafkaDispatcher publishes an analysis.requested event; a worker consuming
// that topic calls Process through NewRequestHandler.
type KafkaDispatcher struct {
	publisher EventPublisher
	now       func() time.Time
}

func NewKafkaDispatcher(p EventPublisher) *KafkaDispatcher {
	return &KafkaDispatcher{publisher: p, now: time.Now}
}

func (d *KafkaDispatcher) Dispatch(ctx context.Context, job *domainAnalysis.Job) error {
	payload := kafkainfra.AnalysisRequestedPayload{
		JobID:       job.ID,
		OwnerID:     job.OwnerID,
		RequestedAt: d.now().UTC(),
	}
	if err := d.publisher.Publish(ctx, kafkainfra.TopicAnalysisRequested, job.ID, kafkainfra.EventAnalysisRequested, payload); err != nil {
		return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to enqueue analysis").WithDetail(job.ID)
	}
	return nil
}

// NewRequestHandler adapts p to the analysis.requested topic. Malformed
// events and unknown jobs are dropped rather than retried.
func NewRequestHandler(p Processor, logger logging.Logger) common.MessageHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return func(ctx context.Context, msg *common.Message) error {
		if et := msg.Header("event_type"); et != "" && et != kafkainfra.EventAnalysisRequested {
			logger.Debug("ignoring foreign event", logging.String("event_type", et))
			return nil
		}
		env, err := kafkainfra.MessageToEventEnvelope(msg)
		if err != nil {
			logger.Warn("dropping malformed analysis request", logging.Int64("offset", msg.Offset), logging.Err(err))
			return nil
		}
		var req kafkainfra.AnalysisRequestedPayload
		if err := env.DecodePayload(&req); err != nil || req.JobID == "" {
			logger.Warn("dropping analysis request without job id", logging.String("event_id", env.EventID))
			return nil
		}
		if err := p.Process(ctx, req.JobID); err != nil {
			if errors.IsNotFound(err) {
				logger.Warn("analysis request for unknown job", logging.String("job_id", req.JobID))
				return nil
			}
			return err
		}
		return nil
	}
}
