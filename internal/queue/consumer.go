/**
 * Queue Consumer for the Figure Processing Worker
 *
 * Consumes "process-paper" jobs from the Redis-backed queue via Asynq. Each
 * job carries an uploaded PDF; the handler runs the paper pipeline under a
 * processing timeout, persists the resulting figures and metadata, and
 * mirrors the job lifecycle into Redis for the front end.
 */

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	procerrors "github.com/figstudio/figprocess-worker/internal/errors"
	"github.com/figstudio/figprocess-worker/internal/pipeline"
)

// TaskProcessPaper is the task type for paper processing jobs
const TaskProcessPaper = "process-paper"

// PaperJob is the payload of one queued paper processing job
type PaperJob struct {
	JobID     string                 `json:"jobId"`
	UserID    int64                  `json:"userId"`
	PaperID   int64                  `json:"paperId,omitempty"`
	Filename  string                 `json:"filename"`
	FileSize  int64                  `json:"fileSize,omitempty"`
	PDFBuffer []byte                 `json:"pdfBuffer"` // base64 over the wire
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// PaperProcessor runs the pipeline over one uploaded PDF
type PaperProcessor interface {
	Process(ctx context.Context, req *pipeline.ProcessRequest) (*pipeline.ProcessResult, error)
}

// ResultStore persists pipeline output and returns the paper's database ID
type ResultStore interface {
	SaveProcessResult(ctx context.Context, userID, paperID int64, filename string, pdf []byte, result *pipeline.ProcessResult) (int64, error)
}

// Consumer handles job consumption from the Redis queue
type Consumer struct {
	client    *asynq.Client
	server    *asynq.Server
	mux       *asynq.ServeMux
	processor PaperProcessor
	store     ResultStore
	status    *StatusTracker
	config    *ConsumerConfig
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Processor         PaperProcessor
	Store             ResultStore
	Status            *StatusTracker
	ProcessingTimeout time.Duration // default 5 minutes
}

// NewConsumer creates a new queue consumer
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}
	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := asynq.NewClient(redisOpt)

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10,
				"default":     1,
			},
			// Exponential backoff: 5s, 10s, 20s, capped at 60s
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				delay := time.Duration(5*(1<<uint(n))) * time.Second
				if delay > 60*time.Second {
					delay = 60 * time.Second
				}
				return delay
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("Task processing error: type=%s, error=%v", task.Type(), err)
			}),
		},
	)

	mux := asynq.NewServeMux()

	consumer := &Consumer{
		client:    client,
		server:    server,
		mux:       mux,
		processor: cfg.Processor,
		store:     cfg.Store,
		status:    cfg.Status,
		config:    cfg,
	}

	mux.HandleFunc(TaskProcessPaper, consumer.handleProcessPaper)

	return consumer, nil
}

// newPaperTask builds the queue task for a job, assigning a job ID when the
// caller did not provide one
func newPaperTask(job *PaperJob) (*asynq.Task, error) {
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job payload: %w", err)
	}

	return asynq.NewTask(TaskProcessPaper, payload), nil
}

// Enqueue submits a paper processing job to the queue
func (c *Consumer) Enqueue(ctx context.Context, job *PaperJob) error {
	task, err := newPaperTask(job)
	if err != nil {
		return err
	}

	if _, err := c.client.EnqueueContext(ctx, task, asynq.Queue(c.config.QueueName)); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// Start starts the queue consumer
func (c *Consumer) Start(ctx context.Context) error {
	log.Printf("Starting queue consumer (concurrency=%d, queue=%s)...",
		c.config.Concurrency, c.config.QueueName)

	go func() {
		if err := c.server.Run(c.mux); err != nil {
			log.Printf("Queue consumer error: %v", err)
		}
	}()

	return nil
}

// Stop stops the queue consumer gracefully
func (c *Consumer) Stop(ctx context.Context) error {
	log.Printf("Stopping queue consumer...")

	c.server.Shutdown()

	if err := c.client.Close(); err != nil {
		return fmt.Errorf("failed to close client: %w", err)
	}

	log.Printf("Queue consumer stopped")
	return nil
}

// handleProcessPaper processes one paper job
func (c *Consumer) handleProcessPaper(ctx context.Context, task *asynq.Task) error {
	startTime := time.Now()

	var job PaperJob
	if err := json.Unmarshal(task.Payload(), &job); err != nil {
		return fmt.Errorf("failed to unmarshal job data: %w", err)
	}

	log.Printf("[Job %s] Processing paper: filename=%s, size=%d bytes, user=%d",
		job.JobID, job.Filename, len(job.PDFBuffer), job.UserID)

	if c.status != nil {
		c.status.MarkProcessing(ctx, job.JobID)
	}

	timeout := c.config.ProcessingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	processCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := c.processor.Process(processCtx, &pipeline.ProcessRequest{
		JobID:     job.JobID,
		UserID:    job.UserID,
		PaperID:   job.PaperID,
		Filename:  job.Filename,
		PDFBuffer: job.PDFBuffer,
		Metadata:  job.Metadata,
	})

	duration := time.Since(startTime)

	if err != nil {
		if processCtx.Err() == context.DeadlineExceeded {
			log.Printf("[Job %s] Processing timed out after %v (timeout: %v)", job.JobID, duration, timeout)

			timeoutErr := procerrors.NewProcessingTimeoutError(job.JobID, timeout, err)
			if c.status != nil {
				c.status.MarkFailed(ctx, job.JobID, timeoutErr.ToMap())
			}
			return fmt.Errorf("processing timeout: %w", timeoutErr)
		}

		log.Printf("[Job %s] Processing failed after %v: %v", job.JobID, duration, err)

		if c.status != nil {
			c.status.MarkFailed(ctx, job.JobID, errorDetails(err, duration))
		}
		return fmt.Errorf("paper processing failed: %w", err)
	}

	if c.store != nil {
		paperID, err := c.store.SaveProcessResult(ctx, job.UserID, job.PaperID, job.Filename, job.PDFBuffer, result)
		if err != nil {
			storageErr := procerrors.NewStorageFailedError(job.JobID, err)
			log.Printf("[Job %s] %v", job.JobID, storageErr)
			if c.status != nil {
				c.status.MarkFailed(ctx, job.JobID, storageErr.ToMap())
			}
			return storageErr
		}
		result.PaperID = paperID
	}

	log.Printf("[Job %s] Processing completed successfully in %v: figures=%d, plots=%d",
		job.JobID, duration, result.FiguresExtracted, result.PlotsExtracted)

	if c.status != nil {
		c.status.MarkCompleted(ctx, job.JobID, map[string]interface{}{
			"figuresExtracted": result.FiguresExtracted,
			"plotsExtracted":   result.PlotsExtracted,
			"processingTime":   duration.Milliseconds(),
			"paperId":          result.PaperID,
		})
	}

	return nil
}

// errorDetails renders an error as a Redis-storable map, preserving
// structured processing errors
func errorDetails(err error, duration time.Duration) map[string]interface{} {
	var procErr *procerrors.ProcessingError
	if errors.As(err, &procErr) {
		details := procErr.ToMap()
		details["processingTime"] = duration.Milliseconds()
		return details
	}
	return map[string]interface{}{
		"error":          err.Error(),
		"processingTime": duration.Milliseconds(),
	}
}
