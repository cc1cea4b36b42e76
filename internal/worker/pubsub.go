package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

var (
	// ErrMalformedJob is returned for a message body that is not a job.
	ErrMalformedJob = errors.New("malformed job message")

	// ErrUnknownJob is returned for a job type this worker does not run.
	ErrUnknownJob = errors.New("unknown job type")
)

// JobMessage is the body of a worker Pub/Sub message.
type JobMessage struct {
	JobType string `json:"job_type"`
}

// HealthCheckFunc verifies that the services a job depends on are up.
type HealthCheckFunc func(ctx context.Context) error

// DispatcherConfig holds configuration for a Dispatcher.
type DispatcherConfig struct {
	RefreshJob  *CatalogRefreshJob
	HealthCheck HealthCheckFunc
	Logger      zerolog.Logger
}

// Dispatcher runs the job named by a message body.
type Dispatcher struct {
	refreshJob  *CatalogRefreshJob
	healthCheck HealthCheckFunc
	logger      zerolog.Logger
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	return &Dispatcher{
		refreshJob:  cfg.RefreshJob,
		healthCheck: cfg.HealthCheck,
		logger:      cfg.Logger,
	}
}

// Dispatch decodes data and runs the job it names.
func (d *Dispatcher) Dispatch(ctx context.Context, data []byte) error {
	var msg JobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedJob, err)
	}

	switch msg.JobType {
	case JobCatalogRefresh:
		if d.refreshJob == nil {
			return fmt.Errorf("%w: %s", ErrUnknownJob, msg.JobType)
		}
		return d.refreshJob.Run(ctx).Err
	case JobHealthCheck:
		return d.runHealthCheck(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJob, msg.JobType)
	}
}

func (d *Dispatcher) runHealthCheck(ctx context.Context) error {
	d.logger.Debug().Msg("running health check")

	if d.healthCheck == nil {
		return nil
	}
	if err := d.healthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	d.logger.Debug().Msg("health check passed")
	return nil
}

// Acknowledge reports whether a message whose dispatch returned err should
// be acked. Malformed and unknown jobs are acked so they are not redelivered.
func Acknowledge(err error) bool {
	return err == nil || errors.Is(err, ErrMalformedJob) || errors.Is(err, ErrUnknownJob)
}

// PubSubHandler receives job messages from a Pub/Sub subscription.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	dispatcher       *Dispatcher
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Dispatcher       *Dispatcher
	Logger           zerolog.Logger
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// Jobs are serialized; a catalog reload is one large request.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 1
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		dispatcher:       cfg.Dispatcher,
		logger:           cfg.Logger,
	}, nil
}

// Start begins processing Pub/Sub messages. It blocks until ctx is done.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	startTime := time.Now()

	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	logger.Debug().Msg("received pubsub message")

	err := h.dispatcher.Dispatch(ctx, msg.Data)
	if err != nil {
		if Acknowledge(err) {
			logger.Warn().Err(err).Msg("dropping job message")
			msg.Ack()
			return
		}
		logger.Error().Err(err).Msg("job failed")
		msg.Nack()
		return
	}

	logger.Info().
		Dur("duration", time.Since(startTime)).
		Msg("job completed successfully")

	msg.Ack()
}
