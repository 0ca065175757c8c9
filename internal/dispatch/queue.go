package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	pb "cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/sony/gobreaker/v2"

	"starfleet/internal/payload"
	"starfleet/internal/worker"
)

// CloudEvent types carried over the queued invocation substrate.
const (
	EventTypeInvocation = "starfleet.worker.invocation"
	EventTypeCompletion = "starfleet.worker.completion"
	eventSource         = "starfleet/dispatcher"
)

// completionData is the payload of a completion event published by the
// remote execution substrate.
type completionData struct {
	InvocationID string             `json:"invocation_id"`
	Class        worker.ResultClass `json:"class"`
	Detail       string             `json:"detail,omitempty"`
}

// QueueConfig locates the queued invocation substrate.
type QueueConfig struct {
	ProjectID string
	// Topic receives invocation events for remote executors.
	Topic string
	// ResultSubscription delivers completion events back to this process.
	ResultSubscription string
}

// QueueInvoker hands payloads to an asynchronous invocation substrate
// (a Pub/Sub topic consumed by remote executors) and resolves each Invoke
// call when the matching completion event arrives on the result
// subscription. Publishes are guarded by a circuit breaker so a dead broker
// degrades to fast retryable failures instead of hanging the pool.
type QueueInvoker struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
	breaker   *gobreaker.CircuitBreaker[string]
	logger    *slog.Logger

	mu      sync.Mutex
	pending map[string]chan worker.ExecutionResult

	receiveCancel context.CancelFunc
	receiveDone   chan struct{}
}

// NewQueueInvoker connects to the substrate, ensures the invocation topic
// exists, and starts consuming the result subscription.
func NewQueueInvoker(ctx context.Context, cfg QueueConfig, logger *slog.Logger) (*QueueInvoker, error) {
	if cfg.ProjectID == "" || cfg.Topic == "" || cfg.ResultSubscription == "" {
		return nil, fmt.Errorf("queue config requires project, topic and result subscription")
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	topicPath := fmt.Sprintf("projects/%s/topics/%s", cfg.ProjectID, cfg.Topic)
	if _, err := client.TopicAdminClient.GetTopic(ctx, &pb.GetTopicRequest{Topic: topicPath}); err != nil {
		logger.Info("creating invocation topic", "topic", topicPath)
		if _, err := client.TopicAdminClient.CreateTopic(ctx, &pb.Topic{Name: topicPath}); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("create topic %s: %w", topicPath, err)
		}
	}

	q := &QueueInvoker{
		client:    client,
		publisher: client.Publisher(cfg.Topic),
		logger:    logger,
		pending:   make(map[string]chan worker.ExecutionResult),
		breaker: gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
			Name: "queue-publish",
		}),
		receiveDone: make(chan struct{}),
	}

	// The consumer outlives the constructor's ctx; it runs until Close.
	rctx, cancel := context.WithCancel(context.Background())
	q.receiveCancel = cancel

	sub := client.Subscriber(cfg.ResultSubscription)
	go func() {
		defer close(q.receiveDone)
		if err := sub.Receive(rctx, q.handleMessage); err != nil && rctx.Err() == nil {
			q.logger.Error("result subscription terminated", "err", err)
		}
	}()

	return q, nil
}

// Invoke publishes the invocation and blocks until the matching completion
// event arrives or ctx expires. The dispatcher accounts it against the same
// concurrency limit as synchronous executions: the limit bounds outstanding,
// not-yet-completed invocations.
func (q *QueueInvoker) Invoke(ctx context.Context, inv payload.Invocation) worker.ExecutionResult {
	waiter := make(chan worker.ExecutionResult, 1)
	q.mu.Lock()
	q.pending[inv.ID] = waiter
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		delete(q.pending, inv.ID)
		q.mu.Unlock()
	}()

	data, err := encodeInvocationEvent(inv)
	if err != nil {
		// The payload snapshot is plain JSON data; this indicates a
		// programming error, not a target-specific condition.
		return worker.Fatal(fmt.Sprintf("encode invocation event: %v", err))
	}

	if _, err := q.breaker.Execute(func() (string, error) {
		result := q.publisher.Publish(ctx, &pubsub.Message{
			Data: data,
			Attributes: map[string]string{
				"ce-type":   EventTypeInvocation,
				"ce-source": eventSource,
				"ce-id":     inv.ID,
			},
		})
		return result.Get(ctx)
	}); err != nil {
		return worker.Retryable(fmt.Sprintf("publish invocation: %v", err))
	}

	select {
	case res := <-waiter:
		return res
	case <-ctx.Done():
		// The dispatcher converts this into a timeout for the target.
		return worker.Retryable(worker.CauseTimeout)
	}
}

func (q *QueueInvoker) handleMessage(ctx context.Context, msg *pubsub.Message) {
	res, id, err := decodeCompletionEvent(msg.Data)
	if err != nil {
		q.logger.Error("discarding malformed completion event", "err", err)
		msg.Ack()
		return
	}

	q.mu.Lock()
	waiter, ok := q.pending[id]
	q.mu.Unlock()
	if !ok {
		// Completion for an invocation this process no longer waits on
		// (timed out, or another run's traffic). Ack and move on.
		msg.Ack()
		return
	}

	select {
	case waiter <- res:
	default:
	}
	msg.Ack()
}

// Close stops the result consumer and releases the client.
func (q *QueueInvoker) Close() error {
	q.receiveCancel()
	<-q.receiveDone
	return q.client.Close()
}

func encodeInvocationEvent(inv payload.Invocation) ([]byte, error) {
	event := cloudevents.NewEvent()
	event.SetID(inv.ID)
	event.SetType(EventTypeInvocation)
	event.SetSource(eventSource)
	if err := event.SetData(cloudevents.ApplicationJSON, inv); err != nil {
		return nil, err
	}
	return json.Marshal(event)
}

func decodeCompletionEvent(raw []byte) (worker.ExecutionResult, string, error) {
	var event cloudevents.Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return worker.ExecutionResult{}, "", fmt.Errorf("decode event envelope: %w", err)
	}
	if event.Type() != EventTypeCompletion {
		return worker.ExecutionResult{}, "", fmt.Errorf("unexpected event type %q", event.Type())
	}

	var data completionData
	if err := event.DataAs(&data); err != nil {
		return worker.ExecutionResult{}, "", fmt.Errorf("decode completion data: %w", err)
	}
	if data.InvocationID == "" {
		return worker.ExecutionResult{}, "", fmt.Errorf("completion event without invocation id")
	}

	switch data.Class {
	case worker.ClassSuccess, worker.ClassRetryable, worker.ClassFatal:
	default:
		return worker.ExecutionResult{}, "", fmt.Errorf("unknown result class %q", data.Class)
	}

	return worker.ExecutionResult{Class: data.Class, Detail: data.Detail}, data.InvocationID, nil
}
