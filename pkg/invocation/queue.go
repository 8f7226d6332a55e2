package invocation

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	gverrors "github.com/CenterForOpenScience/gravyvalet/pkg/errors"
	"github.com/CenterForOpenScience/gravyvalet/pkg/logger"
)

// DefaultQueueKey is the Redis list deferred invocations travel through.
const DefaultQueueKey = "gravyvalet:deferred"

// dequeueBlock bounds each BRPOP so worker shutdown is responsive.
const dequeueBlock = 2 * time.Second

// Queue is the deferred-invocation task queue, a Redis list of invocation
// ids.
type Queue struct {
	client *redis.Client
	key    string
}

// NewQueue returns a queue on the given Redis client. key falls back to
// DefaultQueueKey.
func NewQueue(client *redis.Client, key string) *Queue {
	if key == "" {
		key = DefaultQueueKey
	}
	return &Queue{client: client, key: key}
}

// Enqueue posts an invocation id for a worker to pick up.
func (q *Queue) Enqueue(ctx context.Context, invocationID string) error {
	if err := q.client.LPush(ctx, q.key, invocationID).Err(); err != nil {
		return gverrors.New(gverrors.KindUnexpectedAddonError, "enqueueing deferred invocation", err)
	}
	return nil
}

// Dequeue blocks for the next invocation id. Empty string means the block
// timed out with nothing to do.
func (q *Queue) Dequeue(ctx context.Context) (string, error) {
	values, err := q.client.BRPop(ctx, dequeueBlock, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", gverrors.New(gverrors.KindUnexpectedAddonError, "dequeueing deferred invocation", err)
	}
	// BRPOP returns [key, value].
	return values[1], nil
}

// Worker consumes the deferred queue and runs invocations through the
// engine.
type Worker struct {
	queue  *Queue
	engine *Engine
}

// NewWorker wires a deferred-queue worker.
func NewWorker(queue *Queue, engine *Engine) *Worker {
	return &Worker{queue: queue, engine: engine}
}

// Run consumes until ctx is cancelled. A DibsDenied execution is re-posted
// for redelivery; other failures are logged (the invocation record carries
// the details) and not retried.
func (w *Worker) Run(ctx context.Context) error {
	logger.Infof("deferred worker consuming %s", w.queue.key)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		id, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warnf("dequeue failed: %v", err)
			time.Sleep(time.Second)
			continue
		}
		if id == "" {
			continue
		}

		if err := w.engine.ExecuteByID(ctx, id); err != nil {
			if gverrors.KindOf(err) == gverrors.KindDibsDenied {
				logger.Debugf("invocation %s leased elsewhere, redelivering", id)
				if err := w.queue.Enqueue(ctx, id); err != nil {
					logger.Warnf("redelivering invocation %s: %v", id, err)
				}
				continue
			}
			logger.Warnf("executing invocation %s: %v", id, err)
		}
	}
}
