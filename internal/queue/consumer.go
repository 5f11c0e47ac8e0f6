package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/casetrack/casedex/internal/db"
	"github.com/casetrack/casedex/internal/domain/event"
	"github.com/casetrack/casedex/internal/metrics"
)

// BodyField is the stream entry field carrying the JSON envelope.
const BodyField = "body"

// streams is the consumer interface over the stream store (ISP).
type streams interface {
	StreamCreateGroup(ctx context.Context, stream, group string) error
	StreamReadGroup(
		ctx context.Context, stream, group, consumer string, count int, block time.Duration,
	) ([]db.StreamMessage, error)
	StreamClaimPending(
		ctx context.Context, stream, group, consumer string,
		minIdle time.Duration, start string, count int,
	) ([]db.StreamMessage, string, error)
	StreamAck(ctx context.Context, stream, group string, ids ...string) error
	StreamAdd(ctx context.Context, stream string, values map[string]string) error
}

// dispatcher applies one envelope; the bool reports whether the type is
// recognized.
type dispatcher interface {
	Dispatch(ctx context.Context, env event.Envelope) (bool, error)
}

// Config tunes the consumer.
type Config struct {
	Stream           string
	Group            string
	Consumer         string
	DeadLetterStream string

	// MaxRedeliveries bounds retries after the first attempt, so an event is
	// tried MaxRedeliveries+1 times before dead-lettering.
	MaxRedeliveries   int
	RedeliveryDelay   time.Duration
	BackoffMultiplier float64

	// Lanes is the number of ordered processing lanes. Events for one case
	// always land in the same lane.
	Lanes        int
	BatchSize    int
	BlockTimeout time.Duration

	// ClaimMinIdle is how long a delivered entry must sit unacknowledged
	// before another consumer may claim it. ClaimInterval paces the pending
	// sweeps after the one at startup.
	ClaimMinIdle  time.Duration
	ClaimInterval time.Duration
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.DeadLetterStream == "" {
		c.DeadLetterStream = c.Stream + ":dlq"
	}
	if c.MaxRedeliveries == 0 {
		c.MaxRedeliveries = 2
	}
	if c.RedeliveryDelay == 0 {
		c.RedeliveryDelay = 200 * time.Millisecond
	}
	if c.BackoffMultiplier == 0 {
		c.BackoffMultiplier = 2
	}
	if c.Lanes <= 0 {
		c.Lanes = 4
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 32
	}
	if c.BlockTimeout == 0 {
		c.BlockTimeout = 5 * time.Second
	}
	if c.ClaimMinIdle == 0 {
		c.ClaimMinIdle = 30 * time.Second
	}
	if c.ClaimInterval == 0 {
		c.ClaimInterval = time.Minute
	}
}

// laneItem is one stream entry with its decoded envelope.
type laneItem struct {
	msg db.StreamMessage
	env event.Envelope
}

// Consumer reads the event stream and applies entries through the dispatcher.
// Entries are acknowledged only after a successful apply or a dead-letter, so
// a crash redelivers pending ones.
type Consumer struct {
	streams    streams
	dispatcher dispatcher
	cfg        Config
	logger     *zap.Logger
}

// New creates a stream consumer.
func New(s streams, d dispatcher, cfg Config, logger *zap.Logger) *Consumer {
	cfg.ApplyDefaults()
	return &Consumer{streams: s, dispatcher: d, cfg: cfg, logger: logger}
}

// Run consumes until the context is cancelled. It creates the consumer group
// on first start and blocks until all lanes drain on shutdown.
func (c *Consumer) Run(ctx context.Context) error {
	err := c.streams.StreamCreateGroup(ctx, c.cfg.Stream, c.cfg.Group)
	if err != nil && !errors.Is(err, db.ErrGroupExists) {
		return fmt.Errorf("create consumer group %s on %s: %w", c.cfg.Group, c.cfg.Stream, err)
	}

	lanes := make([]chan laneItem, c.cfg.Lanes)
	var wg sync.WaitGroup
	for i := range lanes {
		lanes[i] = make(chan laneItem, c.cfg.BatchSize)
		wg.Add(1)
		go func(items <-chan laneItem) {
			defer wg.Done()
			c.lane(ctx, items)
		}(lanes[i])
	}

	c.logger.Info("Event consumer started",
		zap.String("stream", c.cfg.Stream),
		zap.String("group", c.cfg.Group),
		zap.Int("lanes", c.cfg.Lanes),
	)

	readErr := c.read(ctx, lanes)

	for _, lane := range lanes {
		close(lane)
	}
	wg.Wait()

	if readErr != nil && !errors.Is(readErr, context.Canceled) {
		return readErr
	}
	return nil
}

// read pulls batches from the consumer group and routes each entry to the
// lane owning its case. Before the first read and every ClaimInterval it
// sweeps the group's pending list, so entries stranded by a crashed or
// stopped consumer are claimed and redelivered instead of sitting pending
// forever.
func (c *Consumer) read(ctx context.Context, lanes []chan laneItem) error {
	if err := c.reclaim(ctx, lanes); err != nil {
		return err
	}
	lastClaim := time.Now()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msgs, err := c.streams.StreamReadGroup(
			ctx, c.cfg.Stream, c.cfg.Group, c.cfg.Consumer, c.cfg.BatchSize, c.cfg.BlockTimeout,
		)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("Stream read failed", zap.Error(err))
			if !c.sleep(ctx, c.cfg.RedeliveryDelay) {
				return ctx.Err()
			}
			continue
		}

		for _, msg := range msgs {
			if err := c.route(ctx, msg, lanes); err != nil {
				return err
			}
		}

		if time.Since(lastClaim) >= c.cfg.ClaimInterval {
			if err := c.reclaim(ctx, lanes); err != nil {
				return err
			}
			lastClaim = time.Now()
		}
	}
}

// reclaim scans the group's pending entries and takes over those idle past
// ClaimMinIdle, feeding them through the normal lane path. Claim failures
// are logged and retried on the next sweep; the entries stay pending.
func (c *Consumer) reclaim(ctx context.Context, lanes []chan laneItem) error {
	cursor := "0-0"
	claimed := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msgs, next, err := c.streams.StreamClaimPending(
			ctx, c.cfg.Stream, c.cfg.Group, c.cfg.Consumer,
			c.cfg.ClaimMinIdle, cursor, c.cfg.BatchSize,
		)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("Pending claim failed", zap.Error(err))
			return nil
		}

		for _, msg := range msgs {
			if err := c.route(ctx, msg, lanes); err != nil {
				return err
			}
		}
		claimed += len(msgs)

		if next == "0-0" || next == cursor {
			break
		}
		cursor = next
	}

	if claimed > 0 {
		c.logger.Info("Reclaimed pending events", zap.Int("count", claimed))
	}
	return nil
}

// route hands one entry to the lane owning its case.
func (c *Consumer) route(ctx context.Context, msg db.StreamMessage, lanes []chan laneItem) error {
	env, err := decodeEnvelope(msg)
	if err != nil {
		// Undecodable entries can never succeed; dead-letter them without
		// burning retries.
		c.deadLetter(ctx, msg, 1, err)
		return nil
	}

	lane := lanes[laneFor(env, len(lanes))]
	select {
	case lane <- laneItem{msg: msg, env: env}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// lane processes items in arrival order, one case never in flight twice.
func (c *Consumer) lane(ctx context.Context, items <-chan laneItem) {
	for item := range items {
		c.process(ctx, item)
	}
}

func (c *Consumer) process(ctx context.Context, item laneItem) {
	delay := c.cfg.RedeliveryDelay
	attempts := c.cfg.MaxRedeliveries + 1

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		start := time.Now()
		recognized, err := c.dispatcher.Dispatch(ctx, item.env)
		if err == nil {
			metrics.EventApplyDuration.WithLabelValues(string(item.env.Type)).
				Observe(time.Since(start).Seconds())
			outcome := "ok"
			if !recognized {
				outcome = "ignored"
			}
			metrics.EventsProcessedTotal.WithLabelValues(string(item.env.Type), outcome).Inc()
			c.ack(ctx, item.msg.ID)
			return
		}

		lastErr = err
		if ctx.Err() != nil {
			// Shutdown mid-processing: leave the entry pending for
			// redelivery to the next consumer.
			return
		}

		c.logger.Warn("Event apply failed",
			zap.String("type", string(item.env.Type)),
			zap.String("caseUUID", item.env.CaseUUID.String()),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		if attempt < attempts {
			if !c.sleep(ctx, delay) {
				return
			}
			delay = time.Duration(float64(delay) * c.cfg.BackoffMultiplier)
		}
	}

	metrics.EventsProcessedTotal.WithLabelValues(string(item.env.Type), "error").Inc()
	c.deadLetter(ctx, item.msg, attempts, lastErr)
}

// deadLetter copies the entry to the dead letter stream, annotated with the
// attempt count and final error, then acknowledges the original.
func (c *Consumer) deadLetter(ctx context.Context, msg db.StreamMessage, attempts int, cause error) {
	values := map[string]string{
		"attempts":  strconv.Itoa(attempts),
		"error":     cause.Error(),
		"failed_at": time.Now().UTC().Format(time.RFC3339),
	}
	if body, ok := msg.Values[BodyField]; ok {
		values[BodyField] = body
	}

	if err := c.streams.StreamAdd(ctx, c.cfg.DeadLetterStream, values); err != nil {
		// Keep the entry pending rather than lose it.
		c.logger.Error("Dead letter write failed",
			zap.String("id", msg.ID),
			zap.Error(err),
		)
		return
	}

	metrics.EventsDeadLetteredTotal.WithLabelValues(eventType(msg)).Inc()
	c.logger.Error("Event dead lettered",
		zap.String("id", msg.ID),
		zap.Int("attempts", attempts),
		zap.Error(cause),
	)
	c.ack(ctx, msg.ID)
}

func (c *Consumer) ack(ctx context.Context, id string) {
	if err := c.streams.StreamAck(ctx, c.cfg.Stream, c.cfg.Group, id); err != nil {
		// A missed ack means one redelivery; the apply is idempotent.
		c.logger.Warn("Ack failed", zap.String("id", id), zap.Error(err))
	}
}

// sleep waits for d or until cancellation; returns false when cancelled.
func (c *Consumer) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func decodeEnvelope(msg db.StreamMessage) (event.Envelope, error) {
	body, ok := msg.Values[BodyField]
	if !ok {
		return event.Envelope{}, fmt.Errorf("stream entry %s without %s field", msg.ID, BodyField)
	}
	var env event.Envelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		return event.Envelope{}, fmt.Errorf("decode envelope from entry %s: %w", msg.ID, err)
	}
	return env, nil
}

// laneFor hashes the case UUID so all events for one case share a lane.
func laneFor(env event.Envelope, lanes int) int {
	h := fnv.New32a()
	_, _ = h.Write(env.CaseUUID[:])
	return int(h.Sum32() % uint32(lanes))
}

func eventType(msg db.StreamMessage) string {
	var env event.Envelope
	if err := json.Unmarshal([]byte(msg.Values[BodyField]), &env); err != nil || env.Type == "" {
		return "unknown"
	}
	return string(env.Type)
}
