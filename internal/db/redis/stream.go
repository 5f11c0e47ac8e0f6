package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/rueidis"

	"github.com/casetrack/casedex/internal/db"
)

// StreamCreateGroup creates a consumer group at the stream tail, creating the
// stream if absent. An existing group maps to db.ErrGroupExists.
func (s *Store) StreamCreateGroup(ctx context.Context, stream, group string) error {
	cmd := s.b().XgroupCreate().Key(stream).Group(group).Id("$").Mkstream().Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "BUSYGROUP") {
			return db.ErrGroupExists
		}
		return &db.Error{Op: db.OpXGroup, Err: err}
	}
	return nil
}

// StreamReadGroup reads up to count new entries for a consumer, blocking up
// to the given duration. A timeout with no entries returns an empty slice.
func (s *Store) StreamReadGroup(
	ctx context.Context, stream, group, consumer string, count int, block time.Duration,
) ([]db.StreamMessage, error) {
	cmd := s.b().Xreadgroup().
		Group(group, consumer).
		Count(int64(count)).
		Block(block.Milliseconds()).
		Streams().Key(stream).Id(">").
		Build()

	res := s.do(ctx, cmd)
	streams, err := res.AsXRead()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, nil
		}
		return nil, &db.Error{Op: db.OpXReadGroup, Err: err}
	}

	entries := streams[stream]
	msgs := make([]db.StreamMessage, 0, len(entries))
	for _, e := range entries {
		msgs = append(msgs, db.StreamMessage{ID: e.ID, Values: e.FieldValues})
	}
	return msgs, nil
}

// StreamClaimPending transfers ownership of pending entries idle for at
// least minIdle to the given consumer, scanning from the start cursor. It
// returns the claimed entries and the cursor for the next scan; "0-0" means
// the pending list has been covered.
func (s *Store) StreamClaimPending(
	ctx context.Context, stream, group, consumer string,
	minIdle time.Duration, start string, count int,
) ([]db.StreamMessage, string, error) {
	cmd := s.b().Xautoclaim().
		Key(stream).
		Group(group).
		Consumer(consumer).
		MinIdleTime(strconv.FormatInt(minIdle.Milliseconds(), 10)).
		Start(start).
		Count(int64(count)).
		Build()

	arr, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, "0-0", nil
		}
		return nil, "", &db.Error{Op: db.OpXAutoClaim, Err: err}
	}
	if len(arr) < 2 {
		return nil, "0-0", nil
	}

	cursor, err := arr[0].ToString()
	if err != nil {
		return nil, "", &db.Error{Op: db.OpXAutoClaim, Err: err}
	}
	entries, err := arr[1].AsXRange()
	if err != nil {
		return nil, "", &db.Error{Op: db.OpXAutoClaim, Err: err}
	}

	msgs := make([]db.StreamMessage, 0, len(entries))
	for _, e := range entries {
		msgs = append(msgs, db.StreamMessage{ID: e.ID, Values: e.FieldValues})
	}
	return msgs, cursor, nil
}

// StreamAck acknowledges processed entries for a consumer group.
func (s *Store) StreamAck(ctx context.Context, stream, group string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	cmd := s.b().Xack().Key(stream).Group(group).Id(ids...).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpXAck, Err: err}
	}
	return nil
}

// StreamAdd appends an entry to a stream with an auto-generated id.
func (s *Store) StreamAdd(ctx context.Context, stream string, values map[string]string) error {
	fv := s.b().Xadd().Key(stream).Id("*").FieldValue()
	for k, v := range values {
		fv = fv.FieldValue(k, v)
	}
	if err := s.do(ctx, fv.Build()).Error(); err != nil {
		return &db.Error{Op: db.OpXAdd, Err: err}
	}
	return nil
}
