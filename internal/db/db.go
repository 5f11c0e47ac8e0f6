// Package db defines the storage contract the rest of casedex programs
// against: JSON documents, FT indexes, boolean search, and stream-based
// message consumption. The redis sub-package provides the rueidis driver.
package db

import (
	"context"
	"time"

	"github.com/casetrack/casedex/internal/domain/search/filter"
)

// Store is the main database facade combining all sub-interfaces.
// Consumers depend on narrow sub-interfaces; the facade exists for wiring.
type Store interface {
	Pinger
	JSONStore
	IndexManager
	Searcher
	Streams
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// JSONStore provides JSON document operations.
type JSONStore interface {
	JSONSet(ctx context.Context, key, path string, data []byte) error
	JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error)
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// IndexManager provides FT index lifecycle operations.
type IndexManager interface {
	CreateIndex(ctx context.Context, def *IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// IDQuery asks for the keys of documents matching a filter expression, capped
// at Limit results.
type IDQuery struct {
	IndexName string
	Filters   filter.Expression
	Limit     int
}

// IDResult is the output of an id-only search.
type IDResult struct {
	Total int
	Keys  []string
}

// Searcher provides boolean search over FT indexes.
type Searcher interface {
	SearchIDs(ctx context.Context, q *IDQuery) (*IDResult, error)
}

// StreamMessage is one entry read from a stream consumer group.
type StreamMessage struct {
	ID     string
	Values map[string]string
}

// Streams provides consumer-group operations over streams: the inbound event
// channel and the dead-letter destination.
type Streams interface {
	StreamCreateGroup(ctx context.Context, stream, group string) error
	StreamReadGroup(
		ctx context.Context, stream, group, consumer string, count int, block time.Duration,
	) ([]StreamMessage, error)
	StreamClaimPending(
		ctx context.Context, stream, group, consumer string,
		minIdle time.Duration, start string, count int,
	) ([]StreamMessage, string, error)
	StreamAck(ctx context.Context, stream, group string, ids ...string) error
	StreamAdd(ctx context.Context, stream string, values map[string]string) error
}
