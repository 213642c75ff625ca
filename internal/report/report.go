// Package report publishes the summary of a finished run.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

type AMFSummary struct {
	ID       int
	Capacity int
	Load     int
}

type Summary struct {
	Run       string
	Terminals int
	States    map[string]int
	AMFs      []AMFSummary
	Elapsed   time.Duration
}

// Connected is the number of terminals that reached CONNECTED.
func (s Summary) Connected() int {
	return s.States["CONNECTED"]
}

func (s Summary) Struct() (*structpb.Struct, error) {
	amfs := make([]any, 0, len(s.AMFs))
	for _, a := range s.AMFs {
		amfs = append(amfs, map[string]any{"id": a.ID, "capacity": a.Capacity, "load": a.Load})
	}
	states := make(map[string]any, len(s.States))
	for k, v := range s.States {
		states[k] = v
	}
	return structpb.NewStruct(map[string]any{
		"run":       s.Run,
		"terminals": s.Terminals,
		"states":    states,
		"amfs":      amfs,
		"elapsed":   s.Elapsed.String(),
	})
}

func (s Summary) MarshalJSON() ([]byte, error) {
	st, err := s.Struct()
	if err != nil {
		return nil, err
	}
	return protojson.Marshal(st)
}

type Sink interface {
	Publish(ctx context.Context, s Summary) error
}

// LogSink writes the summary to the log.
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{log: logger.Named("report")}
}

func (l *LogSink) Publish(_ context.Context, s Summary) error {
	for _, a := range s.AMFs {
		l.log.Info("AMF",
			zap.Int("amf", a.ID),
			zap.Int("load", a.Load),
			zap.Int("capacity", a.Capacity))
	}
	l.log.Info("run finished",
		zap.Int("terminals", s.Terminals),
		zap.Int("connected", s.Connected()),
		zap.Any("states", s.States),
		zap.Duration("elapsed", s.Elapsed))
	return nil
}

// RedisSink stores each summary under <key>:<run> and appends the run id
// to the <key>:runs list.
type RedisSink struct {
	db  *redis.Client
	key string
}

func NewRedisSink(db *redis.Client, key string) *RedisSink {
	return &RedisSink{db: db, key: key}
}

func (r *RedisSink) Publish(ctx context.Context, s Summary) error {
	buf, err := s.MarshalJSON()
	if err != nil {
		return err
	}
	_, err = r.db.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, r.key+":"+s.Run, buf, 0)
		p.RPush(ctx, r.key+":runs", s.Run)
		return nil
	})
	if err != nil {
		return fmt.Errorf("publish summary %s: %w", s.Run, err)
	}
	return nil
}

// Multi publishes to every sink and returns the first error.
type Multi []Sink

func (m Multi) Publish(ctx context.Context, s Summary) error {
	var first error
	for _, sink := range m {
		if err := sink.Publish(ctx, s); err != nil && first == nil {
			first = err
		}
	}
	return first
}
