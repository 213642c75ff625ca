package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/net/nettest"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

func sample() Summary {
	return Summary{
		Run:       "5b3f1c7e-1111-4222-8333-444455556666",
		Terminals: 40,
		States:    map[string]int{"IDLE": 0, "REGISTERED": 0, "CONNECTED": 40},
		AMFs:      []AMFSummary{{ID: 0, Capacity: 10, Load: 10}, {ID: 1, Capacity: 30, Load: 30}},
		Elapsed:   3 * time.Second,
	}
}

func TestSummaryJSON(t *testing.T) {
	buf, err := sample().MarshalJSON()
	require.NoError(t, err)

	var st structpb.Struct
	require.NoError(t, protojson.Unmarshal(buf, &st))
	got := st.AsMap()
	assert.Equal(t, "3s", got["elapsed"])
	assert.Equal(t, 40.0, got["terminals"])
	assert.Len(t, got["amfs"], 2)
	assert.Equal(t, 40.0, got["states"].(map[string]any)["CONNECTED"])
}

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := NewLogSink(zap.New(core))

	require.NoError(t, sink.Publish(context.Background(), sample()))
	assert.Equal(t, 2, logs.FilterMessage("AMF").Len())
	finished := logs.FilterMessage("run finished").All()
	require.Len(t, finished, 1)
	assert.Equal(t, int64(40), finished[0].ContextMap()["connected"])
}

type failingSink struct{ err error }

func (f failingSink) Publish(context.Context, Summary) error { return f.err }

func TestMultiKeepsPublishing(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	boom := errors.New("boom")

	err := Multi{failingSink{boom}, NewLogSink(zap.New(core))}.Publish(context.Background(), sample())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, logs.FilterMessage("run finished").Len())
}

func TestRedisSinkUnreachable(t *testing.T) {
	ln, err := nettest.NewLocalListener("tcp")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	db := redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1, DialTimeout: time.Second})
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = NewRedisSink(db, "ransim:report").Publish(ctx, sample())
	assert.Error(t, err)
}
