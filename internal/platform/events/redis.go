package events

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
)

const defaultStreamMaxLen = 10000

// RedisStreamSink appends events to a Redis stream with XADD. The stream is
// capped approximately at maxLen entries.
type RedisStreamSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewRedisStreamSink(client *redis.Client, stream string, maxLen int64) *RedisStreamSink {
	if maxLen <= 0 {
		maxLen = defaultStreamMaxLen
	}
	return &RedisStreamSink{client: client, stream: stream, maxLen: maxLen}
}

func (s *RedisStreamSink) Emit(ctx context.Context, e Event) error {
	values := map[string]interface{}{
		"id":          e.ID,
		"type":        e.Type,
		"topic":       e.Topic,
		"tenant":      e.Tenant,
		"patient_id":  e.PatientID,
		"resource_id": e.ResourceID,
		"acting_user": e.ActingUser,
		"timestamp":   strconv.FormatInt(e.Timestamp.UnixMilli(), 10),
		"data":        string(dataOrNull(e.Data)),
	}
	err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: values,
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}
