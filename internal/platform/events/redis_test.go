package events

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStream(t *testing.T) (*redis.Client, *RedisStreamSink) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, NewRedisStreamSink(client, "bodymap:events", 100)
}

func TestRedisStreamSink_Emit(t *testing.T) {
	client, sink := setupStream(t)
	ctx := context.Background()

	e := New("marker.created", "patient:p1:markers", map[string]string{"marker_type": "foley_catheter"})
	e.Tenant = "acme"
	e.PatientID = "p1"
	require.NoError(t, sink.Emit(ctx, e))
	require.NoError(t, sink.Emit(ctx, New("marker.confirmed_all", "markers", nil)))

	n, err := client.XLen(ctx, "bodymap:events").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	msgs, err := client.XRange(ctx, "bodymap:events", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	first := msgs[0].Values
	assert.Equal(t, e.ID, first["id"])
	assert.Equal(t, "marker.created", first["type"])
	assert.Equal(t, "acme", first["tenant"])
	assert.Equal(t, "p1", first["patient_id"])
	assert.JSONEq(t, `{"marker_type":"foley_catheter"}`, first["data"].(string))

	assert.Equal(t, "null", msgs[1].Values["data"])
}

func TestRedisStreamSink_DefaultMaxLen(t *testing.T) {
	sink := NewRedisStreamSink(nil, "s", 0)
	assert.Equal(t, int64(defaultStreamMaxLen), sink.maxLen)
}

func TestRedisStreamSink_ClosedClient(t *testing.T) {
	client, sink := setupStream(t)
	client.Close()

	err := sink.Emit(context.Background(), New("marker.created", "t", nil))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "xadd bodymap:events")
}
