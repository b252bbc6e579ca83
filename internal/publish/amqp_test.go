package publish

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jsonjoin/internal/etl"
)

type published struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakeChannel struct {
	declared  []string
	published []published
	failAfter int // publish fails once this many messages went out; 0 disables
	closed    bool
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	f.declared = append(f.declared, name+":"+kind)
	return nil
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if f.failAfter > 0 && len(f.published) >= f.failAfter {
		return errors.New("channel closed")
	}
	f.published = append(f.published, published{exchange, key, msg})
	return nil
}

func (f *fakeChannel) Close() error { f.closed = true; return nil }

type fakeConn struct{}

func (fakeConn) Close() error { return nil }

func newTestPublisher(ch *fakeChannel, dials *int) *Publisher {
	p := NewPublisher("amqp://test", "jsonjoin", "joined_rows")
	p.dial = func(string) (closer, channel, error) {
		*dials++
		return fakeConn{}, ch, nil
	}
	return p
}

func rows(n int) []etl.Record {
	out := make([]etl.Record, n)
	for i := range out {
		out[i] = etl.Record{Data: map[string]any{"cid": int64(i + 1), "name": "Barry"}}
	}
	return out
}

func TestPublisher_PublishesOneMessagePerRow(t *testing.T) {
	ch := &fakeChannel{}
	var dials int
	p := newTestPublisher(ch, &dials)

	n, err := p.Write(context.Background(), "", nil, rows(2), etl.SyncReplace)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"jsonjoin:direct"}, ch.declared)
	require.Len(t, ch.published, 2)

	first := ch.published[0]
	assert.Equal(t, "jsonjoin", first.exchange)
	assert.Equal(t, "joined_rows", first.key)
	assert.Equal(t, amqp.Persistent, first.msg.DeliveryMode)
	assert.Equal(t, "application/json", first.msg.ContentType)
	assert.Equal(t, int64(2), first.msg.Headers["x-row-count"])

	var body map[string]any
	require.NoError(t, json.Unmarshal(first.msg.Body, &body))
	assert.Equal(t, float64(1), body["cid"])

	// Target overrides the routing key; the connection is reused.
	_, err = p.Write(context.Background(), "custom", nil, rows(1), etl.SyncAppend)
	require.NoError(t, err)
	assert.Equal(t, "custom", ch.published[2].key)
	assert.Equal(t, "append", ch.published[2].msg.Headers["x-sync-mode"])
	assert.Equal(t, 1, dials)
}

func TestPublisher_FailureReconnects(t *testing.T) {
	ch := &fakeChannel{failAfter: 1}
	var dials int
	p := newTestPublisher(ch, &dials)

	n, err := p.Write(context.Background(), "", nil, rows(3), etl.SyncReplace)
	require.Error(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, ch.closed)

	ch.failAfter = 0
	_, err = p.Write(context.Background(), "", nil, rows(1), etl.SyncReplace)
	require.NoError(t, err)
	assert.Equal(t, 2, dials)
}

func TestPublisher_NoURL(t *testing.T) {
	p := NewPublisher("", "jsonjoin", "rows")
	_, err := p.Write(context.Background(), "", nil, rows(1), etl.SyncReplace)
	assert.ErrorContains(t, err, "not configured")
}
