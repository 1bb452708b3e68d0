package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	writeFn func(ctx context.Context, msgs ...kafka.Message) error
	closed  bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.writeFn == nil {
		panic("unexpected call to WriteMessages")
	}
	return f.writeFn(ctx, msgs...)
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaPublisherPublish(t *testing.T) {
	t.Parallel()

	var got []kafka.Message
	writer := &fakeWriter{writeFn: func(_ context.Context, msgs ...kafka.Message) error {
		got = append(got, msgs...)
		return nil
	}}
	p := &KafkaPublisher{writer: writer, topicPrefix: "infofluencer."}

	at := time.Date(2025, 5, 27, 10, 0, 0, 0, time.UTC)
	err := p.Publish(context.Background(), Event{
		Type:       TypeReportMaterialized,
		TenantID:   "tenant-1",
		Provider:   "ga4",
		ReportType: "country",
		Rows:       12,
		OccurredAt: at,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "infofluencer.report.materialized", got[0].Topic)
	require.Equal(t, []byte("tenant-1"), got[0].Key)

	var decoded Event
	require.NoError(t, json.Unmarshal(got[0].Value, &decoded))
	require.Equal(t, 12, decoded.Rows)
	require.Equal(t, at, decoded.OccurredAt)

	require.NoError(t, p.Close())
	require.True(t, writer.closed)
}

func TestNewKafkaPublisherRequiresBrokers(t *testing.T) {
	t.Parallel()

	_, err := NewKafkaPublisher(nil, "")
	require.Error(t, err)
}
