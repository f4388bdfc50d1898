package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Ilia01/deliver/internal/models"
)

type stubSCM struct{ err error }

func (s stubSCM) ShowProject(context.Context, string) (*models.Project, error) {
	return &models.Project{ID: 42}, s.err
}

func (s stubSCM) ShowMergeRequest(context.Context, string, int64) (*models.MergeRequest, error) {
	return &models.MergeRequest{IID: 7}, s.err
}

func (s stubSCM) ListCommits(context.Context, string, int64) ([]models.Commit, error) {
	return []models.Commit{{ID: "a"}, {ID: "b"}}, s.err
}

type stubTracker struct{ err error }

func (s stubTracker) FindIssue(_ context.Context, key string) (*models.Issue, error) {
	return &models.Issue{Key: key}, s.err
}

func (s stubTracker) GetDevStatusDetail(context.Context, string) (*models.DevStatus, error) {
	return &models.DevStatus{}, s.err
}

func (s stubTracker) SearchIssues(context.Context, string, int, int) (*models.SearchResult, error) {
	return &models.SearchResult{Issues: []models.Issue{{Key: "EFU-1"}}}, s.err
}

// installRecorders swaps the global providers for in-memory ones.
func installRecorders(t *testing.T) (*tracetest.SpanRecorder, *sdkmetric.ManualReader) {
	t.Helper()
	t.Setenv("DELIVER_OTEL_ENABLED", "true")

	spans := tracetest.NewSpanRecorder()
	reader := sdkmetric.NewManualReader()
	prevTP, prevMP := otel.GetTracerProvider(), otel.GetMeterProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans)))
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetMeterProvider(prevMP)
	})
	return spans, reader
}

func TestWrapDisabledReturnsInner(t *testing.T) {
	t.Setenv("DELIVER_OTEL_ENABLED", "")

	scm := stubSCM{}
	tracker := stubTracker{}
	assert.Equal(t, scm, WrapSourceControl(scm))
	assert.Equal(t, tracker, WrapTracker(tracker))
}

func TestWrapSourceControlRecordsSpans(t *testing.T) {
	spans, reader := installRecorders(t)
	scm := WrapSourceControl(stubSCM{})

	ctx := context.Background()
	_, err := scm.ShowProject(ctx, "front/webapp")
	require.NoError(t, err)
	commits, err := scm.ListCommits(ctx, "42", 7)
	require.NoError(t, err)
	assert.Len(t, commits, 2)

	ended := spans.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "gitlab.ShowProject", ended[0].Name())
	assert.Equal(t, "gitlab.ListCommits", ended[1].Name())
	assert.Equal(t, codes.Unset, ended[1].Status().Code)

	assert.Equal(t, int64(2), counterTotal(t, reader, "deliver.service.calls"))
}

func TestWrapTrackerRecordsErrors(t *testing.T) {
	spans, reader := installRecorders(t)
	tracker := WrapTracker(stubTracker{err: errors.New("boom")})

	_, err := tracker.FindIssue(context.Background(), "EFU-1")
	require.EqualError(t, err, "boom")

	ended := spans.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "jira.FindIssue", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, int64(1), counterTotal(t, reader, "deliver.service.errors"))
}

func TestInitDisabledInstallsNoop(t *testing.T) {
	t.Setenv("DELIVER_OTEL_ENABLED", "")
	prevTP, prevMP := otel.GetTracerProvider(), otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetMeterProvider(prevMP)
	})

	require.NoError(t, Init(context.Background(), "deliver", "test"))
	_, span := Tracer("").Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
	Shutdown(context.Background())
}

func counterTotal(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}
