package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/Ilia01/deliver/internal/delivery"
	"github.com/Ilia01/deliver/internal/models"
)

const servicesScopeName = "github.com/Ilia01/deliver/services"

// instruments is shared by every wrapped service; the service name is an
// attribute on each measurement.
type instruments struct {
	service string
	tracer  trace.Tracer
	calls   metric.Int64Counter
	dur     metric.Float64Histogram
	errs    metric.Int64Counter
}

func newInstruments(service string) *instruments {
	m := Meter(servicesScopeName)
	calls, _ := m.Int64Counter("deliver.service.calls",
		metric.WithDescription("Calls made to GitLab and Jira"),
	)
	dur, _ := m.Float64Histogram("deliver.service.call.duration",
		metric.WithDescription("Call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("deliver.service.errors",
		metric.WithDescription("Failed calls to GitLab and Jira"),
	)
	return &instruments{
		service: service,
		tracer:  Tracer(servicesScopeName),
		calls:   calls,
		dur:     dur,
		errs:    errs,
	}
}

func (in *instruments) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, []attribute.KeyValue, time.Time) {
	all := append([]attribute.KeyValue{
		attribute.String("deliver.service", in.service),
		attribute.String("deliver.operation", name),
	}, attrs...)
	ctx, span := in.tracer.Start(ctx, in.service+"."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	in.calls.Add(ctx, 1, metric.WithAttributes(all[:2]...))
	return ctx, span, all[:2], time.Now()
}

func (in *instruments) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs []attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	in.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		in.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

// InstrumentedSourceControl records a span and metrics for every GitLab call.
type InstrumentedSourceControl struct {
	inner delivery.SourceControl
	in    *instruments
}

// WrapSourceControl returns s unchanged when telemetry is disabled.
func WrapSourceControl(s delivery.SourceControl) delivery.SourceControl {
	if !Enabled() {
		return s
	}
	return &InstrumentedSourceControl{inner: s, in: newInstruments("gitlab")}
}

func (s *InstrumentedSourceControl) ShowProject(ctx context.Context, project string) (*models.Project, error) {
	ctx, span, attrs, t := s.in.op(ctx, "ShowProject", attribute.String("gitlab.project", project))
	v, err := s.inner.ShowProject(ctx, project)
	s.in.done(ctx, span, t, err, attrs)
	return v, err
}

func (s *InstrumentedSourceControl) ShowMergeRequest(ctx context.Context, project string, iid int64) (*models.MergeRequest, error) {
	ctx, span, attrs, t := s.in.op(ctx, "ShowMergeRequest",
		attribute.String("gitlab.project", project),
		attribute.Int64("gitlab.merge_request.iid", iid),
	)
	v, err := s.inner.ShowMergeRequest(ctx, project, iid)
	s.in.done(ctx, span, t, err, attrs)
	return v, err
}

func (s *InstrumentedSourceControl) ListCommits(ctx context.Context, project string, iid int64) ([]models.Commit, error) {
	ctx, span, attrs, t := s.in.op(ctx, "ListCommits",
		attribute.String("gitlab.project", project),
		attribute.Int64("gitlab.merge_request.iid", iid),
	)
	commits, err := s.inner.ListCommits(ctx, project, iid)
	if err == nil {
		span.SetAttributes(attribute.Int("deliver.result.count", len(commits)))
	}
	s.in.done(ctx, span, t, err, attrs)
	return commits, err
}

// InstrumentedTracker records a span and metrics for every Jira call.
type InstrumentedTracker struct {
	inner delivery.Tracker
	in    *instruments
}

// WrapTracker returns t unchanged when telemetry is disabled.
func WrapTracker(t delivery.Tracker) delivery.Tracker {
	if !Enabled() {
		return t
	}
	return &InstrumentedTracker{inner: t, in: newInstruments("jira")}
}

func (t *InstrumentedTracker) FindIssue(ctx context.Context, key string) (*models.Issue, error) {
	ctx, span, attrs, start := t.in.op(ctx, "FindIssue", attribute.String("jira.issue.key", key))
	v, err := t.inner.FindIssue(ctx, key)
	t.in.done(ctx, span, start, err, attrs)
	return v, err
}

func (t *InstrumentedTracker) GetDevStatusDetail(ctx context.Context, issueID string) (*models.DevStatus, error) {
	ctx, span, attrs, start := t.in.op(ctx, "GetDevStatusDetail", attribute.String("jira.issue.id", issueID))
	v, err := t.inner.GetDevStatusDetail(ctx, issueID)
	t.in.done(ctx, span, start, err, attrs)
	return v, err
}

func (t *InstrumentedTracker) SearchIssues(ctx context.Context, jql string, startAt, maxResults int) (*models.SearchResult, error) {
	ctx, span, attrs, start := t.in.op(ctx, "SearchIssues",
		attribute.String("jira.jql", jql),
		attribute.Int("jira.start_at", startAt),
		attribute.Int("jira.max_results", maxResults),
	)
	result, err := t.inner.SearchIssues(ctx, jql, startAt, maxResults)
	if err == nil && result != nil {
		span.SetAttributes(attribute.Int("deliver.result.count", len(result.Issues)))
	}
	t.in.done(ctx, span, start, err, attrs)
	return result, err
}
