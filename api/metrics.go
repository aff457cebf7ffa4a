package api

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	weekSpanName    = "planner.week.read"
	weekEventName   = "week.read"
	weekEventDomain = "planner"
	weekRoute       = "/api/tasks/:weekKey"
)

// weekRequestMetrics captures per-stage timings for the week read path and
// emits them both as an otel span and as a structured log event.
type weekRequestMetrics struct {
	logger *log.Logger
	span   trace.Span
	start  time.Time

	authDuration   time.Duration
	fetchDuration  time.Duration
	encodeDuration time.Duration
	tasksReturned  int
	errorStage     string
}

func newWeekRequestMetrics(ctx context.Context, logger *log.Logger) (*weekRequestMetrics, context.Context) {
	tracer := otel.Tracer("weekplan-api/api")
	spanCtx, span := tracer.Start(ctx, weekSpanName, trace.WithSpanKind(trace.SpanKindServer))
	return &weekRequestMetrics{
		logger: logger,
		span:   span,
		start:  time.Now(),
	}, spanCtx
}

func (m *weekRequestMetrics) ObserveAuth(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.authDuration = duration
}

func (m *weekRequestMetrics) ObserveFetch(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.fetchDuration = duration
}

func (m *weekRequestMetrics) ObserveEncode(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.encodeDuration = duration
}

func (m *weekRequestMetrics) SetTasksReturned(count int) {
	if count < 0 {
		count = 0
	}
	m.tasksReturned = count
}

func (m *weekRequestMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

func (m *weekRequestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	totalMillis := durationToMillis(time.Since(m.start))

	if m.span != nil {
		attrs := []attribute.KeyValue{
			attribute.String("http.route", weekRoute),
			attribute.Int("http.status_code", status),
			attribute.Float64("planner.week.total_ms", totalMillis),
			attribute.Int("planner.week.tasks_returned", m.tasksReturned),
		}
		if m.authDuration > 0 {
			attrs = append(attrs, attribute.Float64("planner.week.auth_ms", durationToMillis(m.authDuration)))
		}
		if m.fetchDuration > 0 {
			attrs = append(attrs, attribute.Float64("planner.week.fetch_ms", durationToMillis(m.fetchDuration)))
		}
		if m.encodeDuration > 0 {
			attrs = append(attrs, attribute.Float64("planner.week.encode_ms", durationToMillis(m.encodeDuration)))
		}
		if m.errorStage != "" {
			attrs = append(attrs, attribute.String("planner.week.error_stage", m.errorStage))
		}
		m.span.SetAttributes(attrs...)
		m.span.AddEvent("observability.event", trace.WithAttributes(attrs...))
		if err != nil || m.errorStage != "" {
			m.span.SetStatus(codes.Error, m.errorStage)
			if err != nil {
				m.span.RecordError(err)
			}
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}

	attrFields := map[string]any{
		"http.route":                  weekRoute,
		"planner.week.total_ms":       totalMillis,
		"planner.week.tasks_returned": m.tasksReturned,
	}
	if m.authDuration > 0 {
		attrFields["planner.week.auth_ms"] = durationToMillis(m.authDuration)
	}
	if m.fetchDuration > 0 {
		attrFields["planner.week.fetch_ms"] = durationToMillis(m.fetchDuration)
	}
	if m.encodeDuration > 0 {
		attrFields["planner.week.encode_ms"] = durationToMillis(m.encodeDuration)
	}
	if m.errorStage != "" {
		attrFields["planner.week.error_stage"] = m.errorStage
	}

	severityText := "INFO"
	severityNumber := 9
	if err != nil || m.errorStage != "" {
		severityText = "ERROR"
		severityNumber = 17
	}

	fields := log.Fields{
		"event.name":      weekEventName,
		"event.domain":    weekEventDomain,
		"status":          status,
		"attributes":      attrFields,
		"severity_text":   severityText,
		"severity_number": severityNumber,
	}
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.HasTraceID() {
			fields["trace_id"] = sc.TraceID().String()
		}
	}
	if err != nil {
		fields["error"] = err.Error()
	}

	m.logger.WithFields(fields).Info("observability.event")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
