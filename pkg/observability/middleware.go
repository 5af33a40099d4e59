package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// routeUnmatched labels requests that hit no route.
const routeUnmatched = "unmatched"

// paramRank is the route parameter naming the sending worker.
const paramRank = "rank"

func routeOf(ctx *gin.Context) string {
	if route := ctx.FullPath(); route != "" {
		return route
	}

	return routeUnmatched
}

// GinTracing opens a server span per coordinator request, continuing any W3C
// trace context the worker sent. Spans are named "METHOD route" with the route
// template, so reductions from every worker share a name and carry the
// worker's rank as an attribute.
func GinTracing(tracer trace.Tracer) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		req := ctx.Request
		route := routeOf(ctx)

		parent := otel.GetTextMapPropagator().Extract(req.Context(), propagation.HeaderCarrier(req.Header))

		attrs := []attribute.KeyValue{
			semconv.HTTPRequestMethodKey.String(req.Method),
			semconv.HTTPRoute(route),
		}

		if rank, err := strconv.Atoi(ctx.Param(paramRank)); err == nil {
			attrs = append(attrs, attribute.Int("collective.rank", rank))
		}

		spanCtx, span := tracer.Start(parent, req.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attrs...),
		)
		defer span.End()

		ctx.Request = req.WithContext(spanCtx)
		ctx.Next()

		status := ctx.Writer.Status()
		span.SetAttributes(semconv.HTTPResponseStatusCode(status))

		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}

// GinRED records rate, errors and duration for every request, keyed by route
// template. Any 4xx or 5xx response counts as an error.
func GinRED(metrics *REDMetrics) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		op := routeOf(ctx)
		done := metrics.TrackInflight(ctx.Request.Context(), op)
		start := time.Now()

		ctx.Next()
		done()

		status := StatusOK
		if ctx.Writer.Status() >= http.StatusBadRequest {
			status = StatusError
		}

		metrics.RecordRequest(ctx.Request.Context(), op, status, time.Since(start))
	}
}
