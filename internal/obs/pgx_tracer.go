package obs

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// statementLimit caps the SQL text copied onto spans.
const statementLimit = 300

type pgxSpanKey struct{}

var pgxTracer = otel.Tracer("scholaro/pgx")

// PGXTracer emits a client span per query and per new connection. It
// implements pgx.QueryTracer and pgx.ConnectTracer.
type PGXTracer struct{}

var (
	_ pgx.QueryTracer   = PGXTracer{}
	_ pgx.ConnectTracer = PGXTracer{}
)

// TraceQueryStart opens a span named after the statement's leading keyword.
func (PGXTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	verb := leadingKeyword(data.SQL)
	ctx, span := pgxTracer.Start(ctx, "pg "+verb, trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation.name", verb),
			attribute.String("db.query.text", clip(data.SQL)),
		))
	return context.WithValue(ctx, pgxSpanKey{}, span)
}

// TraceQueryEnd closes the query span.
func (PGXTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	finish(ctx, data.Err, func(span trace.Span) {
		span.SetAttributes(attribute.Int64("db.rows_affected", data.CommandTag.RowsAffected()))
	})
}

// TraceConnectStart opens a span covering connection establishment.
func (PGXTracer) TraceConnectStart(ctx context.Context, data pgx.TraceConnectStartData) context.Context {
	attrs := []attribute.KeyValue{attribute.String("db.system", "postgresql")}
	if data.ConnConfig != nil {
		attrs = append(attrs,
			attribute.String("server.address", data.ConnConfig.Host),
			attribute.String("db.namespace", data.ConnConfig.Database))
	}
	ctx, span := pgxTracer.Start(ctx, "pg connect", trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
	return context.WithValue(ctx, pgxSpanKey{}, span)
}

// TraceConnectEnd closes the connect span.
func (PGXTracer) TraceConnectEnd(ctx context.Context, data pgx.TraceConnectEndData) {
	finish(ctx, data.Err, nil)
}

func finish(ctx context.Context, err error, onSuccess func(trace.Span)) {
	span, ok := ctx.Value(pgxSpanKey{}).(trace.Span)
	if !ok {
		return
	}
	defer span.End()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	if onSuccess != nil {
		onSuccess(span)
	}
}

func leadingKeyword(sql string) string {
	sql = strings.TrimSpace(sql)
	if i := strings.IndexAny(sql, " \t\n("); i > 0 {
		sql = sql[:i]
	}
	if sql == "" {
		return "QUERY"
	}
	return strings.ToUpper(sql)
}

func clip(sql string) string {
	sql = strings.Join(strings.Fields(sql), " ")
	if len(sql) > statementLimit {
		return sql[:statementLimit] + "..."
	}
	return sql
}
