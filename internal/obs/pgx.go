package obs

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const maxStatementLen = 512

type queryKey struct{}

type queryState struct {
	span      trace.Span
	operation string
	start     time.Time
}

// QueryTracer is the pgx tracer installed on every pool. It opens a client
// span per statement and feeds DBQueryDuration.
type QueryTracer struct{}

// TraceQueryStart implements pgx.QueryTracer.
func (QueryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	op := StatementOperation(data.SQL)
	ctx, span := otel.Tracer("agency/pgx").Start(ctx, "db."+op, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", op),
		attribute.String("db.query.text", clipStatement(data.SQL)),
	)
	return context.WithValue(ctx, queryKey{}, &queryState{span: span, operation: op, start: time.Now()})
}

// TraceQueryEnd implements pgx.QueryTracer. pgx.ErrNoRows is a lookup miss,
// not a database failure.
func (QueryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	st, ok := ctx.Value(queryKey{}).(*queryState)
	if !ok {
		return
	}
	result := "ok"
	if data.Err != nil && !errors.Is(data.Err, pgx.ErrNoRows) {
		result = "error"
		st.span.RecordError(data.Err)
		st.span.SetStatus(codes.Error, data.Err.Error())
	} else {
		st.span.SetAttributes(attribute.Int64("db.response.rows_affected", data.CommandTag.RowsAffected()))
	}
	st.span.End()
	if DBQueryDuration != nil {
		DBQueryDuration.WithLabelValues(st.operation, result).Observe(DurationMillis(time.Since(st.start)))
	}
}

// StatementOperation returns the lowercased leading SQL verb, looking past a
// leading CTE so "WITH ... UPDATE" reports as update.
func StatementOperation(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "query"
	}
	op := strings.ToLower(fields[0])
	if op != "with" {
		return op
	}
	for _, f := range fields[1:] {
		switch v := strings.ToLower(strings.TrimLeft(f, "(")); v {
		case "select", "insert", "update", "delete":
			op = v
		}
	}
	return op
}

func clipStatement(sql string) string {
	s := strings.Join(strings.Fields(sql), " ")
	if len(s) > maxStatementLen {
		return s[:maxStatementLen] + "..."
	}
	return s
}
