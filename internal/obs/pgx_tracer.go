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

type ctxSpanKey struct{}

// PGXTracer implements pgx.QueryTracer to create spans for store queries.
type PGXTracer struct{}

// paymentTables are the tables a span can be attributed to.
var paymentTables = []string{
	"sale_order_transaction_rel",
	"payment_transactions",
	"domain_events",
	"sale_orders",
}

func tableOf(sql string) string {
	lower := strings.ToLower(sql)
	for _, table := range paymentTables {
		if strings.Contains(lower, table) {
			return table
		}
	}
	return ""
}

// TraceQueryStart starts a span for the SQL statement. Arguments are counted,
// never recorded, since they carry references and customer data.
func (PGXTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	operation := ""
	if fields := strings.Fields(data.SQL); len(fields) > 0 {
		operation = strings.ToUpper(fields[0])
	}
	table := tableOf(data.SQL)
	name := "pgx.query"
	if operation != "" && table != "" {
		name = "pgx " + operation + " " + table
	}
	ctx, span := otel.Tracer("store.pgx").Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.statement", truncateSQL(data.SQL)),
		attribute.Int("db.args", len(data.Args)),
		attribute.String("db.operation", operation),
		attribute.String("db.sql.table", table),
		// Row locks taken while a checkout or callback holds its boundary.
		attribute.Bool("payment.row_lock", strings.Contains(strings.ToUpper(data.SQL), "FOR UPDATE")),
	)
	return context.WithValue(ctx, ctxSpanKey{}, span)
}

// TraceQueryEnd ends the span and records any error.
func (PGXTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	span, ok := ctx.Value(ctxSpanKey{}).(trace.Span)
	if !ok {
		return
	}
	if data.Err != nil && data.Err != pgx.ErrNoRows {
		span.RecordError(data.Err)
		span.SetStatus(codes.Error, data.Err.Error())
	}
	span.SetAttributes(attribute.Int64("db.rows_affected", data.CommandTag.RowsAffected()))
	span.End()
}

func truncateSQL(sql string) string {
	trimmed := strings.Join(strings.Fields(sql), " ")
	if len(trimmed) > 300 {
		return trimmed[:300] + "..."
	}
	return trimmed
}
