package telemetry

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zfogg/daybook/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const (
	dbSystemKey    = "db.system"
	dbTableKey     = "db.table"
	dbOperationKey = "db.operation"
	dbStatementKey = "db.statement"

	maxStatementLength = 500

	spanKey      = "otel:span"
	startTimeKey = "otel:startTime"
	operationKey = "otel:operation"
)

// GORMTracingPlugin returns a GORM plugin that opens a span per statement
// under the span carried by the statement's context and records query metrics
func GORMTracingPlugin() gorm.Plugin {
	return &tracingPlugin{}
}

type tracingPlugin struct {
	system string
}

func (p *tracingPlugin) Name() string {
	return "telemetry:tracing"
}

func (p *tracingPlugin) Initialize(db *gorm.DB) error {
	p.system = "unknown"
	if db.Dialector != nil {
		p.system = db.Dialector.Name()
	}

	cb := db.Callback()
	if err := cb.Query().Before("gorm:query").Register("telemetry:before_query", p.before("SELECT")); err != nil {
		return fmt.Errorf("failed to register before_query callback: %w", err)
	}
	if err := cb.Create().Before("gorm:create").Register("telemetry:before_create", p.before("INSERT")); err != nil {
		return fmt.Errorf("failed to register before_create callback: %w", err)
	}
	if err := cb.Update().Before("gorm:update").Register("telemetry:before_update", p.before("UPDATE")); err != nil {
		return fmt.Errorf("failed to register before_update callback: %w", err)
	}
	if err := cb.Delete().Before("gorm:delete").Register("telemetry:before_delete", p.before("DELETE")); err != nil {
		return fmt.Errorf("failed to register before_delete callback: %w", err)
	}
	if err := cb.Row().Before("gorm:row").Register("telemetry:before_row", p.before("SELECT")); err != nil {
		return fmt.Errorf("failed to register before_row callback: %w", err)
	}
	if err := cb.Raw().Before("gorm:raw").Register("telemetry:before_raw", p.before("RAW")); err != nil {
		return fmt.Errorf("failed to register before_raw callback: %w", err)
	}

	if err := cb.Query().After("gorm:query").Register("telemetry:after_query", p.after); err != nil {
		return fmt.Errorf("failed to register after_query callback: %w", err)
	}
	if err := cb.Create().After("gorm:create").Register("telemetry:after_create", p.after); err != nil {
		return fmt.Errorf("failed to register after_create callback: %w", err)
	}
	if err := cb.Update().After("gorm:update").Register("telemetry:after_update", p.after); err != nil {
		return fmt.Errorf("failed to register after_update callback: %w", err)
	}
	if err := cb.Delete().After("gorm:delete").Register("telemetry:after_delete", p.after); err != nil {
		return fmt.Errorf("failed to register after_delete callback: %w", err)
	}
	if err := cb.Row().After("gorm:row").Register("telemetry:after_row", p.after); err != nil {
		return fmt.Errorf("failed to register after_row callback: %w", err)
	}
	if err := cb.Raw().After("gorm:raw").Register("telemetry:after_raw", p.after); err != nil {
		return fmt.Errorf("failed to register after_raw callback: %w", err)
	}
	return nil
}

func (p *tracingPlugin) before(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		db.InstanceSet(operationKey, operation)
		db.InstanceSet(startTimeKey, time.Now())

		ctx := db.Statement.Context
		if ctx == nil {
			return
		}
		_, span := otel.Tracer("gorm").Start(ctx, "db."+strings.ToLower(operation),
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String(dbSystemKey, p.system),
				attribute.String(dbTableKey, tableName(db)),
				attribute.String(dbOperationKey, operation),
			),
		)
		db.InstanceSet(spanKey, span)
	}
}

func tableName(db *gorm.DB) string {
	if db.Statement.Table != "" {
		return db.Statement.Table
	}
	return "unknown"
}

// failed reports real statement errors; a lookup miss is not one
func failed(db *gorm.DB) error {
	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		return db.Error
	}
	return nil
}

func (p *tracingPlugin) after(db *gorm.DB) {
	var elapsed time.Duration
	if startRaw, ok := db.InstanceGet(startTimeKey); ok {
		if start, ok := startRaw.(time.Time); ok {
			elapsed = time.Since(start)
		}
	}
	if opRaw, ok := db.InstanceGet(operationKey); ok {
		if op, ok := opRaw.(string); ok {
			metrics.RecordDatabaseQuery(op, tableName(db), elapsed, failed(db))
		}
	}

	spanRaw, ok := db.InstanceGet(spanKey)
	if !ok {
		return
	}
	span, ok := spanRaw.(trace.Span)
	if !ok {
		return
	}
	defer span.End()

	span.SetAttributes(attribute.Int64("db.duration_ms", elapsed.Milliseconds()))
	if sql := db.Statement.SQL.String(); sql != "" {
		if len(sql) > maxStatementLength {
			sql = sql[:maxStatementLength] + "... (truncated)"
		}
		span.SetAttributes(attribute.String(dbStatementKey, sql))
	}
	if db.RowsAffected > 0 {
		span.SetAttributes(attribute.Int64("db.rows_affected", db.RowsAffected))
	}
	if err := failed(db); err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	}
}
