package duckdb

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"

	"github.com/irouter/qrouter/core"
)

// scanToRowSet drains rows into an Arrow record, inferring each column's
// LogicalType from DuckDB's reported database type name. Grounded on the
// reference FlightSQL server's convertResultsToArrow, adapted to build
// directly off sql.Rows/sql.ColumnType instead of []map[string]interface{}.
func scanToRowSet(rows *sql.Rows) (core.RowSet, error) {
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return core.RowSet{}, err
	}

	fields := make([]arrow.Field, len(colTypes))
	logical := make([]core.LogicalType, len(colTypes))
	for i, ct := range colTypes {
		lt := logicalTypeOf(ct.DatabaseTypeName())
		logical[i] = lt
		fields[i] = arrow.Field{Name: ct.Name(), Type: arrowTypeOf(lt), Nullable: true}
	}
	schema := arrow.NewSchema(fields, nil)

	mem := memory.DefaultAllocator
	builders := make([]array.Builder, len(fields))
	for i, f := range fields {
		builders[i] = array.NewBuilder(mem, f.Type)
	}
	defer func() {
		for _, b := range builders {
			b.Release()
		}
	}()

	scanArgs := make([]interface{}, len(colTypes))
	vals := make([]interface{}, len(colTypes))
	for i := range vals {
		scanArgs[i] = &vals[i]
	}

	var nrows int64
	for rows.Next() {
		if err := rows.Scan(scanArgs...); err != nil {
			return core.RowSet{}, fmt.Errorf("scan row: %w", err)
		}
		for i, v := range vals {
			appendValue(builders[i], logical[i], v)
		}
		nrows++
	}
	if err := rows.Err(); err != nil {
		return core.RowSet{}, err
	}

	arrays := make([]arrow.Array, len(builders))
	for i, b := range builders {
		arrays[i] = b.NewArray()
		defer arrays[i].Release()
	}

	record := array.NewRecord(schema, arrays, nrows)

	coreSchema := make(core.Schema, len(fields))
	for i, f := range fields {
		coreSchema[i] = core.Column{Name: f.Name, Type: logical[i]}
	}

	return core.RowSet{Schema: coreSchema, Record: record}, nil
}

func logicalTypeOf(dbType string) core.LogicalType {
	switch strings.ToUpper(dbType) {
	case "BIGINT", "INTEGER", "SMALLINT", "TINYINT", "HUGEINT", "UBIGINT", "UINTEGER":
		return core.TypeInt64
	case "DOUBLE", "FLOAT", "DECIMAL":
		return core.TypeFloat64
	case "BOOLEAN":
		return core.TypeBool
	case "DATE":
		return core.TypeDate
	case "TIMESTAMP", "TIMESTAMP_NS", "TIMESTAMP WITH TIME ZONE":
		return core.TypeTimestampNS
	default:
		return core.TypeString
	}
}

func arrowTypeOf(lt core.LogicalType) arrow.DataType {
	switch lt {
	case core.TypeInt64:
		return arrow.PrimitiveTypes.Int64
	case core.TypeFloat64:
		return arrow.PrimitiveTypes.Float64
	case core.TypeBool:
		return arrow.FixedWidthTypes.Boolean
	case core.TypeDate:
		return arrow.FixedWidthTypes.Date32
	case core.TypeTimestampNS:
		return &arrow.TimestampType{Unit: arrow.Nanosecond, TimeZone: "UTC"}
	default:
		return arrow.BinaryTypes.String
	}
}

func appendValue(b array.Builder, lt core.LogicalType, v interface{}) {
	if v == nil {
		b.AppendNull()
		return
	}
	switch lt {
	case core.TypeInt64:
		appendInt(b.(*array.Int64Builder), v)
	case core.TypeFloat64:
		appendFloat(b.(*array.Float64Builder), v)
	case core.TypeBool:
		appendBool(b.(*array.BooleanBuilder), v)
	case core.TypeDate:
		appendDate(b.(*array.Date32Builder), v)
	case core.TypeTimestampNS:
		appendTimestamp(b.(*array.TimestampBuilder), v)
	default:
		b.(*array.StringBuilder).Append(fmt.Sprintf("%v", v))
	}
}

func appendInt(b *array.Int64Builder, v interface{}) {
	switch n := v.(type) {
	case int64:
		b.Append(n)
	case int32:
		b.Append(int64(n))
	case int:
		b.Append(int64(n))
	case float64:
		b.Append(int64(n))
	default:
		if s, ok := v.(string); ok {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				b.Append(n)
				return
			}
		}
		b.AppendNull()
	}
}

func appendFloat(b *array.Float64Builder, v interface{}) {
	switch n := v.(type) {
	case float64:
		b.Append(n)
	case float32:
		b.Append(float64(n))
	case int64:
		b.Append(float64(n))
	default:
		b.AppendNull()
	}
}

func appendBool(b *array.BooleanBuilder, v interface{}) {
	if bv, ok := v.(bool); ok {
		b.Append(bv)
		return
	}
	b.AppendNull()
}

func appendDate(b *array.Date32Builder, v interface{}) {
	if t, ok := v.(time.Time); ok {
		b.Append(arrow.Date32FromTime(t))
		return
	}
	b.AppendNull()
}

func appendTimestamp(b *array.TimestampBuilder, v interface{}) {
	if t, ok := v.(time.Time); ok {
		b.Append(arrow.Timestamp(t.UnixNano()))
		return
	}
	b.AppendNull()
}
