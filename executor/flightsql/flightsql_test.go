package flightsql

import (
	"context"
	"errors"
	"testing"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/irouter/qrouter/core"
)

func TestLogicalTypeOfMapsArrowTypes(t *testing.T) {
	cases := []struct {
		dt   arrow.DataType
		want core.LogicalType
	}{
		{arrow.PrimitiveTypes.Int64, core.TypeInt64},
		{arrow.PrimitiveTypes.Float64, core.TypeFloat64},
		{arrow.FixedWidthTypes.Boolean, core.TypeBool},
		{arrow.FixedWidthTypes.Date32, core.TypeDate},
		{arrow.FixedWidthTypes.Timestamp_ns, core.TypeTimestampNS},
		{arrow.BinaryTypes.String, core.TypeString},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, logicalTypeOf(tc.dt))
	}
}

func TestClassifyGRPCErrorIsTransient(t *testing.T) {
	err := classifyGRPCError(errors.New("rpc error: code = Unavailable"))
	rerr, ok := err.(*core.Error)
	require.True(t, ok)
	assert.Equal(t, core.ErrExecutor, rerr.Kind)
	assert.Equal(t, core.ExecTransientResource, rerr.ExecKind)
}

func TestClassifyGRPCErrorCancellationIsNotRetryable(t *testing.T) {
	assert.True(t, core.IsKind(classifyGRPCError(context.Canceled), core.ErrCancelled))
	assert.True(t, core.IsKind(classifyGRPCError(context.DeadlineExceeded), core.ErrCancelled))
	assert.True(t, core.IsKind(classifyGRPCError(status.New(codes.Canceled, "client cancelled").Err()), core.ErrCancelled))
	assert.True(t, core.IsKind(classifyGRPCError(status.New(codes.DeadlineExceeded, "deadline exceeded").Err()), core.ErrCancelled))
}

func TestClassifyGRPCErrorDistinguishesPermanentFromTransient(t *testing.T) {
	permanent := classifyGRPCError(status.New(codes.InvalidArgument, "bad sql").Err())
	rerr, ok := permanent.(*core.Error)
	require.True(t, ok)
	assert.Equal(t, core.ExecPermanent, rerr.ExecKind)

	oom := classifyGRPCError(status.New(codes.ResourceExhausted, "no memory").Err())
	rerr, ok = oom.(*core.Error)
	require.True(t, ok)
	assert.Equal(t, core.ExecOutOfMemory, rerr.ExecKind)

	transient := classifyGRPCError(status.New(codes.Unavailable, "node down").Err())
	rerr, ok = transient.(*core.Error)
	require.True(t, ok)
	assert.Equal(t, core.ExecTransientResource, rerr.ExecKind)
}

type fakeReader struct {
	schema  *arrow.Schema
	records []arrow.Record
	pos     int
}

func (f *fakeReader) Schema() *arrow.Schema { return f.schema }
func (f *fakeReader) Next() bool {
	if f.pos >= len(f.records) {
		return false
	}
	f.pos++
	return true
}
func (f *fakeReader) Record() arrow.Record { return f.records[f.pos-1] }
func (f *fakeReader) Err() error           { return nil }

func TestDrainReaderCollectsAllBatches(t *testing.T) {
	mem := memory.DefaultAllocator
	schema := arrow.NewSchema([]arrow.Field{{Name: "n", Type: arrow.PrimitiveTypes.Int64}}, nil)

	b := array.NewInt64Builder(mem)
	b.Append(1)
	rec1 := array.NewRecord(schema, []arrow.Array{b.NewArray()}, 1)
	b.Append(2)
	rec2 := array.NewRecord(schema, []arrow.Array{b.NewArray()}, 1)

	r := &fakeReader{schema: schema, records: []arrow.Record{rec1, rec2}}

	var gotSchema *arrow.Schema
	var batches []arrow.Record
	err := drainReader(r, &gotSchema, &batches)
	require.NoError(t, err)
	assert.Same(t, schema, gotSchema)
	assert.Len(t, batches, 2)
}

func TestConcatenateSingleBatchReturnsItUnchanged(t *testing.T) {
	mem := memory.DefaultAllocator
	schema := arrow.NewSchema([]arrow.Field{{Name: "n", Type: arrow.PrimitiveTypes.Int64}}, nil)
	b := array.NewInt64Builder(mem)
	b.Append(7)
	rec := array.NewRecord(schema, []arrow.Array{b.NewArray()}, 1)

	got, err := concatenate(schema, []arrow.Record{rec})
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestConcatenateEmptyBatchesReturnsZeroRowRecord(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{{Name: "n", Type: arrow.PrimitiveTypes.Int64}}, nil)
	got, err := concatenate(schema, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 0, got.NumRows())
}

func TestConcatenateMergesMultipleBatches(t *testing.T) {
	mem := memory.DefaultAllocator
	schema := arrow.NewSchema([]arrow.Field{{Name: "n", Type: arrow.PrimitiveTypes.Int64}}, nil)

	b1 := array.NewInt64Builder(mem)
	b1.Append(1)
	rec1 := array.NewRecord(schema, []arrow.Array{b1.NewArray()}, 1)

	b2 := array.NewInt64Builder(mem)
	b2.Append(2)
	rec2 := array.NewRecord(schema, []arrow.Array{b2.NewArray()}, 1)

	got, err := concatenate(schema, []arrow.Record{rec1, rec2})
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.NumRows())
}
