// Package flightsql implements the Distributed backend as an Arrow Flight
// SQL client, grounded on the reference project's FlightSQL server
// (querier/flightsql.go, now a peer service this client talks to) using the
// same apache/arrow/go/v14/arrow/flight/flightsql and google.golang.org/grpc
// stack.
package flightsql

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/flight/flightsql"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/irouter/qrouter/core"
)

// Executor dispatches queries to a remote Arrow Flight SQL endpoint,
// implementing the Distributed core.BackendKind. The router does not send
// its pruned file list to this backend: the statement is re-rendered from
// the AST against table names, and the remote side is responsible for its
// own scan planning across the cluster.
type Executor struct {
	client *flightsql.Client
	conn   *grpc.ClientConn
	mem    memory.Allocator
}

// Dial connects to a Flight SQL endpoint at addr (host:port). insecureConn
// selects a plaintext transport, appropriate for a trusted cluster network.
// Dial has no TLS option: with insecureConn false the connection carries no
// transport credentials and the dial fails, and the Flight SQL client itself
// is always built with plaintext credentials.
func Dial(ctx context.Context, addr string, insecureConn bool) (*Executor, error) {
	opts := []grpc.DialOption{grpc.WithBlock()}
	if insecureConn {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	conn, err := grpc.DialContext(ctx, addr, opts...)
	if err != nil {
		return nil, core.NewExecutorError(core.ExecTransientResource, "failed to dial flightsql endpoint", err)
	}
	client, err := flightsql.NewClient(addr, nil, nil, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		conn.Close()
		return nil, core.NewExecutorError(core.ExecPermanent, "failed to construct flightsql client", err)
	}
	return &Executor{client: client, conn: conn, mem: memory.DefaultAllocator}, nil
}

func (e *Executor) Kind() core.BackendKind { return core.Distributed }

// Execute submits stmt as a SQL statement over Flight SQL and streams the
// single resulting record back, concatenating record batches from every
// endpoint's DoGet stream into one core.RowSet.
func (e *Executor) Execute(ctx context.Context, stmt *core.Stmt, plan *core.ScanPlan) (core.RowSet, error) {
	query := render(stmt)

	info, err := e.client.Execute(ctx, query)
	if err != nil {
		return core.RowSet{}, classifyGRPCError(err)
	}

	var batches []arrow.Record
	var schema *arrow.Schema
	for _, endpoint := range info.Endpoint {
		reader, err := e.client.DoGet(ctx, endpoint.Ticket)
		if err != nil {
			return core.RowSet{}, classifyGRPCError(err)
		}
		if err := drainReader(reader, &schema, &batches); err != nil {
			return core.RowSet{}, classifyGRPCError(err)
		}
	}

	if schema == nil {
		return core.RowSet{}, core.NewExecutorError(core.ExecPermanent, "flightsql endpoint returned no schema", nil)
	}

	merged, err := concatenate(schema, batches)
	if err != nil {
		return core.RowSet{}, core.NewExecutorError(core.ExecPermanent, "failed to concatenate flightsql batches", err)
	}

	coreSchema := make(core.Schema, len(schema.Fields()))
	for i, f := range schema.Fields() {
		coreSchema[i] = core.Column{Name: f.Name, Type: logicalTypeOf(f.Type)}
	}

	return core.RowSet{Schema: coreSchema, Record: merged}, nil
}

// flightDataReader is the minimal interface drainReader needs from the
// Flight SQL client's DoGet stream, factored out for testability.
type flightDataReader interface {
	Schema() *arrow.Schema
	Next() bool
	Record() arrow.Record
	Err() error
}

func drainReader(r flightDataReader, schema **arrow.Schema, batches *[]arrow.Record) error {
	if *schema == nil {
		*schema = r.Schema()
	}
	for r.Next() {
		rec := r.Record()
		rec.Retain()
		*batches = append(*batches, rec)
	}
	if err := r.Err(); err != nil && err != io.EOF {
		return err
	}
	return nil
}

// concatenate stitches multiple same-schema record batches into a single
// record, since core.RowSet models one Arrow record per query result.
func concatenate(schema *arrow.Schema, batches []arrow.Record) (arrow.Record, error) {
	if len(batches) == 0 {
		return array.NewRecord(schema, nil, 0), nil
	}
	if len(batches) == 1 {
		return batches[0], nil
	}

	mem := memory.DefaultAllocator
	builders := make([]array.Builder, len(schema.Fields()))
	for i, f := range schema.Fields() {
		builders[i] = array.NewBuilder(mem, f.Type)
	}
	defer func() {
		for _, b := range builders {
			b.Release()
		}
	}()

	for _, rec := range batches {
		for i := 0; i < int(rec.NumCols()); i++ {
			if err := appendArray(builders[i], rec.Column(i)); err != nil {
				return nil, err
			}
		}
		rec.Release()
	}

	arrays := make([]arrow.Array, len(builders))
	var nrows int64
	for i, b := range builders {
		arrays[i] = b.NewArray()
		nrows = int64(arrays[i].Len())
	}
	return array.NewRecord(schema, arrays, nrows), nil
}

func appendArray(b array.Builder, col arrow.Array) error {
	// AppendValueFromString is available on every scalar builder in v14 and
	// keeps this generic over column type without a large type switch.
	for i := 0; i < col.Len(); i++ {
		if col.IsNull(i) {
			b.AppendNull()
			continue
		}
		if err := b.AppendValueFromString(fmt.Sprint(col.GetOneForMarshal(i))); err != nil {
			return err
		}
	}
	return nil
}

func logicalTypeOf(t arrow.DataType) core.LogicalType {
	switch t.ID() {
	case arrow.INT64, arrow.INT32:
		return core.TypeInt64
	case arrow.FLOAT64, arrow.FLOAT32:
		return core.TypeFloat64
	case arrow.BOOL:
		return core.TypeBool
	case arrow.DATE32, arrow.DATE64:
		return core.TypeDate
	case arrow.TIMESTAMP:
		return core.TypeTimestampNS
	default:
		return core.TypeString
	}
}

// classifyGRPCError inspects the gRPC status code so a cancelled or
// deadline-exceeded call, a permanently rejected request, and an actual
// transient network failure are distinguished rather than all collapsing to
// TransientResource. A cancellation must surface as core.ErrCancelled: it is
// not retryable against another backend and must never populate the cache.
func classifyGRPCError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return core.NewCancelled()
	}

	st, ok := status.FromError(err)
	if !ok {
		return core.NewExecutorError(core.ExecTransientResource, "flightsql rpc failed", err)
	}

	switch st.Code() {
	case codes.Canceled, codes.DeadlineExceeded:
		return core.NewCancelled()
	case codes.ResourceExhausted:
		return core.NewExecutorError(core.ExecOutOfMemory, "flightsql resource exhausted", err)
	case codes.Unavailable, codes.Aborted:
		return core.NewExecutorError(core.ExecTransientResource, "flightsql transient rpc failure", err)
	case codes.InvalidArgument, codes.NotFound, codes.FailedPrecondition, codes.Unimplemented, codes.PermissionDenied, codes.Unauthenticated:
		return core.NewExecutorError(core.ExecPermanent, "flightsql request rejected", err)
	default:
		return core.NewExecutorError(core.ExecTransientResource, "flightsql rpc failed", err)
	}
}

// Close releases the underlying gRPC connection.
func (e *Executor) Close() error {
	return e.conn.Close()
}
