package duckdb

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/irouter/qrouter/core"
)

func TestClassifyErrorMapsKnownMessages(t *testing.T) {
	cases := []struct {
		msg  string
		kind core.ExecutorErrorKind
	}{
		{"Out of Memory Error: failed to allocate", core.ExecOutOfMemory},
		{"exceeded memory limit for this system", core.ExecOutOfMemory},
		{"IO Error: could not open file", core.ExecTransientResource},
		{"connection reset by peer", core.ExecTransientResource},
		{"Binder Error: column not found", core.ExecPermanent},
	}
	for _, tc := range cases {
		err := classifyError(errors.New(tc.msg))
		rerr, ok := err.(*core.Error)
		assert.True(t, ok, tc.msg)
		assert.Equal(t, core.ErrExecutor, rerr.Kind, tc.msg)
		assert.Equal(t, tc.kind, rerr.ExecKind, tc.msg)
	}
}

func TestClassifyErrorMapsCancellationToCancelledNotExecutor(t *testing.T) {
	for _, msg := range []string{"context canceled", "context deadline exceeded"} {
		err := classifyError(errors.New(msg))
		assert.True(t, core.IsKind(err, core.ErrCancelled), msg)
	}

	err := classifyError(context.Canceled)
	assert.True(t, core.IsKind(err, core.ErrCancelled))
	err = classifyError(context.DeadlineExceeded)
	assert.True(t, core.IsKind(err, core.ErrCancelled))
}

func TestKindReportsConfiguredBackend(t *testing.T) {
	e := &Executor{kind: core.Parallel}
	assert.Equal(t, core.Parallel, e.Kind())
}
