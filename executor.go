package main

import (
	"bytes"
	"context"
	"fmt"

	"github.com/jackc/puddle/v2"
)

// Executor turns a typed Request into reply bytes, mutating the shared
// Store. Every Store call below is itself atomic, so the Executor needs
// no lock of its own: the Store's mutex acquisition for a given operation
// happens-before that operation's reply is ever written.
type Executor struct {
	store   *Store
	metrics *Metrics
	buffers *BufferPool
}

func NewExecutor(store *Store, metrics *Metrics, buffers *BufferPool) *Executor {
	return &Executor{store: store, metrics: metrics, buffers: buffers}
}

// Execute runs req against the Store and renders the reply line (without a
// trailing delimiter) into a pooled buffer. The caller must Release the
// returned resource once it has copied or written the bytes out. noReply
// reports whether the caller should skip transmitting the reply at all.
func (e *Executor) Execute(ctx context.Context, req Request) (res *puddle.Resource[*bytes.Buffer], noReply bool, err error) {
	res, err = e.buffers.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquiring reply buffer: %w", err)
	}
	buf := res.Value()

	switch req.Kind {
	case RequestGet:
		e.metrics.recordOp("get")
		value, flags, byteCount, ok := e.store.Get(req.Key)
		if !ok {
			buf.WriteString("END")
			return res, false, nil
		}
		fmt.Fprintf(buf, "VALUE %s %d %d", value, flags, byteCount)
		return res, false, nil

	case RequestDelete:
		e.metrics.recordOp("delete")
		switch e.store.Delete(req.Key) {
		case ResultDeleted:
			buf.WriteString("DELETED")
		default:
			buf.WriteString("END")
		}
		return res, false, nil

	case RequestStore:
		e.metrics.recordOp(storeOpName(req.Mode))
		result := e.store.Insert(req.Key, req.Value, req.Flags, req.ByteCount, req.ExpTime, req.Mode)
		switch result {
		case ResultStored:
			buf.WriteString("STORED")
		default:
			buf.WriteString("NOT STORED")
		}
		return res, req.NoReply, nil

	default:
		res.Release()
		return nil, false, fmt.Errorf("executor: unknown request kind %v", req.Kind)
	}
}

func storeOpName(mode StoreMode) string {
	switch mode {
	case ModeAdd:
		return "add"
	case ModeReplace:
		return "replace"
	default:
		return "set"
	}
}
