package main

import (
	"bytes"
	"context"

	"github.com/jackc/puddle/v2"
)

// BufferPool hands out reusable reply buffers. It repurposes a
// connection-pool library (jackc/puddle) for a different resource: scratch
// *bytes.Buffer values instead of network connections.
type BufferPool struct {
	pool *puddle.Pool[*bytes.Buffer]
}

// NewBufferPool creates a BufferPool that never holds more than maxSize
// buffers at once.
func NewBufferPool(maxSize int32) (*BufferPool, error) {
	pool, err := puddle.NewPool(&puddle.Config[*bytes.Buffer]{
		Constructor: func(ctx context.Context) (*bytes.Buffer, error) {
			return bytes.NewBuffer(make([]byte, 0, 256)), nil
		},
		Destructor: func(buf *bytes.Buffer) {},
		MaxSize:    maxSize,
	})
	if err != nil {
		return nil, err
	}
	return &BufferPool{pool: pool}, nil
}

// Acquire checks out a reset, empty buffer.
func (p *BufferPool) Acquire(ctx context.Context) (*puddle.Resource[*bytes.Buffer], error) {
	res, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	res.Value().Reset()
	return res, nil
}

// Close releases every resource held by the pool.
func (p *BufferPool) Close() {
	p.pool.Close()
}
