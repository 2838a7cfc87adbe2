// Package pool provides sync.Pool wrappers for reducing GC pressure on
// the hot paths of validation, chiefly instance path construction.
package pool

import (
	"strconv"
	"sync"
)

// PathBuilder builds dotted, bracket-indexed instance paths on a
// reusable byte buffer.
type PathBuilder struct {
	buf []byte
}

var pathBuilderPool = sync.Pool{
	New: func() any {
		return &PathBuilder{buf: make([]byte, 0, 256)}
	},
}

// AcquirePathBuilder gets a PathBuilder from the pool. Call Release
// when done.
func AcquirePathBuilder() *PathBuilder {
	pb := pathBuilderPool.Get().(*PathBuilder)
	pb.Reset()
	return pb
}

// Release returns the builder to the pool. Oversized buffers are
// dropped instead of pooled.
func (b *PathBuilder) Release() {
	if b == nil {
		return
	}
	if cap(b.buf) <= 4096 {
		pathBuilderPool.Put(b)
	}
}

// Reset clears the buffer without deallocating.
func (b *PathBuilder) Reset() {
	b.buf = b.buf[:0]
}

// Len returns the current length of the path.
func (b *PathBuilder) Len() int {
	return len(b.buf)
}

// WriteString appends a string verbatim.
func (b *PathBuilder) WriteString(s string) {
	b.buf = append(b.buf, s...)
}

// Append appends a segment with a joining dot when the buffer is not
// empty.
func (b *PathBuilder) Append(segment string) {
	if len(b.buf) > 0 {
		b.buf = append(b.buf, '.')
	}
	b.buf = append(b.buf, segment...)
}

// AppendIndex appends an array index in brackets.
func (b *PathBuilder) AppendIndex(index int) {
	b.buf = append(b.buf, '[')
	b.buf = strconv.AppendInt(b.buf, int64(index), 10)
	b.buf = append(b.buf, ']')
}

// String returns the built path. This is the single allocation.
func (b *PathBuilder) String() string {
	return string(b.buf)
}

// JoinPath joins path segments with dots.
func JoinPath(segments ...string) string {
	if len(segments) == 0 {
		return ""
	}
	if len(segments) == 1 {
		return segments[0]
	}
	pb := AcquirePathBuilder()
	defer pb.Release()
	for _, seg := range segments {
		pb.Append(seg)
	}
	return pb.String()
}

// ChildPath joins a parent path and a child key.
func ChildPath(parent, key string) string {
	pb := AcquirePathBuilder()
	defer pb.Release()
	pb.WriteString(parent)
	pb.Append(key)
	return pb.String()
}

// IndexedChildPath joins a parent path, a child key, and an array index.
func IndexedChildPath(parent, key string, index int) string {
	pb := AcquirePathBuilder()
	defer pb.Release()
	pb.WriteString(parent)
	pb.Append(key)
	pb.AppendIndex(index)
	return pb.String()
}
