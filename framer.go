package main

import "bytes"

var (
	crlf = []byte("\r\n")

	singleLinePrefixes = [][]byte{[]byte("get"), []byte("delete")}
	twoLinePrefixes    = [][]byte{[]byte("set"), []byte("add"), []byte("replace")}
)

// CommandRecord is one whole command pulled off the wire by the Framer:
// a header line, and for two-line commands a second, value, line.
type CommandRecord struct {
	Header   []byte
	Value    []byte
	HasValue bool
}

// Framer turns a byte stream into discrete CommandRecords using \r\n as the
// line delimiter. It never returns a partial record: if the buffer doesn't
// yet hold as many \r\n as the leading token requires, Next reports ok=false
// and leaves the buffer untouched.
type Framer struct {
	buf []byte
}

// Feed appends newly-read bytes to the Framer's internal buffer.
func (f *Framer) Feed(b []byte) {
	f.buf = append(f.buf, b...)
}

// Next attempts to pull one complete CommandRecord off the front of the
// buffer. Callers should keep calling Next (after each Feed) until it
// reports ok=false, to flush any pipelined commands.
func (f *Framer) Next() (rec CommandRecord, ok bool) {
	idx1 := bytes.Index(f.buf, crlf)
	if idx1 < 0 {
		return CommandRecord{}, false
	}

	if hasAnyPrefix(f.buf, twoLinePrefixes) {
		idx2 := bytes.Index(f.buf[idx1+2:], crlf)
		if idx2 < 0 {
			return CommandRecord{}, false
		}
		header := f.buf[:idx1]
		value := f.buf[idx1+2 : idx1+2+idx2]
		consumed := idx1 + 2 + idx2 + 2
		rec = CommandRecord{Header: clone(header), Value: clone(value), HasValue: true}
		f.buf = f.buf[consumed:]
		return rec, true
	}

	// Single-line: recognized get/delete, or an unrecognized leading token
	// that the Parser will reject as unsupported.
	header := f.buf[:idx1]
	consumed := idx1 + 2
	rec = CommandRecord{Header: clone(header)}
	f.buf = f.buf[consumed:]
	return rec, true
}

func hasAnyPrefix(buf []byte, prefixes [][]byte) bool {
	for _, p := range prefixes {
		if bytes.HasPrefix(buf, p) {
			return true
		}
	}
	return false
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
