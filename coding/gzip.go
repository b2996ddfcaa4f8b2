package coding

import (
	"encoding/binary"
	"hash"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/flate"
)

// gzipHeader is the fixed member header: magic, CM=deflate, no flags, no
// mtime, no extra flags, OS unknown.
var gzipHeader = [10]byte{0x1f, 0x8b, 0x08, 0, 0, 0, 0, 0, 0, 0xff}

// gzipEncoder frames a raw deflate stream as a single gzip member.
type gzipEncoder struct {
	c       *compressor
	err     error
	crc     hash.Hash32
	size    uint32 // input size mod 2^32
	started bool
}

func newGzipEncoder() *gzipEncoder {
	c, err := newCompressor(func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.DefaultCompression)
	})
	return &gzipEncoder{c: c, err: err, crc: crc32.NewIEEE()}
}

func (e *gzipEncoder) Name() string { return Gzip }

func (e *gzipEncoder) Headers() []Header {
	return []Header{{Name: "Content-Encoding", Value: Gzip}}
}

func (e *gzipEncoder) Start() ([]byte, error) {
	if e.err != nil {
		return nil, e.err
	}
	if e.started {
		return nil, nil
	}
	e.started = true
	header := gzipHeader
	return header[:], nil
}

func (e *gzipEncoder) Encode(p []byte) ([]byte, error) {
	if e.err != nil {
		return nil, e.err
	}
	var out []byte
	if !e.started {
		out, _ = e.Start()
	}
	e.crc.Write(p)
	e.size += uint32(len(p))
	b, err := e.c.write(p)
	if err != nil {
		return nil, err
	}
	return append(out, b...), nil
}

func (e *gzipEncoder) Finish() ([]byte, error) {
	if e.err != nil {
		return nil, e.err
	}
	var out []byte
	if !e.started {
		out, _ = e.Start()
	}
	b, err := e.c.finish()
	if err != nil {
		return nil, err
	}
	out = append(out, b...)
	var trailer [8]byte
	binary.LittleEndian.PutUint32(trailer[0:4], e.crc.Sum32())
	binary.LittleEndian.PutUint32(trailer[4:8], e.size)
	return append(out, trailer[:]...), nil
}
