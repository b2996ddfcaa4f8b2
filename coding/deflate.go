package coding

import (
	"io"

	"github.com/klauspost/compress/zlib"
)

// deflateEncoder produces the "deflate" coding, which is a zlib stream.
type deflateEncoder struct {
	c   *compressor
	err error
}

func newDeflateEncoder() *deflateEncoder {
	c, err := newCompressor(func(w io.Writer) (io.WriteCloser, error) {
		return zlib.NewWriterLevel(w, zlib.DefaultCompression)
	})
	return &deflateEncoder{c: c, err: err}
}

func (e *deflateEncoder) Name() string { return Deflate }

func (e *deflateEncoder) Headers() []Header {
	return []Header{{Name: "Content-Encoding", Value: Deflate}}
}

func (e *deflateEncoder) Start() ([]byte, error) { return nil, e.err }

func (e *deflateEncoder) Encode(p []byte) ([]byte, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.c.write(p)
}

func (e *deflateEncoder) Finish() ([]byte, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.c.finish()
}
