package coding

import (
	"bytes"
	"errors"
	"io"
)

var errFinished = errors.New("coding: encoder already finished")

// compressor adapts a streaming compression writer to the pull style of
// Encoder: input is written through, and whatever the writer has emitted so
// far is handed back to the caller.
type compressor struct {
	buf      bytes.Buffer
	w        io.WriteCloser
	finished bool
}

func newCompressor(open func(io.Writer) (io.WriteCloser, error)) (*compressor, error) {
	c := new(compressor)
	w, err := open(&c.buf)
	if err != nil {
		return nil, err
	}
	c.w = w
	return c, nil
}

func (c *compressor) write(p []byte) ([]byte, error) {
	if c.finished {
		return nil, errFinished
	}
	if len(p) > 0 {
		if _, err := c.w.Write(p); err != nil {
			return nil, err
		}
	}
	return c.take(), nil
}

// finish closes the stream and returns its tail.
func (c *compressor) finish() ([]byte, error) {
	if c.finished {
		return nil, errFinished
	}
	c.finished = true
	if err := c.w.Close(); err != nil {
		return nil, err
	}
	return c.take(), nil
}

func (c *compressor) take() []byte {
	if c.buf.Len() == 0 {
		return nil
	}
	out := make([]byte, c.buf.Len())
	copy(out, c.buf.Bytes())
	c.buf.Reset()
	return out
}
