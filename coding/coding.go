// Package coding implements the HTTP content-codings the server can apply to
// response bodies, and the Accept-Encoding negotiation that picks one.
package coding

// Supported content-coding names.
const (
	Identity = "identity"
	Deflate  = "deflate"
	Gzip     = "gzip"
)

// Header is a response header produced by an Encoder.
type Header struct {
	Name  string
	Value string
}

// Encoder transforms a response body incrementally. Start, Encode and Finish
// return the encoded bytes ready to be written; any of them may return an
// empty slice while the compressor is still buffering. An Encoder is used for
// a single body and is not safe for concurrent use.
type Encoder interface {
	Name() string
	Headers() []Header
	Start() ([]byte, error)
	Encode(p []byte) ([]byte, error)
	Finish() ([]byte, error)
}

// New returns a fresh encoder for the named coding, or nil if the coding is
// not supported.
func New(name string) Encoder {
	switch name {
	case Identity:
		return identityEncoder{}
	case Deflate:
		return newDeflateEncoder()
	case Gzip:
		return newGzipEncoder()
	}
	return nil
}

// Supported reports whether name is a coding New can build.
func Supported(name string) bool {
	return name == Identity || name == Deflate || name == Gzip
}

// EncodeAll runs p through a fresh encoder for name and returns the whole
// encoded body.
func EncodeAll(name string, p []byte) ([]byte, error) {
	enc := New(name)
	if enc == nil {
		return nil, &UnsupportedError{Name: name}
	}
	return Encode(enc, p)
}

// Encode runs the whole of p through enc.
func Encode(enc Encoder, p []byte) ([]byte, error) {
	out, err := enc.Start()
	if err != nil {
		return nil, err
	}
	b, err := enc.Encode(p)
	if err != nil {
		return nil, err
	}
	out = append(out, b...)
	b, err = enc.Finish()
	if err != nil {
		return nil, err
	}
	return append(out, b...), nil
}

// UnsupportedError reports a coding name with no encoder.
type UnsupportedError struct {
	Name string
}

func (e *UnsupportedError) Error() string { return "coding: unsupported content-coding " + e.Name }

type identityEncoder struct{}

func (identityEncoder) Name() string                    { return Identity }
func (identityEncoder) Headers() []Header               { return nil }
func (identityEncoder) Start() ([]byte, error)          { return nil, nil }
func (identityEncoder) Encode(p []byte) ([]byte, error) { return p, nil }
func (identityEncoder) Finish() ([]byte, error)         { return nil, nil }
