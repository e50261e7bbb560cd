package protocol

import "fmt"

// errKind is a small closed set of error categories, each rendered through
// a lookup table rather than ad hoc fmt.Errorf strings scattered through
// the handlers.
type errKind int

const (
	kindTransport errKind = iota
	kindNotFound
	kindReadError
	kindProtocolDrop
)

var kindText = map[errKind]string{
	kindTransport:    "transport error",
	kindNotFound:     "file not found",
	kindReadError:    "local read error",
	kindProtocolDrop: "protocol drop",
}

func (k errKind) String() string { return kindText[k] }

// ProtoError is the common shape for all four error kinds above.
type ProtoError struct {
	Kind   errKind
	Detail string
}

func (e *ProtoError) Error() string {
	if e.Detail == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// NewTransportError wraps an RPC timeout or connection failure.
func NewTransportError(detail string) error {
	return &ProtoError{Kind: kindTransport, Detail: detail}
}

// NewNotFound reports that Obtain was called for a file absent locally.
func NewNotFound(fileName string) error {
	return &ProtoError{Kind: kindNotFound, Detail: fileName}
}

// NewReadError reports a local I/O failure during a file copy.
func NewReadError(detail string) error {
	return &ProtoError{Kind: kindReadError, Detail: detail}
}

// NewProtocolDrop documents a silent drop: duplicate queryHit, expired TTL,
// or an unknown messageId. Handlers that drop never need to surface this as
// an RPC error; it exists so logging call sites can classify the drop.
func NewProtocolDrop(reason string) error {
	return &ProtoError{Kind: kindProtocolDrop, Detail: reason}
}

// IsNotFound reports whether err is a NotFound ProtoError.
func IsNotFound(err error) bool {
	pe, ok := err.(*ProtoError)
	return ok && pe.Kind == kindNotFound
}
