package daemonproc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// Kind tags a frame on either queue.
type Kind string

const (
	KindInit       Kind = "init"
	KindInfo       Kind = "info"
	KindError      Kind = "error"
	KindResult     Kind = "result"
	KindTerminated Kind = "terminated"

	// Input queue only.
	KindArgs    Kind = "args"
	KindMessage Kind = "message"
)

type frame struct {
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *RemoteError    `json:"error,omitempty"`
}

// terminal reports whether the parent stops dispatching after this frame.
func (f frame) terminal() bool {
	return f.Kind == KindResult || f.Kind == KindTerminated
}

// RemoteError is an error raised in a worker process. Native error values
// cannot cross the process boundary, so only the kind, message and rendered
// traceback travel. The traceback is the stack where the error was reported
// unless the error carries its own (see stacker).
type RemoteError struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Traceback string `json:"traceback,omitempty"`
}

func (e *RemoteError) Error() string {
	return e.Message
}

// kinder lets error types choose the kind reported across the boundary.
type kinder interface {
	Kind() string
}

// stacker lets error types supply the stack captured where they were created.
type stacker interface {
	Stack() []byte
}

func newRemoteError(err error, stack []byte) *RemoteError {
	kind := fmt.Sprintf("%T", err)
	var k kinder
	if errors.As(err, &k) {
		kind = k.Kind()
	}
	var st stacker
	if errors.As(err, &st) {
		if own := st.Stack(); len(own) > 0 {
			stack = own
		}
	}
	return &RemoteError{
		Kind:      kind,
		Message:   err.Error(),
		Traceback: formatTraceback(stack, kind, err.Error()),
	}
}

func newRemotePanic(value any, stack []byte) *RemoteError {
	if err, ok := value.(error); ok {
		return newRemoteError(err, stack)
	}
	msg := fmt.Sprint(value)
	return &RemoteError{
		Kind:      "panic",
		Message:   msg,
		Traceback: formatTraceback(stack, "panic", msg),
	}
}

// formatTraceback renders a goroutine stack followed by a "Kind: message"
// trailer.
func formatTraceback(stack []byte, kind, msg string) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(string(stack), "\n"))
	b.WriteString("\n")
	b.WriteString(kind)
	b.WriteString(": ")
	b.WriteString(msg)
	return b.String()
}

// Decode unmarshals a frame payload. A nil payload leaves v untouched.
func Decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func encodePayload(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}
