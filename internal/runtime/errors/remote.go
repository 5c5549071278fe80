package errors

import (
	"crypto/sha256"
	"encoding/hex"
	sterrors "errors"
	"fmt"
	"reflect"

	pkgerrors "github.com/pkg/errors"
)

const fallbackMessage = "unexpected error"

// Named is implemented by errors that carry an explicit kind name.
type Named interface {
	Name() string
}

// Coded is implemented by errors that carry an application error code.
type Coded interface {
	Code() string
}

type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

// RemoteError is the structured failure carried by "error" envelopes. It is
// what a caller receives when a remote handler fails.
type RemoteError struct {
	Name      string  `json:"name"`
	Message   string  `json:"message"`
	Code      *string `json:"code"`
	StackHash string  `json:"stackHash"`
	Stack     *string `json:"stack"`
}

func (e *RemoteError) Error() string {
	if e == nil {
		return fallbackMessage
	}
	if e.Code != nil && *e.Code != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Name, *e.Code, e.Message)
	}
	return e.Name + ": " + e.Message
}

// NewRemoteError converts an arbitrary error into its wire representation.
// A *RemoteError anywhere in the chain is returned as-is so relayed failures
// keep their original identity hash.
func NewRemoteError(err error) *RemoteError {
	if err == nil {
		return nil
	}
	var remote *RemoteError
	if sterrors.As(err, &remote) && remote != nil {
		return remote
	}

	re := &RemoteError{
		Name:    errorName(err),
		Message: err.Error(),
	}
	if re.Message == "" {
		re.Message = fallbackMessage
	}

	var coded Coded
	if sterrors.As(err, &coded) {
		if code := coded.Code(); code != "" {
			re.Code = &code
		}
	}

	var tracer stackTracer
	if sterrors.As(err, &tracer) {
		stack := fmt.Sprintf("%+v", tracer.StackTrace())
		if stack != "" {
			re.Stack = &stack
		}
	}

	re.StackHash = StackHash(re.Name, re.Message, re.Stack)
	return re
}

// StackHash returns a stable identity for an error built from its kind,
// message and stack. Equal inputs always hash to the same value.
func StackHash(name, message string, stack *string) string {
	h := sha256.New()
	h.Write([]byte(name))
	h.Write([]byte{'\n'})
	h.Write([]byte(message))
	h.Write([]byte{'\n'})
	if stack != nil {
		h.Write([]byte(*stack))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func errorName(err error) string {
	var named Named
	if sterrors.As(err, &named) {
		if name := named.Name(); name != "" {
			return name
		}
	}
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.PkgPath() {
	case "errors", "fmt", "github.com/pkg/errors", "":
		return "Error"
	}
	return t.Name()
}
