package errors

import (
	"fmt"
	"runtime/debug"
)

// PanicError is a panic recovered by Recover or SafeExecute. Gob, gonum and
// plotting code panic on bad input instead of returning errors.
type PanicError struct {
	Operation string
	Value     interface{} // the value passed to panic
	Stack     string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Operation, e.Value)
}

// String は Error にスタックトレースを付けたもの
func (e *PanicError) String() string {
	return e.Error() + "\n" + e.Stack
}

// Recover turns a panic in the deferring function into an error stored in
// *err. An error the function had already set stays in the chain.
//
//	func (m *ExplainedModel) Save(ctx context.Context) (err error) {
//	    defer errors.Recover(&err, "ExplainedModel.Save")
func Recover(err *error, operation string) {
	r := recover()
	if r == nil {
		return
	}
	if *err != nil {
		*err = fmt.Errorf("panic in %s: %v (after %w)", operation, r, *err)
		return
	}
	*err = &PanicError{Operation: operation, Value: r, Stack: string(debug.Stack())}
}

// SafeExecute runs fn, reporting a panic as a PanicError.
func SafeExecute(operation string, fn func() error) (err error) {
	defer Recover(&err, operation)
	return fn()
}
