// Package bootload provides the error type shared by every stage of the
// boot pipeline.
package bootload

// Error is a structured error carrying the module that raised it. It is
// used instead of the errors package throughout the bootloader because
// almost every failure is fatal and gets logged through kfmt before the
// machine halts; a flat module/message pair is all that code path needs.
type Error struct {
	Module  string
	Message string
}

func (e *Error) Error() string {
	return "[" + e.Module + "] " + e.Message
}

// New is a convenience constructor for a module-scoped error.
func New(module, message string) *Error {
	return &Error{Module: module, Message: message}
}
