package statemachine

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/goliatone/go-errors"
)

// CapturePanic converts a recovered value into an error carrying the
// cleaned stack in its metadata. It returns nil when r is nil.
//
//	defer func() {
//		if err := CapturePanic(recover(), "guard"); err != nil { ... }
//	}()
func CapturePanic(r any, funcName string) error {
	if r == nil {
		return nil
	}

	fullStack := make([]byte, 8096)
	n := runtime.Stack(fullStack, false)
	stack := cleanStackTrace(fullStack[:n])

	var source error
	if err, ok := r.(error); ok {
		source = err
	} else {
		source = fmt.Errorf("%v", r)
	}

	return errors.Wrap(source, errors.CategoryHandler, fmt.Sprintf("recovered from panic in %s", funcName)).
		WithTextCode(ErrCodePanic).
		WithMetadata(map[string]any{
			"func":       funcName,
			"panic_type": fmt.Sprintf("%T", r),
			"stack":      string(stack),
		})
}

// Safely runs fn and turns a panic into an error.
func Safely(funcName string, fn func() error) (err error) {
	defer func() {
		if perr := CapturePanic(recover(), funcName); perr != nil {
			err = perr
		}
	}()
	return fn()
}

func cleanStackTrace(stack []byte) []byte {
	lines := strings.Split(string(stack), "\n")

	panicLineIndex := -1
	for i, line := range lines {
		if strings.Contains(line, "panic(") {
			panicLineIndex = i
			break
		}
	}

	// drop the panic() frame and its file reference
	if panicLineIndex >= 0 && panicLineIndex+2 < len(lines) {
		lines = lines[panicLineIndex+2:]
	}

	return []byte(strings.Join(lines, "\n"))
}
