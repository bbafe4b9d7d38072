// Package diag provides the call-site helper used to tag provider errors
// with the code path that raised them.
package diag

import (
	"fmt"
	"runtime"
)

// Caller returns the file:line of stack frame nFrames, numbered as
// runtime.Callers numbers them (1 is Caller itself, 2 its caller, 3 the
// caller's caller), useful for tagging which code path produced a given
// provider.Error when several operations can raise the same Kind.
func Caller(nFrames int) string {
	fpcs := make([]uintptr, 1)
	n := runtime.Callers(nFrames, fpcs)
	if n == 0 {
		return "NO CALLER"
	}
	caller := runtime.FuncForPC(fpcs[0] - 1)
	if caller == nil {
		return "MSG CALLER WAS NIL"
	}
	file, line := caller.FileLine(fpcs[0] - 1)
	return fmt.Sprintf("%s:%d", file, line)
}
