package testutil

import (
	"fmt"
	"path/filepath"
	"runtime"
)

// FileLineNumber marks the test case a failure belongs to.
type FileLineNumber struct {
	File string
	Line int
}

func (fln FileLineNumber) String() string {
	if fln.File == "" || fln.Line == 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d: ", filepath.Base(fln.File), fln.Line)
}

// MakeFileLineNumber returns the location of the caller's caller; test tables
// wrap it in a local fln() helper.
func MakeFileLineNumber() FileLineNumber {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return FileLineNumber{}
	}
	return FileLineNumber{file, line}
}
