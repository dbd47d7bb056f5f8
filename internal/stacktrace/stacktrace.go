// Package stacktrace takes bounded, human readable call stack snapshots at
// the moment a slow query is recognized.
package stacktrace

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Frames belonging to the reporter itself or to the ORM machinery are noise
// for the reader; only the host application's frames are kept.
var skipPrefixes = []string{
	"github.com/rahmatrdn/go-query-reporter/internal/",
	"github.com/rahmatrdn/go-query-reporter.",
	"gorm.io/",
	"runtime.",
}

// Capture returns at most max frames of the current goroutine's stack,
// innermost caller first, formatted as "pkg.Func (file:line)". It returns an
// empty slice when max is not positive or no frames survive filtering.
//
// The snapshot is taken where the slow query event is handled, not where the
// statement was originally issued, so it shows the handling call path.
func Capture(max int) []string {
	if max <= 0 {
		return []string{}
	}

	pcs := make([]uintptr, max+32)
	n := runtime.Callers(2, pcs)
	if n == 0 {
		return []string{}
	}

	cwd, _ := os.Getwd()
	frames := runtime.CallersFrames(pcs[:n])

	out := make([]string, 0, max)
	for {
		frame, more := frames.Next()
		if frame.Function != "" && !skipped(frame.Function) {
			out = append(out, formatFrame(frame, cwd))
			if len(out) == max {
				break
			}
		}
		if !more {
			break
		}
	}
	return out
}

func skipped(fn string) bool {
	for _, p := range skipPrefixes {
		if strings.HasPrefix(fn, p) {
			return true
		}
	}
	return false
}

func formatFrame(frame runtime.Frame, cwd string) string {
	file := relativize(frame.File, cwd)
	return fmt.Sprintf("%s (%s:%d)", frame.Function, file, frame.Line)
}

// relativize rewrites an absolute path relative to the working directory when
// the result stays inside it. Cosmetic only; on any doubt the absolute path
// is kept.
func relativize(file, cwd string) string {
	if cwd == "" || file == "" {
		return file
	}
	rel, err := filepath.Rel(cwd, file)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return file
	}
	return rel
}
