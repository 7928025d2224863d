// Package env resolves the build's target directory from the process
// environment, the way a caller's shell configures where artifacts land
// without having to pass a flag on every invocation.
package env

import "os"

// DefaultTargetDir is the workspace root used when -target-dir is left at
// its flag default: $CARGO_TARGET_DIR if set, else "target" relative to the
// working directory.
func DefaultTargetDir() string {
	if dir := os.Getenv("CARGO_TARGET_DIR"); dir != "" {
		return dir
	}
	return "target"
}
