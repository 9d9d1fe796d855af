//go:build !unix

package sandbox

import "os/exec"

// configureProcessGroup keeps the exec default of killing only the direct
// child on cancellation.
func configureProcessGroup(*exec.Cmd) {}
