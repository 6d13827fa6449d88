//go:build !unix

package launcher

import (
	"os"
	"os/exec"
)

func setProcessGroup(*exec.Cmd) {}

// No graceful signal outside unix; both stages kill.
func signalGroup(p *os.Process, _ signalKind) error { return p.Kill() }
