//go:build windows
// +build windows

package process

import (
	"os"
)

// windows processes can not be asked to terminate
func terminate(p *os.Process) error {
	return p.Kill()
}
