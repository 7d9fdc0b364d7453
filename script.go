package mddi

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/mddilink/mddi/sshd"
)

// Exec runs a single command line, the same ones an ssh session accepts.
func (c *Control) Exec(line string, w io.Writer) error {
	return c.commands.Dispatch(line, sshd.NewStringWriter(w))
}

// RunScript runs the commands in r, stopping at the first one that fails.
// Commands are separated by newlines or ;. Blank lines and lines starting
// with # are skipped.
func (c *Control) RunScript(r io.Reader, w io.Writer) error {
	sw := sshd.NewStringWriter(w)
	s := bufio.NewScanner(r)
	n := 0
	for s.Scan() {
		n++
		for _, line := range strings.Split(s.Text(), ";") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}

			c.l.WithField("line", n).WithField("command", line).Debug("Running script command")
			if err := c.commands.Dispatch(line, sw); err != nil {
				return fmt.Errorf("%w: line %d: %s: %w", ErrScriptFailed, n, line, err)
			}
		}
	}
	return s.Err()
}
