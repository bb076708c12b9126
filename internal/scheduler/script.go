// Package scheduler renders leaves into batch scripts, invokes the
// external submit/cancel/accounting commands, and records submissions
// in the job store atomically.
package scheduler

import (
	"fmt"
	"strings"
)

// RenderScript builds the script body per the bit-exact format: the
// preamble's #!/#SBATCH lines, an optional --dependency directive,
// the preamble's remaining shell-setup lines, then the command.
func RenderScript(preamble string, parents []string, depKind string, command string) string {
	var directiveLines []string
	var shellLines []string

	for _, line := range strings.Split(preamble, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "#!") || strings.HasPrefix(trimmed, "#SBATCH") {
			directiveLines = append(directiveLines, line)
		} else {
			shellLines = append(shellLines, line)
		}
	}

	var b strings.Builder
	for _, l := range directiveLines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	if len(parents) > 0 {
		fmt.Fprintf(&b, "#SBATCH --dependency=%s:%s\n", depKind, strings.Join(parents, ":"))
	}
	for _, l := range shellLines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	b.WriteString(command)
	b.WriteByte('\n')
	return b.String()
}
