package guard

import (
	"regexp"

	"github.com/Iron-Ham/subsession/internal/access"
)

// Params are the tool parameters an agent operation carries.
type Params struct {
	FilePath string `json:"file_path,omitempty"`
	Path     string `json:"path,omitempty"`
	Command  string `json:"command,omitempty"`
}

var bashPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:cat|less|head|tail|nano|vim|code)\s+([^\s]+)`),
	regexp.MustCompile(`(?:cp|mv|rm)\s+([^\s]+)`),
	regexp.MustCompile(`(?:mkdir|rmdir)\s+([^\s]+)`),
	regexp.MustCompile(`(?:chmod|chown)\s+[^\s]+\s+([^\s]+)`),
	regexp.MustCompile(`>\s*([^\s]+)`),
	regexp.MustCompile(`(?:^|\s)([^|\s]*\.(?:js|ts|json|md|txt|py|sh|yml|yaml|go))\b`),
}

// ExtractPaths returns the paths an operation touches, in first-seen order
// without duplicates.
func ExtractPaths(op access.Operation, p Params) []string {
	switch op {
	case access.OpRead, access.OpWrite, access.OpCreate, access.OpEdit, access.OpDelete:
		if p.FilePath != "" {
			return []string{p.FilePath}
		}
	case access.OpGlob:
		if p.Path != "" {
			return []string{p.Path}
		}
	case access.OpBash:
		return BashPaths(p.Command)
	}
	return nil
}

// BashPaths pulls likely file arguments out of a shell command: arguments
// of viewers, editors and file utilities, redirection targets, and words
// with a known file extension. Flags and /dev/null are skipped.
func BashPaths(command string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, re := range bashPatterns {
		for _, m := range re.FindAllStringSubmatch(command, -1) {
			p := m[1]
			if p == "" || p[0] == '-' || p == "/dev/null" || seen[p] {
				continue
			}
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
