package permission

import (
	"strings"

	"github.com/Iron-Ham/subsession/internal/config"
	"github.com/Iron-Ham/subsession/internal/registry"
)

// Auto-approval rule names recorded on a request.
const (
	RuleSafeRead          = "safe-read-path"
	RuleSafeDocumentation = "safe-documentation-write"
)

// Responder identities stamped by the system rather than a person.
const (
	ResponderAutoApproval   = "auto-approval-system"
	ResponderAutoResolution = "auto-resolution-system"
	ResponderSessionEnd     = "system-session-end"
)

// Rules are the fixed allow-lists used for auto-approval. Entries match by
// substring containment of the requested resource.
type Rules struct {
	SafeReadPaths  []string
	SafeWritePaths []string
}

// DefaultRules returns the built-in allow-lists.
func DefaultRules() Rules {
	return Rules{
		SafeReadPaths:  config.DefaultSafeReadPaths(),
		SafeWritePaths: config.DefaultSafeWritePaths(),
	}
}

// Match returns the names of the rules that auto-approve resource. Only
// file-access requests are eligible; directory and tool requests always
// need an explicit response.
func (r Rules) Match(resource string, requestType registry.RequestType) []string {
	matched := []string{}
	if requestType != registry.RequestFileAccess {
		return matched
	}
	if containsAny(resource, r.SafeReadPaths) {
		matched = append(matched, RuleSafeRead)
	}
	if containsAny(resource, r.SafeWritePaths) {
		matched = append(matched, RuleSafeDocumentation)
	}
	return matched
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
