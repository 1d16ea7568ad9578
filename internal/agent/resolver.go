// Package agent resolves the agent names given to session creation into
// canonical agent identifiers. Unknown names are passed through unchanged;
// the resolver only normalizes spelling.
package agent

import (
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/Iron-Ham/subsession/internal/config"
)

// Resolution methods.
const (
	MethodExact    = "exact_alias"
	MethodShortcut = "shortcut"
	MethodRole     = "role_based"
	MethodFuzzy    = "fuzzy_match"
	MethodNone     = "no_match"
)

// minFuzzyCoverage is the share of a candidate string the input must
// cover for a fuzzy match to count.
const minFuzzyCoverage = 0.6

// Agent is one entry of the agent table.
type Agent struct {
	Name      string
	Aliases   []string
	Shortcuts []string
	Roles     []string
}

// Resolution is the outcome of resolving one input.
type Resolution struct {
	Input       string   `json:"input"`
	Agent       string   `json:"agent,omitempty"`
	Confidence  float64  `json:"confidence"`
	Method      string   `json:"method"`
	Matched     string   `json:"matched,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// Found reports whether the input resolved to an agent.
func (r Resolution) Found() bool { return r.Agent != "" }

// DefaultAgents returns the built-in agent table.
func DefaultAgents() []Agent {
	return []Agent{
		{
			Name:      "vibe-coder",
			Aliases:   []string{"vibe-coder", "vibe coder", "vibecoder"},
			Shortcuts: []string{"vibe"},
			Roles:     []string{"system architect", "documentation expert", "docs expert", "architect"},
		},
		{
			Name:      "react-dev",
			Aliases:   []string{"react-dev", "react dev", "react developer"},
			Shortcuts: []string{"react"},
			Roles:     []string{"frontend developer", "ui developer", "frontend dev", "ui dev"},
		},
		{
			Name:      "laravel-dev",
			Aliases:   []string{"laravel-dev", "laravel dev", "laravel developer"},
			Shortcuts: []string{"laravel"},
			Roles:     []string{"backend developer", "api developer", "backend dev", "api dev"},
		},
		{
			Name:      "svelte-dev",
			Aliases:   []string{"svelte-dev", "svelte dev", "svelte developer"},
			Shortcuts: []string{"svelte"},
			Roles:     []string{"frontend developer", "ui developer", "frontend dev"},
		},
		{
			Name:      "node-dev",
			Aliases:   []string{"node-dev", "node dev", "node developer"},
			Shortcuts: []string{"node", "nodejs"},
			Roles:     []string{"backend developer", "api developer", "nodejs developer"},
		},
		{
			Name:      "devops",
			Aliases:   []string{"devops", "dev ops"},
			Shortcuts: []string{"ops"},
			Roles:     []string{"infrastructure engineer", "deployment engineer", "ops engineer"},
		},
	}
}

// FromConfig converts configured agents. An empty list yields the built-in
// table.
func FromConfig(cfg []config.AgentConfig) []Agent {
	if len(cfg) == 0 {
		return DefaultAgents()
	}
	out := make([]Agent, 0, len(cfg))
	for _, c := range cfg {
		out = append(out, Agent{
			Name:      c.Name,
			Aliases:   c.Aliases,
			Shortcuts: c.Shortcuts,
			Roles:     c.Roles,
		})
	}
	return out
}

// candidate is one searchable string and the agent it names.
type candidate struct {
	text  string
	agent string
}

// Resolver maps names to agents. It is immutable after construction and
// safe for concurrent use.
type Resolver struct {
	aliases    map[string]string
	shortcuts  map[string]string
	roles      []candidate
	candidates []candidate
	texts      []string
}

// NewResolver builds a resolver over agents. Each agent's own name is
// always an alias. Earlier agents win when two share a string.
func NewResolver(agents []Agent) *Resolver {
	r := &Resolver{
		aliases:   make(map[string]string),
		shortcuts: make(map[string]string),
	}
	add := func(m map[string]string, s, agent string) {
		key := normalize(s)
		if key == "" {
			return
		}
		if _, ok := m[key]; !ok {
			m[key] = agent
		}
	}
	for _, a := range agents {
		add(r.aliases, a.Name, a.Name)
		for _, s := range a.Aliases {
			add(r.aliases, s, a.Name)
		}
		for _, s := range a.Shortcuts {
			add(r.shortcuts, s, a.Name)
		}
		for _, s := range a.Roles {
			r.roles = append(r.roles, candidate{normalize(s), a.Name})
		}
		for _, s := range append(append(append([]string{a.Name}, a.Aliases...), a.Roles...), a.Shortcuts...) {
			r.candidates = append(r.candidates, candidate{normalize(s), a.Name})
		}
	}
	r.texts = make([]string, len(r.candidates))
	for i, c := range r.candidates {
		r.texts[i] = c.text
	}
	return r
}

// Resolve tries, in order: exact alias, shortcut, role, then fuzzy match.
func (r *Resolver) Resolve(input string) Resolution {
	key := normalize(input)
	res := Resolution{Input: input, Method: MethodNone}
	if key == "" {
		return res
	}

	if a, ok := r.aliases[key]; ok {
		return Resolution{Input: input, Agent: a, Confidence: 1.0, Method: MethodExact, Matched: key}
	}
	if a, ok := r.shortcuts[key]; ok {
		return Resolution{Input: input, Agent: a, Confidence: 0.95, Method: MethodShortcut, Matched: key}
	}
	if c, sim, ok := r.roleMatch(key); ok {
		return Resolution{Input: input, Agent: c.agent, Confidence: min(0.85, sim), Method: MethodRole, Matched: c.text}
	}
	if c, cov, ok := r.fuzzyMatch(key); ok {
		return Resolution{Input: input, Agent: c.agent, Confidence: cov * 0.75, Method: MethodFuzzy, Matched: c.text}
	}

	res.Suggestions = r.suggestions(key)
	return res
}

// Canonical returns the resolved agent name, or input unchanged when
// nothing matches.
func (r *Resolver) Canonical(input string) string {
	if res := r.Resolve(input); res.Found() {
		return res.Agent
	}
	return input
}

// roleMatch finds roles that contain the input or are contained in it,
// preferring the closest in length.
func (r *Resolver) roleMatch(key string) (candidate, float64, bool) {
	var best candidate
	bestSim := 0.0
	for _, c := range r.roles {
		if !strings.Contains(c.text, key) && !strings.Contains(key, c.text) {
			continue
		}
		if sim := lengthRatio(key, c.text); sim > bestSim {
			best, bestSim = c, sim
		}
	}
	return best, bestSim, bestSim > 0
}

func (r *Resolver) fuzzyMatch(key string) (candidate, float64, bool) {
	for _, m := range fuzzy.Find(key, r.texts) {
		cov := float64(len(m.MatchedIndexes)) / float64(len(m.Str))
		if cov > minFuzzyCoverage {
			return r.candidates[m.Index], cov, true
		}
	}
	return candidate{}, 0, false
}

// suggestions lists agents whose strings share a subsequence with key,
// best first, at most three.
func (r *Resolver) suggestions(key string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range fuzzy.Find(key, r.texts) {
		a := r.candidates[m.Index].agent
		if seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
		if len(out) == 3 {
			break
		}
	}
	if len(out) == 0 {
		for _, c := range r.candidates {
			if !seen[c.agent] {
				seen[c.agent] = true
				out = append(out, c.agent)
			}
		}
		sort.Strings(out)
	}
	return out
}

func lengthRatio(a, b string) float64 {
	la, lb := len(a), len(b)
	if la == 0 || lb == 0 {
		return 0
	}
	if la > lb {
		la, lb = lb, la
	}
	return float64(la) / float64(lb)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
