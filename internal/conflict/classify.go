package conflict

import (
	"fmt"

	"github.com/gobwas/glob"
)

// Classifier sorts paths into documentation and source files using glob
// patterns with '/' as the separator.
type Classifier struct {
	docs   []glob.Glob
	source []glob.Glob
}

// NewClassifier compiles the documentation and source patterns.
func NewClassifier(docPatterns, sourcePatterns []string) (*Classifier, error) {
	docs, err := compileAll(docPatterns)
	if err != nil {
		return nil, err
	}
	source, err := compileAll(sourcePatterns)
	if err != nil {
		return nil, err
	}
	return &Classifier{docs: docs, source: source}, nil
}

func compileAll(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid glob pattern %q: %w", p, err)
		}
		out = append(out, g)
	}
	return out, nil
}

// Documentation reports whether path is a documentation file.
func (c *Classifier) Documentation(path string) bool {
	return matchAny(c.docs, path)
}

// Source reports whether path is a source file that can be partitioned.
func (c *Classifier) Source(path string) bool {
	return matchAny(c.source, path)
}

func matchAny(globs []glob.Glob, path string) bool {
	for _, g := range globs {
		if g.Match(path) {
			return true
		}
	}
	return false
}
