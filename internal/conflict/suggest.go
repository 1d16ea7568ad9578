package conflict

import (
	"fmt"
	"path/filepath"
	"strings"
)

// suggestFileLock picks a strategy for a contested file from its kind.
func (c *Classifier) suggestFileLock(path string) Suggestion {
	switch {
	case c.Documentation(path):
		return Suggestion{
			Approach:   ApproachCoordinate,
			Suggestion: "Coordinate documentation updates - consider splitting into sections",
			Actions: []string{
				"Split file into sections for each agent",
				"Use temporary files and merge later",
				"Work sequentially with clear handoff points",
			},
		}
	case c.Source(path):
		return Suggestion{
			Approach:   ApproachPartition,
			Suggestion: "Partition code changes to avoid conflicts",
			Actions: []string{
				"Divide into separate functions/modules",
				"Work on different files in same feature",
				"Use feature flags for parallel development",
			},
		}
	}
	return Suggestion{
		Approach:   ApproachSequential,
		Suggestion: "Work sequentially to avoid conflicts",
		Actions: []string{
			"Establish work order between sessions",
			"Use clear handoff protocols",
			"Implement checkpoint coordination",
		},
	}
}

func suggestBranch() Suggestion {
	return Suggestion{
		Approach:   ApproachCoordinate,
		Suggestion: "Coordinate branch work between sub-sessions",
		Actions: []string{
			"Establish primary and secondary roles",
			"Create communication protocol between sessions",
			"Define clear boundaries for each sub-task",
			"Implement regular sync checkpoints",
		},
	}
}

func suggestContention() Suggestion {
	return Suggestion{
		Approach:   ApproachEscalate,
		Suggestion: "Escalate repeated permission requests to main agent",
		Actions: []string{
			"Review if resource should be in allowed paths",
			"Consider upgrading session access mode",
			"Evaluate if sub-task scope needs adjustment",
		},
	}
}

// splitNames returns two section file names next to path, keeping its
// extension: /docs/api.md -> /docs/api-section-1.md, /docs/api-section-2.md.
func splitNames(path string) []string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	return []string{
		fmt.Sprintf("%s-section-1%s", base, ext),
		fmt.Sprintf("%s-section-2%s", base, ext),
	}
}
