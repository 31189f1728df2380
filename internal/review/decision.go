package review

import (
	"fmt"
	"strings"

	"github.com/rogers-f/deliberate/internal/domain"
)

var decisionWords = map[string]domain.Decision{
	"approve":  domain.DecisionApprove,
	"approved": domain.DecisionApprove,
	"accept":   domain.DecisionApprove,
	"accepted": domain.DecisionApprove,
	"reject":   domain.DecisionReject,
	"rejected": domain.DecisionReject,
}

// NormalizeDecision maps a critic's free-form decision onto approve or
// reject. Case, surrounding whitespace, and trailing punctuation are ignored.
func NormalizeDecision(raw string) (domain.Decision, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.TrimRight(key, ".!")
	if d, ok := decisionWords[key]; ok {
		return d, nil
	}
	return domain.DecisionUnset, fmt.Errorf("decision %q is not valid; must be approve or reject", raw)
}
