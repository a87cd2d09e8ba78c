// internal/decide/rules.go
package decide

import (
	"regexp"
	"strings"
)

// ruleContext is how many recent messages a rule condition sees.
const ruleContext = 5

// Match holds the declarative conditions of a rule. Empty lists are
// unconstrained; all present groups must hold.
type Match struct {
	AnyContains []string `json:"any_contains,omitempty"`
	AllContains []string `json:"all_contains,omitempty"`
	AnyRegex    []string `json:"any_regex,omitempty"`
}

// Rule is one entry of the operator-maintained override table. Rules run
// before any classification and the first active match wins.
type Rule struct {
	ID     string `json:"id,omitempty"`
	Active *bool  `json:"active,omitempty"`
	Match  Match  `json:"match"`
	Action string `json:"action,omitempty"`
	Reply  string `json:"reply,omitempty"`
}

// IsActive defaults to true when the field is absent.
func (r Rule) IsActive() bool {
	return r.Active == nil || *r.Active
}

func (m Match) matches(texts []string) bool {
	lower := make([]string, len(texts))
	for i, t := range texts {
		lower[i] = strings.ToLower(t)
	}

	if len(m.AnyContains) > 0 {
		hit := false
		for _, n := range m.AnyContains {
			if containsAny(lower, strings.ToLower(n)) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}

	for _, n := range m.AllContains {
		if !containsAny(lower, strings.ToLower(n)) {
			return false
		}
	}

	if len(m.AnyRegex) > 0 {
		hit := false
		for _, p := range m.AnyRegex {
			re, err := regexp.Compile("(?is)" + p)
			if err != nil {
				// An unparseable pattern fails the whole rule rather
				// than silently widening it.
				return false
			}
			for _, t := range lower {
				if re.MatchString(t) {
					hit = true
					break
				}
			}
			if hit {
				break
			}
		}
		if !hit {
			return false
		}
	}

	return true
}

func containsAny(texts []string, needle string) bool {
	for _, t := range texts {
		if strings.Contains(t, needle) {
			return true
		}
	}
	return false
}

// ruleVerdict is the tri-state outcome of the rule stage.
type ruleVerdict int

const (
	ruleNone ruleVerdict = iota
	ruleSkip
	ruleLabel
	ruleReply
)

// applyRules evaluates the ordered rule table against the last few messages.
// A matching rule with neither a skip action nor a reply text yields no
// verdict and the later stages decide.
func applyRules(rules []Rule, messages []string) (ruleVerdict, string, string) {
	if len(messages) == 0 {
		return ruleNone, "", ""
	}
	if len(messages) > ruleContext {
		messages = messages[len(messages)-ruleContext:]
	}

	for _, r := range rules {
		if !r.IsActive() || !r.Match.matches(messages) {
			continue
		}
		switch action := strings.TrimSpace(r.Action); {
		case strings.EqualFold(action, "skip"):
			return ruleSkip, "", r.ID
		case strings.EqualFold(action, "label"):
			return ruleLabel, "", r.ID
		}
		if reply := strings.TrimSpace(r.Reply); reply != "" {
			return ruleReply, reply, r.ID
		}
		return ruleNone, "", ""
	}
	return ruleNone, "", ""
}
