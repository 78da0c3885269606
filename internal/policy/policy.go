// Package policy implements the ordered-rule tool policy engine: allow/deny
// decisions over (tool name, arguments) built from exact matches, glob
// wildcards, and argument predicates, evaluated in insertion order with a
// terminal default.
package policy

import (
	"encoding/json"
	"strings"
)

// Decision is the outcome of evaluating a policy against a tool call.
type Decision int

const (
	// Deny blocks the call.
	Deny Decision = iota
	// Allow permits the call for this invocation only.
	Allow
	// AlwaysAllow permits the call and instructs the host to remember the
	// decision going forward; semantically equivalent to Allow for the
	// current call.
	AlwaysAllow
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case AlwaysAllow:
		return "always_allow"
	default:
		return "deny"
	}
}

// Predicate is a side-effect-free function over a tool call's raw argument
// JSON that returns a decision. Predicates must not have side effects;
// violations are the caller's responsibility, not something this package
// can detect.
type Predicate func(toolName string, arguments json.RawMessage) Decision

type ruleKind int

const (
	kindExact ruleKind = iota
	kindWildcard
	kindPredicate
)

type rule struct {
	kind      ruleKind
	pattern   string
	decision  Decision
	predicate Predicate
}

// Policy is an immutable, ordered sequence of rules plus a terminal
// default. Evaluation is deterministic: identical inputs always produce
// the identical decision.
type Policy struct {
	rules   []rule
	fallback Decision
}

// Builder accumulates rules in insertion order before producing an
// immutable Policy.
type Builder struct {
	rules   []rule
	fallback Decision
}

// NewBuilder starts a policy builder with the given terminal default.
func NewBuilder(fallback Decision) *Builder {
	return &Builder{fallback: fallback}
}

// AllowExact appends a rule that allows calls whose tool name matches
// exactly.
func (b *Builder) AllowExact(name string) *Builder {
	b.rules = append(b.rules, rule{kind: kindExact, pattern: name, decision: Allow})
	return b
}

// DenyExact appends a rule that denies calls whose tool name matches
// exactly.
func (b *Builder) DenyExact(name string) *Builder {
	b.rules = append(b.rules, rule{kind: kindExact, pattern: name, decision: Deny})
	return b
}

// AllowPattern appends a rule that allows calls whose tool name matches a
// '*' glob (case-sensitive; '*' matches any run of characters).
func (b *Builder) AllowPattern(pattern string) *Builder {
	b.rules = append(b.rules, rule{kind: kindWildcard, pattern: pattern, decision: Allow})
	return b
}

// DenyPattern appends a rule that denies calls whose tool name matches a
// '*' glob.
func (b *Builder) DenyPattern(pattern string) *Builder {
	b.rules = append(b.rules, rule{kind: kindWildcard, pattern: pattern, decision: Deny})
	return b
}

// Conditional appends a predicate rule: when the predicate's tool name
// filter matches, its returned decision is taken as-is for any decision
// other than a sentinel "no match"; here we keep it simple — the predicate
// always fires for the given tool name and its result is final for that
// rule.
func (b *Builder) Conditional(toolName string, predicate Predicate) *Builder {
	b.rules = append(b.rules, rule{kind: kindPredicate, pattern: toolName, predicate: predicate})
	return b
}

// Build freezes the accumulated rules into an immutable Policy.
func (b *Builder) Build() *Policy {
	rules := make([]rule, len(b.rules))
	copy(rules, b.rules)
	return &Policy{rules: rules, fallback: b.fallback}
}

// Evaluate walks the rules in insertion order and returns the first
// match's decision, or the terminal default if nothing matches.
func (p *Policy) Evaluate(toolName string, arguments json.RawMessage) Decision {
	for _, r := range p.rules {
		switch r.kind {
		case kindExact:
			if r.pattern == toolName {
				return r.decision
			}
		case kindWildcard:
			if matchGlob(r.pattern, toolName) {
				return r.decision
			}
		case kindPredicate:
			if r.pattern == toolName || r.pattern == "*" {
				return r.predicate(toolName, arguments)
			}
		}
	}
	return p.fallback
}

// MatchGlob exposes the policy engine's wildcard matcher for callers
// outside this package that need the identical semantics (the subagent
// tool filter, in particular).
func MatchGlob(pattern, name string) bool {
	return matchGlob(pattern, name)
}

// matchGlob reports whether name matches pattern, where '*' in pattern
// matches any run of characters (including none). Matching is
// case-sensitive and anchored at both ends. This is the classic two-pointer
// wildcard match (star-only, no '?'), with backtracking on the most recent
// '*' when a literal mismatch is found.
func matchGlob(pattern, name string) bool {
	if !strings.Contains(pattern, "*") {
		return pattern == name
	}

	var pi, ni int
	starIdx, matchIdx := -1, 0

	for ni < len(name) {
		if pi < len(pattern) && (pattern[pi] == name[ni]) {
			pi++
			ni++
		} else if pi < len(pattern) && pattern[pi] == '*' {
			starIdx = pi
			matchIdx = ni
			pi++
		} else if starIdx != -1 {
			pi = starIdx + 1
			matchIdx++
			ni = matchIdx
		} else {
			return false
		}
	}

	for pi < len(pattern) && pattern[pi] == '*' {
		pi++
	}
	return pi == len(pattern)
}
