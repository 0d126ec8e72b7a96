// Package guard classifies shell commands before they run. A Policy is an
// explicit ordered rule list evaluated first to last; the first rule whose
// matcher fires decides the command, and anything no rule claims is allowed.
// Allow rules sit ahead of block rules, so a command matching both is allowed.
package guard

import (
	"strings"
)

// Verdict is the outcome of classifying one command.
type Verdict struct {
	Allowed     bool
	Rule        string // name of the rule that decided, "" for default-allow
	Reason      string // set when denied
	Alternative string // safer suggestion, set when denied
}

// Rule is one entry in a Policy. Match receives the raw command string and
// its whitespace-split fields.
type Rule struct {
	Name        string
	Allow       bool
	Reason      string
	Alternative string
	Match       func(cmd string, fields []string) bool
}

// Policy is an ordered rule list. Order is the whole contract: put the
// narrow allows before the broad blocks.
type Policy struct {
	rules []Rule
}

// NewPolicy builds a policy from rules, evaluated in the given order.
func NewPolicy(rules []Rule) *Policy {
	return &Policy{rules: rules}
}

// Check classifies cmd. An empty command is allowed; it is not this
// layer's job to reject nonsense the shell will reject anyway.
func (p *Policy) Check(cmd string) Verdict {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return Verdict{Allowed: true}
	}
	for _, r := range p.rules {
		if r.Match(cmd, fields) {
			return Verdict{
				Allowed:     r.Allow,
				Rule:        r.Name,
				Reason:      r.Reason,
				Alternative: r.Alternative,
			}
		}
	}
	return Verdict{Allowed: true}
}

// hasFlag reports whether any field equals one of the given flags.
// Matching stops at "--" since later tokens are operands.
func hasFlag(fields []string, flags ...string) bool {
	for _, f := range fields {
		if f == "--" {
			return false
		}
		for _, want := range flags {
			if f == want {
				return true
			}
		}
	}
	return false
}

// hasCombinedFlag reports whether any short-option cluster contains the
// given letter, so "rm -rf" and "rm -fr" both register 'f' and 'r'.
func hasCombinedFlag(fields []string, letter byte) bool {
	for _, f := range fields {
		if len(f) < 2 || f[0] != '-' || f[1] == '-' {
			continue
		}
		if strings.IndexByte(f[1:], letter) >= 0 {
			return true
		}
	}
	return false
}

// subcommand returns fields[1] when fields[0] matches prog, else "".
func subcommand(fields []string, prog string) string {
	if len(fields) < 2 || fields[0] != prog {
		return ""
	}
	return fields[1]
}

// operands returns the non-flag arguments after the first n fields.
func operands(fields []string, skip int) []string {
	var out []string
	for i := skip; i < len(fields); i++ {
		if strings.HasPrefix(fields[i], "-") && fields[i] != "--" {
			continue
		}
		if fields[i] == "--" {
			out = append(out, fields[i+1:]...)
			break
		}
		out = append(out, fields[i])
	}
	return out
}
