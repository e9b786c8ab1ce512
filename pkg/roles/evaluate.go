// Package roles grants and revokes target roles from configured role combinations.
package roles

import (
	"slices"
	"strings"

	"github.com/small-frappuccino/modwarden/pkg/files"
)

// Change is one decision taken for a role combination.
type Change struct {
	Combination string
	Role        string
	Grant       bool
	// Lost lists required roles the member no longer holds; set on revocations.
	Lost []string
}

// Evaluate decides which target roles to grant or revoke given the role names a
// member held before and holds now. Disabled combinations are ignored. The result
// never contains a change that is already in effect.
func Evaluate(combos []files.RoleCombination, before, after []string) []Change {
	var out []Change
	for _, c := range combos {
		if !c.Enabled || strings.TrimSpace(c.TargetRole) == "" {
			continue
		}
		hasAll := containsAll(after, c.RequiredRoles)
		hadAll := containsAll(before, c.RequiredRoles)
		hasTarget := containsName(after, c.TargetRole)

		switch {
		case hasAll && !hasTarget:
			out = append(out, Change{Combination: c.Name, Role: c.TargetRole, Grant: true})
		case !hasAll && hadAll && hasTarget && c.RemoveOnLoss:
			out = append(out, Change{Combination: c.Name, Role: c.TargetRole, Lost: missing(after, c.RequiredRoles)})
		}
	}
	return out
}

// StatusLine describes where a member stands for one combination.
func StatusLine(c files.RoleCombination, held []string) string {
	if containsName(held, c.TargetRole) {
		return "✅ **" + c.Name + "**: You have this role!"
	}
	lost := missing(held, c.RequiredRoles)
	if len(lost) == 0 {
		return "🔄 **" + c.Name + "**: Processing..."
	}
	return "⏳ **" + c.Name + "**: Need `" + strings.Join(lost, ", ") + "`"
}

func containsName(held []string, name string) bool {
	return slices.ContainsFunc(held, func(h string) bool { return strings.EqualFold(h, name) })
}

func containsAll(held, required []string) bool {
	if len(required) == 0 {
		return false
	}
	for _, r := range required {
		if !containsName(held, r) {
			return false
		}
	}
	return true
}

func missing(held, required []string) []string {
	var out []string
	for _, r := range required {
		if !containsName(held, r) {
			out = append(out, r)
		}
	}
	return out
}
