package policy

import (
	"maps"
	"slices"
)

// DefaultPolicy applies the configured thresholds: deny at or above
// thresholds.deny, review at or above thresholds.review.
const DefaultPolicy = `package aegismask.policy

import rego.v1

default decision := "allow"

decision := "deny" if {
	input.thresholds.deny > 0
	input.match_count >= input.thresholds.deny
} else := "review" if {
	input.thresholds.review > 0
	input.match_count >= input.thresholds.review
}
`

// Templates are the policies offered by 'aegismask init'.
var Templates = map[string]string{
	"standard": DefaultPolicy,
	"strict": `package aegismask.policy

import rego.v1

# Strict policy: any keyword denies the content.
default decision := "allow"

decision := "deny" if {
	input.match_count > 0
}
`,
	"permissive": `package aegismask.policy

import rego.v1

# Permissive policy: never deny, flag heavy hitters for review.
default decision := "allow"

decision := "review" if {
	input.thresholds.deny > 0
	input.match_count >= input.thresholds.deny
}
`,
}

// TemplateNames returns the template names in sorted order.
func TemplateNames() []string {
	return slices.Sorted(maps.Keys(Templates))
}
