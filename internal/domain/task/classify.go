package task

import "strings"

// Type is the derived category tag of a task.
type Type string

const (
	TypeBuild    Type = "build"
	TypeTest     Type = "test"
	TypeDeploy   Type = "deploy"
	TypeFix      Type = "fix"
	TypeRefactor Type = "refactor"
	TypeGeneral  Type = "general"
)

// typeRule maps description substrings to a task type. First match wins.
// Matching is plain substring on the lower-cased description, so "rebuild"
// matches "build"; that looseness is deliberate and kept for compatibility.
var typeRules = []struct {
	triggers []string
	typ      Type
}{
	{[]string{"build", "compile"}, TypeBuild},
	{[]string{"test"}, TypeTest},
	{[]string{"deploy"}, TypeDeploy},
	{[]string{"debug", "fix"}, TypeFix},
	{[]string{"refactor", "optimize"}, TypeRefactor},
}

// DeriveType classifies a task description into a Type.
func DeriveType(description string) Type {
	desc := strings.ToLower(description)
	for _, rule := range typeRules {
		for _, trigger := range rule.triggers {
			if strings.Contains(desc, trigger) {
				return rule.typ
			}
		}
	}
	return TypeGeneral
}
