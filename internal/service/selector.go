package service

import (
	"strings"

	"github.com/buildhive/buildhive/internal/domain/agent"
	"github.com/buildhive/buildhive/internal/domain/task"
)

// Scoring weights. These are fixed design parameters; the resulting score is
// unbounded and must not be read as a probability or percentage.
const (
	weightSuccessRate    = 100.0
	weightCapabilities   = 50.0
	weightLanguages      = 30.0
	weightSpecialization = 20.0
	weightLoadPenalty    = 20.0
)

// capabilityRule maps description substrings to the capabilities they imply.
// All matching rules are unioned. Matching is plain substring on the
// lower-cased description, so "rebuild" triggers the "build" rule; that
// looseness is deliberate and kept for compatibility.
var capabilityRules = []struct {
	triggers     []string
	capabilities []string
}{
	{[]string{"build", "compile"}, []string{"code_generation", "testing"}},
	{[]string{"test"}, []string{"testing"}},
	{[]string{"deploy"}, []string{"deployment"}},
	{[]string{"debug", "fix"}, []string{"debugging"}},
	{[]string{"refactor", "optimize"}, []string{"refactoring"}},
	{[]string{"document", "readme"}, []string{"documentation"}},
	{[]string{"architecture", "design"}, []string{"architecture_design"}},
	{[]string{"review", "analyze"}, []string{"code_review", "analysis"}},
}

// defaultCapabilities is required when no rule matches.
var defaultCapabilities = []string{"code_generation", "problem_solving"}

// domainRules classifies a task into a specialization domain.
// First matching rule wins, checked in this order.
var domainRules = []struct {
	keywords []string
	domain   string
}{
	{[]string{"web", "frontend", "react", "vue"}, "web_development"},
	{[]string{"api", "backend", "server"}, "api_development"},
	{[]string{"microservice", "service"}, "microservices"},
	{[]string{"mobile", "app"}, "mobile_development"},
	{[]string{"data", "ml", "ai"}, "data_science"},
}

const domainGeneral = "general_development"

// RequiredCapabilities derives the capability set a task description demands.
func RequiredCapabilities(description string) []string {
	desc := strings.ToLower(description)

	var out []string
	seen := make(map[string]bool)
	for _, rule := range capabilityRules {
		for _, trigger := range rule.triggers {
			if strings.Contains(desc, trigger) {
				for _, c := range rule.capabilities {
					if !seen[c] {
						seen[c] = true
						out = append(out, c)
					}
				}
				break
			}
		}
	}
	if len(out) == 0 {
		out = append(out, defaultCapabilities...)
	}
	return out
}

// ClassifyDomain maps a task description to a specialization domain.
func ClassifyDomain(description string) string {
	desc := strings.ToLower(description)
	for _, rule := range domainRules {
		for _, kw := range rule.keywords {
			if strings.Contains(desc, kw) {
				return rule.domain
			}
		}
	}
	return domainGeneral
}

// Selector ranks available agents for a task. It is a pure scoring function
// over the registry's available pool; it never mutates agent state.
type Selector struct {
	registry *agent.Registry
}

// NewSelector creates a Selector over the given registry.
func NewSelector(registry *agent.Registry) *Selector {
	return &Selector{registry: registry}
}

// SelectBest returns the highest-scoring available agent for the task.
// Returns agent.ErrNoAgentAvailable when the available pool is empty.
func (s *Selector) SelectBest(t *task.Task) (*agent.Agent, error) {
	return s.selectFrom(s.registry.ListAvailable(), t)
}

// SelectBestExcluding re-runs selection over the available pool minus the
// named agents. Used for the single retry after a lost reservation race.
func (s *Selector) SelectBestExcluding(t *task.Task, exclude map[string]bool) (*agent.Agent, error) {
	pool := s.registry.ListAvailable()
	filtered := pool[:0]
	for _, a := range pool {
		if !exclude[a.Name] {
			filtered = append(filtered, a)
		}
	}
	return s.selectFrom(filtered, t)
}

// selectFrom scores the pool and returns the winner. The pool arrives in
// registration order, and the strict > comparison makes the first registered
// agent win ties.
func (s *Selector) selectFrom(pool []agent.Agent, t *task.Task) (*agent.Agent, error) {
	if len(pool) == 0 {
		return nil, agent.ErrNoAgentAvailable
	}

	required := RequiredCapabilities(t.Description)
	domain := ClassifyDomain(t.Description)

	bestIdx := 0
	bestScore := Score(&pool[0], required, domain, t.Context.TechStack)
	for i := 1; i < len(pool); i++ {
		if sc := Score(&pool[i], required, domain, t.Context.TechStack); sc > bestScore {
			bestIdx, bestScore = i, sc
		}
	}

	winner := pool[bestIdx]
	return &winner, nil
}

// Score computes the heuristic ranking score for one agent.
func Score(a *agent.Agent, required []string, domain string, techStack []string) float64 {
	score := a.Performance.SuccessRate * weightSuccessRate

	matching := 0
	for _, cap := range required {
		if a.HasCapability(cap) {
			matching++
		}
	}
	if len(required) > 0 {
		score += float64(matching) / float64(len(required)) * weightCapabilities
	}

	langMatches := 0
	for _, lang := range a.Config.PreferredLanguages {
		for _, tech := range techStack {
			if strings.EqualFold(lang, tech) {
				langMatches++
				break
			}
		}
	}
	denom := len(techStack)
	if denom < 1 {
		denom = 1
	}
	score += float64(langMatches) / float64(denom) * weightLanguages

	if a.HasSpecialization(domain) {
		score += weightSpecialization
	}

	score -= float64(a.CurrentTasks) / float64(a.Config.MaxConcurrentTasks) * weightLoadPenalty

	return score
}
