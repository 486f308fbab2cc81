package service

import (
	"errors"
	"testing"

	"github.com/buildhive/buildhive/internal/domain/agent"
	"github.com/buildhive/buildhive/internal/domain/task"
)

func TestRequiredCapabilities(t *testing.T) {
	cases := []struct {
		description string
		want        []string
	}{
		{"build the api server", []string{"code_generation", "testing"}},
		{"deploy to production", []string{"deployment"}},
		{"fix the login bug", []string{"debugging"}},
		{"review and analyze the checkout flow", []string{"code_review", "analysis"}},
		{"ship the thing", []string{"code_generation", "problem_solving"}},
	}
	for _, tc := range cases {
		got := RequiredCapabilities(tc.description)
		if len(got) != len(tc.want) {
			t.Errorf("RequiredCapabilities(%q) = %v, want %v", tc.description, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("RequiredCapabilities(%q) = %v, want %v", tc.description, got, tc.want)
				break
			}
		}
	}
}

func TestRequiredCapabilities_UnionsRules(t *testing.T) {
	got := RequiredCapabilities("build and test and deploy the service")
	want := map[string]bool{"code_generation": true, "testing": true, "deployment": true}
	if len(got) != len(want) {
		t.Fatalf("got %v, want union of build+test+deploy rules", got)
	}
	for _, c := range got {
		if !want[c] {
			t.Errorf("unexpected capability %q in %v", c, got)
		}
	}
}

func TestClassifyDomain(t *testing.T) {
	cases := map[string]string{
		"build a react dashboard":      "web_development",
		"add a backend endpoint":       "api_development",
		"split out a microservice":     "microservices",
		"port the mobile app":          "mobile_development",
		"train the ml ranking model":   "data_science",
		"tidy the release scripts now": "general_development",
	}
	for desc, want := range cases {
		if got := ClassifyDomain(desc); got != want {
			t.Errorf("ClassifyDomain(%q) = %q, want %q", desc, got, want)
		}
	}
}

func registerScored(t *testing.T, r *agent.Registry, name string, completed, total int) {
	t.Helper()
	if _, err := r.Register(agent.Spec{
		Name:         name,
		Type:         "general",
		Capabilities: []string{"code_generation", "problem_solving"},
		Config:       agent.Config{MaxConcurrentTasks: 10},
	}); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < total; i++ {
		if _, err := r.Reserve(name); err != nil {
			t.Fatal(err)
		}
		if err := r.Release(name, i < completed); err != nil {
			t.Fatal(err)
		}
	}
}

func TestSelectBest_PrefersHigherSuccessRate(t *testing.T) {
	r := agent.NewRegistry()
	registerScored(t, r, "flaky", 2, 10)  // 0.2
	registerScored(t, r, "solid", 9, 10)  // 0.9
	registerScored(t, r, "middle", 5, 10) // 0.5

	s := NewSelector(r)
	got, err := s.SelectBest(&task.Task{Description: "ship the thing"})
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "solid" {
		t.Errorf("selected %q, want solid", got.Name)
	}
}

func TestSelectBest_TieBreaksByRegistrationOrder(t *testing.T) {
	r := agent.NewRegistry()
	for _, name := range []string{"first", "second", "third"} {
		if _, err := r.Register(agent.Spec{Name: name, Type: "general"}); err != nil {
			t.Fatal(err)
		}
	}

	s := NewSelector(r)
	got, err := s.SelectBest(&task.Task{Description: "ship the thing"})
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "first" {
		t.Errorf("selected %q, want first (registration order tie-break)", got.Name)
	}
}

func TestSelectBest_EmptyPool(t *testing.T) {
	s := NewSelector(agent.NewRegistry())
	_, err := s.SelectBest(&task.Task{Description: "anything"})
	if !errors.Is(err, agent.ErrNoAgentAvailable) {
		t.Errorf("err = %v, want ErrNoAgentAvailable", err)
	}
}

func TestSelectBestExcluding(t *testing.T) {
	r := agent.NewRegistry()
	for _, name := range []string{"atlas", "pixel"} {
		if _, err := r.Register(agent.Spec{Name: name, Type: "general"}); err != nil {
			t.Fatal(err)
		}
	}

	s := NewSelector(r)
	got, err := s.SelectBestExcluding(&task.Task{Description: "anything"}, map[string]bool{"atlas": true})
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "pixel" {
		t.Errorf("selected %q, want pixel", got.Name)
	}

	_, err = s.SelectBestExcluding(&task.Task{Description: "anything"},
		map[string]bool{"atlas": true, "pixel": true})
	if !errors.Is(err, agent.ErrNoAgentAvailable) {
		t.Errorf("err = %v, want ErrNoAgentAvailable", err)
	}
}

func TestScore_CapabilityMatch(t *testing.T) {
	full := &agent.Agent{
		Capabilities: []string{"deployment", "debugging"},
		Config:       agent.Config{MaxConcurrentTasks: 3},
	}
	none := &agent.Agent{
		Capabilities: []string{"documentation"},
		Config:       agent.Config{MaxConcurrentTasks: 3},
	}
	required := []string{"deployment", "debugging"}

	if Score(full, required, "general_development", nil) <= Score(none, required, "general_development", nil) {
		t.Error("full capability match should outscore no match")
	}
}

func TestScore_LoadPenalty(t *testing.T) {
	idle := &agent.Agent{Config: agent.Config{MaxConcurrentTasks: 4}}
	busy := &agent.Agent{CurrentTasks: 3, Config: agent.Config{MaxConcurrentTasks: 4}}

	if Score(idle, nil, "general_development", nil) <= Score(busy, nil, "general_development", nil) {
		t.Error("idle agent should outscore loaded agent")
	}
}

func TestScore_TechStackMatch(t *testing.T) {
	goAgent := &agent.Agent{
		Config: agent.Config{MaxConcurrentTasks: 3, PreferredLanguages: []string{"Go", "python"}},
	}
	jsAgent := &agent.Agent{
		Config: agent.Config{MaxConcurrentTasks: 3, PreferredLanguages: []string{"javascript"}},
	}
	stack := []string{"go", "react"}

	if Score(goAgent, nil, "general_development", stack) <= Score(jsAgent, nil, "general_development", stack) {
		t.Error("case-insensitive language match should raise the score")
	}
}

func TestScore_Specialization(t *testing.T) {
	specialist := &agent.Agent{
		Config: agent.Config{MaxConcurrentTasks: 3, Specializations: []string{"api_development"}},
	}
	generalist := &agent.Agent{
		Config: agent.Config{MaxConcurrentTasks: 3},
	}

	if Score(specialist, nil, "api_development", nil) <= Score(generalist, nil, "api_development", nil) {
		t.Error("domain specialist should outscore generalist")
	}
}
