package sim

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/buildhive/buildhive/internal/domain/agent"
	"github.com/buildhive/buildhive/internal/domain/task"
)

func newExecutor(t *testing.T, typ string) *Executor {
	t.Helper()
	f := factory(typ)
	e, err := f(map[string]string{"base_duration": "1ms"})
	if err != nil {
		t.Fatalf("factory(%s): %v", typ, err)
	}
	return e.(*Executor)
}

func TestExecutor_Execute(t *testing.T) {
	e := newExecutor(t, "backend")
	ag := &agent.Agent{Name: "socket", Type: "backend"}
	tk := &task.Task{ID: "t1", Description: "build the api", Type: task.TypeBuild}

	raw, err := e.Execute(context.Background(), ag, tk)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	var result map[string]any
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result["agent"] != "socket" {
		t.Errorf("agent = %v, want socket", result["agent"])
	}
	if result["task_type"] != "build" {
		t.Errorf("task_type = %v, want build", result["task_type"])
	}
	if result["summary"] == "" {
		t.Error("summary missing from result")
	}
}

func TestExecutor_ExecuteCancelled(t *testing.T) {
	f := factory("general")
	e, err := f(map[string]string{"base_duration": "10s"})
	if err != nil {
		t.Fatalf("factory: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = e.Execute(ctx, &agent.Agent{Name: "x"}, &task.Task{ID: "t1"})
	if err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestFactory_InvalidBaseDuration(t *testing.T) {
	f := factory("frontend")
	if _, err := f(map[string]string{"base_duration": "banana"}); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestResultFor_UnknownTypeFallsBack(t *testing.T) {
	fn := resultFor("quantum")
	got := fn(&agent.Agent{}, &task.Task{Description: "d"})
	if got["summary"] != "task handled" {
		t.Errorf("summary = %v, want general flavor", got["summary"])
	}
}
