package executor

import (
	"fmt"
	"sync"
)

// Factory is a constructor function that creates a new Executor instance.
type Factory func(config map[string]string) (Executor, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes an executor factory available for an agent type.
// It is typically called from the adapter package's registration hook.
func Register(agentType string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := factories[agentType]; exists {
		panic(fmt.Sprintf("executor: duplicate registration for %q", agentType))
	}
	factories[agentType] = factory
}

// New creates an Executor for the given agent type using the registered factory.
func New(agentType string, config map[string]string) (Executor, error) {
	mu.RLock()
	factory, ok := factories[agentType]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("executor: no executor registered for agent type %q", agentType)
	}
	return factory(config)
}

// Available returns the agent types with a registered executor.
func Available() []string {
	mu.RLock()
	defer mu.RUnlock()

	types := make([]string, 0, len(factories))
	for t := range factories {
		types = append(types, t)
	}
	return types
}
