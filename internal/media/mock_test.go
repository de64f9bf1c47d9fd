package media

import (
	"context"
	"sync"
)

type runCall struct {
	name string
	args []string
}

type mockRunner struct {
	mu    sync.Mutex
	calls []runCall
	runFn func(ctx context.Context, name string, args ...string) ([]byte, error)
}

func (m *mockRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	m.mu.Lock()
	m.calls = append(m.calls, runCall{name: name, args: args})
	m.mu.Unlock()
	if m.runFn != nil {
		return m.runFn(ctx, name, args...)
	}
	return nil, nil
}

func argValue(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}
