package cmd

import (
	"encoding/json"

	"github.com/KaramelBytes/csvagent/internal/session"
)

// newEnv builds the shared components from the loaded configuration.
func newEnv() (*session.Env, error) {
	c, err := requireConfig()
	if err != nil {
		return nil, err
	}
	return session.NewEnv(c, logger)
}

// openSession loads path into a fresh environment. The caller closes env.
func openSession(path string, lazy bool) (*session.Env, *session.Session, error) {
	env, err := newEnv()
	if err != nil {
		return nil, nil, err
	}
	s, err := env.Open(path, lazy)
	if err != nil {
		_ = env.Close()
		return nil, nil, err
	}
	return env, s, nil
}

// argsJSON encodes tool arguments the way a model sends them.
func argsJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
