package flowgate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Env is an immutable snapshot of configuration variables. Providers never
// read the process environment; the registry resolves their configuration
// from an Env once per resolution.
type Env map[string]string

// EnvFromOS snapshots the process environment.
func EnvFromOS() Env {
	env := make(Env)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok {
			env[k] = v
		}
	}
	return env
}

// LoadEnv layers the given .env files under the process environment.
// Later files override earlier ones; the process environment overrides both.
// Missing files are skipped.
func LoadEnv(files ...string) (Env, error) {
	env := make(Env)
	for _, f := range files {
		vals, err := godotenv.Read(f)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("flowgate: read env file %s: %w", f, err)
		}
		for k, v := range vals {
			env[k] = v
		}
	}
	for k, v := range EnvFromOS() {
		env[k] = v
	}
	return env, nil
}

// Get returns the trimmed value of key.
func (e Env) Get(key string) string {
	return strings.TrimSpace(e[key])
}

// First returns the first non-empty value among keys.
func (e Env) First(keys ...string) string {
	for _, k := range keys {
		if v := e.Get(k); v != "" {
			return v
		}
	}
	return ""
}
