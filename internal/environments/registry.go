package environments

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

var (
	// ErrUnknownEnvironment is returned when the requested environment id is
	// not present in the registry.
	ErrUnknownEnvironment = errors.New("environment not configured")

	// ErrBucketNotAllowed is returned when the named bucket is not registered
	// under the requested environment.
	ErrBucketNotAllowed = errors.New("bucket not registered under environment")
)

// Environment maps one logical warehouse environment (e.g. "sap", "pd") to
// its project and the buckets authorized under it.
type Environment struct {
	ID        string   `json:"id"`
	ProjectID string   `json:"project_id"`
	Buckets   []string `json:"buckets"`
}

// Registry is the static environment mapping loaded at process start. It is
// read-only after Load, so handlers can share it without locking.
type Registry struct {
	envs []Environment
}

// Load reads the registry file and selects the section for the given
// deployment environment. The file is keyed by deployment env so one file
// can describe dev and prod side by side.
func Load(path, deployEnv string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading environment registry: %w", err)
	}

	var byDeploy map[string][]Environment
	if err := json.Unmarshal(data, &byDeploy); err != nil {
		return nil, fmt.Errorf("parsing environment registry %s: %w", path, err)
	}

	envs, ok := byDeploy[deployEnv]
	if !ok {
		return nil, fmt.Errorf("deployment environment %q not defined in %s", deployEnv, path)
	}
	return New(envs), nil
}

// New builds a registry from an in-memory environment list.
func New(envs []Environment) *Registry {
	return &Registry{envs: envs}
}

// Environments returns the configured environments in registry order.
func (r *Registry) Environments() []Environment {
	return r.envs
}

// ProjectForBucket validates that the bucket belongs to the environment and
// returns the verified project id to use for downstream calls.
func (r *Registry) ProjectForBucket(envID, bucket string) (string, error) {
	for _, env := range r.envs {
		if env.ID != envID {
			continue
		}
		for _, b := range env.Buckets {
			if b == bucket {
				return env.ProjectID, nil
			}
		}
		return "", fmt.Errorf("%w: bucket %q, environment %q", ErrBucketNotAllowed, bucket, envID)
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEnvironment, envID)
}
