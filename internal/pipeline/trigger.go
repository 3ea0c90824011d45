package pipeline

import (
	"context"
	"fmt"
	"strings"
)

// DefaultWorkspace is the workspace whose current code is compiled and run
// when a product pipeline is triggered.
const DefaultWorkspace = "development"

// Invocation is one started pipeline run.
type Invocation struct {
	ID    string `json:"invocation_id"`
	State string `json:"state"`
}

// Trigger is the workflow-orchestrator surface: compile the current workspace
// code, then invoke the compilation.
type Trigger interface {
	Compile(ctx context.Context, repository, workspace string) (string, error)
	Invoke(ctx context.Context, compilationID string) (Invocation, error)
}

// ResolveRepository maps a product folder name to its pipeline repository
// name. Hyphens are kept as-is and the redundant "-de-" particle is dropped,
// so "avisos-de-mantenimiento" becomes "df-avisos-mantenimiento".
func ResolveRepository(product string) string {
	if product == "" {
		return ""
	}
	name := strings.ToLower(strings.TrimSpace(product))
	name = strings.ReplaceAll(name, "-de-", "-")
	return "df-" + name
}

// RunAll compiles the workspace and invokes the result, replicating a manual
// "run everything" from the orchestrator console.
func RunAll(ctx context.Context, t Trigger, repository, workspace string) (Invocation, error) {
	if workspace == "" {
		workspace = DefaultWorkspace
	}

	compilationID, err := t.Compile(ctx, repository, workspace)
	if err != nil {
		return Invocation{}, fmt.Errorf("compiling %s/%s: %w", repository, workspace, err)
	}

	inv, err := t.Invoke(ctx, compilationID)
	if err != nil {
		return Invocation{}, fmt.Errorf("invoking compilation %s: %w", compilationID, err)
	}
	return inv, nil
}
