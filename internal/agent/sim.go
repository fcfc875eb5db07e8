package agent

import (
	"context"
	"fmt"
)

// SimulatedRunner performs no real work. It is the default engine so the
// server stays usable without credentials or a browser environment.
type SimulatedRunner struct{}

func NewSimulatedRunner() *SimulatedRunner {
	return &SimulatedRunner{}
}

func (r *SimulatedRunner) Name() string {
	return EngineSimulated
}

func (r *SimulatedRunner) Run(ctx context.Context, task Task) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Result{
		Final: fmt.Sprintf("Simulation terminée ! Tâche: '%s' (aucune action réelle exécutée)", task.Text),
		Steps: []StepOutcome{
			{Content: "analyse simulée de la tâche"},
			{Content: "exécution simulée"},
		},
	}, nil
}
