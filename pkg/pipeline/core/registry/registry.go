// Package registry holds the static, ordered list of pipeline steps. The
// list is loaded once from an embedded YAML definition at process start and
// never mutated afterwards; the only extension point is the injection of
// pre-hook steps before a target ordinal.
package registry

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	model "github.com/tigerroll/merchpipe/pkg/pipeline/core/model"
	"github.com/tigerroll/merchpipe/pkg/pipeline/support/util/exception"
)

const componentName = "registry"

// StepDefinitionBytes holds the raw embedded step definition YAML, typically
// supplied from main.go.
type StepDefinitionBytes []byte

// stepFile is the YAML document shape of the step definition resource.
type stepFile struct {
	Steps []model.PipelineStep `yaml:"steps"`
}

// Registry is the immutable ordered step list plus injected pre-hooks.
type Registry struct {
	steps []model.PipelineStep
	// preHooks maps a target ordinal to the steps injected immediately
	// before it, in registration order.
	preHooks map[int][]model.PipelineStep
}

// Load parses and validates the embedded step definition. Ordinals are
// assigned from document order (1..N); an explicit ordinal in the document
// must match its position.
func Load(raw StepDefinitionBytes) (*Registry, error) {
	var doc stepFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, exception.NewPipelineError(componentName, "failed to parse step definitions", err, false, true)
	}
	if len(doc.Steps) == 0 {
		return nil, exception.Errorf(componentName, "step definition contains no steps").WithCritical()
	}

	seen := make(map[string]bool, len(doc.Steps))
	for i := range doc.Steps {
		step := &doc.Steps[i]
		position := i + 1
		if step.Ordinal != 0 && step.Ordinal != position {
			return nil, exception.Errorf(componentName, "step %q declares ordinal %d but is defined at position %d", step.Name, step.Ordinal, position).WithCritical()
		}
		step.Ordinal = position
		if step.Name == "" {
			return nil, exception.Errorf(componentName, "step at position %d has no name", position).WithCritical()
		}
		if seen[step.Name] {
			return nil, exception.Errorf(componentName, "duplicate step name %q", step.Name).WithCritical()
		}
		seen[step.Name] = true
		if len(step.Command) == 0 {
			return nil, exception.Errorf(componentName, "step %q has no command", step.Name).WithCritical()
		}
	}

	return &Registry{
		steps:    doc.Steps,
		preHooks: make(map[int][]model.PipelineStep),
	}, nil
}

// Len returns the number of registered steps, excluding pre-hooks.
func (r *Registry) Len() int {
	return len(r.steps)
}

// Steps returns a copy of the full ordered step list, excluding pre-hooks.
func (r *Registry) Steps() []model.PipelineStep {
	out := make([]model.PipelineStep, len(r.steps))
	copy(out, r.steps)
	return out
}

// Step returns the step with the given ordinal.
func (r *Registry) Step(ordinal int) (model.PipelineStep, error) {
	if ordinal < 1 || ordinal > len(r.steps) {
		return model.PipelineStep{}, fmt.Errorf("step ordinal %d out of range [1, %d]", ordinal, len(r.steps))
	}
	return r.steps[ordinal-1], nil
}

// InsertBefore registers a pre-hook step to run immediately before the step
// with the given target ordinal. Hooks run in registration order and inherit
// the target's ordinal for reporting purposes.
func (r *Registry) InsertBefore(targetOrdinal int, step model.PipelineStep) error {
	if targetOrdinal < 1 || targetOrdinal > len(r.steps) {
		return fmt.Errorf("pre-hook target ordinal %d out of range [1, %d]", targetOrdinal, len(r.steps))
	}
	if len(step.Command) == 0 {
		return fmt.Errorf("pre-hook %q has no command", step.Name)
	}
	step.Ordinal = targetOrdinal
	r.preHooks[targetOrdinal] = append(r.preHooks[targetOrdinal], step)
	return nil
}

// Range returns the steps in the inclusive ordinal range [start, end], with
// registered pre-hooks interleaved before their target steps.
func (r *Registry) Range(start, end int) ([]model.PipelineStep, error) {
	if start < 1 {
		start = 1
	}
	if end == 0 || end > len(r.steps) {
		end = len(r.steps)
	}
	if start > end {
		return nil, fmt.Errorf("invalid step range [%d, %d]", start, end)
	}

	var out []model.PipelineStep
	for ordinal := start; ordinal <= end; ordinal++ {
		out = append(out, r.preHooks[ordinal]...)
		out = append(out, r.steps[ordinal-1])
	}
	return out, nil
}

// Categories returns the sorted set of categories present in the registry,
// used to derive the --skip-<category> CLI flags.
func (r *Registry) Categories() []string {
	set := make(map[string]bool)
	for _, step := range r.steps {
		if step.Category != "" {
			set[step.Category] = true
		}
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
