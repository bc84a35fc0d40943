// Package rules provides the CEL-Go based alert policy engine.
package rules

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/fraudscope/internal/analytics"
	"github.com/opensource-finance/fraudscope/internal/domain"
)

// Engine evaluates alert policies against scored rows.
type Engine struct {
	mu               sync.RWMutex
	env              *cel.Env
	compiledPolicies map[string]*CompiledPolicy
	maxWorkers       int
}

// CompiledPolicy holds a pre-compiled CEL program.
type CompiledPolicy struct {
	Config  *domain.AlertPolicy
	Program cel.Program
}

// NewEngine creates a new alert policy engine.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	// Variables describe one scored row
	env, err := cel.NewEnv(
		cel.Variable("confidence", cel.DoubleType),
		cel.Variable("prediction", cel.IntType),
		cel.Variable("risk_level", cel.StringType),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("has_amount", cel.BoolType),
		cel.Variable("row", cel.MapType(cel.StringType, cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:              env,
		compiledPolicies: make(map[string]*CompiledPolicy),
		maxWorkers:       maxWorkers,
	}, nil
}

// ValidatePolicy compiles and validates a policy without loading it.
func (e *Engine) ValidatePolicy(cfg *domain.AlertPolicy) error {
	if cfg == nil {
		return fmt.Errorf("policy config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compilePolicy(cfg)
	return err
}

// LoadPolicy compiles and loads a policy into the engine.
func (e *Engine) LoadPolicy(cfg *domain.AlertPolicy) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compilePolicy(cfg)
	if err != nil {
		return err
	}

	e.compiledPolicies[cfg.ID] = compiled

	return nil
}

// LoadPolicies compiles and loads every enabled policy.
func (e *Engine) LoadPolicies(configs []domain.AlertPolicy) error {
	for i := range configs {
		if configs[i].Enabled {
			if err := e.LoadPolicy(&configs[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadPolicies replaces all loaded policies.
func (e *Engine) ReloadPolicies(configs []domain.AlertPolicy) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newPolicies := make(map[string]*CompiledPolicy)
	for i := range configs {
		if !configs[i].Enabled {
			continue
		}
		compiled, err := e.compilePolicy(&configs[i])
		if err != nil {
			return err
		}
		newPolicies[configs[i].ID] = compiled
	}

	e.compiledPolicies = newPolicies

	return nil
}

// PoliciesCount returns the number of loaded policies.
func (e *Engine) PoliciesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledPolicies)
}

// GetLoadedPolicies returns the loaded policy configurations ordered by ID.
func (e *Engine) GetLoadedPolicies() []*domain.AlertPolicy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]*domain.AlertPolicy, 0, len(e.compiledPolicies))
	for _, compiled := range e.compiledPolicies {
		policies = append(policies, compiled.Config)
	}
	sort.Slice(policies, func(i, j int) bool { return policies[i].ID < policies[j].ID })
	return policies
}

// EvaluateTable evaluates every loaded policy against every row. Matches and
// per-row evaluation errors are returned ordered by row, then policy ID.
func (e *Engine) EvaluateTable(ctx context.Context, t *domain.ScoredTable) ([]domain.AlertMatch, error) {
	e.mu.RLock()
	policies := make([]*CompiledPolicy, 0, len(e.compiledPolicies))
	for _, p := range e.compiledPolicies {
		policies = append(policies, p)
	}
	e.mu.RUnlock()

	if len(policies) == 0 || t == nil || len(t.Rows) == 0 {
		return nil, nil
	}
	sort.Slice(policies, func(i, j int) bool { return policies[i].Config.ID < policies[j].Config.ID })

	amountIdx := t.UploadedIndex(domain.ColumnAmount)

	// Parallel evaluation using worker pool pattern
	perRow := make([][]domain.AlertMatch, len(t.Rows))
	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, e.maxWorkers)

	for i := range t.Rows {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return nil, err
		}

		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			activation := rowActivation(t, t.Rows[idx], amountIdx)
			for _, p := range policies {
				if m, ok := evaluatePolicy(p, activation, idx); ok {
					perRow[idx] = append(perRow[idx], m)
				}
			}
		}(i)
	}

	wg.Wait()

	var matches []domain.AlertMatch
	for _, m := range perRow {
		matches = append(matches, m...)
	}
	return matches, nil
}

// rowActivation prepares the CEL variables for one scored row.
func rowActivation(t *domain.ScoredTable, r domain.ScoredRow, amountIdx int) map[string]any {
	row := make(map[string]string, len(t.Columns)+4)
	for i, c := range t.Columns {
		if i < len(r.Values) {
			row[c] = r.Values[i]
		}
	}
	row[domain.ColumnPrediction] = fmt.Sprintf("%d", r.Prediction)
	row[domain.ColumnPredictionLabel] = r.PredictionLabel
	row[domain.ColumnConfidence] = fmt.Sprintf("%g", r.Confidence)
	row[domain.ColumnRiskLevel] = string(r.RiskLevel)

	var amount float64
	hasAmount := false
	if amountIdx >= 0 && amountIdx < len(r.Values) {
		amount, hasAmount = analytics.ParseNumber(r.Values[amountIdx])
	}

	return map[string]any{
		"confidence": r.Confidence,
		"prediction": int64(r.Prediction),
		"risk_level": string(r.RiskLevel),
		"amount":     amount,
		"has_amount": hasAmount,
		"row":        row,
	}
}

// evaluatePolicy runs one policy against one row. It reports a match when the
// expression is true, and an error outcome when evaluation fails.
func evaluatePolicy(p *CompiledPolicy, activation map[string]any, rowIdx int) (domain.AlertMatch, bool) {
	m := domain.AlertMatch{
		PolicyID: p.Config.ID,
		RowIndex: rowIdx,
	}

	out, _, err := p.Program.Eval(activation)
	if err != nil {
		m.Outcome = domain.AlertOutcomeError
		m.Reason = fmt.Sprintf("evaluation error: %v", err)
		return m, true
	}

	if b, ok := out.(types.Bool); !ok || !bool(b) {
		return m, false
	}

	m.Outcome = domain.AlertOutcomeMatch
	m.Reason = p.Config.Reason
	if m.Reason == "" {
		m.Reason = p.Config.Name
	}
	return m, true
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledPolicies = make(map[string]*CompiledPolicy)
	return nil
}

func (e *Engine) compilePolicy(cfg *domain.AlertPolicy) (*CompiledPolicy, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("policy ID is required")
	}

	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile policy %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("policy %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for policy %s: %w", cfg.ID, err)
	}

	return &CompiledPolicy{
		Config:  cfg,
		Program: program,
	}, nil
}
