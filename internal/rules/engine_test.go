package rules

import (
	"context"
	"fmt"
	"testing"

	"github.com/opensource-finance/fraudscope/internal/domain"
)

func testTable() *domain.ScoredTable {
	return domain.NewScoredTable(
		[]string{"V1", "Amount", "Merchant"},
		[]domain.ScoredRow{
			{Index: 0, Values: []string{"1", "2500", "acme"}, Prediction: 1, PredictionLabel: domain.LabelPotentiallyFraudulent, Confidence: 0.97, RiskLevel: domain.RiskHigh},
			{Index: 1, Values: []string{"2", "40", "acme"}, Prediction: 0, PredictionLabel: domain.LabelNotFraudulent, Confidence: 0.1, RiskLevel: domain.RiskSafe},
			{Index: 2, Values: []string{"3", "", "globex"}, Prediction: 1, PredictionLabel: domain.LabelPotentiallyFraudulent, Confidence: 0.72, RiskLevel: domain.RiskMedium},
		},
	)
}

func TestEngineCreation(t *testing.T) {
	engine, err := NewEngine(5)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	defer engine.Close()

	if engine.PoliciesCount() != 0 {
		t.Errorf("expected 0 policies, got %d", engine.PoliciesCount())
	}
}

func TestLoadPolicy(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	policy := &domain.AlertPolicy{
		ID:         "high-confidence",
		Name:       "High Confidence",
		Expression: "confidence > 0.9",
		Enabled:    true,
	}

	if err := engine.LoadPolicy(policy); err != nil {
		t.Fatalf("failed to load policy: %v", err)
	}

	if engine.PoliciesCount() != 1 {
		t.Errorf("expected 1 policy, got %d", engine.PoliciesCount())
	}
}

func TestLoadInvalidPolicy(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	tests := map[string]*domain.AlertPolicy{
		"invalid CEL":      {ID: "invalid", Expression: "this is not valid CEL !!!", Enabled: true},
		"non-bool output":  {ID: "numeric", Expression: "confidence * 2.0", Enabled: true},
		"unknown variable": {ID: "unknown", Expression: "velocity_count > 10", Enabled: true},
		"missing id":       {Expression: "confidence > 0.5", Enabled: true},
	}

	for name, policy := range tests {
		t.Run(name, func(t *testing.T) {
			if err := engine.LoadPolicy(policy); err == nil {
				t.Error("expected error loading policy")
			}
			if err := engine.ValidatePolicy(policy); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	if engine.PoliciesCount() != 0 {
		t.Errorf("invalid policies must not be loaded, got %d", engine.PoliciesCount())
	}
}

func TestLoadPoliciesSkipsDisabled(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	err := engine.LoadPolicies([]domain.AlertPolicy{
		{ID: "a", Expression: "prediction == 1", Enabled: true},
		{ID: "b", Expression: "prediction == 0", Enabled: false},
	})
	if err != nil {
		t.Fatalf("failed to load policies: %v", err)
	}

	loaded := engine.GetLoadedPolicies()
	if len(loaded) != 1 || loaded[0].ID != "a" {
		t.Errorf("expected only policy a, got %v", loaded)
	}
}

func TestEvaluateTable(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	err := engine.LoadPolicies([]domain.AlertPolicy{
		{
			ID:         "large-fraud",
			Name:       "Large Fraudulent Amount",
			Expression: "prediction == 1 && has_amount && amount > 1000.0",
			Reason:     "fraudulent transaction above 1000",
			Enabled:    true,
		},
		{
			ID:         "high-risk",
			Name:       "High Risk Tier",
			Expression: "risk_level == 'High Risk'",
			Enabled:    true,
		},
		{
			ID:         "merchant",
			Expression: "row['Merchant'] == 'globex' && row['Risk_Level'] != 'Safe'",
			Reason:     "flagged merchant",
			Enabled:    true,
		},
	})
	if err != nil {
		t.Fatalf("failed to load policies: %v", err)
	}

	matches, err := engine.EvaluateTable(context.Background(), testTable())
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}

	want := []domain.AlertMatch{
		{PolicyID: "high-risk", RowIndex: 0, Outcome: domain.AlertOutcomeMatch, Reason: "High Risk Tier"},
		{PolicyID: "large-fraud", RowIndex: 0, Outcome: domain.AlertOutcomeMatch, Reason: "fraudulent transaction above 1000"},
		{PolicyID: "merchant", RowIndex: 2, Outcome: domain.AlertOutcomeMatch, Reason: "flagged merchant"},
	}
	if len(matches) != len(want) {
		t.Fatalf("expected %d matches, got %d: %v", len(want), len(matches), matches)
	}
	for i := range want {
		if matches[i] != want[i] {
			t.Errorf("match %d: expected %+v, got %+v", i, want[i], matches[i])
		}
	}
}

func TestEvaluationErrorIsPerRow(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	policy := &domain.AlertPolicy{
		ID:         "missing-column",
		Expression: "row['DeviceID'] == 'x'",
		Enabled:    true,
	}
	if err := engine.LoadPolicy(policy); err != nil {
		t.Fatalf("failed to load policy: %v", err)
	}

	matches, err := engine.EvaluateTable(context.Background(), testTable())
	if err != nil {
		t.Fatalf("evaluation must not fail: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("expected one error per row, got %d", len(matches))
	}
	for i, m := range matches {
		if m.Outcome != domain.AlertOutcomeError {
			t.Errorf("row %d: expected %s, got %s", i, domain.AlertOutcomeError, m.Outcome)
		}
		if m.RowIndex != i {
			t.Errorf("expected row %d, got %d", i, m.RowIndex)
		}
	}
}

func TestNoAmountColumn(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	engine.LoadPolicy(&domain.AlertPolicy{ID: "no-amount", Expression: "!has_amount && amount == 0.0", Enabled: true})

	tbl := domain.NewScoredTable([]string{"V1"}, []domain.ScoredRow{
		{Values: []string{"1"}, Prediction: 1, Confidence: 0.8, RiskLevel: domain.RiskMedium},
	})
	matches, _ := engine.EvaluateTable(context.Background(), tbl)
	if len(matches) != 1 || matches[0].Outcome != domain.AlertOutcomeMatch {
		t.Errorf("expected a match when Amount is absent, got %v", matches)
	}
}

func TestParallelExecution(t *testing.T) {
	engine, _ := NewEngine(3)
	defer engine.Close()

	for i := 0; i < 10; i++ {
		engine.LoadPolicy(&domain.AlertPolicy{
			ID:         fmt.Sprintf("policy-%02d", i),
			Expression: "confidence >= 0.0",
			Enabled:    true,
		})
	}

	rows := make([]domain.ScoredRow, 200)
	for i := range rows {
		rows[i] = domain.ScoredRow{Index: i, Values: []string{}, Confidence: 0.5, RiskLevel: domain.RiskSafe}
	}

	matches, err := engine.EvaluateTable(context.Background(), domain.NewScoredTable(nil, rows))
	if err != nil {
		t.Fatalf("parallel evaluation failed: %v", err)
	}
	if len(matches) != 2000 {
		t.Fatalf("expected 2000 matches, got %d", len(matches))
	}

	// ordered by row, then policy
	for i, m := range matches {
		if m.RowIndex != i/10 {
			t.Fatalf("match %d: expected row %d, got %d", i, i/10, m.RowIndex)
		}
		if want := fmt.Sprintf("policy-%02d", i%10); m.PolicyID != want {
			t.Fatalf("match %d: expected %s, got %s", i, want, m.PolicyID)
		}
	}
}

func TestCancelledContext(t *testing.T) {
	engine, _ := NewEngine(2)
	defer engine.Close()

	engine.LoadPolicy(&domain.AlertPolicy{ID: "p", Expression: "true", Enabled: true})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := engine.EvaluateTable(ctx, testTable()); err == nil {
		t.Error("expected context error")
	}
}

func TestReloadPolicies(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	engine.LoadPolicy(&domain.AlertPolicy{ID: "old", Expression: "true", Enabled: true})

	err := engine.ReloadPolicies([]domain.AlertPolicy{
		{ID: "new-1", Expression: "prediction == 1", Enabled: true},
		{ID: "new-2", Expression: "confidence > 0.5", Enabled: true},
	})
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if engine.PoliciesCount() != 2 {
		t.Errorf("expected 2 policies after reload, got %d", engine.PoliciesCount())
	}

	// a failed reload keeps the current policies
	err = engine.ReloadPolicies([]domain.AlertPolicy{{ID: "bad", Expression: "(((", Enabled: true}})
	if err == nil {
		t.Fatal("expected reload error")
	}
	if engine.PoliciesCount() != 2 {
		t.Errorf("expected policies to survive failed reload, got %d", engine.PoliciesCount())
	}
}

func TestZeroFilledAmount(t *testing.T) {
	engine, _ := NewEngine(2)
	defer engine.Close()

	engine.LoadPolicy(&domain.AlertPolicy{ID: "has-amount", Expression: "has_amount", Enabled: true})

	tbl := testTable()
	tbl.MarkFilled(domain.ColumnAmount)

	matches, err := engine.EvaluateTable(context.Background(), tbl)
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("expected no matches for a zero-filled Amount, got %v", matches)
	}
}
