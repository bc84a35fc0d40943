package analytics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/opensource-finance/fraudscope/internal/domain"
)

// ParseLabel reads a binary ground-truth cell. Only 0, 1, 0.0 and 1.0 are
// accepted.
func ParseLabel(cell string) (int, bool) {
	switch strings.TrimSpace(cell) {
	case "0", "0.0":
		return 0, true
	case "1", "1.0":
		return 1, true
	default:
		return 0, false
	}
}

// BuildEvaluation compares predictions with the Class column. It returns
// nil, nil when the column is absent or zero-filled and an *domain.EvaluationError when any
// value is not binary.
func BuildEvaluation(t *domain.ScoredTable) (*domain.Evaluation, error) {
	idx := t.UploadedIndex(domain.ColumnClass)
	if idx < 0 {
		return nil, nil
	}

	actual := make([]int, len(t.Rows))
	predicted := make([]int, len(t.Rows))
	scores := make([]float64, len(t.Rows))
	for i, r := range t.Rows {
		label, ok := ParseLabel(r.Values[idx])
		if !ok {
			return nil, &domain.EvaluationError{Column: domain.ColumnClass, Row: i, Value: r.Values[idx]}
		}
		actual[i] = label
		predicted[i] = r.Prediction
		scores[i] = r.Confidence
	}
	return Evaluate(actual, predicted, scores)
}

// Evaluate computes the confusion matrix, metrics and, when scores are given
// and both classes are present, the ROC curve and its AUC.
func Evaluate(actual, predicted []int, scores []float64) (*domain.Evaluation, error) {
	if len(actual) != len(predicted) {
		return nil, fmt.Errorf("have %d labels but %d predictions", len(actual), len(predicted))
	}
	if scores != nil && len(scores) != len(actual) {
		return nil, fmt.Errorf("have %d labels but %d scores", len(actual), len(scores))
	}

	ev := &domain.Evaluation{}
	for i := range actual {
		a, p := actual[i], predicted[i]
		if a < 0 || a > 1 || p < 0 || p > 1 {
			return nil, fmt.Errorf("row %d: labels must be 0 or 1", i)
		}
		ev.Confusion[a][p]++
	}

	cm := ev.Confusion
	n := cm.TN() + cm.FP() + cm.FN() + cm.TP()
	if n > 0 {
		ev.Accuracy = float64(cm.TP()+cm.TN()) / float64(n)
	}
	ev.Precision = ratio(cm.TP(), cm.TP()+cm.FP())
	ev.Recall = ratio(cm.TP(), cm.TP()+cm.FN())
	if ev.Precision+ev.Recall > 0 {
		ev.F1 = 2 * ev.Precision * ev.Recall / (ev.Precision + ev.Recall)
	}

	if scores != nil {
		ev.ROC = ROC(actual, scores)
		if ev.ROC != nil {
			auc := AUC(ev.ROC)
			ev.AUC = &auc
		}
	}
	return ev, nil
}

// ROC returns one point per distinct score threshold in descending order,
// preceded by a (0, 0) anchor with no threshold. The final point is always
// (1, 1) at the lowest score. It returns nil unless both classes are present.
func ROC(actual []int, scores []float64) []domain.ROCPoint {
	var pos, neg int
	for _, a := range actual {
		if a == 1 {
			pos++
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return nil
	}

	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i]] > scores[order[j]]
	})

	points := []domain.ROCPoint{{FPR: 0, TPR: 0}}
	var tp, fp int
	for k, i := range order {
		if actual[i] == 1 {
			tp++
		} else {
			fp++
		}
		if k+1 < len(order) && scores[order[k+1]] == scores[i] {
			continue
		}
		threshold := scores[i]
		points = append(points, domain.ROCPoint{
			FPR:       float64(fp) / float64(neg),
			TPR:       float64(tp) / float64(pos),
			Threshold: &threshold,
		})
	}
	return points
}

// AUC integrates a ROC curve with the trapezoidal rule.
func AUC(points []domain.ROCPoint) float64 {
	var area float64
	for i := 1; i < len(points); i++ {
		dx := points[i].FPR - points[i-1].FPR
		area += dx * (points[i].TPR + points[i-1].TPR) / 2
	}
	return area
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
