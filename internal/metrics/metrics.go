// Package metrics scores binary classifiers from ground-truth labels
// and predicted positive-class probabilities. All functions are
// order-insensitive over the example axis; threshold-based metrics cut
// at 0.5.
package metrics

import (
	"math"
	"sort"
)

// Bundle is the fixed set of scores computed on a query set after
// adaptation.
type Bundle struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	MCC       float64 `json:"mcc"`
	ROCAUC    float64 `json:"roc_auc"`
	F1        float64 `json:"f1"`
	PRCAUC    float64 `json:"prc_auc"`
}

// Compute scores labels against probabilities across the whole bundle.
func Compute(labels []int, probs []float64) Bundle {
	return Bundle{
		Accuracy:  Accuracy(labels, probs),
		Precision: Precision(labels, probs),
		Recall:    Recall(labels, probs),
		MCC:       MCC(labels, probs),
		ROCAUC:    ROCAUC(labels, probs),
		F1:        F1(labels, probs),
		PRCAUC:    PRCAUC(labels, probs),
	}
}

// Add returns the element-wise sum of two bundles.
func (b Bundle) Add(o Bundle) Bundle {
	return Bundle{
		Accuracy:  b.Accuracy + o.Accuracy,
		Precision: b.Precision + o.Precision,
		Recall:    b.Recall + o.Recall,
		MCC:       b.MCC + o.MCC,
		ROCAUC:    b.ROCAUC + o.ROCAUC,
		F1:        b.F1 + o.F1,
		PRCAUC:    b.PRCAUC + o.PRCAUC,
	}
}

// Scale returns the bundle with every score multiplied by c.
func (b Bundle) Scale(c float64) Bundle {
	return Bundle{
		Accuracy:  b.Accuracy * c,
		Precision: b.Precision * c,
		Recall:    b.Recall * c,
		MCC:       b.MCC * c,
		ROCAUC:    b.ROCAUC * c,
		F1:        b.F1 * c,
		PRCAUC:    b.PRCAUC * c,
	}
}

func confusion(labels []int, probs []float64) (tp, tn, fp, fn float64) {
	for i, y := range labels {
		predicted := 0
		if probs[i] >= 0.5 {
			predicted = 1
		}
		switch {
		case y == 1 && predicted == 1:
			tp++
		case y == 0 && predicted == 0:
			tn++
		case y == 0 && predicted == 1:
			fp++
		default:
			fn++
		}
	}
	return
}

func Accuracy(labels []int, probs []float64) float64 {
	if len(labels) == 0 {
		return 0
	}
	tp, tn, _, _ := confusion(labels, probs)
	return (tp + tn) / float64(len(labels))
}

func Precision(labels []int, probs []float64) float64 {
	tp, _, fp, _ := confusion(labels, probs)
	if tp+fp == 0 {
		return 0
	}
	return tp / (tp + fp)
}

func Recall(labels []int, probs []float64) float64 {
	tp, _, _, fn := confusion(labels, probs)
	if tp+fn == 0 {
		return 0
	}
	return tp / (tp + fn)
}

func F1(labels []int, probs []float64) float64 {
	p := Precision(labels, probs)
	r := Recall(labels, probs)
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

// MCC is the Matthews correlation coefficient; 0 when any marginal of
// the confusion matrix is empty.
func MCC(labels []int, probs []float64) float64 {
	tp, tn, fp, fn := confusion(labels, probs)
	denom := (tp + fp) * (tp + fn) * (tn + fp) * (tn + fn)
	if denom == 0 {
		return 0
	}
	return (tp*tn - fp*fn) / math.Sqrt(denom)
}

// ROCAUC computes the area under the ROC curve by the rank statistic,
// averaging ranks across tied scores. A query set with a single class
// has no curve; 0.5 is returned for it.
func ROCAUC(labels []int, probs []float64) float64 {
	n := len(labels)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return probs[idx[a]] < probs[idx[b]] })

	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j < n && probs[idx[j]] == probs[idx[i]] {
			j++
		}
		avg := float64(i+j+1) / 2 // ranks are 1-based
		for k := i; k < j; k++ {
			ranks[idx[k]] = avg
		}
		i = j
	}

	var pos, rankSum float64
	for i, y := range labels {
		if y == 1 {
			pos++
			rankSum += ranks[i]
		}
	}
	neg := float64(n) - pos
	if pos == 0 || neg == 0 {
		return 0.5
	}
	return (rankSum - pos*(pos+1)/2) / (pos * neg)
}

// PRCAUC computes average precision, the step-wise area under the
// precision-recall curve.
func PRCAUC(labels []int, probs []float64) float64 {
	n := len(labels)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return probs[idx[a]] > probs[idx[b]] })

	var totalPos float64
	for _, y := range labels {
		if y == 1 {
			totalPos++
		}
	}
	if totalPos == 0 {
		return 0
	}

	var tp, fp, ap, prevRecall float64
	for i := 0; i < n; {
		// Consume whole tie groups before updating the curve.
		j := i
		for j < n && probs[idx[j]] == probs[idx[i]] {
			if labels[idx[j]] == 1 {
				tp++
			} else {
				fp++
			}
			j++
		}
		recall := tp / totalPos
		precision := tp / (tp + fp)
		ap += (recall - prevRecall) * precision
		prevRecall = recall
		i = j
	}
	return ap
}
