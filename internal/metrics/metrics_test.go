package metrics

import (
	"math"
	"math/rand"
	"testing"
)

func TestPerfectClassifier(t *testing.T) {
	labels := []int{0, 0, 1, 1}
	probs := []float64{0.1, 0.2, 0.8, 0.9}

	b := Compute(labels, probs)
	for name, got := range map[string]float64{
		"accuracy":  b.Accuracy,
		"precision": b.Precision,
		"recall":    b.Recall,
		"mcc":       b.MCC,
		"roc_auc":   b.ROCAUC,
		"f1":        b.F1,
		"prc_auc":   b.PRCAUC,
	} {
		if math.Abs(got-1) > 1e-9 {
			t.Fatalf("%s on perfect classifier: got=%f want=1", name, got)
		}
	}
}

func TestInvertedClassifier(t *testing.T) {
	labels := []int{0, 0, 1, 1}
	probs := []float64{0.9, 0.8, 0.2, 0.1}

	if got := Accuracy(labels, probs); got != 0 {
		t.Fatalf("accuracy: got=%f want=0", got)
	}
	if got := ROCAUC(labels, probs); got != 0 {
		t.Fatalf("roc_auc: got=%f want=0", got)
	}
	if got := MCC(labels, probs); math.Abs(got+1) > 1e-9 {
		t.Fatalf("mcc: got=%f want=-1", got)
	}
}

func TestMetricRanges(t *testing.T) {
	r := rand.New(rand.NewSource(5))
	for trial := 0; trial < 50; trial++ {
		n := 2 + r.Intn(30)
		labels := make([]int, n)
		probs := make([]float64, n)
		for i := range labels {
			labels[i] = r.Intn(2)
			probs[i] = r.Float64()
		}
		b := Compute(labels, probs)
		for name, v := range map[string]float64{
			"accuracy":  b.Accuracy,
			"precision": b.Precision,
			"recall":    b.Recall,
			"roc_auc":   b.ROCAUC,
			"f1":        b.F1,
			"prc_auc":   b.PRCAUC,
		} {
			if v < 0 || v > 1 {
				t.Fatalf("trial %d: %s=%f outside [0,1]", trial, name, v)
			}
		}
		if b.MCC < -1 || b.MCC > 1 {
			t.Fatalf("trial %d: mcc=%f outside [-1,1]", trial, b.MCC)
		}
	}
}

func TestROCAUCHandlesTies(t *testing.T) {
	labels := []int{1, 0, 1, 0}
	probs := []float64{0.5, 0.5, 0.5, 0.5}
	if got := ROCAUC(labels, probs); math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("tied scores: got=%f want=0.5", got)
	}
}

func TestROCAUCSingleClass(t *testing.T) {
	if got := ROCAUC([]int{1, 1}, []float64{0.2, 0.9}); got != 0.5 {
		t.Fatalf("single-class roc: got=%f want=0.5", got)
	}
}

func TestROCAUCKnownValue(t *testing.T) {
	// One inversion among 2x2 pairs: AUC = 3/4.
	labels := []int{0, 1, 0, 1}
	probs := []float64{0.4, 0.37, 0.35, 0.8}
	if got := ROCAUC(labels, probs); math.Abs(got-0.75) > 1e-9 {
		t.Fatalf("roc_auc: got=%f want=0.75", got)
	}
}

func TestPrecisionRecallDegenerate(t *testing.T) {
	// No positive predictions at all.
	labels := []int{1, 0}
	probs := []float64{0.2, 0.3}
	if got := Precision(labels, probs); got != 0 {
		t.Fatalf("precision with no positive predictions: got=%f want=0", got)
	}
	if got := F1(labels, probs); got != 0 {
		t.Fatalf("f1 with no positive predictions: got=%f want=0", got)
	}
}

func TestBundleAddScale(t *testing.T) {
	a := Bundle{Accuracy: 0.5, F1: 0.25}
	b := Bundle{Accuracy: 0.1, F1: 0.25}
	sum := a.Add(b).Scale(0.5)
	if math.Abs(sum.Accuracy-0.3) > 1e-9 || math.Abs(sum.F1-0.25) > 1e-9 {
		t.Fatalf("bundle arithmetic: got=%+v", sum)
	}
}
