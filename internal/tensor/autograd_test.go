package tensor

import (
	"math"
	"math/rand"
	"testing"
)

func TestBackwardSimpleChain(t *testing.T) {
	x := Scalar(3).RequireGrad()
	y := Scalar(4).RequireGrad()

	// L = (x*y + x)^2  =>  dL/dx = 2(xy+x)(y+1), dL/dy = 2(xy+x)x
	inner := Add(Mul(x, y), x)
	loss := Mul(inner, inner)
	if err := Backward(loss); err != nil {
		t.Fatalf("backward: %v", err)
	}

	wantX := 2 * 15.0 * 5.0
	wantY := 2 * 15.0 * 3.0
	if got := x.Grad().Item(); !almostEqual(got, wantX, 1e-9) {
		t.Fatalf("dL/dx: got=%f want=%f", got, wantX)
	}
	if got := y.Grad().Item(); !almostEqual(got, wantY, 1e-9) {
		t.Fatalf("dL/dy: got=%f want=%f", got, wantY)
	}
}

func TestBackwardNeedsScalarLoss(t *testing.T) {
	x := FromSlice([]float64{1, 2}, 2).RequireGrad()
	if err := Backward(Scale(x, 2)); err == nil {
		t.Fatal("expected non-scalar loss error")
	}
}

func TestGradDoesNotTouchStoredGradients(t *testing.T) {
	x := Scalar(2).RequireGrad()
	loss := Mul(x, x)
	grads, err := Grad(loss, []*Tensor{x}, false)
	if err != nil {
		t.Fatalf("grad: %v", err)
	}
	if got := grads[0].Item(); !almostEqual(got, 4, 1e-9) {
		t.Fatalf("grad value: got=%f want=4", got)
	}
	if x.Grad() != nil {
		t.Fatal("Grad must not write the leaf's stored gradient")
	}
}

func TestGradUnreachableParameter(t *testing.T) {
	x := Scalar(2).RequireGrad()
	orphan := Scalar(1).RequireGrad()
	if _, err := Grad(Mul(x, x), []*Tensor{orphan}, false); err == nil {
		t.Fatal("expected unreachable parameter error")
	}
}

func TestGradRetainGraphSupportsSecondBackward(t *testing.T) {
	x := Scalar(3).RequireGrad()

	// y = x^3, dy/dx = 3x^2 = 27, d2y/dx2 = 6x = 18.
	y := Mul(Mul(x, x), x)
	first, err := Grad(y, []*Tensor{x}, true)
	if err != nil {
		t.Fatalf("first grad: %v", err)
	}
	if got := first[0].Item(); !almostEqual(got, 27, 1e-9) {
		t.Fatalf("first grad: got=%f want=27", got)
	}

	second, err := Grad(first[0], []*Tensor{x}, false)
	if err != nil {
		t.Fatalf("second grad: %v", err)
	}
	if got := second[0].Item(); !almostEqual(got, 18, 1e-9) {
		t.Fatalf("second grad: got=%f want=18", got)
	}
}

func TestGradWithoutRetentionIsDetached(t *testing.T) {
	x := Scalar(3).RequireGrad()
	y := Mul(x, x)
	grads, err := Grad(y, []*Tensor{x}, false)
	if err != nil {
		t.Fatalf("grad: %v", err)
	}
	if !grads[0].IsLeaf() {
		t.Fatal("detached gradient still carries a graph")
	}
}

// numericGrad approximates dL/dp[i] by central differences.
func numericGrad(t *testing.T, loss func() *Tensor, p *Tensor, i int) float64 {
	t.Helper()
	const h = 1e-6
	orig := p.Data()[i]
	p.Data()[i] = orig + h
	plus := loss().Item()
	p.Data()[i] = orig - h
	minus := loss().Item()
	p.Data()[i] = orig
	return (plus - minus) / (2 * h)
}

func TestMatMulGradMatchesNumeric(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	a := Randn(r, 1, 2, 3).RequireGrad()
	b := Randn(r, 1, 3, 2).RequireGrad()

	loss := func() *Tensor { return Sum(Relu(MatMul(a, b))) }
	grads, err := Grad(loss(), []*Tensor{a, b}, false)
	if err != nil {
		t.Fatalf("grad: %v", err)
	}
	for i := range a.Data() {
		want := numericGrad(t, loss, a, i)
		if got := grads[0].Data()[i]; !almostEqual(got, want, 1e-4) {
			t.Fatalf("dL/da[%d]: got=%f want=%f", i, got, want)
		}
	}
	for i := range b.Data() {
		want := numericGrad(t, loss, b, i)
		if got := grads[1].Data()[i]; !almostEqual(got, want, 1e-4) {
			t.Fatalf("dL/db[%d]: got=%f want=%f", i, got, want)
		}
	}
}

func TestCrossEntropyGradMatchesNumeric(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	logits := Randn(r, 1, 4, 2).RequireGrad()
	labels := []int{0, 1, 1, 0}

	loss := func() *Tensor { return CrossEntropyLogits(logits, labels) }
	grads, err := Grad(loss(), []*Tensor{logits}, false)
	if err != nil {
		t.Fatalf("grad: %v", err)
	}
	for i := range logits.Data() {
		want := numericGrad(t, loss, logits, i)
		if got := grads[0].Data()[i]; !almostEqual(got, want, 1e-4) {
			t.Fatalf("dL/dlogits[%d]: got=%f want=%f", i, got, want)
		}
	}
}

func TestGatherScatterGrad(t *testing.T) {
	a := FromSlice([]float64{1, 2, 3, 4, 5, 6}, 3, 2).RequireGrad()
	// Row 1 is selected twice, row 2 never, one padded slot.
	g := GatherRows(a, []int{1, 1, 0, -1})
	loss := Sum(g)
	grads, err := Grad(loss, []*Tensor{a}, false)
	if err != nil {
		t.Fatalf("grad: %v", err)
	}
	want := []float64{1, 1, 2, 2, 0, 0}
	for i, w := range want {
		if got := grads[0].Data()[i]; !almostEqual(got, w, 1e-9) {
			t.Fatalf("scattered grad[%d]: got=%f want=%f", i, got, w)
		}
	}
}

func TestSoftmaxRowsSumToOne(t *testing.T) {
	a := FromSlice([]float64{1, 2, 3, -5, 0, 5}, 2, 3)
	s := Softmax(a)
	for i := 0; i < 2; i++ {
		sum := 0.0
		for j := 0; j < 3; j++ {
			sum += s.At(i, j)
		}
		if !almostEqual(sum, 1, 1e-9) {
			t.Fatalf("row %d sums to %f", i, sum)
		}
	}
}

func TestSoftmaxGradMatchesNumeric(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	a := Randn(r, 1, 2, 3).RequireGrad()
	weights := Randn(r, 1, 2, 3)

	loss := func() *Tensor { return Sum(Mul(Softmax(a), weights)) }
	grads, err := Grad(loss(), []*Tensor{a}, false)
	if err != nil {
		t.Fatalf("grad: %v", err)
	}
	for i := range a.Data() {
		want := numericGrad(t, loss, a, i)
		if got := grads[0].Data()[i]; !almostEqual(got, want, 1e-4) {
			t.Fatalf("dL/da[%d]: got=%f want=%f", i, got, want)
		}
	}
}

func TestBlockGrad(t *testing.T) {
	a := FromSlice([]float64{1, 2, 3, 4, 5, 6, 7, 8}, 2, 2, 2).RequireGrad()
	loss := Sum(Block(a, 1))
	grads, err := Grad(loss, []*Tensor{a}, false)
	if err != nil {
		t.Fatalf("grad: %v", err)
	}
	want := []float64{0, 0, 0, 0, 1, 1, 1, 1}
	for i, w := range want {
		if got := grads[0].Data()[i]; got != w {
			t.Fatalf("block grad[%d]: got=%f want=%f", i, got, w)
		}
	}
}

func TestMeanGrad(t *testing.T) {
	a := FromSlice([]float64{2, 4, 6, 8}, 4).RequireGrad()
	grads, err := Grad(Mean(a), []*Tensor{a}, false)
	if err != nil {
		t.Fatalf("grad: %v", err)
	}
	for i := range a.Data() {
		if got := grads[0].Data()[i]; !almostEqual(got, 0.25, 1e-12) {
			t.Fatalf("mean grad[%d]: got=%f want=0.25", i, got)
		}
	}
}

func TestDivSqrtGradMatchesNumeric(t *testing.T) {
	a := FromSlice([]float64{1.5, 2.5, 3.5}, 3).RequireGrad()
	b := FromSlice([]float64{0.5, 2.0, 4.0}, 3).RequireGrad()

	loss := func() *Tensor { return Sum(Div(a, Sqrt(b))) }
	grads, err := Grad(loss(), []*Tensor{a, b}, false)
	if err != nil {
		t.Fatalf("grad: %v", err)
	}
	for i := range a.Data() {
		want := numericGrad(t, loss, a, i)
		if got := grads[0].Data()[i]; !almostEqual(got, want, 1e-4) {
			t.Fatalf("dL/da[%d]: got=%f want=%f", i, got, want)
		}
		want = numericGrad(t, loss, b, i)
		if got := grads[1].Data()[i]; !almostEqual(got, want, 1e-4) {
			t.Fatalf("dL/db[%d]: got=%f want=%f", i, got, want)
		}
	}
}

func TestTransposeRoundTrip(t *testing.T) {
	a := FromSlice([]float64{1, 2, 3, 4, 5, 6}, 2, 3)
	b := Transpose(Transpose(a))
	for i := range a.Data() {
		if a.Data()[i] != b.Data()[i] {
			t.Fatalf("transpose round trip differs at %d", i)
		}
	}
	if math.Abs(Transpose(a).At(2, 1)-6) > 1e-12 {
		t.Fatal("transpose placed elements incorrectly")
	}
}
