package tensor

import (
	"fmt"
	"math"
)

// record attaches a backward node to out when any input participates in
// a graph. Ops over plain constants stay graph-free.
func record(out *Tensor, inputs []*Tensor, backward func(up *Tensor) []*Tensor) *Tensor {
	for _, in := range inputs {
		if in.requiresGrad || in.node != nil {
			out.node = &node{inputs: inputs, backward: backward}
			break
		}
	}
	return out
}

// Add returns a + b element-wise.
func Add(a, b *Tensor) *Tensor {
	mustSameShape("Add", a, b)
	out := New(a.shape...)
	for i := range out.data {
		out.data[i] = a.data[i] + b.data[i]
	}
	return record(out, []*Tensor{a, b}, func(up *Tensor) []*Tensor {
		return []*Tensor{up, up}
	})
}

// Sub returns a - b element-wise.
func Sub(a, b *Tensor) *Tensor {
	mustSameShape("Sub", a, b)
	out := New(a.shape...)
	for i := range out.data {
		out.data[i] = a.data[i] - b.data[i]
	}
	return record(out, []*Tensor{a, b}, func(up *Tensor) []*Tensor {
		return []*Tensor{up, Scale(up, -1)}
	})
}

// Mul returns a * b element-wise.
func Mul(a, b *Tensor) *Tensor {
	mustSameShape("Mul", a, b)
	out := New(a.shape...)
	for i := range out.data {
		out.data[i] = a.data[i] * b.data[i]
	}
	return record(out, []*Tensor{a, b}, func(up *Tensor) []*Tensor {
		return []*Tensor{Mul(up, b), Mul(up, a)}
	})
}

// Div returns a / b element-wise.
func Div(a, b *Tensor) *Tensor {
	mustSameShape("Div", a, b)
	out := New(a.shape...)
	for i := range out.data {
		out.data[i] = a.data[i] / b.data[i]
	}
	return record(out, []*Tensor{a, b}, func(up *Tensor) []*Tensor {
		return []*Tensor{
			Div(up, b),
			Scale(Div(Mul(up, a), Mul(b, b)), -1),
		}
	})
}

// Scale returns a * c.
func Scale(a *Tensor, c float64) *Tensor {
	out := New(a.shape...)
	for i := range out.data {
		out.data[i] = a.data[i] * c
	}
	return record(out, []*Tensor{a}, func(up *Tensor) []*Tensor {
		return []*Tensor{Scale(up, c)}
	})
}

// AddScalar returns a + c element-wise.
func AddScalar(a *Tensor, c float64) *Tensor {
	out := New(a.shape...)
	for i := range out.data {
		out.data[i] = a.data[i] + c
	}
	return record(out, []*Tensor{a}, func(up *Tensor) []*Tensor {
		return []*Tensor{up}
	})
}

// Sqrt returns element-wise square roots.
func Sqrt(a *Tensor) *Tensor {
	out := New(a.shape...)
	for i := range out.data {
		out.data[i] = math.Sqrt(a.data[i])
	}
	return record(out, []*Tensor{a}, func(up *Tensor) []*Tensor {
		return []*Tensor{Div(Scale(up, 0.5), Sqrt(a))}
	})
}

// Relu returns max(0, a) element-wise.
func Relu(a *Tensor) *Tensor {
	out := New(a.shape...)
	mask := New(a.shape...)
	for i := range out.data {
		if a.data[i] > 0 {
			out.data[i] = a.data[i]
			mask.data[i] = 1
		}
	}
	return record(out, []*Tensor{a}, func(up *Tensor) []*Tensor {
		return []*Tensor{Mul(up, mask)}
	})
}

func mustRank2(op string, t *Tensor) {
	if len(t.shape) != 2 {
		panic(fmt.Sprintf("tensor: %s needs a rank-2 tensor, got shape %v", op, t.shape))
	}
}

// MatMul returns a @ b for a [m,k] and b [k,n].
func MatMul(a, b *Tensor) *Tensor {
	mustRank2("MatMul", a)
	mustRank2("MatMul", b)
	m, k := a.shape[0], a.shape[1]
	k2, n := b.shape[0], b.shape[1]
	if k != k2 {
		panic(fmt.Sprintf("tensor: MatMul inner dims %d vs %d", k, k2))
	}
	out := New(m, n)
	for i := 0; i < m; i++ {
		for l := 0; l < k; l++ {
			av := a.data[i*k+l]
			if av == 0 {
				continue
			}
			for j := 0; j < n; j++ {
				out.data[i*n+j] += av * b.data[l*n+j]
			}
		}
	}
	return record(out, []*Tensor{a, b}, func(up *Tensor) []*Tensor {
		return []*Tensor{
			MatMul(up, Transpose(b)),
			MatMul(Transpose(a), up),
		}
	})
}

// Transpose returns the transpose of a rank-2 tensor.
func Transpose(a *Tensor) *Tensor {
	mustRank2("Transpose", a)
	m, n := a.shape[0], a.shape[1]
	out := New(n, m)
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			out.data[j*m+i] = a.data[i*n+j]
		}
	}
	return record(out, []*Tensor{a}, func(up *Tensor) []*Tensor {
		return []*Tensor{Transpose(up)}
	})
}

// Sum reduces all elements to a scalar.
func Sum(a *Tensor) *Tensor {
	total := 0.0
	for _, v := range a.data {
		total += v
	}
	out := Scalar(total)
	shape := a.Shape()
	return record(out, []*Tensor{a}, func(up *Tensor) []*Tensor {
		return []*Tensor{Expand(up, shape...)}
	})
}

// Mean reduces all elements to their scalar mean.
func Mean(a *Tensor) *Tensor {
	return Scale(Sum(a), 1/float64(len(a.data)))
}

// Expand broadcasts a single-element tensor to the given shape.
func Expand(a *Tensor, shape ...int) *Tensor {
	if len(a.data) != 1 {
		panic(fmt.Sprintf("tensor: Expand needs a single-element tensor, got %d elements", len(a.data)))
	}
	out := Full(a.data[0], shape...)
	return record(out, []*Tensor{a}, func(up *Tensor) []*Tensor {
		return []*Tensor{Sum(up)}
	})
}

// RowSum sums a [n,m] tensor along axis 1 into [n,1].
func RowSum(a *Tensor) *Tensor {
	mustRank2("RowSum", a)
	n, m := a.shape[0], a.shape[1]
	out := New(n, 1)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			out.data[i] += a.data[i*m+j]
		}
	}
	return record(out, []*Tensor{a}, func(up *Tensor) []*Tensor {
		return []*Tensor{ExpandCols(up, m)}
	})
}

// ColSum sums a [n,m] tensor along axis 0 into [m].
func ColSum(a *Tensor) *Tensor {
	mustRank2("ColSum", a)
	n, m := a.shape[0], a.shape[1]
	out := New(m)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			out.data[j] += a.data[i*m+j]
		}
	}
	return record(out, []*Tensor{a}, func(up *Tensor) []*Tensor {
		return []*Tensor{ExpandRows(up, n)}
	})
}

// ExpandCols broadcasts a [n,1] tensor across m columns into [n,m].
func ExpandCols(a *Tensor, m int) *Tensor {
	mustRank2("ExpandCols", a)
	if a.shape[1] != 1 {
		panic(fmt.Sprintf("tensor: ExpandCols needs shape [n,1], got %v", a.shape))
	}
	n := a.shape[0]
	out := New(n, m)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			out.data[i*m+j] = a.data[i]
		}
	}
	return record(out, []*Tensor{a}, func(up *Tensor) []*Tensor {
		return []*Tensor{RowSum(up)}
	})
}

// ExpandRows broadcasts a rank-1 tensor of length m across n rows into [n,m].
func ExpandRows(a *Tensor, n int) *Tensor {
	if len(a.shape) != 1 {
		panic(fmt.Sprintf("tensor: ExpandRows needs a rank-1 tensor, got shape %v", a.shape))
	}
	m := a.shape[0]
	out := New(n, m)
	for i := 0; i < n; i++ {
		copy(out.data[i*m:(i+1)*m], a.data)
	}
	return record(out, []*Tensor{a}, func(up *Tensor) []*Tensor {
		return []*Tensor{ColSum(up)}
	})
}

// Softmax applies a numerically stable row-wise softmax to [n,m].
func Softmax(a *Tensor) *Tensor {
	mustRank2("Softmax", a)
	n, m := a.shape[0], a.shape[1]
	out := New(n, m)
	for i := 0; i < n; i++ {
		row := a.data[i*m : (i+1)*m]
		max := row[0]
		for _, v := range row[1:] {
			if v > max {
				max = v
			}
		}
		sum := 0.0
		for j, v := range row {
			e := math.Exp(v - max)
			out.data[i*m+j] = e
			sum += e
		}
		for j := 0; j < m; j++ {
			out.data[i*m+j] /= sum
		}
	}
	return record(out, []*Tensor{a}, func(up *Tensor) []*Tensor {
		s := Softmax(a)
		inner := Mul(up, s)
		return []*Tensor{Mul(s, Sub(up, ExpandCols(RowSum(inner), m)))}
	})
}

// GatherRows selects rows of a [n,d] tensor by index. A negative index
// yields a zero row and carries no gradient, which is how padded
// neighbor slots are represented.
func GatherRows(a *Tensor, idx []int) *Tensor {
	mustRank2("GatherRows", a)
	n, d := a.shape[0], a.shape[1]
	out := New(len(idx), d)
	for i, x := range idx {
		if x < 0 {
			continue
		}
		if x >= n {
			panic(fmt.Sprintf("tensor: GatherRows index %d out of range for %d rows", x, n))
		}
		copy(out.data[i*d:(i+1)*d], a.data[x*d:(x+1)*d])
	}
	indices := append([]int(nil), idx...)
	return record(out, []*Tensor{a}, func(up *Tensor) []*Tensor {
		return []*Tensor{ScatterRows(up, indices, n)}
	})
}

// ScatterRows adds each row of a [len(idx),d] tensor into row idx[i] of
// a zero [n,d] tensor. Negative indices are skipped.
func ScatterRows(a *Tensor, idx []int, n int) *Tensor {
	mustRank2("ScatterRows", a)
	if a.shape[0] != len(idx) {
		panic(fmt.Sprintf("tensor: ScatterRows rows %d vs %d indices", a.shape[0], len(idx)))
	}
	d := a.shape[1]
	out := New(n, d)
	for i, x := range idx {
		if x < 0 {
			continue
		}
		if x >= n {
			panic(fmt.Sprintf("tensor: ScatterRows index %d out of range for %d rows", x, n))
		}
		for j := 0; j < d; j++ {
			out.data[x*d+j] += a.data[i*d+j]
		}
	}
	indices := append([]int(nil), idx...)
	return record(out, []*Tensor{a}, func(up *Tensor) []*Tensor {
		return []*Tensor{GatherRows(up, indices)}
	})
}

// StackRows concatenates k [1,m] tensors into [k,m].
func StackRows(rows []*Tensor) *Tensor {
	if len(rows) == 0 {
		panic("tensor: StackRows on empty slice")
	}
	m := rows[0].shape[1]
	for _, r := range rows {
		mustRank2("StackRows", r)
		if r.shape[0] != 1 || r.shape[1] != m {
			panic(fmt.Sprintf("tensor: StackRows needs [1,%d] rows, got %v", m, r.shape))
		}
	}
	out := New(len(rows), m)
	for i, r := range rows {
		copy(out.data[i*m:(i+1)*m], r.data)
	}
	return record(out, rows, func(up *Tensor) []*Tensor {
		grads := make([]*Tensor, len(rows))
		for i := range rows {
			grads[i] = GatherRows(up, []int{i})
		}
		return grads
	})
}

// Block views slab i of a rank-3 [k,n,m] tensor as a [n,m] tensor.
// Gradient flows back as a zero tensor with the block filled in.
func Block(a *Tensor, i int) *Tensor {
	if len(a.shape) != 3 {
		panic(fmt.Sprintf("tensor: Block needs a rank-3 tensor, got shape %v", a.shape))
	}
	k, n, m := a.shape[0], a.shape[1], a.shape[2]
	if i < 0 || i >= k {
		panic(fmt.Sprintf("tensor: Block index %d out of range for %d blocks", i, k))
	}
	out := New(n, m)
	copy(out.data, a.data[i*n*m:(i+1)*n*m])
	return record(out, []*Tensor{a}, func(up *Tensor) []*Tensor {
		pad := New(k, n, m)
		copy(pad.data[i*n*m:(i+1)*n*m], up.data)
		return []*Tensor{pad}
	})
}

// CrossEntropyLogits returns the mean softmax cross-entropy of [n,m]
// logits against integer class labels. The backward pass is expressed
// through Softmax so the gradient itself stays differentiable.
func CrossEntropyLogits(logits *Tensor, labels []int) *Tensor {
	mustRank2("CrossEntropyLogits", logits)
	n, m := logits.shape[0], logits.shape[1]
	if len(labels) != n {
		panic(fmt.Sprintf("tensor: CrossEntropyLogits %d labels for %d rows", len(labels), n))
	}
	onehot := New(n, m)
	total := 0.0
	for i, y := range labels {
		if y < 0 || y >= m {
			panic(fmt.Sprintf("tensor: label %d out of range for %d classes", y, m))
		}
		onehot.data[i*m+y] = 1

		row := logits.data[i*m : (i+1)*m]
		max := row[0]
		for _, v := range row[1:] {
			if v > max {
				max = v
			}
		}
		sumExp := 0.0
		for _, v := range row {
			sumExp += math.Exp(v - max)
		}
		total += max + math.Log(sumExp) - row[y]
	}
	out := Scalar(total / float64(n))
	return record(out, []*Tensor{logits}, func(up *Tensor) []*Tensor {
		diff := Sub(Softmax(logits), onehot)
		return []*Tensor{Scale(Mul(Expand(up, n, m), diff), 1/float64(n))}
	})
}
