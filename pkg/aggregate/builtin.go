package aggregate

import (
	"math"

	"github.com/montanaflynn/stats"

	"github.com/ajitpratap0/strata/pkg/errors"
	"github.com/ajitpratap0/strata/pkg/json"
	"github.com/ajitpratap0/strata/pkg/value"
)

func isNumericKind(k value.Kind) bool {
	return k == value.KindInt || k == value.KindFloat
}

func isOrderedKind(k value.Kind) bool {
	return isNumericKind(k) || k == value.KindString || k == value.KindDateTime
}

func combineMismatch(want string) error {
	return errors.Newf(errors.ErrorTypeMismatch,
		"combine requires a %s partial state", want)
}

// Count counts non-missing values.
type Count struct {
	N int64 `json:"n"`
}

// NewCount returns a count accumulator.
func NewCount() *Count { return &Count{} }

// NewInstance implements Aggregator.
func (c *Count) NewInstance() Aggregator { return &Count{} }

// Supports implements Aggregator. Count accepts every kind.
func (c *Count) Supports(value.Kind) bool { return true }

// Add implements Aggregator.
func (c *Count) Add(row []value.Value) error {
	if !row[0].IsMissing() {
		c.N++
	}
	return nil
}

// Combine implements Aggregator.
func (c *Count) Combine(other Aggregator) error {
	o, ok := other.(*Count)
	if !ok {
		return combineMismatch("count")
	}
	c.N += o.N
	return nil
}

// Emit implements Aggregator.
func (c *Count) Emit() value.Value { return value.Int(c.N) }

// MarshalState implements Aggregator.
func (c *Count) MarshalState() ([]byte, error) { return json.Marshal(c) }

// UnmarshalState implements Aggregator.
func (c *Count) UnmarshalState(data []byte) error { return json.Unmarshal(data, c) }

// Sum sums numeric values, keeping integer output for all-integer input.
type Sum struct {
	IntSum   int64   `json:"int_sum"`
	FloatSum float64 `json:"float_sum"`
	Float    bool    `json:"float"`
	Seen     bool    `json:"seen"`
}

// NewSum returns a sum accumulator.
func NewSum() *Sum { return &Sum{} }

// NewInstance implements Aggregator.
func (s *Sum) NewInstance() Aggregator { return &Sum{} }

// Supports implements Aggregator.
func (s *Sum) Supports(k value.Kind) bool { return isNumericKind(k) || k == value.KindMissing }

// Add implements Aggregator.
func (s *Sum) Add(row []value.Value) error {
	v := row[0]
	if v.IsMissing() {
		return nil
	}
	s.Seen = true
	if v.Kind() == value.KindFloat {
		s.Float = true
	}
	if v.Kind() == value.KindInt {
		s.IntSum += v.Int64()
	}
	s.FloatSum += v.Float64()
	return nil
}

// Combine implements Aggregator.
func (s *Sum) Combine(other Aggregator) error {
	o, ok := other.(*Sum)
	if !ok {
		return combineMismatch("sum")
	}
	s.IntSum += o.IntSum
	s.FloatSum += o.FloatSum
	s.Float = s.Float || o.Float
	s.Seen = s.Seen || o.Seen
	return nil
}

// Emit implements Aggregator.
func (s *Sum) Emit() value.Value {
	if !s.Seen {
		return value.Missing()
	}
	if s.Float {
		return value.Float(s.FloatSum)
	}
	return value.Int(s.IntSum)
}

// MarshalState implements Aggregator.
func (s *Sum) MarshalState() ([]byte, error) { return json.Marshal(s) }

// UnmarshalState implements Aggregator.
func (s *Sum) UnmarshalState(data []byte) error { return json.Unmarshal(data, s) }

// Mean averages numeric values, ignoring Missing.
type Mean struct {
	Sum float64 `json:"sum"`
	N   int64   `json:"n"`
}

// NewMean returns a mean accumulator.
func NewMean() *Mean { return &Mean{} }

// NewInstance implements Aggregator.
func (m *Mean) NewInstance() Aggregator { return &Mean{} }

// Supports implements Aggregator.
func (m *Mean) Supports(k value.Kind) bool { return isNumericKind(k) || k == value.KindMissing }

// Add implements Aggregator.
func (m *Mean) Add(row []value.Value) error {
	if row[0].IsMissing() {
		return nil
	}
	m.Sum += row[0].Float64()
	m.N++
	return nil
}

// Combine implements Aggregator.
func (m *Mean) Combine(other Aggregator) error {
	o, ok := other.(*Mean)
	if !ok {
		return combineMismatch("mean")
	}
	m.Sum += o.Sum
	m.N += o.N
	return nil
}

// Emit implements Aggregator.
func (m *Mean) Emit() value.Value {
	if m.N == 0 {
		return value.Missing()
	}
	return value.Float(m.Sum / float64(m.N))
}

// MarshalState implements Aggregator.
func (m *Mean) MarshalState() ([]byte, error) { return json.Marshal(m) }

// UnmarshalState implements Aggregator.
func (m *Mean) UnmarshalState(data []byte) error { return json.Unmarshal(data, m) }

// Std computes the population standard deviation with Welford's online
// algorithm; Combine uses the parallel-variance merge, which is
// order-independent up to floating point rounding.
type Std struct {
	N    int64   `json:"n"`
	Mean float64 `json:"mean"`
	M2   float64 `json:"m2"`
}

// NewStd returns a standard-deviation accumulator.
func NewStd() *Std { return &Std{} }

// NewInstance implements Aggregator.
func (s *Std) NewInstance() Aggregator { return &Std{} }

// Supports implements Aggregator.
func (s *Std) Supports(k value.Kind) bool { return isNumericKind(k) || k == value.KindMissing }

// Add implements Aggregator.
func (s *Std) Add(row []value.Value) error {
	if row[0].IsMissing() {
		return nil
	}
	x := row[0].Float64()
	s.N++
	delta := x - s.Mean
	s.Mean += delta / float64(s.N)
	s.M2 += delta * (x - s.Mean)
	return nil
}

// Combine implements Aggregator.
func (s *Std) Combine(other Aggregator) error {
	o, ok := other.(*Std)
	if !ok {
		return combineMismatch("std")
	}
	if o.N == 0 {
		return nil
	}
	if s.N == 0 {
		*s = *o
		return nil
	}
	n := s.N + o.N
	delta := o.Mean - s.Mean
	s.M2 += o.M2 + delta*delta*float64(s.N)*float64(o.N)/float64(n)
	s.Mean += delta * float64(o.N) / float64(n)
	s.N = n
	return nil
}

// Emit implements Aggregator.
func (s *Std) Emit() value.Value {
	if s.N == 0 {
		return value.Missing()
	}
	return value.Float(math.Sqrt(s.M2 / float64(s.N)))
}

// MarshalState implements Aggregator.
func (s *Std) MarshalState() ([]byte, error) { return json.Marshal(s) }

// UnmarshalState implements Aggregator.
func (s *Std) UnmarshalState(data []byte) error { return json.Unmarshal(data, s) }

// Extreme tracks the minimum or maximum of an ordered column.
type Extreme struct {
	Max  bool        `json:"max"`
	Cur  value.Value `json:"cur"`
	Seen bool        `json:"seen"`
}

// NewMin returns a minimum accumulator.
func NewMin() *Extreme { return &Extreme{} }

// NewMax returns a maximum accumulator.
func NewMax() *Extreme { return &Extreme{Max: true} }

// NewInstance implements Aggregator.
func (e *Extreme) NewInstance() Aggregator { return &Extreme{Max: e.Max} }

// Supports implements Aggregator.
func (e *Extreme) Supports(k value.Kind) bool { return isOrderedKind(k) || k == value.KindMissing }

// Add implements Aggregator.
func (e *Extreme) Add(row []value.Value) error {
	return e.observe(row[0])
}

func (e *Extreme) observe(v value.Value) error {
	if v.IsMissing() {
		return nil
	}
	if !e.Seen {
		e.Cur = v
		e.Seen = true
		return nil
	}
	cmp, ok, err := value.Compare(v, e.Cur)
	if err != nil {
		return err
	}
	if ok && ((e.Max && cmp > 0) || (!e.Max && cmp < 0)) {
		e.Cur = v
	}
	return nil
}

// Combine implements Aggregator.
func (e *Extreme) Combine(other Aggregator) error {
	o, ok := other.(*Extreme)
	if !ok {
		return combineMismatch("min/max")
	}
	if !o.Seen {
		return nil
	}
	return e.observe(o.Cur)
}

// Emit implements Aggregator.
func (e *Extreme) Emit() value.Value {
	if !e.Seen {
		return value.Missing()
	}
	return e.Cur
}

// MarshalState implements Aggregator.
func (e *Extreme) MarshalState() ([]byte, error) { return json.Marshal(e) }

// UnmarshalState implements Aggregator.
func (e *Extreme) UnmarshalState(data []byte) error { return json.Unmarshal(data, e) }

// quantileSampleCap bounds the per-state sample; beyond it the estimate
// degrades to a deterministic stride subsample.
const quantileSampleCap = 4096

// Quantile estimates one or more target quantiles from a bounded sample.
// With at most quantileSampleCap observed values per state the estimate
// is exact.
type Quantile struct {
	Targets []float64 `json:"targets"`
	Sample  []float64 `json:"sample"`
	Total   int64     `json:"total"`
}

// NewQuantile returns a quantile accumulator for the given targets in
// [0, 1]. One target emits a scalar; several emit a vector matching the
// target order.
func NewQuantile(targets ...float64) *Quantile {
	return &Quantile{Targets: targets}
}

// NewInstance implements Aggregator.
func (q *Quantile) NewInstance() Aggregator { return &Quantile{Targets: q.Targets} }

// Supports implements Aggregator.
func (q *Quantile) Supports(k value.Kind) bool { return isNumericKind(k) || k == value.KindMissing }

// Add implements Aggregator.
func (q *Quantile) Add(row []value.Value) error {
	if row[0].IsMissing() {
		return nil
	}
	q.Sample = append(q.Sample, row[0].Float64())
	q.Total++
	q.shrink()
	return nil
}

// Combine implements Aggregator.
func (q *Quantile) Combine(other Aggregator) error {
	o, ok := other.(*Quantile)
	if !ok {
		return combineMismatch("quantile")
	}
	q.Sample = append(q.Sample, o.Sample...)
	q.Total += o.Total
	q.shrink()
	return nil
}

func (q *Quantile) shrink() {
	if len(q.Sample) <= 2*quantileSampleCap {
		return
	}
	kept := make([]float64, 0, quantileSampleCap)
	stride := float64(len(q.Sample)) / float64(quantileSampleCap)
	for i := 0; i < quantileSampleCap; i++ {
		kept = append(kept, q.Sample[int(float64(i)*stride)])
	}
	q.Sample = kept
}

// Emit implements Aggregator.
func (q *Quantile) Emit() value.Value {
	if len(q.Sample) == 0 {
		return value.Missing()
	}
	out := make([]float64, len(q.Targets))
	for i, t := range q.Targets {
		p, err := stats.Percentile(stats.Float64Data(q.Sample), t*100)
		if err != nil {
			// Percentile 0 is rejected by the library; fall back to
			// the sample minimum.
			p, _ = stats.Min(stats.Float64Data(q.Sample))
		}
		out[i] = p
	}
	if len(out) == 1 {
		return value.Float(out[0])
	}
	return value.Vector(out...)
}

// MarshalState implements Aggregator.
func (q *Quantile) MarshalState() ([]byte, error) { return json.Marshal(q) }

// UnmarshalState implements Aggregator.
func (q *Quantile) UnmarshalState(data []byte) error { return json.Unmarshal(data, q) }

// ArgExtreme returns the value of a second column at the row achieving
// the extreme of the first. Bind it to two input columns: the ordering
// column first, the payload column second.
type ArgExtreme struct {
	Max     bool        `json:"max"`
	Best    value.Value `json:"best"`
	Payload value.Value `json:"payload"`
	Seen    bool        `json:"seen"`
}

// NewArgMax returns an arg-max accumulator.
func NewArgMax() *ArgExtreme { return &ArgExtreme{Max: true} }

// NewArgMin returns an arg-min accumulator.
func NewArgMin() *ArgExtreme { return &ArgExtreme{} }

// NewInstance implements Aggregator.
func (a *ArgExtreme) NewInstance() Aggregator { return &ArgExtreme{Max: a.Max} }

// Supports implements Aggregator.
func (a *ArgExtreme) Supports(k value.Kind) bool { return isOrderedKind(k) || k == value.KindMissing }

// Add implements Aggregator.
func (a *ArgExtreme) Add(row []value.Value) error {
	if len(row) < 2 {
		return errors.New(errors.ErrorUnsupportedType,
			"arg-max/arg-min requires two input columns")
	}
	return a.observe(row[0], row[1])
}

func (a *ArgExtreme) observe(order, payload value.Value) error {
	if order.IsMissing() {
		return nil
	}
	if !a.Seen {
		a.Best, a.Payload, a.Seen = order, payload, true
		return nil
	}
	cmp, ok, err := value.Compare(order, a.Best)
	if err != nil {
		return err
	}
	if ok && ((a.Max && cmp > 0) || (!a.Max && cmp < 0)) {
		a.Best, a.Payload = order, payload
	}
	return nil
}

// Combine implements Aggregator.
func (a *ArgExtreme) Combine(other Aggregator) error {
	o, ok := other.(*ArgExtreme)
	if !ok {
		return combineMismatch("arg-max/arg-min")
	}
	if !o.Seen {
		return nil
	}
	return a.observe(o.Best, o.Payload)
}

// Emit implements Aggregator.
func (a *ArgExtreme) Emit() value.Value {
	if !a.Seen {
		return value.Missing()
	}
	return a.Payload
}

// MarshalState implements Aggregator.
func (a *ArgExtreme) MarshalState() ([]byte, error) { return json.Marshal(a) }

// UnmarshalState implements Aggregator.
func (a *ArgExtreme) UnmarshalState(data []byte) error { return json.Unmarshal(data, a) }
