package pipeline

// Op is an accumulator operator.
type Op int

const (
	OpCount    Op = iota // number of rows in the group
	OpAvg                // mean of the numeric values of Field; null when there are none
	OpAddToSet           // distinct values of Field; rows missing Field contribute nothing
)

// Accumulator computes one output field of a group row.
type Accumulator struct {
	Name  string
	Op    Op
	Field string // ignored by OpCount
}

func Count(name string) Accumulator {
	return Accumulator{Name: name, Op: OpCount}
}

func Avg(name, field string) Accumulator {
	return Accumulator{Name: name, Op: OpAvg, Field: field}
}

func AddToSet(name, field string) Accumulator {
	return Accumulator{Name: name, Op: OpAddToSet, Field: field}
}

type accState interface {
	add(d Document)
	result() any
}

func (a Accumulator) start() accState {
	switch a.Op {
	case OpAvg:
		return &avgState{field: a.Field}
	case OpAddToSet:
		return &setState{field: a.Field, seen: make(map[string]bool), values: []any{}}
	default:
		return &countState{}
	}
}

type countState struct{ n int }

func (s *countState) add(Document) { s.n++ }
func (s *countState) result() any  { return s.n }

type avgState struct {
	field string
	sum   float64
	n     int
}

func (s *avgState) add(d Document) {
	if f, ok := number(d[s.field]); ok {
		s.sum += f
		s.n++
	}
}

func (s *avgState) result() any {
	if s.n == 0 {
		return nil
	}
	return s.sum / float64(s.n)
}

type setState struct {
	field  string
	seen   map[string]bool
	values []any
}

func (s *setState) add(d Document) {
	v, ok := d[s.field]
	if !ok {
		return
	}
	k := canonical(v)
	if s.seen[k] {
		return
	}
	s.seen[k] = true
	s.values = append(s.values, v)
}

func (s *setState) result() any { return s.values }

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
