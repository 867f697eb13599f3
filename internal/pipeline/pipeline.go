// Package pipeline builds and runs grouped aggregations over user documents.
//
// An aggregation is an ordered list of stages. Stages are CHAINED: stage N+1
// consumes the rows produced by stage N, never the original collection. When
// a later stage groups by a field that an earlier stage collapsed away, the
// field is simply missing on its input rows and every row falls into the
// same null (or empty composite) group. Build reproduces that behaviour
// literally for the city+age combination; it does not run the groupings side
// by side and merge them.
package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Document is one row flowing through a pipeline: a raw user record on
// input, a grouped row after any stage.
type Document map[string]any

// Output field names shared by the stages built here.
const (
	FieldID         = "_id"
	FieldTotalUsers = "totalUsers"
	FieldAverageAge = "averageAge"
	FieldCities     = "cities"
)

// Stage is one step of a pipeline. The two variants are GroupByField and
// GroupByComposite.
type Stage interface {
	apply(in []Document) []Document
	String() string
}

// GroupByField groups rows by the value of a single field. Rows missing the
// field share the null group.
type GroupByField struct {
	Field        string
	Accumulators []Accumulator
}

func (g GroupByField) apply(in []Document) []Document {
	return group(in, func(d Document) any {
		return d[g.Field] // nil when absent
	}, g.Accumulators)
}

func (g GroupByField) String() string {
	return "group(" + g.Field + ")"
}

// GroupByComposite groups rows by several fields at once. The group key is an
// object holding only the fields present on the row.
type GroupByComposite struct {
	Fields       []string
	Accumulators []Accumulator
}

func (g GroupByComposite) apply(in []Document) []Document {
	return group(in, func(d Document) any {
		key := make(map[string]any, len(g.Fields))
		for _, f := range g.Fields {
			if v, ok := d[f]; ok {
				key[f] = v
			}
		}
		return key
	}, g.Accumulators)
}

func (g GroupByComposite) String() string {
	return "group(" + strings.Join(g.Fields, ",") + ")"
}

// Build assembles the stage list for the requested groupings, in this order:
//
//  1. byCity          → group by city, count and average age
//  2. byAge           → group by age, count and distinct cities
//  3. byCity && byAge → group by (city, age), count
func Build(byCity, byAge bool) []Stage {
	stages := make([]Stage, 0, 3)

	if byCity {
		stages = append(stages, GroupByField{
			Field: "city",
			Accumulators: []Accumulator{
				Count(FieldTotalUsers),
				Avg(FieldAverageAge, "age"),
			},
		})
	}

	if byAge {
		stages = append(stages, GroupByField{
			Field: "age",
			Accumulators: []Accumulator{
				Count(FieldTotalUsers),
				AddToSet(FieldCities, "city"),
			},
		})
	}

	if byCity && byAge {
		stages = append(stages, GroupByComposite{
			Fields: []string{"city", "age"},
			Accumulators: []Accumulator{
				Count(FieldTotalUsers),
			},
		})
	}

	return stages
}

// Run executes stages in order, feeding each stage the previous one's output,
// and returns the last stage's rows. Rows come out in the order their group
// was first seen. An empty input yields an empty, non-nil result.
func Run(stages []Stage, docs []Document) []Document {
	out := docs
	for _, s := range stages {
		out = s.apply(out)
	}
	if out == nil {
		out = []Document{}
	}
	return out
}

// Describe renders a stage list for logs, e.g. "group(city) | group(age)".
func Describe(stages []Stage) string {
	parts := make([]string, len(stages))
	for i, s := range stages {
		parts[i] = s.String()
	}
	return strings.Join(parts, " | ")
}

type bucket struct {
	key   any
	state []accState
}

func group(in []Document, keyOf func(Document) any, accs []Accumulator) []Document {
	order := make([]string, 0)
	buckets := make(map[string]*bucket)

	for _, d := range in {
		key := keyOf(d)
		k := canonical(key)

		b, ok := buckets[k]
		if !ok {
			b = &bucket{key: key, state: make([]accState, len(accs))}
			for i, a := range accs {
				b.state[i] = a.start()
			}
			buckets[k] = b
			order = append(order, k)
		}

		for _, st := range b.state {
			st.add(d)
		}
	}

	out := make([]Document, 0, len(order))
	for _, k := range order {
		b := buckets[k]
		row := Document{FieldID: b.key}
		for i, a := range accs {
			row[a.Name] = b.state[i].result()
		}
		out = append(out, row)
	}
	return out
}

// canonical returns a comparable form of a group key. JSON encoding makes
// 20 and 20.0 the same key and sorts composite members.
func canonical(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%T:%v", v, v)
	}
	return string(b)
}
