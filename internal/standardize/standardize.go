// Package standardize converts a numeric field to group-relative z-scores.
package standardize

import (
	"math"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/reframe-labs/reframe/pkg/frame"
)

// Standardize appends a new column holding (x - mean) / sd for each
// non-Missing value of the target field, where mean and sd are computed
// within the record's group (sd is the sample standard deviation, divisor
// n-1). Missing input yields Missing output.
//
// Groups where standardization is undefined (fewer than two non-Missing
// observations, or zero variance) yield Missing for every member and are
// reported as DegenerateGroupWarnings; they never abort the pipeline.
func Standardize(ds *frame.Dataset, spec frame.StandardizeSpec) (*frame.Dataset, []frame.DegenerateGroupWarning, error) {
	in := ds.Schema()
	if err := spec.Validate(in); err != nil {
		return nil, nil, err
	}
	groupIdx, err := in.Indexes(spec.GroupBy)
	if err != nil {
		return nil, nil, err
	}
	targetIdx, _ := in.Index(spec.Target)

	fields := append([]frame.Field{}, in.Fields()...)
	fields = append(fields, frame.Field{Name: spec.As, Type: frame.TypeFloat, Nullable: true})
	outSchema, err := frame.NewSchema(fields)
	if err != nil {
		return nil, nil, err
	}

	// Partition by group key.
	groups := make(map[frame.Key][]int, ds.Len())
	var order []frame.Key
	for i, rec := range ds.Records() {
		for n, fi := range groupIdx {
			if rec.Values[fi].IsMissing() {
				return nil, nil, &frame.GroupingError{Field: spec.GroupBy[n], Seq: rec.Seq}
			}
		}
		key := frame.KeyOf(rec, groupIdx)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}

	// Compute per-group moments concurrently; groups are independent.
	type moments struct {
		mean, sd float64
		ok       bool
	}
	stats := make(map[frame.Key]moments, len(groups))
	var warnings []frame.DegenerateGroupWarning

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, key := range order {
		members := groups[key]
		g.Go(func() error {
			mean, sd, n := sampleMoments(ds, members, targetIdx)
			m := moments{mean: mean, sd: sd, ok: true}
			var warn *frame.DegenerateGroupWarning
			switch {
			case n <= 1:
				m.ok = false
				warn = &frame.DegenerateGroupWarning{Key: key, Field: spec.Target, Size: n, Reason: "fewer than two observations"}
			case sd == 0:
				m.ok = false
				warn = &frame.DegenerateGroupWarning{Key: key, Field: spec.Target, Size: n, Reason: "zero variance"}
			}
			mu.Lock()
			stats[key] = m
			if warn != nil {
				warnings = append(warnings, *warn)
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	// Warnings are reported in group first-appearance order.
	orderPos := make(map[frame.Key]int, len(order))
	for i, key := range order {
		orderPos[key] = i
	}
	sortWarnings(warnings, orderPos)

	out := frame.NewDataset(outSchema)
	for _, rec := range ds.Records() {
		key := frame.KeyOf(rec, groupIdx)
		m := stats[key]
		x := rec.Values[targetIdx]

		z := frame.Missing(frame.TypeFloat)
		if m.ok && !x.IsMissing() {
			z = frame.Float((x.Float() - m.mean) / m.sd)
		}

		values := make([]frame.Value, 0, outSchema.Len())
		values = append(values, rec.Values...)
		values = append(values, z)
		if err := out.AppendRecord(frame.Record{Values: values, Seq: rec.Seq}); err != nil {
			return nil, nil, err
		}
	}
	return out, warnings, nil
}

// sampleMoments returns the mean and sample standard deviation (divisor
// n-1) over the non-Missing target values of the group, plus the count.
func sampleMoments(ds *frame.Dataset, members []int, targetIdx int) (mean, sd float64, n int) {
	var sum float64
	for _, pos := range members {
		v := ds.Record(pos).Values[targetIdx]
		if v.IsMissing() {
			continue
		}
		sum += v.Float()
		n++
	}
	if n == 0 {
		return 0, 0, 0
	}
	mean = sum / float64(n)
	if n <= 1 {
		return mean, 0, n
	}
	var ss float64
	for _, pos := range members {
		v := ds.Record(pos).Values[targetIdx]
		if v.IsMissing() {
			continue
		}
		d := v.Float() - mean
		ss += d * d
	}
	sd = math.Sqrt(ss / float64(n-1))
	return mean, sd, n
}

func sortWarnings(warnings []frame.DegenerateGroupWarning, pos map[frame.Key]int) {
	sort.SliceStable(warnings, func(i, j int) bool {
		return pos[warnings[i].Key] < pos[warnings[j].Key]
	})
}
