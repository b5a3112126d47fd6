// Package selector collapses duplicate observations per entity down to one
// record, under an explicit, ordered, auditable rule chain.
package selector

import (
	"encoding/binary"
	"errors"
	"hash/fnv"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/reframe-labs/reframe/pkg/frame"
)

// ApplyRule partitions the dataset by the rule's group key, orders each
// partition by the order-by field, and keeps the min or max record. Ties on
// the extreme value are broken by a deterministic pseudo-random rank derived
// from the seed, the group key, and the ingestion sequence number, so
// repeated runs on identical input produce bit-identical output.
//
// Surviving records pass through unchanged and keep their input order.
func ApplyRule(ds *frame.Dataset, rule frame.Rule, seed uint64) (*frame.Dataset, error) {
	schema := ds.Schema()
	if err := rule.Validate(schema); err != nil {
		return nil, err
	}
	groupIdx, err := schema.Indexes(rule.GroupBy)
	if err != nil {
		return nil, err
	}
	orderIdx, _ := schema.Index(rule.OrderBy)

	groups, order, err := partition(ds, rule.GroupBy, groupIdx)
	if err != nil {
		return nil, err
	}

	// Pick one survivor per group. Groups are independent, so they are
	// processed concurrently; each goroutine writes only its own slot.
	survivors := make(map[frame.Key]int, len(groups))
	for _, key := range order {
		survivors[key] = -1
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for _, key := range order {
		members := groups[key]
		g.Go(func() error {
			pos, err := selectOne(ds, members, orderIdx, rule, key, seed)
			if err != nil {
				return err
			}
			mu.Lock()
			survivors[key] = pos
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	keep := make(map[int]bool, len(survivors))
	for _, pos := range survivors {
		keep[pos] = true
	}

	out := frame.NewDataset(schema)
	for i, rec := range ds.Records() {
		if keep[i] {
			if err := out.AppendRecord(rec); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// ApplyChain replays an ordered rule chain and then asserts the declared
// terminal key is unique. A violated postcondition is a DuplicateKeyError:
// it signals a misconfigured chain, never expected data noise.
func ApplyChain(ds *frame.Dataset, rules []frame.Rule, terminalKey []string, seed uint64) (*frame.Dataset, error) {
	out := ds
	var err error
	for _, rule := range rules {
		out, err = ApplyRule(out, rule, seed)
		if err != nil {
			return nil, err
		}
	}
	if len(terminalKey) > 0 {
		if err := AssertUnique(out, terminalKey); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// AssertUnique verifies there is exactly one record per key projection.
func AssertUnique(ds *frame.Dataset, fields []string) error {
	idx, err := ds.Schema().Indexes(fields)
	if err != nil {
		return err
	}
	seen := make(map[frame.Key]int, ds.Len())
	for _, rec := range ds.Records() {
		seen[frame.KeyOf(rec, idx)]++
	}
	for key, n := range seen {
		if n > 1 {
			return &frame.DuplicateKeyError{Fields: fields, Key: key, Count: n}
		}
	}
	return nil
}

// partition buckets record positions by group key, rejecting Missing key
// components. The returned order is the first-appearance order of each key,
// kept stable so group processing and error reporting are reproducible.
func partition(ds *frame.Dataset, groupBy []string, groupIdx []int) (map[frame.Key][]int, []frame.Key, error) {
	groups := make(map[frame.Key][]int)
	var order []frame.Key
	for i, rec := range ds.Records() {
		for n, fi := range groupIdx {
			if rec.Values[fi].IsMissing() {
				return nil, nil, &frame.GroupingError{Field: groupBy[n], Seq: rec.Seq}
			}
		}
		key := frame.KeyOf(rec, groupIdx)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}
	return groups, order, nil
}

// selectOne returns the position of the surviving record for one group.
func selectOne(ds *frame.Dataset, members []int, orderIdx int, rule frame.Rule, key frame.Key, seed uint64) (int, error) {
	// Find the extreme order-by value.
	extremes := []int{members[0]}
	for _, pos := range members[1:] {
		a := ds.Record(pos).Values[orderIdx]
		b := ds.Record(extremes[0]).Values[orderIdx]
		c, err := frame.Compare(a, b)
		if err != nil {
			var te *frame.TypeError
			if errors.As(err, &te) {
				te.Field = rule.OrderBy
			}
			return 0, err
		}
		if rule.Keep == frame.KeepMax {
			c = -c
		}
		switch {
		case c < 0:
			extremes = []int{pos}
		case c == 0:
			extremes = append(extremes, pos)
		}
	}
	if len(extremes) == 1 {
		return extremes[0], nil
	}

	// Tie-break of ties: highest deterministic rank wins. Sorting the tied
	// positions first makes the scan independent of map iteration order.
	sort.Ints(extremes)
	best := extremes[0]
	bestRank := tieRank(seed, key, ds.Record(best).Seq)
	for _, pos := range extremes[1:] {
		r := tieRank(seed, key, ds.Record(pos).Seq)
		if r > bestRank || (r == bestRank && ds.Record(pos).Seq < ds.Record(best).Seq) {
			best, bestRank = pos, r
		}
	}
	return best, nil
}

// tieRank derives the pseudo-random rank for a tied record: FNV-1a over the
// seed, the group key, and the ingestion sequence number.
func tieRank(seed uint64, key frame.Key, seq int) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seed)
	_, _ = h.Write(buf[:])
	_, _ = h.Write([]byte(key))
	binary.BigEndian.PutUint64(buf[:], uint64(seq))
	_, _ = h.Write(buf[:])
	return h.Sum64()
}
