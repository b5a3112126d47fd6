// Package pivot reshapes a long table into a wide table, spreading one
// categorical field's values into column-name suffixes.
package pivot

import (
	"fmt"

	"github.com/reframe-labs/reframe/pkg/frame"
)

// OutputSchema derives the wide schema a pivot produces: the identity
// fields, the non-pivoted passthrough fields, then one column per
// (value field, pivot value) pair. Column order follows the input schema
// for passthroughs and the sorted suffix map for pivoted columns, so the
// output schema is identical across runs regardless of data order.
func OutputSchema(in *frame.Schema, spec frame.PivotSpec) (*frame.Schema, error) {
	if err := spec.Validate(in); err != nil {
		return nil, err
	}

	pivoted := make(map[string]bool, len(spec.ValueFields))
	for _, f := range spec.ValueFields {
		pivoted[f] = true
	}

	var fields []frame.Field
	for _, f := range in.Fields() {
		if f.Name == spec.PivotField || pivoted[f.Name] {
			continue
		}
		fields = append(fields, f)
	}
	for _, vf := range spec.ValueFields {
		src, _ := in.Field(vf)
		for _, pv := range spec.PivotValues() {
			fields = append(fields, frame.Field{
				Name:     vf + spec.Suffixes[pv],
				Type:     src.Type,
				Nullable: true, // absent combinations are padded with Missing
			})
		}
	}
	return frame.NewSchema(fields)
}

// Pivot reshapes long-form input into the wide layout spec describes.
// The full input is scanned for
// precondition violations before any output row is built: the engine cannot
// stream, since collisions and inconsistencies need global knowledge.
//
// Guarantees on success: one output record per distinct identity key;
// column count = passthrough fields + value fields x suffix map entries;
// identities with no record for a pivot value get Missing in that value's
// columns, never a dropped row.
func Pivot(ds *frame.Dataset, spec frame.PivotSpec) (*frame.Dataset, error) {
	in := ds.Schema()
	outSchema, err := OutputSchema(in, spec)
	if err != nil {
		return nil, err
	}

	identityIdx, err := in.Indexes(spec.Identity)
	if err != nil {
		return nil, err
	}
	pivotIdx, _ := in.Index(spec.PivotField)
	valueIdx, err := in.Indexes(spec.ValueFields)
	if err != nil {
		return nil, err
	}

	pivoted := make(map[int]bool, len(valueIdx)+1)
	pivoted[pivotIdx] = true
	for _, i := range valueIdx {
		pivoted[i] = true
	}
	var passIdx []int
	for i := range in.Fields() {
		if !pivoted[i] {
			passIdx = append(passIdx, i)
		}
	}

	type group struct {
		first   int                     // position of first record, for passthrough values
		byPivot map[string]frame.Record // pivot value -> source record
	}

	groups := make(map[frame.Key]*group, ds.Len())
	var order []frame.Key

	// Precondition pass: identity+pivot uniqueness, passthrough constancy,
	// and suffix coverage for every observed pivot value.
	for pos, rec := range ds.Records() {
		for n, fi := range identityIdx {
			if rec.Values[fi].IsMissing() {
				return nil, &frame.GroupingError{Field: spec.Identity[n], Seq: rec.Seq}
			}
		}
		pv := rec.Values[pivotIdx]
		if pv.IsMissing() {
			return nil, &frame.GroupingError{Field: spec.PivotField, Seq: rec.Seq}
		}
		pivotValue := pv.String()
		if _, ok := spec.Suffixes[pivotValue]; !ok {
			return nil, fmt.Errorf("pivot value %q has no configured suffix", pivotValue)
		}

		key := frame.KeyOf(rec, identityIdx)
		g, ok := groups[key]
		if !ok {
			g = &group{first: pos, byPivot: make(map[string]frame.Record)}
			groups[key] = g
			order = append(order, key)
		}
		if _, dup := g.byPivot[pivotValue]; dup {
			return nil, &frame.DuplicateKeyError{Fields: spec.Identity, Key: key, PivotValue: pivotValue}
		}
		g.byPivot[pivotValue] = rec

		first := ds.Record(g.first)
		for _, fi := range passIdx {
			if !rec.Values[fi].Equal(first.Values[fi]) {
				return nil, &frame.FieldInconsistencyError{Key: key, Field: in.Fields()[fi].Name}
			}
		}
	}

	// Build the wide table, one record per identity, in first-seen order.
	out := frame.NewDataset(outSchema)
	pivotValues := spec.PivotValues()
	for _, key := range order {
		g := groups[key]
		first := ds.Record(g.first)

		values := make([]frame.Value, 0, outSchema.Len())
		for _, fi := range passIdx {
			values = append(values, first.Values[fi])
		}
		for n, fi := range valueIdx {
			src, _ := in.Field(spec.ValueFields[n])
			for _, pv := range pivotValues {
				if rec, ok := g.byPivot[pv]; ok {
					values = append(values, rec.Values[fi])
				} else {
					values = append(values, frame.Missing(src.Type))
				}
			}
		}
		if err := out.Append(values...); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Unpivot is the dual transform: it reconstructs the long-form
// (identity, pivot value, value fields) triples from a wide table produced
// by Pivot. Combinations whose value columns are all Missing are skipped,
// mirroring the Missing padding Pivot inserts for absent combinations.
func Unpivot(ds *frame.Dataset, spec frame.PivotSpec) (*frame.Dataset, error) {
	wide := ds.Schema()

	var fields []frame.Field
	var passIdx []int
	colIdx := make(map[string]int, wide.Len())
	for i, f := range wide.Fields() {
		colIdx[f.Name] = i
	}

	pivotedCols := make(map[string]bool)
	for _, vf := range spec.ValueFields {
		for _, pv := range spec.PivotValues() {
			pivotedCols[vf+spec.Suffixes[pv]] = true
		}
	}
	for i, f := range wide.Fields() {
		if pivotedCols[f.Name] {
			continue
		}
		fields = append(fields, f)
		passIdx = append(passIdx, i)
	}
	fields = append(fields, frame.Field{Name: spec.PivotField, Type: frame.TypeCode})
	for _, vf := range spec.ValueFields {
		wf, ok := wide.Field(vf + spec.Suffixes[spec.PivotValues()[0]])
		if !ok {
			return nil, &frame.SchemaError{Field: vf}
		}
		fields = append(fields, frame.Field{Name: vf, Type: wf.Type, Nullable: true})
	}

	outSchema, err := frame.NewSchema(fields)
	if err != nil {
		return nil, err
	}
	out := frame.NewDataset(outSchema)

	for _, rec := range ds.Records() {
		for _, pv := range spec.PivotValues() {
			values := make([]frame.Value, 0, outSchema.Len())
			for _, fi := range passIdx {
				values = append(values, rec.Values[fi])
			}
			values = append(values, frame.Code(pv))

			allMissing := true
			for _, vf := range spec.ValueFields {
				ci, ok := colIdx[vf+spec.Suffixes[pv]]
				if !ok {
					return nil, &frame.SchemaError{Field: vf + spec.Suffixes[pv]}
				}
				v := rec.Values[ci]
				if !v.IsMissing() {
					allMissing = false
				}
				values = append(values, v)
			}
			if allMissing {
				continue
			}
			if err := out.Append(values...); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}
