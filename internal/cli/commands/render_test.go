package commands

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reframe-labs/reframe/pkg/frame"
)

func TestExportCSV(t *testing.T) {
	schema, err := frame.NewSchema([]frame.Field{
		{Name: "id", Type: frame.TypeInt},
		{Name: "note, with comma", Type: frame.TypeString, Nullable: true},
		{Name: "score", Type: frame.TypeFloat, Nullable: true},
	})
	require.NoError(t, err)

	ds := frame.NewDataset(schema)
	require.NoError(t, ds.Append(frame.Int(1), frame.String(`said "hi", left`), frame.Float(2.5)))
	require.NoError(t, ds.Append(frame.Int(2), frame.Missing(frame.TypeString), frame.Missing(frame.TypeFloat)))

	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, exportCSV(path, ds))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	// Commas and quotes in headers and cells survive a round trip.
	assert.Equal(t, []string{"id", "note, with comma", "score"}, records[0])
	assert.Equal(t, []string{"1", `said "hi", left`, "2.5"}, records[1])
	// Missing values export as empty cells.
	assert.Equal(t, []string{"2", "", ""}, records[2])
}
