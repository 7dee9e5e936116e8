// Package report writes the per-way outcome of a matching run to Parquet
package report

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
	"github.com/paulmach/orb"
	"github.com/twpayne/go-polyline"

	"github.com/wegman-software/osmconflate/internal/match"
	"github.com/wegman-software/osmconflate/internal/network"
)

// DefaultBatchSize is the number of rows buffered per record batch
const DefaultBatchSize = 10000

// Row is the outcome for one participating way
type Row struct {
	Origin      network.Origin
	WayID       int64
	State       match.State
	Counterpart []int64 // matched ways, or the best combination when not matched
	AvgDistance float64
	Overlap     float64
	Note        string
	Geometry    orb.LineString
}

// Rows collects one row per participating way of both networks, reference
// ways first, each group in id order
func Rows(ref, cand *network.Network, res *match.Result) []Row {
	var rows []Row
	for _, net := range []*network.Network{ref, cand} {
		if net == nil {
			continue
		}
		origin := net.Origin()
		for _, w := range sortedWays(net) {
			st := res.State(origin, w.ID())
			if st == match.Unseen {
				continue
			}
			row := Row{
				Origin:   origin,
				WayID:    w.ID(),
				State:    st,
				Note:     res.Note(origin, w.ID()),
				Geometry: w.Line(),
			}
			if best, ok := res.Best(origin, w.ID()); ok {
				row.Counterpart = best.Ways
				row.AvgDistance = best.AvgDistance
				row.Overlap = best.Overlap
			}
			if st == match.Matched {
				applyMatch(&row, res)
			}
			rows = append(rows, row)
		}
	}
	return rows
}

func applyMatch(row *Row, res *match.Result) {
	if row.Origin == network.Reference {
		if m, ok := res.MatchFor(row.WayID); ok {
			row.Counterpart = m.Candidates
			row.AvgDistance = m.AvgDistance
			row.Overlap = m.Overlap
		}
		return
	}
	if refs := res.ReferencesOf(row.WayID); len(refs) > 0 {
		row.Counterpart = refs
	}
}

func sortedWays(net *network.Network) []*network.Way {
	ways := net.Ways()
	sort.Slice(ways, func(i, j int) bool { return ways[i].ID() < ways[j].ID() })
	return ways
}

// EncodeGeometry encodes a line as a Google polyline with 5 digit precision
func EncodeGeometry(line orb.LineString) string {
	coords := make([][]float64, len(line))
	for i, p := range line {
		coords[i] = []float64{p.Lat(), p.Lon()}
	}
	return string(polyline.EncodeCoords(coords))
}

// Schema is the Arrow schema of the report file
func Schema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "origin", Type: arrow.BinaryTypes.String, Nullable: false},
		{Name: "way_id", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
		{Name: "state", Type: arrow.BinaryTypes.String, Nullable: false},
		{Name: "matched_ids", Type: arrow.BinaryTypes.String, Nullable: false},
		{Name: "avg_distance_m", Type: arrow.PrimitiveTypes.Float64, Nullable: false},
		{Name: "overlap", Type: arrow.PrimitiveTypes.Float64, Nullable: false},
		{Name: "note", Type: arrow.BinaryTypes.String, Nullable: false},
		{Name: "geom_polyline", Type: arrow.BinaryTypes.String, Nullable: false},
	}, nil)
}

// Writer writes report rows to a zstd compressed Parquet file
type Writer struct {
	file      *os.File
	writer    *pqarrow.FileWriter
	builder   *array.RecordBuilder
	batchSize int
	count     int
	written   int
}

// NewWriter creates the report file at path
func NewWriter(path string, batchSize int) (*Writer, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	schema := Schema()

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create report %s: %w", path, err)
	}

	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Zstd),
		parquet.WithDictionaryDefault(false),
	)

	writer, err := pqarrow.NewFileWriter(schema, f, writerProps, pqarrow.DefaultWriterProps())
	if err != nil {
		f.Close()
		return nil, err
	}

	return &Writer{
		file:      f,
		writer:    writer,
		builder:   array.NewRecordBuilder(memory.DefaultAllocator, schema),
		batchSize: batchSize,
	}, nil
}

// Write appends one row
func (w *Writer) Write(r Row) error {
	w.builder.Field(0).(*array.StringBuilder).Append(r.Origin.String())
	w.builder.Field(1).(*array.Int64Builder).Append(r.WayID)
	w.builder.Field(2).(*array.StringBuilder).Append(r.State.String())
	w.builder.Field(3).(*array.StringBuilder).Append(joinIDs(r.Counterpart))
	w.builder.Field(4).(*array.Float64Builder).Append(r.AvgDistance)
	w.builder.Field(5).(*array.Float64Builder).Append(r.Overlap)
	w.builder.Field(6).(*array.StringBuilder).Append(r.Note)
	w.builder.Field(7).(*array.StringBuilder).Append(EncodeGeometry(r.Geometry))

	w.count++
	w.written++
	if w.count >= w.batchSize {
		return w.flush()
	}
	return nil
}

// Written returns the number of rows written so far
func (w *Writer) Written() int { return w.written }

func (w *Writer) flush() error {
	if w.count == 0 {
		return nil
	}
	rec := w.builder.NewRecord()
	defer rec.Release()
	err := w.writer.Write(rec)
	w.count = 0
	return err
}

// Close flushes pending rows and closes the file
func (w *Writer) Close() error {
	defer w.builder.Release()
	if err := w.flush(); err != nil {
		w.writer.Close()
		w.file.Close()
		return err
	}
	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return err
	}
	// the Parquet writer may already have closed the file
	if err := w.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}

// WriteFile writes all rows of a run to path
func WriteFile(path string, rows []Row) error {
	w, err := NewWriter(path, DefaultBatchSize)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := w.Write(r); err != nil {
			w.Close()
			return fmt.Errorf("failed to write report row: %w", err)
		}
	}
	return w.Close()
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ";")
}
