package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/basekick-labs/mkts/internal/export"
	"github.com/basekick-labs/mkts/pkg/codec"
	"github.com/basekick-labs/mkts/pkg/models"
	"github.com/rs/zerolog/log"
)

func sortedKeys(tables map[models.DatasetKey]*codec.RecordBatch) []models.DatasetKey {
	keys := make([]models.DatasetKey, 0, len(tables))
	for k := range tables {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// writeTables prints each table, aligned or as CSV. The Epoch column is shown
// as an RFC3339 time in table mode.
func writeTables(w io.Writer, tables map[models.DatasetKey]*codec.RecordBatch, asCSV bool) error {
	for n, key := range sortedKeys(tables) {
		batch := tables[key]
		header := []string{}
		for _, c := range batch.Columns() {
			header = append(header, c.Name)
		}

		if asCSV {
			cw := csv.NewWriter(w)
			if err := cw.Write(append([]string{"Dataset"}, header...)); err != nil {
				return err
			}
			for i := 0; i < batch.Len(); i++ {
				if err := cw.Write(append([]string{key.String()}, formatRow(batch, i, false)...)); err != nil {
					return err
				}
			}
			cw.Flush()
			if err := cw.Error(); err != nil {
				return err
			}
			continue
		}

		if n > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s (%d rows)\n", key, batch.Len())
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, strings.Join(header, "\t"))
		for i := 0; i < batch.Len(); i++ {
			fmt.Fprintln(tw, strings.Join(formatRow(batch, i, true), "\t"))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func formatRow(batch *codec.RecordBatch, row int, pretty bool) []string {
	cols := batch.Columns()
	out := make([]string, len(cols))
	for i, c := range cols {
		v := c.Value(row)
		if pretty && c.Name == codec.EpochColumn {
			if sec, ok := v.(int64); ok {
				out[i] = time.Unix(sec, 0).UTC().Format(time.RFC3339)
				continue
			}
		}
		out[i] = fmt.Sprint(v)
	}
	return out
}

// readCSV reads rows into a batch laid out by specs. The first CSV row must name
// every column of specs; extra CSV columns are ignored.
func readCSV(r io.Reader, specs []codec.ColumnSpec) (*codec.RecordBatch, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("CSV has no header row")
	}

	pos := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		pos[strings.TrimSpace(name)] = i
	}
	cols := make([]codec.Column, len(specs))
	for ci, s := range specs {
		p, ok := pos[s.Name]
		if !ok {
			return nil, fmt.Errorf("CSV header has no column %s", s.Name)
		}
		cells := make([]string, 0, len(records)-1)
		for _, rec := range records[1:] {
			if p >= len(rec) {
				return nil, fmt.Errorf("CSV row %q is missing column %s", strings.Join(rec, ","), s.Name)
			}
			cells = append(cells, strings.TrimSpace(rec[p]))
		}
		values, err := parseCells(cells, s.Type)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", s.Name, err)
		}
		cols[ci] = codec.Column{Name: s.Name, Type: s.Type, Values: values}
	}
	return codec.NewRecordBatch(cols...)
}

func parseCells(cells []string, tag codec.TypeTag) (interface{}, error) {
	bits := tag.Width * 8
	switch tag.Kind {
	case codec.KindInt:
		n := make([]int64, len(cells))
		for i, s := range cells {
			v, err := strconv.ParseInt(s, 10, bits)
			if err != nil {
				return nil, err
			}
			n[i] = v
		}
		switch tag.Width {
		case 1:
			return convert(n, func(v int64) int8 { return int8(v) }), nil
		case 2:
			return convert(n, func(v int64) int16 { return int16(v) }), nil
		case 4:
			return convert(n, func(v int64) int32 { return int32(v) }), nil
		default:
			return n, nil
		}
	case codec.KindUint:
		n := make([]uint64, len(cells))
		for i, s := range cells {
			v, err := strconv.ParseUint(s, 10, bits)
			if err != nil {
				return nil, err
			}
			n[i] = v
		}
		switch tag.Width {
		case 1:
			return convert(n, func(v uint64) uint8 { return uint8(v) }), nil
		case 2:
			return convert(n, func(v uint64) uint16 { return uint16(v) }), nil
		case 4:
			return convert(n, func(v uint64) uint32 { return uint32(v) }), nil
		default:
			return n, nil
		}
	case codec.KindFloat:
		f := make([]float64, len(cells))
		for i, s := range cells {
			v, err := strconv.ParseFloat(s, bits)
			if err != nil {
				return nil, err
			}
			f[i] = v
		}
		if tag.Width == 4 {
			return convert(f, func(v float64) float32 { return float32(v) }), nil
		}
		return f, nil
	case codec.KindString:
		return cells, nil
	default:
		return nil, &codec.UnsupportedTypeError{Tag: tag}
	}
}

func convert[S, D any](in []S, fn func(S) D) []D {
	out := make([]D, len(in))
	for i, v := range in {
		out[i] = fn(v)
	}
	return out
}

type exporter func(w io.Writer, batch *codec.RecordBatch) error

// exportFiles stores one file per dataset in sink, named after the dataset key.
func exportFiles(ctx context.Context, sink export.Sink, tables map[models.DatasetKey]*codec.RecordBatch, encode exporter, ext string) error {
	var buf bytes.Buffer
	for _, key := range sortedKeys(tables) {
		buf.Reset()
		if err := encode(&buf, tables[key]); err != nil {
			return fmt.Errorf("failed to export %s: %w", key, err)
		}
		name := strings.ReplaceAll(key.String(), "/", "_") + ext
		size := int64(buf.Len())
		if err := sink.Put(ctx, name, &buf, size); err != nil {
			return err
		}
		log.Info().
			Str("dataset", key.String()).
			Str("location", sink.Location(name)).
			Int("rows", tables[key].Len()).
			Int64("bytes", size).
			Msg("Exported dataset")
	}
	return nil
}

// exportArrow writes the batch as an Arrow IPC stream
func exportArrow(w io.Writer, batch *codec.RecordBatch) error {
	rec, err := batch.ToArrow(memory.NewGoAllocator())
	if err != nil {
		return err
	}
	defer rec.Release()

	writer := ipc.NewWriter(w, ipc.WithSchema(rec.Schema()))
	if err := writer.Write(rec); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write record batch: %w", err)
	}
	return writer.Close()
}

// exportParquet writes the batch as a snappy compressed Parquet file
func exportParquet(w io.Writer, batch *codec.RecordBatch) error {
	rec, err := batch.ToArrow(memory.NewGoAllocator())
	if err != nil {
		return err
	}
	defer rec.Release()

	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Snappy),
		parquet.WithStats(true),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())

	writer, err := pqarrow.NewFileWriter(rec.Schema(), w, writerProps, arrowProps)
	if err != nil {
		return fmt.Errorf("failed to create Parquet writer: %w", err)
	}
	if err := writer.Write(rec); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write record batch: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close Parquet writer: %w", err)
	}
	return nil
}
