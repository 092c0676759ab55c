package client

import (
	"testing"
	"time"

	"github.com/basekick-labs/mkts/pkg/codec"
	"github.com/basekick-labs/mkts/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func barBatch(t *testing.T, epochs []int64, closes []float64) *codec.RecordBatch {
	t.Helper()
	b, err := codec.NewRecordBatch(
		codec.Column{Name: "Epoch", Type: codec.Int64, Values: epochs},
		codec.Column{Name: "Close", Type: codec.Float64, Values: closes},
	)
	require.NoError(t, err)
	return b
}

func TestBuildQueryRequest_Bounds(t *testing.T) {
	p, err := models.NewQueryParams([]string{"AAPL", "TSLA"}, "1Min", "OHLCV")
	require.NoError(t, err)
	p.Start = time.Unix(1700000000, 0)
	p.End = time.Unix(1700003600, 250)
	p.Columns = []string{"Close"}

	req, err := BuildQueryRequest(p)
	require.NoError(t, err)

	assert.Equal(t, "AAPL,TSLA/1Min/OHLCV", req.Destination)
	require.NotNil(t, req.EpochStart)
	assert.Equal(t, int64(1700000000), *req.EpochStart)
	assert.Nil(t, req.EpochStartNanos)
	require.NotNil(t, req.EpochEnd)
	assert.Equal(t, int64(1700003600), *req.EpochEnd)
	require.NotNil(t, req.EpochEndNanos)
	assert.Equal(t, int64(250), *req.EpochEndNanos)
	assert.Nil(t, req.LimitRecordCount)
	assert.Equal(t, []string{"Close"}, req.Columns)
}

func TestBuildQueryRequest_Limit(t *testing.T) {
	p, err := models.NewQueryParams([]string{"AAPL"}, "1D", "OHLCV")
	require.NoError(t, err)
	p.Limit = 10
	p.LimitFromStart = true

	req, err := BuildQueryRequest(p)
	require.NoError(t, err)
	require.NotNil(t, req.LimitRecordCount)
	assert.Equal(t, 10, *req.LimitRecordCount)
	require.NotNil(t, req.LimitFromStart)
	assert.True(t, *req.LimitFromStart)
	assert.Nil(t, req.EpochStart)
	assert.Nil(t, req.EpochEnd)
}

func TestBuildMultiQueryRequest(t *testing.T) {
	_, err := BuildMultiQueryRequest()
	assert.Error(t, err)

	good, err := models.NewQueryParams([]string{"AAPL"}, "1Min", "OHLCV")
	require.NoError(t, err)
	bad := &models.QueryParams{Key: good.Key, Limit: -5}

	_, err = BuildMultiQueryRequest(good, bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query 1")

	mqr, err := BuildMultiQueryRequest(good, good)
	require.NoError(t, err)
	assert.Len(t, mqr.Requests, 2)
}

func TestBuildWriteRequest_Multiplexes(t *testing.T) {
	aapl := models.MustDatasetKey("AAPL/1Min/OHLCV")
	tsla := models.MustDatasetKey("TSLA/1Min/OHLCV")
	batches := map[models.DatasetKey]*codec.RecordBatch{
		aapl: barBatch(t, []int64{1, 2}, []float64{10, 11}),
		tsla: barBatch(t, []int64{1, 2, 3}, []float64{20, 21, 22}),
	}

	req, lost, err := BuildWriteRequest([]models.DatasetKey{aapl, tsla}, batches, WriteOptions{IsVariableLength: true})
	require.NoError(t, err)
	assert.Nil(t, lost)
	require.Len(t, req.Requests, 1)
	assert.True(t, req.Requests[0].IsVariableLength)

	md := req.Requests[0].Data
	assert.Equal(t, 5, md.Length)
	assert.Equal(t, map[string]int{aapl.WireString(): 0, tsla.WireString(): 2}, md.StartIndex)
	assert.Equal(t, map[string]int{aapl.WireString(): 2, tsla.WireString(): 3}, md.Lengths)
	assert.Equal(t, []string{"i8", "f8"}, md.ColumnTypes)
	assert.Equal(t, []string{"Epoch", "Close"}, md.ColumnNames)

	specs, err := codec.ParseHeader(md.Header)
	require.NoError(t, err)
	assert.Equal(t, 5, specs[0].Count)

	tables, err := AssembleDataset(md)
	require.NoError(t, err)
	closes, _ := tables[tsla].Float64s("Close")
	assert.Equal(t, []float64{20, 21, 22}, closes)
}

func TestBuildWriteRequest_Rejects(t *testing.T) {
	multi := models.MustDatasetKey("AAPL,TSLA/1Min/OHLCV")
	aapl := models.MustDatasetKey("AAPL/1Min/OHLCV")
	noEpoch, err := codec.NewRecordBatch(codec.Column{Name: "Close", Type: codec.Float64, Values: []float64{1}})
	require.NoError(t, err)

	_, _, err = BuildWriteRequest(nil, nil, WriteOptions{})
	assert.Error(t, err)

	_, _, err = BuildWriteRequest([]models.DatasetKey{multi},
		map[models.DatasetKey]*codec.RecordBatch{multi: barBatch(t, []int64{1}, []float64{1})}, WriteOptions{})
	assert.Error(t, err)

	_, _, err = BuildWriteRequest([]models.DatasetKey{aapl},
		map[models.DatasetKey]*codec.RecordBatch{aapl: noEpoch}, WriteOptions{})
	assert.Error(t, err)

	_, _, err = BuildWriteRequest([]models.DatasetKey{aapl}, map[models.DatasetKey]*codec.RecordBatch{}, WriteOptions{})
	assert.Error(t, err)
}

func TestBuildWriteRequest_Strings(t *testing.T) {
	key := models.MustDatasetKey("AAPL/1Min/NEWS")
	b, err := codec.NewRecordBatch(
		codec.Column{Name: "Epoch", Type: codec.Int64, Values: []int64{1, 2}},
		codec.Column{Name: "Headline", Type: codec.String(4), Values: []string{"ok", "too long"}},
	)
	require.NoError(t, err)
	batches := map[models.DatasetKey]*codec.RecordBatch{key: b}

	_, _, err = BuildWriteRequest([]models.DatasetKey{key}, batches, WriteOptions{})
	assert.ErrorIs(t, err, codec.ErrStringOverflow)

	req, lost, err := BuildWriteRequest([]models.DatasetKey{key}, batches, WriteOptions{TruncateStrings: true})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, lost[key]["Headline"])

	tables, err := AssembleDataset(req.Requests[0].Data)
	require.NoError(t, err)
	headlines, _ := tables[key].Strings("Headline")
	assert.Equal(t, []string{"ok", "too "}, headlines)
}

func TestBuildCreateRequest(t *testing.T) {
	key := models.MustDatasetKey("AAPL/1Min/OHLCV")
	req, err := BuildCreateRequest(key, []codec.ColumnSpec{
		{Name: "Epoch", Type: codec.Int64},
		{Name: "Open", Type: codec.Float32},
		{Name: "Sym", Type: codec.String(8)},
	}, false)
	require.NoError(t, err)
	require.Len(t, req.Requests, 1)

	c := req.Requests[0]
	assert.Equal(t, "AAPL/1Min/OHLCV:Symbol/Timeframe/AttributeGroup", c.Key)
	assert.Equal(t, []string{"Epoch", "Open", "Sym"}, c.ColumnNames)
	assert.Equal(t, []string{"i8", "f4", "U8"}, c.ColumnTypes)

	_, err = BuildCreateRequest(key, []codec.ColumnSpec{{Name: "Open", Type: codec.Float32}}, false)
	assert.Error(t, err)
	_, err = BuildCreateRequest(key, []codec.ColumnSpec{{Name: "Epoch", Type: codec.Int32}}, false)
	assert.Error(t, err)
}

func TestMultiDatasetAppend_Mismatch(t *testing.T) {
	a, _, err := NewMultiDataset(barBatch(t, []int64{1}, []float64{1}), "A/1Min/OHLCV", false)
	require.NoError(t, err)
	other, err := codec.NewRecordBatch(
		codec.Column{Name: "Epoch", Type: codec.Int64, Values: []int64{1}},
		codec.Column{Name: "Close", Type: codec.Float32, Values: []float32{1}},
	)
	require.NoError(t, err)
	b, _, err := NewMultiDataset(other, "B/1Min/OHLCV", false)
	require.NoError(t, err)

	assert.Error(t, a.Append(b, "B/1Min/OHLCV"))

	same, _, err := NewMultiDataset(barBatch(t, []int64{2}, []float64{2}), "A/1Min/OHLCV", false)
	require.NoError(t, err)
	assert.Error(t, a.Append(same, "A/1Min/OHLCV"))
}
