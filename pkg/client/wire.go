package client

import (
	"fmt"

	"github.com/basekick-labs/mkts/pkg/codec"
)

// MultiDataset is one packed record batch shared by one or more dataset keys.
// StartIndex and Lengths locate each key's rows within the batch. The msgpack form
// carries short type codes in ColumnTypes; the JSON form carries an NPY header.
type MultiDataset struct {
	Header      []byte         `json:"header,omitempty" msgpack:"header,omitempty"`
	ColumnTypes []string       `json:"types,omitempty" msgpack:"types"`
	ColumnNames []string       `json:"columnnames" msgpack:"names"`
	ColumnData  [][]byte       `json:"columndata" msgpack:"data"`
	Length      int            `json:"length" msgpack:"length"`
	StartIndex  map[string]int `json:"startindex" msgpack:"startindex"`
	Lengths     map[string]int `json:"lengths" msgpack:"lengths"`
}

// NewMultiDataset packs batch as the only dataset of a new MultiDataset.
// When truncate is set, over-length strings are cut instead of failing and the
// truncated cells are reported by column name.
func NewMultiDataset(batch *codec.RecordBatch, wireKey string, truncate bool) (*MultiDataset, map[string][]int, error) {
	header, err := codec.DeriveHeader(batch)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to derive header: %w", err)
	}
	md := &MultiDataset{
		Header:     header,
		Length:     batch.Len(),
		StartIndex: map[string]int{wireKey: 0},
		Lengths:    map[string]int{wireKey: batch.Len()},
	}
	var lost map[string][]int
	for _, col := range batch.Columns() {
		code, err := col.Type.Code()
		if err != nil {
			return nil, nil, err
		}
		var buf []byte
		if truncate {
			var cut []int
			buf, cut, err = codec.PackTruncating(col.Values, col.Type)
			if len(cut) > 0 {
				if lost == nil {
					lost = make(map[string][]int)
				}
				lost[col.Name] = cut
			}
		} else {
			buf, err = codec.Pack(col.Values, col.Type)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to pack column %s: %w", col.Name, err)
		}
		md.ColumnTypes = append(md.ColumnTypes, code)
		md.ColumnNames = append(md.ColumnNames, col.Name)
		md.ColumnData = append(md.ColumnData, buf)
	}
	return md, lost, nil
}

// Append adds other's rows under wireKey. Column names and types must match.
func (md *MultiDataset) Append(other *MultiDataset, wireKey string) error {
	if len(md.ColumnNames) != len(other.ColumnNames) {
		return fmt.Errorf("column count mismatch: %d vs %d", len(md.ColumnNames), len(other.ColumnNames))
	}
	for i, name := range md.ColumnNames {
		if other.ColumnNames[i] != name || other.ColumnTypes[i] != md.ColumnTypes[i] {
			return fmt.Errorf("column %d mismatch: %s %s vs %s %s",
				i, name, md.ColumnTypes[i], other.ColumnNames[i], other.ColumnTypes[i])
		}
	}
	if md.StartIndex == nil {
		md.StartIndex = make(map[string]int)
		md.Lengths = make(map[string]int)
	}
	if _, dup := md.StartIndex[wireKey]; dup {
		return fmt.Errorf("dataset %s already present", wireKey)
	}
	md.StartIndex[wireKey] = md.Length
	md.Lengths[wireKey] = other.Length
	md.Length += other.Length
	for i := range md.ColumnData {
		md.ColumnData[i] = append(md.ColumnData[i], other.ColumnData[i]...)
	}

	specs := make([]codec.ColumnSpec, len(md.ColumnNames))
	for i, name := range md.ColumnNames {
		tag, err := codec.WireToTag(md.ColumnTypes[i])
		if err != nil {
			return err
		}
		specs[i] = codec.ColumnSpec{Name: name, Type: tag, Count: md.Length}
	}
	header, err := codec.DeriveHeaderSpecs(specs, md.Length)
	if err != nil {
		return err
	}
	md.Header = header
	return nil
}

// QueryRequest is the parameter object of one DataService.Query request.
type QueryRequest struct {
	// Destination is <symbols>/<timeframe>/<attribute_group>
	Destination      string   `json:"destination" msgpack:"destination"`
	KeyCategory      string   `json:"key_category,omitempty" msgpack:"key_category,omitempty"`
	EpochStart       *int64   `json:"epoch_start,omitempty" msgpack:"epoch_start,omitempty"`
	EpochStartNanos  *int64   `json:"epoch_start_nanos,omitempty" msgpack:"epoch_start_nanos,omitempty"`
	EpochEnd         *int64   `json:"epoch_end,omitempty" msgpack:"epoch_end,omitempty"`
	EpochEndNanos    *int64   `json:"epoch_end_nanos,omitempty" msgpack:"epoch_end_nanos,omitempty"`
	LimitRecordCount *int     `json:"limit_record_count,omitempty" msgpack:"limit_record_count,omitempty"`
	LimitFromStart   *bool    `json:"limit_from_start,omitempty" msgpack:"limit_from_start,omitempty"`
	Columns          []string `json:"columns,omitempty" msgpack:"columns,omitempty"`
	Functions        []string `json:"functions,omitempty" msgpack:"functions,omitempty"`
}

// MultiQueryRequest is the params object of DataService.Query.
type MultiQueryRequest struct {
	Requests []QueryRequest `json:"requests" msgpack:"requests"`
}

// QueryResponse is one entry of a query reply. A nil Result is the server's
// explicit "no result" marker.
type QueryResponse struct {
	Result       *MultiDataset `json:"result" msgpack:"result"`
	PreviousTime *int64        `json:"previoustime,omitempty" msgpack:"previoustime,omitempty"`
}

// MultiQueryResponse is the result object of DataService.Query.
type MultiQueryResponse struct {
	Responses []QueryResponse `json:"responses" msgpack:"responses"`
	Version   string          `json:"version" msgpack:"version"`
	Timezone  string          `json:"timezone" msgpack:"timezone"`
}

// WriteRequest is one entry of DataService.Write.
type WriteRequest struct {
	Data             *MultiDataset `json:"data" msgpack:"dataset"`
	IsVariableLength bool          `json:"isvariablelength" msgpack:"is_variable_length"`
}

// MultiWriteRequest is the params object of DataService.Write.
type MultiWriteRequest struct {
	Requests []WriteRequest `json:"requests" msgpack:"requests"`
}

// ServerResponse carries a per-request error string from the server.
type ServerResponse struct {
	Error   string `json:"error" msgpack:"error"`
	Version string `json:"version" msgpack:"version"`
}

// MultiServerResponse is the result object of Write, Create and Destroy.
type MultiServerResponse struct {
	Responses []ServerResponse `json:"responses" msgpack:"responses"`
}

// CreateRequest creates a new bucket.
type CreateRequest struct {
	Key              string   `json:"key" msgpack:"key"`
	ColumnTypes      []string `json:"column_types" msgpack:"column_types"`
	ColumnNames      []string `json:"column_names" msgpack:"column_names"`
	IsVariableLength bool     `json:"is_variable_length" msgpack:"is_variable_length"`
}

// MultiCreateRequest is the params object of DataService.Create.
type MultiCreateRequest struct {
	Requests []CreateRequest `json:"requests" msgpack:"requests"`
}

// KeyRequest names a bucket.
type KeyRequest struct {
	Key string `json:"key" msgpack:"key"`
}

// MultiKeyRequest is the params object of DataService.Destroy.
type MultiKeyRequest struct {
	Requests []KeyRequest `json:"requests" msgpack:"requests"`
}

// ListSymbolsRequest is the params object of DataService.ListSymbols.
type ListSymbolsRequest struct {
	// "symbol" or "tbk"
	Format string `json:"format,omitempty" msgpack:"format,omitempty"`
}

// ListSymbolsResponse is the result object of DataService.ListSymbols.
type ListSymbolsResponse struct {
	Results []string
}
