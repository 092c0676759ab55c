package rpctest

import (
	"fmt"
	"sort"
	"sync"

	"github.com/basekick-labs/mkts/pkg/client"
	"github.com/basekick-labs/mkts/pkg/codec"
	"github.com/basekick-labs/mkts/pkg/models"
)

// Store holds one sorted batch per single-symbol bucket.
type Store struct {
	mu      sync.RWMutex
	buckets map[models.DatasetKey]*codec.RecordBatch
}

// NewStore returns an empty store
func NewStore() *Store {
	return &Store{buckets: make(map[models.DatasetKey]*codec.RecordBatch)}
}

// Put replaces the bucket for key. Rows are sorted by index.
func (s *Store) Put(key models.DatasetKey, batch *codec.RecordBatch) error {
	if len(key.Symbols()) != 1 {
		return fmt.Errorf("bucket key %s must name exactly one symbol", key)
	}
	sorted, err := sortByIndex(batch)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.buckets[key] = sorted
	s.mu.Unlock()
	return nil
}

// Get returns the bucket for key
func (s *Store) Get(key models.DatasetKey) (*codec.RecordBatch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.buckets[key]
	return b, ok
}

// Query answers a multi query. Symbols without a bucket are left out of the
// result; a request matching no bucket gets a null result.
func (s *Store) Query(req *client.MultiQueryRequest) (*client.MultiQueryResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resp := &client.MultiQueryResponse{Responses: make([]client.QueryResponse, 0, len(req.Requests))}
	for _, r := range req.Requests {
		md, err := s.query(&r)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", r.Destination, err)
		}
		resp.Responses = append(resp.Responses, client.QueryResponse{Result: md})
	}
	return resp, nil
}

func (s *Store) query(r *client.QueryRequest) (*client.MultiDataset, error) {
	if r.KeyCategory != "" && r.KeyCategory != models.DefaultKeyCategory {
		return nil, fmt.Errorf("unsupported key category %q", r.KeyCategory)
	}
	dest, err := models.ParseDatasetKey(r.Destination)
	if err != nil {
		return nil, err
	}

	var md *client.MultiDataset
	for _, key := range dest.Split() {
		bucket, ok := s.buckets[key]
		if !ok {
			continue
		}
		rows, err := filterRows(bucket, r)
		if err != nil {
			return nil, err
		}
		rows, err = project(rows, r.Columns)
		if err != nil {
			return nil, err
		}
		one, _, err := client.NewMultiDataset(rows, key.WireString(), false)
		if err != nil {
			return nil, err
		}
		if md == nil {
			md = one
			continue
		}
		if err := md.Append(one, key.WireString()); err != nil {
			return nil, err
		}
	}
	return md, nil
}

// filterRows applies the epoch bounds and the record limit of r.
func filterRows(b *codec.RecordBatch, r *client.QueryRequest) (*codec.RecordBatch, error) {
	times, err := indexNanos(b)
	if err != nil {
		return nil, err
	}
	lo, hi := int64(-1<<63), int64(1<<63-1)
	if r.EpochStart != nil {
		lo = *r.EpochStart * 1e9
		if r.EpochStartNanos != nil {
			lo += *r.EpochStartNanos
		}
	}
	if r.EpochEnd != nil {
		hi = *r.EpochEnd * 1e9
		if r.EpochEndNanos != nil {
			hi += *r.EpochEndNanos
		}
	}
	start := sort.Search(len(times), func(i int) bool { return times[i] >= lo })
	end := sort.Search(len(times), func(i int) bool { return times[i] > hi })
	if end < start {
		end = start
	}

	if r.LimitRecordCount != nil && *r.LimitRecordCount > 0 && end-start > *r.LimitRecordCount {
		if r.LimitFromStart != nil && *r.LimitFromStart {
			end = start + *r.LimitRecordCount
		} else {
			start = end - *r.LimitRecordCount
		}
	}
	return b.Slice(start, end-start)
}

// project keeps the index plus the named columns, in bucket order.
func project(b *codec.RecordBatch, names []string) (*codec.RecordBatch, error) {
	if len(names) == 0 {
		return b, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		if _, ok := b.Column(n); !ok {
			return nil, fmt.Errorf("unknown column %s", n)
		}
		want[n] = true
	}
	var cols []codec.Column
	for i, c := range b.Columns() {
		if i == 0 || want[c.Name] {
			cols = append(cols, c)
		}
	}
	return codec.NewRecordBatch(cols...)
}

// Write merges each dataset of the request into its bucket, creating missing
// buckets. Rows with an existing index replace the stored row.
func (s *Store) Write(req *client.MultiWriteRequest, version string) *client.MultiServerResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := &client.MultiServerResponse{}
	for _, w := range req.Requests {
		resp.Responses = append(resp.Responses, serverResponse(s.write(&w), version))
	}
	return resp
}

func (s *Store) write(w *client.WriteRequest) error {
	if w.Data == nil {
		return fmt.Errorf("write request has no dataset")
	}
	tables, err := client.AssembleDataset(w.Data)
	if err != nil {
		return err
	}
	keys := make([]models.DatasetKey, 0, len(tables))
	for k := range tables {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	for _, key := range keys {
		if len(key.Symbols()) != 1 {
			return fmt.Errorf("write key %s must name exactly one symbol", key)
		}
		incoming := tables[key]
		merged := incoming
		if existing, ok := s.buckets[key]; ok {
			if merged, err = codec.Concat(existing, incoming); err != nil {
				return fmt.Errorf("write to %s: %w", key, err)
			}
		}
		sorted, err := sortByIndex(merged)
		if err != nil {
			return fmt.Errorf("write to %s: %w", key, err)
		}
		s.buckets[key] = sorted
	}
	return nil
}

// Create adds empty buckets
func (s *Store) Create(req *client.MultiCreateRequest, version string) *client.MultiServerResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := &client.MultiServerResponse{}
	for _, c := range req.Requests {
		resp.Responses = append(resp.Responses, serverResponse(s.create(&c), version))
	}
	return resp
}

func (s *Store) create(c *client.CreateRequest) error {
	key, err := models.ParseDatasetKey(c.Key)
	if err != nil {
		return err
	}
	if len(key.Symbols()) != 1 {
		return fmt.Errorf("bucket key %s must name exactly one symbol", key)
	}
	if _, ok := s.buckets[key]; ok {
		return fmt.Errorf("bucket %s already exists", key)
	}
	if len(c.ColumnNames) != len(c.ColumnTypes) {
		return fmt.Errorf("%d column names for %d types", len(c.ColumnNames), len(c.ColumnTypes))
	}
	specs := make([]codec.ColumnSpec, len(c.ColumnNames))
	for i, name := range c.ColumnNames {
		tag, err := codec.WireToTag(c.ColumnTypes[i])
		if err != nil {
			return fmt.Errorf("column %s: %w", name, err)
		}
		specs[i] = codec.ColumnSpec{Name: name, Type: tag}
	}
	if len(specs) == 0 || specs[0].Name != codec.EpochColumn {
		return fmt.Errorf("bucket %s must start with the %s column", key, codec.EpochColumn)
	}
	s.buckets[key] = codec.EmptyBatch(specs)
	return nil
}

// Destroy removes buckets
func (s *Store) Destroy(req *client.MultiKeyRequest, version string) *client.MultiServerResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := &client.MultiServerResponse{}
	for _, r := range req.Requests {
		var err error
		key, perr := models.ParseDatasetKey(r.Key)
		switch {
		case perr != nil:
			err = perr
		default:
			if _, ok := s.buckets[key]; !ok {
				err = fmt.Errorf("removal of catalog entry failed: %s not found", key)
			} else {
				delete(s.buckets, key)
			}
		}
		resp.Responses = append(resp.Responses, serverResponse(err, version))
	}
	return resp
}

// ListSymbols lists distinct symbols, or full bucket keys for format "tbk".
func (s *Store) ListSymbols(format string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	out := []string{}
	for key := range s.buckets {
		name := key.Symbols()[0]
		if format == client.KeyFormat {
			name = key.String()
		}
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func serverResponse(err error, version string) client.ServerResponse {
	r := client.ServerResponse{Version: version}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// indexNanos returns the row times in nanoseconds
func indexNanos(b *codec.RecordBatch) ([]int64, error) {
	epochs, ok := b.Int64s(codec.EpochColumn)
	if !ok {
		return nil, fmt.Errorf("bucket has no int64 %s column", codec.EpochColumn)
	}
	var nanos []int32
	if c, ok := b.Column(codec.NanosecondsColumn); ok {
		nanos, _ = c.Values.([]int32)
	}
	out := make([]int64, len(epochs))
	for i, e := range epochs {
		out[i] = e * 1e9
		if nanos != nil {
			out[i] += int64(nanos[i])
		}
	}
	return out, nil
}

// sortByIndex orders rows by time, keeping the last row written for each time.
func sortByIndex(b *codec.RecordBatch) (*codec.RecordBatch, error) {
	times, err := indexNanos(b)
	if err != nil {
		return nil, err
	}
	last := make(map[int64]int, len(times))
	for i, t := range times {
		last[t] = i
	}
	idx := make([]int, 0, len(last))
	for i, t := range times {
		if last[t] == i {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, c int) bool { return times[idx[a]] < times[idx[c]] })
	return b.Take(idx)
}
