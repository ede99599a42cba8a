package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/wegman-software/osmstream/osm"
)

// TagsToJSON converts feature tags to a JSON string
func TagsToJSON(tags osm.Tags) string {
	if len(tags) == 0 {
		return "{}"
	}
	b, _ := json.Marshal(tags)
	return string(b)
}

// extraFields are the optional metadata columns appended to every schema
// when extra attributes are requested. All nullable: a feature without
// metadata gets nulls, not zeroes.
var extraFields = []arrow.Field{
	{Name: "version", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
	{Name: "timestamp", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "changeset", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	{Name: "uid", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
	{Name: "user", Type: arrow.BinaryTypes.String, Nullable: true},
}

// featureWriter batches records for one feature kind into a Parquet file
type featureWriter struct {
	file      *os.File
	writer    *pqarrow.FileWriter
	builder   *array.RecordBuilder
	batchSize int
	count     int
	numBase   int // number of kind-specific columns before the extra ones
	extra     bool
}

func newFeatureWriter(path string, baseFields []arrow.Field, batchSize int, extra bool) (*featureWriter, error) {
	fields := baseFields
	if extra {
		fields = append(append([]arrow.Field{}, baseFields...), extraFields...)
	}
	schema := arrow.NewSchema(fields, nil)

	f, err := os.Create(path)
	if err != nil {
		return nil, err
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

	return &featureWriter{
		file:      f,
		writer:    writer,
		builder:   array.NewRecordBuilder(memory.DefaultAllocator, schema),
		batchSize: batchSize,
		numBase:   len(baseFields),
		extra:     extra,
	}, nil
}

// appendExtra fills the metadata columns for one feature
func (w *featureWriter) appendExtra(info *osm.Info) {
	if !w.extra {
		return
	}
	version := w.builder.Field(w.numBase).(*array.Int32Builder)
	timestamp := w.builder.Field(w.numBase + 1).(*array.StringBuilder)
	changeset := w.builder.Field(w.numBase + 2).(*array.Int64Builder)
	uid := w.builder.Field(w.numBase + 3).(*array.Int32Builder)
	user := w.builder.Field(w.numBase + 4).(*array.StringBuilder)

	if info == nil {
		version.AppendNull()
		timestamp.AppendNull()
		changeset.AppendNull()
		uid.AppendNull()
		user.AppendNull()
		return
	}

	version.Append(info.Version)
	if info.Timestamp != nil {
		timestamp.Append(info.Timestamp.Format(time.RFC3339))
	} else {
		timestamp.AppendNull()
	}
	if info.Changeset != nil {
		changeset.Append(*info.Changeset)
	} else {
		changeset.AppendNull()
	}
	if info.UID != nil {
		uid.Append(*info.UID)
	} else {
		uid.AppendNull()
	}
	if info.User != nil {
		user.Append(*info.User)
	} else {
		user.AppendNull()
	}
}

func (w *featureWriter) maybeFlush() error {
	w.count++
	if w.count >= w.batchSize {
		return w.flush()
	}
	return nil
}

func (w *featureWriter) flush() error {
	if w.count == 0 {
		return nil
	}
	rec := w.builder.NewRecord()
	defer rec.Release()
	err := w.writer.Write(rec)
	w.count = 0
	return err
}

func (w *featureWriter) Close() error {
	if err := w.flush(); err != nil {
		return err
	}
	if err := w.writer.Close(); err != nil {
		return err
	}
	return w.file.Close()
}

// Writer exports a feature stream into per-kind Parquet files:
// nodes.parquet, ways.parquet and relations.parquet under one directory.
type Writer struct {
	nodes     *featureWriter
	ways      *featureWriter
	relations *featureWriter
}

// NewWriter creates the three per-kind writers under dir
func NewWriter(dir string, batchSize int, extraAttributes bool) (*Writer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	nodes, err := newFeatureWriter(filepath.Join(dir, "nodes.parquet"), []arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
		{Name: "lat", Type: arrow.PrimitiveTypes.Float64, Nullable: false},
		{Name: "lon", Type: arrow.PrimitiveTypes.Float64, Nullable: false},
		{Name: "tags", Type: arrow.BinaryTypes.String, Nullable: false},
	}, batchSize, extraAttributes)
	if err != nil {
		return nil, err
	}

	ways, err := newFeatureWriter(filepath.Join(dir, "ways.parquet"), []arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
		{Name: "refs", Type: arrow.BinaryTypes.String, Nullable: false},
		{Name: "tags", Type: arrow.BinaryTypes.String, Nullable: false},
	}, batchSize, extraAttributes)
	if err != nil {
		nodes.Close()
		return nil, err
	}

	relations, err := newFeatureWriter(filepath.Join(dir, "relations.parquet"), []arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
		{Name: "members", Type: arrow.BinaryTypes.String, Nullable: false},
		{Name: "tags", Type: arrow.BinaryTypes.String, Nullable: false},
	}, batchSize, extraAttributes)
	if err != nil {
		nodes.Close()
		ways.Close()
		return nil, err
	}

	return &Writer{nodes: nodes, ways: ways, relations: relations}, nil
}

// Write appends one feature to the writer for its kind
func (w *Writer) Write(f osm.Feature) error {
	switch o := f.(type) {
	case *osm.Node:
		w.nodes.builder.Field(0).(*array.Int64Builder).Append(o.ID)
		w.nodes.builder.Field(1).(*array.Float64Builder).Append(o.Lat)
		w.nodes.builder.Field(2).(*array.Float64Builder).Append(o.Lon)
		w.nodes.builder.Field(3).(*array.StringBuilder).Append(TagsToJSON(o.Tags))
		w.nodes.appendExtra(o.Info)
		return w.nodes.maybeFlush()

	case *osm.Way:
		refs, _ := json.Marshal(o.Refs)
		w.ways.builder.Field(0).(*array.Int64Builder).Append(o.ID)
		w.ways.builder.Field(1).(*array.StringBuilder).Append(string(refs))
		w.ways.builder.Field(2).(*array.StringBuilder).Append(TagsToJSON(o.Tags))
		w.ways.appendExtra(o.Info)
		return w.ways.maybeFlush()

	case *osm.Relation:
		members, _ := json.Marshal(o.Members)
		w.relations.builder.Field(0).(*array.Int64Builder).Append(o.ID)
		w.relations.builder.Field(1).(*array.StringBuilder).Append(string(members))
		w.relations.builder.Field(2).(*array.StringBuilder).Append(TagsToJSON(o.Tags))
		w.relations.appendExtra(o.Info)
		return w.relations.maybeFlush()
	}
	return nil
}

// Close flushes and closes all three writers
func (w *Writer) Close() error {
	var firstErr error
	for _, fw := range []*featureWriter{w.nodes, w.ways, w.relations} {
		if err := fw.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
