package osmpbf

// Helpers for building PBF fixtures in memory. Messages are assembled
// field by field with protowire, frames with the 4-byte big-endian
// length prefix, so the tests exercise exactly the bytes a producer
// would emit.

import (
	"bytes"
	"encoding/binary"

	"github.com/klauspost/compress/zlib"
	"google.golang.org/protobuf/encoding/protowire"
)

func appendStringField(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendSint64Field(b []byte, num protowire.Number, v int64) []byte {
	return appendVarintField(b, num, protowire.EncodeZigZag(v))
}

func appendPackedSint64(b []byte, num protowire.Number, vals []int64) []byte {
	if len(vals) == 0 {
		return b
	}
	var packed []byte
	for _, v := range vals {
		packed = protowire.AppendVarint(packed, protowire.EncodeZigZag(v))
	}
	return appendBytesField(b, num, packed)
}

func appendPackedSint32(b []byte, num protowire.Number, vals []int32) []byte {
	if len(vals) == 0 {
		return b
	}
	var packed []byte
	for _, v := range vals {
		packed = protowire.AppendVarint(packed, protowire.EncodeZigZag(int64(v)))
	}
	return appendBytesField(b, num, packed)
}

func appendPackedInt32(b []byte, num protowire.Number, vals []int32) []byte {
	if len(vals) == 0 {
		return b
	}
	var packed []byte
	for _, v := range vals {
		packed = protowire.AppendVarint(packed, uint64(uint32(v)))
	}
	return appendBytesField(b, num, packed)
}

func appendPackedUint32(b []byte, num protowire.Number, vals []uint32) []byte {
	if len(vals) == 0 {
		return b
	}
	var packed []byte
	for _, v := range vals {
		packed = protowire.AppendVarint(packed, uint64(v))
	}
	return appendBytesField(b, num, packed)
}

func appendPackedBool(b []byte, num protowire.Number, vals []bool) []byte {
	if len(vals) == 0 {
		return b
	}
	var packed []byte
	for _, v := range vals {
		n := uint64(0)
		if v {
			n = 1
		}
		packed = protowire.AppendVarint(packed, n)
	}
	return appendBytesField(b, num, packed)
}

// buildStringTable encodes a StringTable message. Index 0 should be the
// empty string, as real producers emit it.
func buildStringTable(strs []string) []byte {
	var b []byte
	for _, s := range strs {
		b = appendStringField(b, 1, s)
	}
	return b
}

// denseSpec describes one DenseNodes message for the builder. Nil slices
// are left out of the encoding entirely.
type denseSpec struct {
	ids      []int64
	lats     []int64
	lons     []int64
	keysVals []int32
	info     *denseInfoSpec
}

type denseInfoSpec struct {
	versions   []int32
	timestamps []int64
	changesets []int64
	uids       []int32
	userSIDs   []int32
	visibles   []bool
}

func buildDense(spec denseSpec) []byte {
	var b []byte
	b = appendPackedSint64(b, 1, spec.ids)
	if spec.info != nil {
		var info []byte
		info = appendPackedInt32(info, 1, spec.info.versions)
		info = appendPackedSint64(info, 2, spec.info.timestamps)
		info = appendPackedSint64(info, 3, spec.info.changesets)
		info = appendPackedSint32(info, 4, spec.info.uids)
		info = appendPackedSint32(info, 5, spec.info.userSIDs)
		info = appendPackedBool(info, 6, spec.info.visibles)
		b = appendBytesField(b, 5, info)
	}
	b = appendPackedSint64(b, 8, spec.lats)
	b = appendPackedSint64(b, 9, spec.lons)
	b = appendPackedInt32(b, 10, spec.keysVals)
	return b
}

// infoSpec describes a non-dense Info message; nil pointer fields are
// left unset.
type infoSpec struct {
	version   int32
	timestamp *int64
	changeset *int64
	uid       *int32
	userSID   *uint32
	visible   *bool
}

func buildInfo(spec infoSpec) []byte {
	var b []byte
	b = appendVarintField(b, 1, uint64(uint32(spec.version)))
	if spec.timestamp != nil {
		b = appendVarintField(b, 2, uint64(*spec.timestamp))
	}
	if spec.changeset != nil {
		b = appendVarintField(b, 3, uint64(*spec.changeset))
	}
	if spec.uid != nil {
		b = appendVarintField(b, 4, uint64(uint32(*spec.uid)))
	}
	if spec.userSID != nil {
		b = appendVarintField(b, 5, uint64(*spec.userSID))
	}
	if spec.visible != nil {
		n := uint64(0)
		if *spec.visible {
			n = 1
		}
		b = appendVarintField(b, 6, n)
	}
	return b
}

func buildNode(id, lat, lon int64, keys, vals []uint32, info []byte) []byte {
	var b []byte
	b = appendSint64Field(b, 1, id)
	b = appendPackedUint32(b, 2, keys)
	b = appendPackedUint32(b, 3, vals)
	if info != nil {
		b = appendBytesField(b, 4, info)
	}
	b = appendSint64Field(b, 8, lat)
	b = appendSint64Field(b, 9, lon)
	return b
}

func buildWay(id int64, keys, vals []uint32, refDeltas []int64) []byte {
	var b []byte
	b = appendVarintField(b, 1, uint64(id))
	b = appendPackedUint32(b, 2, keys)
	b = appendPackedUint32(b, 3, vals)
	b = appendPackedSint64(b, 8, refDeltas)
	return b
}

func buildRelation(id int64, keys, vals []uint32, roles []int32, memDeltas []int64, types []int32) []byte {
	var b []byte
	b = appendVarintField(b, 1, uint64(id))
	b = appendPackedUint32(b, 2, keys)
	b = appendPackedUint32(b, 3, vals)
	b = appendPackedInt32(b, 8, roles)
	b = appendPackedSint64(b, 9, memDeltas)
	b = appendPackedInt32(b, 10, types)
	return b
}

func groupWithDense(dense []byte) []byte {
	return appendBytesField(nil, 2, dense)
}

func groupWithNodes(nodes ...[]byte) []byte {
	var b []byte
	for _, n := range nodes {
		b = appendBytesField(b, 1, n)
	}
	return b
}

func groupWithWays(ways ...[]byte) []byte {
	var b []byte
	for _, w := range ways {
		b = appendBytesField(b, 3, w)
	}
	return b
}

func groupWithRelations(rels ...[]byte) []byte {
	var b []byte
	for _, r := range rels {
		b = appendBytesField(b, 4, r)
	}
	return b
}

// blockSpec describes one PrimitiveBlock; zero-valued scalars are left
// unset so the decoder applies the schema defaults.
type blockSpec struct {
	strings         []string
	groups          [][]byte
	granularity     int32
	dateGranularity int32
	latOffset       int64
	lonOffset       int64
}

func buildBlock(spec blockSpec) []byte {
	var b []byte
	b = appendBytesField(b, 1, buildStringTable(spec.strings))
	for _, g := range spec.groups {
		b = appendBytesField(b, 2, g)
	}
	if spec.granularity != 0 {
		b = appendVarintField(b, 17, uint64(uint32(spec.granularity)))
	}
	if spec.dateGranularity != 0 {
		b = appendVarintField(b, 18, uint64(uint32(spec.dateGranularity)))
	}
	if spec.latOffset != 0 {
		b = appendVarintField(b, 19, uint64(spec.latOffset))
	}
	if spec.lonOffset != 0 {
		b = appendVarintField(b, 20, uint64(spec.lonOffset))
	}
	return b
}

func buildHeaderBlockBytes(required ...string) []byte {
	var b []byte
	for _, f := range required {
		b = appendStringField(b, 4, f)
	}
	return b
}

func blobWithRaw(payload []byte) []byte {
	return appendBytesField(nil, 1, payload)
}

func blobWithZlib(payload []byte) []byte {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	w.Write(payload)
	w.Close()

	var b []byte
	b = appendVarintField(b, 2, uint64(uint32(len(payload))))
	return appendBytesField(b, 3, buf.Bytes())
}

// frame wraps an encoded Blob message in a typed, length-prefixed frame.
func frame(frameType string, blobBytes []byte) []byte {
	var header []byte
	header = appendStringField(header, 1, frameType)
	header = appendVarintField(header, 3, uint64(uint32(len(blobBytes))))

	out := make([]byte, 4, 4+len(header)+len(blobBytes))
	binary.BigEndian.PutUint32(out, uint32(len(header)))
	out = append(out, header...)
	out = append(out, blobBytes...)
	return out
}

// pbfFile concatenates frames into an in-memory file.
func pbfFile(frames ...[]byte) *bytes.Reader {
	var b []byte
	for _, f := range frames {
		b = append(b, f...)
	}
	return bytes.NewReader(b)
}

// headerFrame is the standard valid leading frame used by most tests.
func headerFrame() []byte {
	return frame(frameTypeHeader, blobWithRaw(buildHeaderBlockBytes("OsmSchema-V0.6", "DenseNodes")))
}

func dataFrame(block []byte) []byte {
	return frame(frameTypeData, blobWithRaw(block))
}

func i64(v int64) *int64   { return &v }
func i32(v int32) *int32   { return &v }
func u32(v uint32) *uint32 { return &v }
func boolp(v bool) *bool   { return &v }
