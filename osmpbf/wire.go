package osmpbf

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// This file holds the protobuf message readers for the PBF container.
// The schema is fixed (fileformat.proto and osmformat.proto from the OSM
// PBF format), so the messages are decoded with hand-written field loops
// on top of protowire instead of generated code. Unknown fields are
// skipped; repeated scalar fields accept both packed and unpacked
// encodings, as required by the protobuf wire spec.

// msgReader steps field by field through one encoded protobuf message.
type msgReader struct {
	buf []byte
	num protowire.Number
	typ protowire.Type
	raw []uint64
	err error
}

func newMsgReader(buf []byte) *msgReader {
	return &msgReader{buf: buf}
}

// next advances to the next field, returning false at end of message or on
// a malformed tag.
func (r *msgReader) next() bool {
	if r.err != nil || len(r.buf) == 0 {
		return false
	}
	num, typ, n := protowire.ConsumeTag(r.buf)
	if n < 0 {
		r.err = protowire.ParseError(n)
		return false
	}
	r.buf = r.buf[n:]
	r.num = num
	r.typ = typ
	return true
}

func (r *msgReader) skip() {
	if r.err != nil {
		return
	}
	n := protowire.ConsumeFieldValue(r.num, r.typ, r.buf)
	if n < 0 {
		r.err = protowire.ParseError(n)
		return
	}
	r.buf = r.buf[n:]
}

func (r *msgReader) bytes() []byte {
	if r.err != nil {
		return nil
	}
	if r.typ != protowire.BytesType {
		r.err = fmt.Errorf("field %d: unexpected wire type %d for length-delimited field", r.num, r.typ)
		return nil
	}
	v, n := protowire.ConsumeBytes(r.buf)
	if n < 0 {
		r.err = protowire.ParseError(n)
		return nil
	}
	r.buf = r.buf[n:]
	return v
}

func (r *msgReader) varint() uint64 {
	if r.err != nil {
		return 0
	}
	if r.typ != protowire.VarintType {
		r.err = fmt.Errorf("field %d: unexpected wire type %d for varint field", r.num, r.typ)
		return 0
	}
	v, n := protowire.ConsumeVarint(r.buf)
	if n < 0 {
		r.err = protowire.ParseError(n)
		return 0
	}
	r.buf = r.buf[n:]
	return v
}

func (r *msgReader) int32() int32   { return int32(r.varint()) }
func (r *msgReader) int64() int64   { return int64(r.varint()) }
func (r *msgReader) uint32() uint32 { return uint32(r.varint()) }
func (r *msgReader) sint64() int64  { return protowire.DecodeZigZag(r.varint()) }
func (r *msgReader) bool() bool     { return r.varint() != 0 }

func (r *msgReader) string() string {
	return string(r.bytes())
}

// packedVarints appends the field's varint values to dst, handling both
// packed and unpacked repeated encodings.
func (r *msgReader) packedVarints(dst []uint64) []uint64 {
	if r.err != nil {
		return dst
	}
	if r.typ == protowire.VarintType {
		return append(dst, r.varint())
	}
	buf := r.bytes()
	for len(buf) > 0 {
		v, n := protowire.ConsumeVarint(buf)
		if n < 0 {
			r.err = protowire.ParseError(n)
			return dst
		}
		buf = buf[n:]
		dst = append(dst, v)
	}
	return dst
}

// packed decodes the current field's raw varints into a buffer reused
// across fields of the same message.
func (r *msgReader) packed() []uint64 {
	r.raw = r.packedVarints(r.raw[:0])
	return r.raw
}

func (r *msgReader) packedSint64s(dst []int64) []int64 {
	for _, v := range r.packed() {
		dst = append(dst, protowire.DecodeZigZag(v))
	}
	return dst
}

func (r *msgReader) packedSint32s(dst []int32) []int32 {
	for _, v := range r.packed() {
		dst = append(dst, int32(protowire.DecodeZigZag(v)))
	}
	return dst
}

func (r *msgReader) packedInt32s(dst []int32) []int32 {
	for _, v := range r.packed() {
		dst = append(dst, int32(v))
	}
	return dst
}

func (r *msgReader) packedUint32s(dst []uint32) []uint32 {
	for _, v := range r.packed() {
		dst = append(dst, uint32(v))
	}
	return dst
}

func (r *msgReader) packedBools(dst []bool) []bool {
	for _, v := range r.packed() {
		dst = append(dst, v != 0)
	}
	return dst
}

// fileformat.proto

// blobHeader frames one blob: its type and the byte length of the Blob
// message that follows.
type blobHeader struct {
	Type     string
	Datasize int32
}

func parseBlobHeader(data []byte) (*blobHeader, error) {
	h := &blobHeader{}
	r := newMsgReader(data)
	for r.next() {
		switch r.num {
		case 1:
			h.Type = r.string()
		case 3:
			h.Datasize = r.int32()
		default:
			r.skip()
		}
	}
	if r.err != nil {
		return nil, fmt.Errorf("BlobHeader: %w", r.err)
	}
	return h, nil
}

// blob carries one frame's payload under exactly one of its compression
// fields. Presence flags are kept separately because an empty raw payload
// is still a present payload.
type blob struct {
	Raw      []byte
	RawSize  int32
	ZlibData []byte
	LzmaData []byte

	hasRaw  bool
	hasZlib bool
	hasLzma bool
}

func parseBlob(data []byte) (*blob, error) {
	b := &blob{}
	r := newMsgReader(data)
	for r.next() {
		switch r.num {
		case 1:
			b.Raw = r.bytes()
			b.hasRaw = true
		case 2:
			b.RawSize = r.int32()
		case 3:
			b.ZlibData = r.bytes()
			b.hasZlib = true
		case 4:
			b.LzmaData = r.bytes()
			b.hasLzma = true
		default:
			r.skip()
		}
	}
	if r.err != nil {
		return nil, fmt.Errorf("Blob: %w", r.err)
	}
	return b, nil
}

// osmformat.proto

type headerBBox struct {
	Left   int64
	Right  int64
	Top    int64
	Bottom int64
}

type headerBlock struct {
	BBox                 *headerBBox
	RequiredFeatures     []string
	OptionalFeatures     []string
	WritingProgram       string
	Source               string
	ReplicationTimestamp int64
	ReplicationSequence  int64
	ReplicationBaseURL   string
}

func parseHeaderBlock(data []byte) (*headerBlock, error) {
	h := &headerBlock{}
	r := newMsgReader(data)
	for r.next() {
		switch r.num {
		case 1:
			bbox, err := parseHeaderBBox(r.bytes())
			if err != nil {
				return nil, err
			}
			h.BBox = bbox
		case 4:
			h.RequiredFeatures = append(h.RequiredFeatures, r.string())
		case 5:
			h.OptionalFeatures = append(h.OptionalFeatures, r.string())
		case 16:
			h.WritingProgram = r.string()
		case 17:
			h.Source = r.string()
		case 32:
			h.ReplicationTimestamp = r.int64()
		case 33:
			h.ReplicationSequence = r.int64()
		case 34:
			h.ReplicationBaseURL = r.string()
		default:
			r.skip()
		}
	}
	if r.err != nil {
		return nil, fmt.Errorf("HeaderBlock: %w", r.err)
	}
	return h, nil
}

func parseHeaderBBox(data []byte) (*headerBBox, error) {
	b := &headerBBox{}
	r := newMsgReader(data)
	for r.next() {
		switch r.num {
		case 1:
			b.Left = r.sint64()
		case 2:
			b.Right = r.sint64()
		case 3:
			b.Top = r.sint64()
		case 4:
			b.Bottom = r.sint64()
		default:
			r.skip()
		}
	}
	if r.err != nil {
		return nil, fmt.Errorf("HeaderBBox: %w", r.err)
	}
	return b, nil
}

// primitiveBlock is one decoded OSMData payload. The scalar fields carry
// their schema defaults when the message omits them.
type primitiveBlock struct {
	StringTable     [][]byte
	Groups          []*primitiveGroup
	Granularity     int32
	DateGranularity int32
	LatOffset       int64
	LonOffset       int64
}

func parsePrimitiveBlock(data []byte) (*primitiveBlock, error) {
	b := &primitiveBlock{
		Granularity:     defaultGranularity,
		DateGranularity: defaultDateGranularity,
	}
	r := newMsgReader(data)
	for r.next() {
		switch r.num {
		case 1:
			st, err := parseStringTable(r.bytes())
			if err != nil {
				return nil, err
			}
			b.StringTable = st
		case 2:
			g, err := parsePrimitiveGroup(r.bytes())
			if err != nil {
				return nil, err
			}
			b.Groups = append(b.Groups, g)
		case 17:
			b.Granularity = r.int32()
		case 18:
			b.DateGranularity = r.int32()
		case 19:
			b.LatOffset = r.int64()
		case 20:
			b.LonOffset = r.int64()
		default:
			r.skip()
		}
	}
	if r.err != nil {
		return nil, fmt.Errorf("PrimitiveBlock: %w", r.err)
	}
	return b, nil
}

func parseStringTable(data []byte) ([][]byte, error) {
	var st [][]byte
	r := newMsgReader(data)
	for r.next() {
		switch r.num {
		case 1:
			st = append(st, r.bytes())
		default:
			r.skip()
		}
	}
	if r.err != nil {
		return nil, fmt.Errorf("StringTable: %w", r.err)
	}
	return st, nil
}

type primitiveGroup struct {
	Nodes     []*nodeMsg
	Dense     *denseNodesMsg
	Ways      []*wayMsg
	Relations []*relationMsg
}

func parsePrimitiveGroup(data []byte) (*primitiveGroup, error) {
	g := &primitiveGroup{}
	r := newMsgReader(data)
	for r.next() {
		switch r.num {
		case 1:
			n, err := parseNodeMsg(r.bytes())
			if err != nil {
				return nil, err
			}
			g.Nodes = append(g.Nodes, n)
		case 2:
			d, err := parseDenseNodesMsg(r.bytes())
			if err != nil {
				return nil, err
			}
			g.Dense = d
		case 3:
			w, err := parseWayMsg(r.bytes())
			if err != nil {
				return nil, err
			}
			g.Ways = append(g.Ways, w)
		case 4:
			rel, err := parseRelationMsg(r.bytes())
			if err != nil {
				return nil, err
			}
			g.Relations = append(g.Relations, rel)
		default:
			// field 5 (changesets) and anything newer
			r.skip()
		}
	}
	if r.err != nil {
		return nil, fmt.Errorf("PrimitiveGroup: %w", r.err)
	}
	return g, nil
}

// infoMsg is the non-dense metadata message. Version defaults to -1 per
// the schema; the remaining fields carry presence flags.
type infoMsg struct {
	Version   int32
	Timestamp int64
	Changeset int64
	UID       int32
	UserSID   uint32
	Visible   bool

	hasTimestamp bool
	hasChangeset bool
	hasUID       bool
	hasUserSID   bool
	hasVisible   bool
}

func parseInfoMsg(data []byte) (*infoMsg, error) {
	info := &infoMsg{Version: -1}
	r := newMsgReader(data)
	for r.next() {
		switch r.num {
		case 1:
			info.Version = r.int32()
		case 2:
			info.Timestamp = r.int64()
			info.hasTimestamp = true
		case 3:
			info.Changeset = r.int64()
			info.hasChangeset = true
		case 4:
			info.UID = r.int32()
			info.hasUID = true
		case 5:
			info.UserSID = r.uint32()
			info.hasUserSID = true
		case 6:
			info.Visible = r.bool()
			info.hasVisible = true
		default:
			r.skip()
		}
	}
	if r.err != nil {
		return nil, fmt.Errorf("Info: %w", r.err)
	}
	return info, nil
}

type nodeMsg struct {
	ID   int64
	Keys []uint32
	Vals []uint32
	Info *infoMsg
	Lat  int64
	Lon  int64
}

func parseNodeMsg(data []byte) (*nodeMsg, error) {
	n := &nodeMsg{}
	r := newMsgReader(data)
	for r.next() {
		switch r.num {
		case 1:
			n.ID = r.sint64()
		case 2:
			n.Keys = r.packedUint32s(n.Keys)
		case 3:
			n.Vals = r.packedUint32s(n.Vals)
		case 4:
			info, err := parseInfoMsg(r.bytes())
			if err != nil {
				return nil, err
			}
			n.Info = info
		case 8:
			n.Lat = r.sint64()
		case 9:
			n.Lon = r.sint64()
		default:
			r.skip()
		}
	}
	if r.err != nil {
		return nil, fmt.Errorf("Node: %w", r.err)
	}
	return n, nil
}

type denseNodesMsg struct {
	ID       []int64
	Info     *denseInfoMsg
	Lat      []int64
	Lon      []int64
	KeysVals []int32
}

func parseDenseNodesMsg(data []byte) (*denseNodesMsg, error) {
	d := &denseNodesMsg{}
	r := newMsgReader(data)
	for r.next() {
		switch r.num {
		case 1:
			d.ID = r.packedSint64s(d.ID)
		case 5:
			info, err := parseDenseInfoMsg(r.bytes())
			if err != nil {
				return nil, err
			}
			d.Info = info
		case 8:
			d.Lat = r.packedSint64s(d.Lat)
		case 9:
			d.Lon = r.packedSint64s(d.Lon)
		case 10:
			d.KeysVals = r.packedInt32s(d.KeysVals)
		default:
			r.skip()
		}
	}
	if r.err != nil {
		return nil, fmt.Errorf("DenseNodes: %w", r.err)
	}
	return d, nil
}

// denseInfoMsg holds the per-feature metadata arrays of a dense group.
// Every array is independently optional; delta-coded ones hold deltas.
type denseInfoMsg struct {
	Version   []int32
	Timestamp []int64
	Changeset []int64
	UID       []int32
	UserSID   []int32
	Visible   []bool
}

func parseDenseInfoMsg(data []byte) (*denseInfoMsg, error) {
	d := &denseInfoMsg{}
	r := newMsgReader(data)
	for r.next() {
		switch r.num {
		case 1:
			d.Version = r.packedInt32s(d.Version)
		case 2:
			d.Timestamp = r.packedSint64s(d.Timestamp)
		case 3:
			d.Changeset = r.packedSint64s(d.Changeset)
		case 4:
			d.UID = r.packedSint32s(d.UID)
		case 5:
			d.UserSID = r.packedSint32s(d.UserSID)
		case 6:
			d.Visible = r.packedBools(d.Visible)
		default:
			r.skip()
		}
	}
	if r.err != nil {
		return nil, fmt.Errorf("DenseInfo: %w", r.err)
	}
	return d, nil
}

type wayMsg struct {
	ID   int64
	Keys []uint32
	Vals []uint32
	Info *infoMsg
	Refs []int64
}

func parseWayMsg(data []byte) (*wayMsg, error) {
	w := &wayMsg{}
	r := newMsgReader(data)
	for r.next() {
		switch r.num {
		case 1:
			w.ID = r.int64()
		case 2:
			w.Keys = r.packedUint32s(w.Keys)
		case 3:
			w.Vals = r.packedUint32s(w.Vals)
		case 4:
			info, err := parseInfoMsg(r.bytes())
			if err != nil {
				return nil, err
			}
			w.Info = info
		case 8:
			w.Refs = r.packedSint64s(w.Refs)
		default:
			r.skip()
		}
	}
	if r.err != nil {
		return nil, fmt.Errorf("Way: %w", r.err)
	}
	return w, nil
}

type relationMsg struct {
	ID       int64
	Keys     []uint32
	Vals     []uint32
	Info     *infoMsg
	RolesSID []int32
	MemIDs   []int64
	Types    []int32
}

func parseRelationMsg(data []byte) (*relationMsg, error) {
	rel := &relationMsg{}
	r := newMsgReader(data)
	for r.next() {
		switch r.num {
		case 1:
			rel.ID = r.int64()
		case 2:
			rel.Keys = r.packedUint32s(rel.Keys)
		case 3:
			rel.Vals = r.packedUint32s(rel.Vals)
		case 4:
			info, err := parseInfoMsg(r.bytes())
			if err != nil {
				return nil, err
			}
			rel.Info = info
		case 8:
			rel.RolesSID = r.packedInt32s(rel.RolesSID)
		case 9:
			rel.MemIDs = r.packedSint64s(rel.MemIDs)
		case 10:
			rel.Types = r.packedInt32s(rel.Types)
		default:
			r.skip()
		}
	}
	if r.err != nil {
		return nil, fmt.Errorf("Relation: %w", r.err)
	}
	return rel, nil
}
