package osmpbf

import "github.com/wegman-software/osmstream/osm"

// Dense feature decoding. A DenseNodes group stores many nodes as
// parallel delta-coded arrays plus one flattened key/value index stream,
// so the decoder walks every array in lock-step, carrying running sums
// and a manual tag cursor for a single pass.

// decodeDense emits one node per latitude-array position, in order.
func decodeDense(ctx *blockContext, d *denseNodesMsg, out []osm.Feature) ([]osm.Feature, error) {
	if len(d.Lat) == 0 {
		return nil, formatErrorf("dense nodes carry no latitudes")
	}
	if len(d.Lon) == 0 {
		return nil, formatErrorf("dense nodes carry no longitudes")
	}

	// The latitude array fixes the iteration length; every other present
	// array must match it exactly. Checking up front surfaces the first
	// inconsistency instead of silently truncating.
	count := len(d.Lat)
	if len(d.Lon) != count {
		return nil, formatErrorf("dense nodes have %d latitudes but %d longitudes", count, len(d.Lon))
	}
	// An absent id array is a legal (if odd) encoding: every node then
	// gets the synthetic id -1.
	hasIDs := len(d.ID) > 0
	if hasIDs && len(d.ID) != count {
		return nil, formatErrorf("dense nodes have %d latitudes but %d ids", count, len(d.ID))
	}

	var meta *denseMetaDecoder
	if d.Info != nil {
		var err error
		if meta, err = newDenseMetaDecoder(ctx, d.Info, count); err != nil {
			return nil, err
		}
	}

	tags := newDenseTagReader(ctx, d.KeysVals)

	var id, lat, lon int64
	if !hasIDs {
		id = -1
	}
	for i := 0; i < count; i++ {
		if hasIDs {
			id += d.ID[i]
		}
		lat += d.Lat[i]
		lon += d.Lon[i]

		node := &osm.Node{
			ID:  id,
			Lat: ctx.lat(lat),
			Lon: ctx.lon(lon),
		}

		var err error
		if node.Tags, err = tags.next(); err != nil {
			return nil, err
		}
		if meta != nil {
			if node.Info, err = meta.next(i); err != nil {
				return nil, err
			}
		}

		out = append(out, node)
	}
	return out, nil
}

// denseMetaDecoder walks the DenseInfo arrays. Each array is
// independently optional; presence is checked once here and the absent
// ones simply never contribute a field, instead of defaulting to zero.
type denseMetaDecoder struct {
	ctx *blockContext
	d   *denseInfoMsg

	// Running sums for the delta-coded arrays. The changeset sum is its
	// own accumulator, deliberately independent of uid.
	timestamp int64
	changeset int64
	uid       int64
	userSID   int64
}

func newDenseMetaDecoder(ctx *blockContext, d *denseInfoMsg, count int) (*denseMetaDecoder, error) {
	check := func(name string, n int) error {
		if n > 0 && n != count {
			return formatErrorf("dense metadata array %q has %d entries, want %d", name, n, count)
		}
		return nil
	}
	for _, c := range []struct {
		name string
		n    int
	}{
		{"version", len(d.Version)},
		{"timestamp", len(d.Timestamp)},
		{"changeset", len(d.Changeset)},
		{"uid", len(d.UID)},
		{"user_sid", len(d.UserSID)},
		{"visible", len(d.Visible)},
	} {
		if err := check(c.name, c.n); err != nil {
			return nil, err
		}
	}
	return &denseMetaDecoder{ctx: ctx, d: d}, nil
}

func (m *denseMetaDecoder) next(i int) (*osm.Info, error) {
	info := &osm.Info{Version: -1}
	if len(m.d.Version) > 0 {
		info.Version = m.d.Version[i]
	}
	if len(m.d.Timestamp) > 0 {
		m.timestamp += m.d.Timestamp[i]
		t := m.ctx.timestamp(m.timestamp)
		info.Timestamp = &t
	}
	if len(m.d.Changeset) > 0 {
		m.changeset += m.d.Changeset[i]
		cs := m.changeset
		info.Changeset = &cs
	}
	if len(m.d.UID) > 0 {
		m.uid += int64(m.d.UID[i])
		uid := int32(m.uid)
		info.UID = &uid
	}
	if len(m.d.UserSID) > 0 {
		m.userSID += int64(m.d.UserSID[i])
		user, err := m.ctx.str(m.userSID)
		if err != nil {
			return nil, err
		}
		info.User = &user
	}
	if len(m.d.Visible) > 0 {
		v := m.d.Visible[i]
		info.Visible = &v
	}
	return info, nil
}

// denseTagReader cursors over the flattened keys_vals array: each node's
// tags are back-to-back (key, value) index pairs terminated by a key
// index of 0, which is never a real key because string-table slot 0 is
// reserved. An entirely empty array means every node has no tags.
type denseTagReader struct {
	ctx      *blockContext
	keysVals []int32
	cursor   int
}

func newDenseTagReader(ctx *blockContext, keysVals []int32) *denseTagReader {
	return &denseTagReader{ctx: ctx, keysVals: keysVals}
}

func (t *denseTagReader) next() (osm.Tags, error) {
	tags := osm.Tags{}
	if len(t.keysVals) == 0 {
		return tags, nil
	}
	for {
		if t.cursor >= len(t.keysVals) {
			return nil, formatErrorf("dense tag stream ended without a terminator at index %d", t.cursor)
		}
		k := t.keysVals[t.cursor]
		if k == 0 {
			t.cursor++
			return tags, nil
		}
		if t.cursor+1 >= len(t.keysVals) {
			return nil, formatErrorf("dense tag stream has a key at index %d with no value", t.cursor)
		}
		v := t.keysVals[t.cursor+1]
		t.cursor += 2

		key, err := t.ctx.str(int64(k))
		if err != nil {
			return nil, err
		}
		val, err := t.ctx.str(int64(v))
		if err != nil {
			return nil, err
		}
		tags[key] = val
	}
}
