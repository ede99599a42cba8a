package osmpbf

import "github.com/wegman-software/osmstream/osm"

// Scalar feature decoding: one message per feature, no delta coding
// across features. Ways and relations still delta-code their reference
// lists internally.

// memberTypes maps the fixed wire codes 0, 1, 2 to feature kinds.
var memberTypes = [...]osm.Type{osm.TypeNode, osm.TypeWay, osm.TypeRelation}

func decodeTags(ctx *blockContext, keys, vals []uint32) (osm.Tags, error) {
	tags := osm.Tags{}
	if len(keys) == 0 || len(vals) == 0 {
		return tags, nil
	}
	n := len(keys)
	if len(vals) < n {
		n = len(vals)
	}
	for i := 0; i < n; i++ {
		key, err := ctx.str(int64(keys[i]))
		if err != nil {
			return nil, err
		}
		val, err := ctx.str(int64(vals[i]))
		if err != nil {
			return nil, err
		}
		tags[key] = val
	}
	return tags, nil
}

func decodeInfo(ctx *blockContext, msg *infoMsg) (*osm.Info, error) {
	info := &osm.Info{Version: msg.Version}
	if msg.hasTimestamp {
		t := ctx.timestamp(msg.Timestamp)
		info.Timestamp = &t
	}
	if msg.hasChangeset {
		cs := msg.Changeset
		info.Changeset = &cs
	}
	if msg.hasUID {
		uid := msg.UID
		info.UID = &uid
	}
	if msg.hasUserSID {
		user, err := ctx.str(int64(msg.UserSID))
		if err != nil {
			return nil, err
		}
		info.User = &user
	}
	if msg.hasVisible {
		v := msg.Visible
		info.Visible = &v
	}
	return info, nil
}

func decodeNodes(ctx *blockContext, msgs []*nodeMsg, out []osm.Feature) ([]osm.Feature, error) {
	for _, msg := range msgs {
		tags, err := decodeTags(ctx, msg.Keys, msg.Vals)
		if err != nil {
			return nil, err
		}
		node := &osm.Node{
			ID:   msg.ID,
			Lat:  ctx.lat(msg.Lat),
			Lon:  ctx.lon(msg.Lon),
			Tags: tags,
		}
		if msg.Info != nil {
			if node.Info, err = decodeInfo(ctx, msg.Info); err != nil {
				return nil, err
			}
		}
		out = append(out, node)
	}
	return out, nil
}

func decodeWays(ctx *blockContext, msgs []*wayMsg, out []osm.Feature) ([]osm.Feature, error) {
	for _, msg := range msgs {
		tags, err := decodeTags(ctx, msg.Keys, msg.Vals)
		if err != nil {
			return nil, err
		}
		way := &osm.Way{
			ID:   msg.ID,
			Tags: tags,
			Refs: make([]int64, 0, len(msg.Refs)),
		}
		if msg.Info != nil {
			if way.Info, err = decodeInfo(ctx, msg.Info); err != nil {
				return nil, err
			}
		}

		var ref int64
		for _, delta := range msg.Refs {
			ref += delta
			way.Refs = append(way.Refs, ref)
		}
		out = append(out, way)
	}
	return out, nil
}

func decodeRelations(ctx *blockContext, msgs []*relationMsg, out []osm.Feature) ([]osm.Feature, error) {
	for _, msg := range msgs {
		tags, err := decodeTags(ctx, msg.Keys, msg.Vals)
		if err != nil {
			return nil, err
		}
		rel := &osm.Relation{
			ID:      msg.ID,
			Tags:    tags,
			Members: make([]osm.Member, 0, len(msg.MemIDs)),
		}
		if msg.Info != nil {
			if rel.Info, err = decodeInfo(ctx, msg.Info); err != nil {
				return nil, err
			}
		}

		n := len(msg.MemIDs)
		if len(msg.RolesSID) != n || len(msg.Types) != n {
			return nil, formatErrorf("relation %d has inconsistent member arrays (%d roles, %d ids, %d types)",
				msg.ID, len(msg.RolesSID), n, len(msg.Types))
		}

		var memberID int64
		for i := 0; i < n; i++ {
			memberID += msg.MemIDs[i]
			code := msg.Types[i]
			if code < 0 || int(code) >= len(memberTypes) {
				return nil, formatErrorf("relation %d member %d has unknown type code %d", msg.ID, i, code)
			}
			role, err := ctx.str(int64(msg.RolesSID[i]))
			if err != nil {
				return nil, err
			}
			rel.Members = append(rel.Members, osm.Member{
				Type: memberTypes[code],
				Ref:  memberID,
				Role: role,
			})
		}
		out = append(out, rel)
	}
	return out, nil
}
