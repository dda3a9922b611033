package world

import (
	"sort"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/tsom/server/internal/core/ecs"
	"github.com/tsom/server/internal/entity"
	"github.com/tsom/server/internal/net/netid"
	"github.com/tsom/server/internal/net/packet"
	"github.com/tsom/server/internal/net/stringstore"
)

// replication collects the structural changes made since the last tick.
// Synced players receive them as deltas; players still waiting for their
// snapshot get the current state instead.
type replication struct {
	stringsSent   stringstore.ID
	created       []ecs.EntityID
	deleted       []netid.Index
	chunksCreated []*Chunk
	chunksDeleted []netid.Index
}

// entityRemoved records a deletion unless the creation was never sent, in
// which case both cancel out.
func (r *replication) entityRemoved(id ecs.EntityID, idx netid.Index) {
	for i, c := range r.created {
		if c == id {
			r.created = append(r.created[:i], r.created[i+1:]...)
			return
		}
	}
	r.deleted = append(r.deleted, idx)
}

func (r *replication) chunkRemoved(c *Chunk, idx netid.Index) {
	for i, cc := range r.chunksCreated {
		if cc == c {
			r.chunksCreated = append(r.chunksCreated[:i], r.chunksCreated[i+1:]...)
			return
		}
	}
	r.chunksDeleted = append(r.chunksDeleted, idx)
}

func (r *replication) reset(next stringstore.ID) {
	r.stringsSent = next
	r.created = r.created[:0]
	r.deleted = r.deleted[:0]
	r.chunksCreated = r.chunksCreated[:0]
	r.chunksDeleted = r.chunksDeleted[:0]
}

// replicate sends this tick's deltas to synced players, snapshots to new
// ones, and the periodic state update to everyone synced.
//
// All structural packets share one reliable channel, so a client always has
// a string before the creation that references it and a chunk before
// anything placed in it.
func (w *World) replicate() {
	players := w.sortedPlayers()
	tickIndex := uint16(w.tick)

	var deltas []packet.Packet
	deltas = append(deltas, w.stringPackets(w.pending.stringsSent)...)
	for _, c := range w.pending.chunksCreated {
		if idx, ok := w.chunkIDs.Index(c); ok {
			deltas = append(deltas, c.createPacket(uint32(idx)))
		}
	}
	deltas = append(deltas, w.creationPackets(tickIndex, w.pending.created)...)
	deleted := w.pending.deleted
	batches(len(deleted), w.maxBatch, func(lo, hi int) {
		del := &packet.EntitiesDelete{Entities: make([]uint32, hi-lo)}
		for i, idx := range deleted[lo:hi] {
			del.Entities[i] = uint32(idx)
		}
		deltas = append(deltas, del)
	})
	for _, idx := range w.pending.chunksDeleted {
		deltas = append(deltas, &packet.ChunkDestroy{ChunkID: uint32(idx)})
	}

	for _, p := range players {
		if !p.synced {
			continue
		}
		for _, pkt := range deltas {
			p.send(pkt)
		}
	}
	w.pending.reset(w.strings.Next())

	for _, p := range players {
		if !p.synced {
			w.sendSnapshot(p, tickIndex)
			p.synced = true
		}
	}

	if w.tick%uint64(w.opts.StateUpdateInterval) == 0 {
		w.sendStates(players, tickIndex)
	}
}

// sendStates sends every transform to every player. A player always gets at
// least one update per interval, since it also acknowledges inputs.
func (w *World) sendStates(players []*Player, tickIndex uint16) {
	states := w.entityStates()
	for _, p := range players {
		if len(states) == 0 {
			p.send(&packet.EntitiesStateUpdate{TickIndex: tickIndex, LastInputIndex: p.lastInput})
			continue
		}
		batches(len(states), w.maxBatch, func(lo, hi int) {
			p.send(&packet.EntitiesStateUpdate{
				TickIndex:      tickIndex,
				LastInputIndex: p.lastInput,
				Entities:       states[lo:hi],
			})
		})
	}
}

// sendSnapshot brings a new player up to date from scratch: roster, every
// interned string, every chunk and every entity.
func (w *World) sendSnapshot(p *Player, tickIndex uint16) {
	for _, other := range w.sortedPlayers() {
		p.send(&packet.PlayerJoin{Name: other.Name})
	}
	for _, pkt := range w.stringPackets(0) {
		p.send(pkt)
	}
	w.chunkIDs.Each(func(idx netid.Index, c *Chunk) {
		p.send(c.createPacket(uint32(idx)))
	})
	var all []ecs.EntityID
	w.entityIDs.Each(func(_ netid.Index, id ecs.EntityID) { all = append(all, id) })
	for _, pkt := range w.creationPackets(tickIndex, all) {
		p.send(pkt)
	}
}

// stringPackets returns the strings interned from first on, split so no
// packet exceeds the wire count limit.
func (w *World) stringPackets(first stringstore.ID) []packet.Packet {
	if w.strings.Next() <= first {
		return nil
	}
	all := w.strings.BuildPacket(first)
	var out []packet.Packet
	batches(len(all.Strings), w.maxBatch, func(lo, hi int) {
		out = append(out, &packet.NetworkStrings{
			StartID: all.StartID + uint32(lo),
			Strings: all.Strings[lo:hi],
		})
	})
	return out
}

func (w *World) creationPackets(tickIndex uint16, ids []ecs.EntityID) []packet.Packet {
	entries := w.creationEntries(ids)
	var out []packet.Packet
	batches(len(entries), w.maxBatch, func(lo, hi int) {
		out = append(out, &packet.EntitiesCreation{TickIndex: tickIndex, Entities: entries[lo:hi]})
	})
	return out
}

func (w *World) creationEntries(ids []ecs.EntityID) []packet.EntityCreation {
	var entries []packet.EntityCreation
	for _, id := range ids {
		idx, ok := w.entityIDs.Index(id)
		if !ok {
			continue
		}
		inst, ok := w.instances.Get(id)
		if !ok {
			continue
		}
		// Class names are interned on creation, before the strings delta
		// is built.
		classID, _ := w.strings.Find(inst.Class().Name())
		e := packet.EntityCreation{
			EntityID: uint32(idx),
			ClassID:  uint32(classID),
			Rotation: mgl32.QuatIdent(),
		}
		if tr, ok := w.transforms.Get(id); ok {
			e.Position = tr.Position
			e.Rotation = tr.Rotation
		}
		e.Properties = networkedProperties(inst)
		entries = append(entries, e)
	}
	return entries
}

// batches calls fn with consecutive [lo, hi) runs of at most size out of n.
func batches(n, size int, fn func(lo, hi int)) {
	for lo := 0; lo < n; lo += size {
		fn(lo, min(lo+size, n))
	}
}

func networkedProperties(inst *entity.ClassInstance) []packet.EntityProperty {
	var props []packet.EntityProperty
	class := inst.Class()
	for i := 0; i < class.PropertyCount(); i++ {
		if class.Property(i).Networked {
			props = append(props, packet.EntityProperty{Index: uint16(i), Value: inst.Value(i)})
		}
	}
	return props
}

func (w *World) entityStates() []packet.EntityState {
	var states []packet.EntityState
	w.entityIDs.Each(func(idx netid.Index, id ecs.EntityID) {
		tr, ok := w.transforms.Get(id)
		if !ok {
			return
		}
		states = append(states, packet.EntityState{
			EntityID: uint32(idx),
			Position: tr.Position,
			Rotation: tr.Rotation,
		})
	})
	return states
}

func (w *World) sortedPlayers() []*Player {
	out := make([]*Player, 0, len(w.players))
	for _, p := range w.players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

func sortChunkPositions(ps []ChunkPos) []ChunkPos {
	sort.Slice(ps, func(i, j int) bool {
		a, b := ps[i], ps[j]
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		if a[1] != b[1] {
			return a[1] < b[1]
		}
		return a[2] < b[2]
	})
	return ps
}
