package core

import (
	"encoding/binary"

	"github.com/gekko3d/dissolve/render/group"
	"github.com/go-gl/mathgl/mgl32"
)

// InstanceSize is the byte stride of one Instance in the instance buffer.
const InstanceSize = 80

// Instance is the per-instance vertex data of the primary pass.
type Instance struct {
	World mgl32.Mat4
	Group group.Id
	Color uint16
}

// PackTag combines group and color into the value stored in the tag
// attachment.
func PackTag(g group.Id, color uint16) uint32 {
	return uint32(g) | uint32(color)<<16
}

// UnpackTag is the inverse of PackTag.
func UnpackTag(tag uint32) (group.Id, uint16) {
	return group.Id(tag & 0xFFFF), uint16(tag >> 16)
}

// DrawCall draws Count instances of Mesh starting at instance First.
type DrawCall struct {
	Mesh  PartRef
	First uint32
	Count uint32
}

// Batch groups a frame's instances by mesh part so each part is drawn
// with one instanced call. Draw instances come first, erasers after.
type Batch struct {
	Instances []Instance
	Draws     []DrawCall
	Erasers   []DrawCall
}

// Build refills b from in, reusing its storage. Entries referencing a mesh
// outside the catalog are dropped and counted in the returned value.
func (b *Batch) Build(in *FrameInput) (dropped int) {
	b.Instances = b.Instances[:0]
	b.Draws = b.Draws[:0]
	b.Erasers = b.Erasers[:0]

	var draws bucketList
	for _, s := range in.Statics {
		if !s.Mesh.Valid() {
			dropped++
			continue
		}
		draws.add(s.Mesh, Instance{World: s.World, Group: s.Group, Color: s.Color})
	}
	for _, d := range in.Dynamics {
		for _, p := range d.Parts {
			if !p.Mesh.Valid() {
				dropped++
				continue
			}
			draws.add(p.Mesh, Instance{World: d.World, Group: p.Group, Color: d.Color})
		}
	}
	b.Draws = draws.flush(b.Draws, &b.Instances)

	var erasers bucketList
	for _, e := range in.Erasers {
		if !e.Mesh.Valid() {
			dropped++
			continue
		}
		erasers.add(e.Mesh, Instance{World: e.World, Group: e.Group})
	}
	b.Erasers = erasers.flush(b.Erasers, &b.Instances)
	return dropped
}

// Bytes encodes the instance stream.
//
//	0  world  4 x vec4f
//	64 group  u32
//	68 color  u32
func (b *Batch) Bytes() []byte {
	buf := make([]byte, len(b.Instances)*InstanceSize)
	for i, inst := range b.Instances {
		off := buf[i*InstanceSize:]
		putMat4(off, inst.World)
		binary.LittleEndian.PutUint32(off[64:], uint32(inst.Group))
		binary.LittleEndian.PutUint32(off[68:], uint32(inst.Color))
	}
	return buf
}

type bucket struct {
	mesh      PartRef
	instances []Instance
}

// bucketList keeps buckets in first-seen order so the draw order is
// deterministic.
type bucketList struct {
	index   map[PartRef]int
	buckets []bucket
}

func (l *bucketList) add(mesh PartRef, inst Instance) {
	if l.index == nil {
		l.index = make(map[PartRef]int)
	}
	i, ok := l.index[mesh]
	if !ok {
		i = len(l.buckets)
		l.index[mesh] = i
		l.buckets = append(l.buckets, bucket{mesh: mesh})
	}
	l.buckets[i].instances = append(l.buckets[i].instances, inst)
}

func (l *bucketList) flush(calls []DrawCall, instances *[]Instance) []DrawCall {
	for _, bk := range l.buckets {
		calls = append(calls, DrawCall{
			Mesh:  bk.mesh,
			First: uint32(len(*instances)),
			Count: uint32(len(bk.instances)),
		})
		*instances = append(*instances, bk.instances...)
	}
	return calls
}
