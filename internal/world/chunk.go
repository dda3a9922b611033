package world

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/tsom/server/internal/net/packet"
)

// ChunkPos is a chunk coordinate in chunk units.
type ChunkPos [3]int32

func (p ChunkPos) String() string { return fmt.Sprintf("(%d,%d,%d)", p[0], p[1], p[2]) }

// Chunk is one cubic cell of the world grid. Voxel content is owned by the
// chunk storage layer; the session core only references chunks by position
// and network index.
type Chunk struct {
	Pos  ChunkPos
	Size uint32
}

func (c *Chunk) String() string { return "chunk" + c.Pos.String() }

func (c *Chunk) createPacket(idx uint32) *packet.ChunkCreate {
	return &packet.ChunkCreate{
		ChunkID:  idx,
		Position: c.Pos,
		Size:     [3]uint32{c.Size, c.Size, c.Size},
	}
}

// chunkAt returns the chunk containing a world position.
func chunkAt(pos mgl32.Vec3, size uint32) ChunkPos {
	s := float64(size)
	return ChunkPos{
		int32(math.Floor(float64(pos[0]) / s)),
		int32(math.Floor(float64(pos[1]) / s)),
		int32(math.Floor(float64(pos[2]) / s)),
	}
}

// chunksAround lists every chunk within radius (Chebyshev distance) of c.
func chunksAround(c ChunkPos, radius int) []ChunkPos {
	r := int32(radius)
	out := make([]ChunkPos, 0, (2*radius+1)*(2*radius+1)*(2*radius+1))
	for x := c[0] - r; x <= c[0]+r; x++ {
		for y := c[1] - r; y <= c[1]+r; y++ {
			for z := c[2] - r; z <= c[2]+r; z++ {
				out = append(out, ChunkPos{x, y, z})
			}
		}
	}
	return out
}
