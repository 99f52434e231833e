// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package model holds the CPU side layouts shared with shaders: the
// per-frame uniform block and mesh vertices.
package model

import (
	"unsafe"

	glm "github.com/go-gl/mathgl/mgl32"
)

// Vertex is a model vertex
type Vertex struct {
	Pos      glm.Vec3
	Normal   glm.Vec3
	TexCoord glm.Vec2
}

// VertexStride is the size of one Vertex in a vertex buffer.
const VertexStride = uint32(unsafe.Sizeof(Vertex{}))

// Mesh is an indexed triangle list.
type Mesh struct {
	Vertices []Vertex
	Indices  []uint32
}

// VertexBytes returns the vertices as they are laid out in memory.
func (m *Mesh) VertexBytes() []byte {
	if len(m.Vertices) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&m.Vertices[0])), len(m.Vertices)*int(VertexStride))
}

// IndexBytes returns the indices as they are laid out in memory.
func (m *Mesh) IndexBytes() []byte {
	if len(m.Indices) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&m.Indices[0])), len(m.Indices)*4)
}

// FrameUniform is the per-frame uniform block: camera view and projection.
type FrameUniform struct {
	View       glm.Mat4
	Projection glm.Mat4
}

// FrameUniformSize is the size of FrameUniform in a uniform buffer.
const FrameUniformSize = uint64(unsafe.Sizeof(FrameUniform{}))

// Camera describes a perspective camera looking at a point.
type Camera struct {
	Eye    glm.Vec3
	Center glm.Vec3
	Up     glm.Vec3

	// FovY is the vertical field of view in degrees
	FovY float32
	Near float32
	Far  float32
}

// DefaultCamera looks at the origin from a few units away.
func DefaultCamera() Camera {
	return Camera{
		Eye:    glm.Vec3{2, 2, 2},
		Center: glm.Vec3{0, 0, 0},
		Up:     glm.Vec3{0, 0, 1},
		FovY:   45,
		Near:   0.1,
		Far:    100,
	}
}

// Uniform returns the camera's uniform block for a target of the given
// size. The projection flips Y for Vulkan clip space.
func (c Camera) Uniform(width, height uint32) FrameUniform {
	aspect := float32(1)
	if height > 0 {
		aspect = float32(width) / float32(height)
	}
	proj := glm.Perspective(glm.DegToRad(c.FovY), aspect, c.Near, c.Far)
	proj[5] *= -1
	return FrameUniform{
		View:       glm.LookAtV(c.Eye, c.Center, c.Up),
		Projection: proj,
	}
}

// Bytes returns the block as it is laid out in memory.
func (u *FrameUniform) Bytes() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(u)), FrameUniformSize)
}
