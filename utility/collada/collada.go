// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package collada decodes the triangle meshes of Collada documents.
package collada

import (
	"encoding/xml"
	"strconv"
	"strings"

	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"github.com/devblok/korugraph/model"
)

// package errors
var (
	ErrNoGeometry = errors.New("collada document has no geometry")
	ErrBadIndex   = errors.New("triangle index out of range")
)

// Collada is the top-level Collada object
type Collada struct {
	Geometries []Geometry `xml:"library_geometries>geometry"`
}

// Geometry represents Collada's geometry
type Geometry struct {
	Mesh Mesh   `xml:"mesh"`
	ID   string `xml:"id,attr"`
	Name string `xml:"name,attr"`
}

// Mesh contains all the primitive data
type Mesh struct {
	Source    []Source  `xml:"source"`
	Vertices  Vertices  `xml:"vertices"`
	Triangles Triangles `xml:"triangles"`
}

// Source holds one attribute array
type Source struct {
	ID       string   `xml:"id,attr"`
	Floats   Floats   `xml:"float_array"`
	Accessor Accessor `xml:"technique_common>accessor"`
}

// Accessor tells how many floats make one element of a source
type Accessor struct {
	Count  int `xml:"count,attr"`
	Stride int `xml:"stride,attr"`
}

// Floats is the array of floats
type Floats struct {
	ID   string
	Data []float32
}

// UnmarshalXML unmarshals the array of floats
func (f *Floats) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for _, attr := range start.Attr {
		switch attr.Name.Local {
		case "id":
			f.ID = attr.Value
		}
	}
	var raw string
	if err := d.DecodeElement(&raw, &start); err != nil {
		return err
	}
	for _, r := range strings.Fields(raw) {
		num, err := strconv.ParseFloat(r, 32)
		if err != nil {
			return err
		}
		f.Data = append(f.Data, float32(num))
	}
	return nil
}

// Vertices contains the list of vertices
type Vertices struct {
	ID     string  `xml:"id,attr"`
	Inputs []Input `xml:"input"`
}

// Triangles contain the list of triangles
type Triangles struct {
	Count    int     `xml:"count,attr"`
	Material string  `xml:"material,attr"`
	Inputs   []Input `xml:"input"`
	Index    []int
}

// UnmarshalXML parses the index list
func (t *Triangles) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for _, attr := range start.Attr {
		switch attr.Name.Local {
		case "count":
			num, err := strconv.Atoi(attr.Value)
			if err != nil {
				return err
			}
			t.Count = num
		case "material":
			t.Material = attr.Value
		}
	}

	for {
		token, err := d.Token()
		if err != nil {
			return err
		}

		switch el := token.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "input":
				var input Input
				if err := d.DecodeElement(&input, &el); err != nil {
					return err
				}
				t.Inputs = append(t.Inputs, input)
			case "p":
				var raw string
				if err := d.DecodeElement(&raw, &el); err != nil {
					return err
				}
				for _, r := range strings.Fields(raw) {
					num, err := strconv.Atoi(r)
					if err != nil {
						return err
					}
					t.Index = append(t.Index, num)
				}
			default:
				if err := d.Skip(); err != nil {
					return err
				}
			}
		case xml.EndElement:
			if el == start.End() {
				return nil
			}
		}
	}
}

// Input is Collada'a input type
type Input struct {
	Semantic string `xml:"semantic,attr"`
	Source   string `xml:"source,attr"`
	Offset   uint   `xml:"offset,attr"`
}

// attribute is a source read at one offset of the triangle index tuples.
type attribute struct {
	source *Source
	offset int
	size   int
}

func (a *attribute) vec(i int) ([]float32, error) {
	stride := a.source.Accessor.Stride
	if stride == 0 {
		stride = a.size
	}
	if i < 0 || (i+1)*stride > len(a.source.Floats.Data) || stride < a.size {
		return nil, errors.Wrapf(ErrBadIndex, "%s[%d]", a.source.ID, i)
	}
	return a.source.Floats.Data[i*stride : i*stride+a.size], nil
}

// Decode is a registry mesh decoder: it merges the triangles of every
// geometry into one indexed mesh. Vertices sharing all attribute
// indices are emitted once.
func Decode(data []byte) (*model.Mesh, error) {
	var doc Collada
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "parse collada")
	}
	if len(doc.Geometries) == 0 {
		return nil, ErrNoGeometry
	}
	mesh := &model.Mesh{}
	for i := range doc.Geometries {
		if err := appendGeometry(mesh, &doc.Geometries[i].Mesh); err != nil {
			return nil, errors.Wrapf(err, "geometry %s", doc.Geometries[i].ID)
		}
	}
	return mesh, nil
}

func appendGeometry(mesh *model.Mesh, m *Mesh) error {
	sources := make(map[string]*Source, len(m.Source))
	for i := range m.Source {
		sources["#"+m.Source[i].ID] = &m.Source[i]
	}
	lookup := func(in Input, size int, offset uint) (*attribute, error) {
		src, ok := sources[in.Source]
		if !ok {
			return nil, errors.Errorf("%s source %s not found", in.Semantic, in.Source)
		}
		return &attribute{source: src, offset: int(offset), size: size}, nil
	}

	var (
		position, normal, texCoord *attribute
		stride                     int
		err                        error
	)
	for _, in := range m.Triangles.Inputs {
		if int(in.Offset)+1 > stride {
			stride = int(in.Offset) + 1
		}
		switch in.Semantic {
		case "VERTEX":
			if in.Source != "#"+m.Vertices.ID {
				return errors.Errorf("vertices %s not found", in.Source)
			}
			for _, vin := range m.Vertices.Inputs {
				switch vin.Semantic {
				case "POSITION":
					position, err = lookup(vin, 3, in.Offset)
				case "NORMAL":
					normal, err = lookup(vin, 3, in.Offset)
				case "TEXCOORD":
					texCoord, err = lookup(vin, 2, in.Offset)
				}
				if err != nil {
					return err
				}
			}
		case "NORMAL":
			normal, err = lookup(in, 3, in.Offset)
		case "TEXCOORD":
			texCoord, err = lookup(in, 2, in.Offset)
		}
		if err != nil {
			return err
		}
	}
	if position == nil {
		return errors.New("triangles have no positions")
	}
	if len(m.Triangles.Index) != m.Triangles.Count*3*stride {
		return errors.Errorf("%d indices for %d triangles of %d inputs", len(m.Triangles.Index), m.Triangles.Count, stride)
	}

	seen := make(map[[3]int]uint32)
	for t := 0; t < len(m.Triangles.Index); t += stride {
		tuple := m.Triangles.Index[t : t+stride]
		key := [3]int{tuple[position.offset], -1, -1}
		if normal != nil {
			key[1] = tuple[normal.offset]
		}
		if texCoord != nil {
			key[2] = tuple[texCoord.offset]
		}
		if idx, ok := seen[key]; ok {
			mesh.Indices = append(mesh.Indices, idx)
			continue
		}

		var v model.Vertex
		p, err := position.vec(key[0])
		if err != nil {
			return err
		}
		v.Pos = glm.Vec3{p[0], p[1], p[2]}
		if normal != nil {
			n, err := normal.vec(key[1])
			if err != nil {
				return err
			}
			v.Normal = glm.Vec3{n[0], n[1], n[2]}
		}
		if texCoord != nil {
			uv, err := texCoord.vec(key[2])
			if err != nil {
				return err
			}
			v.TexCoord = glm.Vec2{uv[0], 1 - uv[1]}
		}
		idx := uint32(len(mesh.Vertices))
		mesh.Vertices = append(mesh.Vertices, v)
		mesh.Indices = append(mesh.Indices, idx)
		seen[key] = idx
	}
	return nil
}
