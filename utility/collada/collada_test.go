// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package collada_test

import (
	"encoding/xml"
	"testing"

	qt "github.com/frankban/quicktest"
	glm "github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"github.com/devblok/korugraph/utility/collada"
)

const quad = `<?xml version="1.0" encoding="utf-8"?>
<COLLADA xmlns="http://www.collada.org/2005/11/COLLADASchema" version="1.4.1">
  <library_geometries>
    <geometry id="Plane-mesh" name="Plane">
      <mesh>
        <source id="Plane-mesh-positions">
          <float_array id="Plane-mesh-positions-array" count="12">-1 -1 0 1 -1 0
            -1 1 0 1 1 0</float_array>
          <technique_common>
            <accessor source="#Plane-mesh-positions-array" count="4" stride="3"/>
          </technique_common>
        </source>
        <source id="Plane-mesh-normals">
          <float_array id="Plane-mesh-normals-array" count="3">0 0 1</float_array>
          <technique_common>
            <accessor source="#Plane-mesh-normals-array" count="1" stride="3"/>
          </technique_common>
        </source>
        <vertices id="Plane-mesh-vertices">
          <input semantic="POSITION" source="#Plane-mesh-positions"/>
        </vertices>
        <triangles material="Material-material" count="2">
          <input semantic="VERTEX" source="#Plane-mesh-vertices" offset="0"/>
          <input semantic="NORMAL" source="#Plane-mesh-normals" offset="1"/>
          <p>1 0 2 0 0 0 1 0 3 0 2 0</p>
        </triangles>
      </mesh>
    </geometry>
  </library_geometries>
</COLLADA>`

func TestDecodeSharesVertices(t *testing.T) {
	c := qt.New(t)
	mesh, err := collada.Decode([]byte(quad))
	c.Assert(err, qt.IsNil)
	c.Assert(mesh.Vertices, qt.HasLen, 4)
	c.Assert(mesh.Indices, qt.DeepEquals, []uint32{0, 1, 2, 0, 3, 1})
	c.Assert(mesh.Vertices[0].Pos, qt.Equals, glm.Vec3{1, -1, 0})
	c.Assert(mesh.Vertices[3].Pos, qt.Equals, glm.Vec3{1, 1, 0})
	for _, v := range mesh.Vertices {
		c.Assert(v.Normal, qt.Equals, glm.Vec3{0, 0, 1})
	}
}

func TestDecodeRejects(t *testing.T) {
	c := qt.New(t)

	_, err := collada.Decode([]byte(`<COLLADA><library_geometries/></COLLADA>`))
	c.Assert(err, qt.Equals, collada.ErrNoGeometry)

	_, err = collada.Decode([]byte(`<COLLADA><library_geometries>`))
	c.Assert(err, qt.ErrorMatches, "parse collada: .*")

	outOfRange := []byte(`<COLLADA><library_geometries><geometry id="g"><mesh>
		<source id="p"><float_array id="pa">0 0 0</float_array></source>
		<vertices id="v"><input semantic="POSITION" source="#p"/></vertices>
		<triangles count="1"><input semantic="VERTEX" source="#v" offset="0"/><p>0 0 4</p></triangles>
		</mesh></geometry></library_geometries></COLLADA>`)
	_, err = collada.Decode(outOfRange)
	c.Assert(errors.Cause(err), qt.Equals, collada.ErrBadIndex)
}

func TestTrianglesDecode(t *testing.T) {
	c := qt.New(t)
	data := `
		<triangles material="Material-material" count="12">
		<input semantic="VERTEX" source="#Cube-mesh-vertices" offset="0"/>
		<input semantic="NORMAL" source="#Cube-mesh-normals" offset="1"/>
		<p>0 0 2 0 3 0 7 1 5 1 4 1 4 2 1 2 0 2 5 3 2 3 1 3 2 4 7 4 3 4 0 5 7 5 4 5 0 6 1 6 2 6 7 7 6 7 5 7 4 8 5 8 1 8 5 9 6 9 2 9 2 10 6 10 7 10 0 11 3 11 7 11</p>
		</triangles>
	`
	var triangles collada.Triangles
	c.Assert(xml.Unmarshal([]byte(data), &triangles), qt.IsNil)
	c.Assert(triangles.Material, qt.Equals, "Material-material")
	c.Assert(triangles.Count, qt.Equals, 12)
	c.Assert(triangles.Inputs, qt.HasLen, 2)
	c.Assert(triangles.Index, qt.HasLen, 12*6)
	c.Assert(triangles.Inputs[1], qt.Equals, collada.Input{Semantic: "NORMAL", Source: "#Cube-mesh-normals", Offset: 1})
}

func TestFloatsDecode(t *testing.T) {
	c := qt.New(t)
	data := `<float_array id="Cube-mesh-normals-array" count="6">0 0 -1
		2.38419e-7 1 -4.76837e-7</float_array>`

	var floats collada.Floats
	c.Assert(xml.Unmarshal([]byte(data), &floats), qt.IsNil)
	c.Assert(floats.Data, qt.HasLen, 6)
	c.Assert(floats.ID, qt.Equals, "Cube-mesh-normals-array")
}
