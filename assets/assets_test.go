// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package assets_test

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/pkg/errors"
	"golang.org/x/image/bmp"

	"github.com/devblok/korugraph/assets"
	"github.com/devblok/korugraph/utility/kar"
)

func testImage() image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	img.Set(1, 0, color.NRGBA{G: 255, A: 255})
	return img
}

func encodePNG(c *qt.C) []byte {
	var buf bytes.Buffer
	c.Assert(png.Encode(&buf, testImage()), qt.IsNil)
	return buf.Bytes()
}

func TestClean(t *testing.T) {
	c := qt.New(t)
	for respath, want := range map[string]string{
		":asset/textures/bricks.png":   "textures/bricks.png",
		"textures/bricks.png":          "textures/bricks.png",
		":asset/a/../b.png":            "b.png",
		":asset/textures\\windows.png": "textures/windows.png",
	} {
		got, err := assets.Clean(respath)
		c.Assert(err, qt.IsNil)
		c.Check(got, qt.Equals, want)
	}
	for _, respath := range []string{":asset/", ":other/x.png", ":asset/../escape.png", "/etc/passwd"} {
		_, err := assets.Clean(respath)
		c.Check(errors.Cause(err), qt.Equals, assets.ErrPath, qt.Commentf(respath))
	}
}

func TestDir(t *testing.T) {
	c := qt.New(t)
	fsys := assets.Dir(fstest.MapFS{
		"textures/red.png": &fstest.MapFile{Data: encodePNG(c)},
	})
	defer fsys.Close()

	px, err := assets.LoadImage(fsys, ":asset/textures/red.png")
	c.Assert(err, qt.IsNil)
	c.Assert(px.Width, qt.Equals, uint32(2))
	c.Assert(px.Height, qt.Equals, uint32(1))
	c.Assert(px.Data, qt.DeepEquals, []byte{255, 0, 0, 255, 0, 255, 0, 255})

	_, err = fsys.ReadFile(":asset/textures/missing.png")
	c.Assert(errors.Cause(err), qt.Equals, assets.ErrNotFound)
}

func TestOpenDirectory(t *testing.T) {
	c := qt.New(t)
	root := t.TempDir()
	c.Assert(os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0644), qt.IsNil)

	fsys, err := assets.Open(root)
	c.Assert(err, qt.IsNil)
	data, err := fsys.ReadFile(":asset/a.txt")
	c.Assert(err, qt.IsNil)
	c.Assert(string(data), qt.Equals, "hello")

	_, err = assets.Open(filepath.Join(root, "a.txt"))
	c.Assert(err, qt.ErrorMatches, ".*neither a directory nor a kar archive")
}

func TestOpenArchive(t *testing.T) {
	c := qt.New(t)
	builder, err := kar.NewBuilder(kar.Header{Author: "devblok", DateCreated: time.Now().Unix(), Version: 1})
	c.Assert(err, qt.IsNil)
	defer builder.Close()
	c.Assert(builder.Add("textures/red.png", bytes.NewReader(encodePNG(c))), qt.IsNil)

	var bmpData bytes.Buffer
	c.Assert(bmp.Encode(&bmpData, testImage()), qt.IsNil)
	c.Assert(builder.Add("textures/red.bmp", &bmpData), qt.IsNil)

	file := filepath.Join(t.TempDir(), "base.kar")
	out, err := os.Create(file)
	c.Assert(err, qt.IsNil)
	_, err = builder.WriteTo(out)
	c.Assert(err, qt.IsNil)
	c.Assert(out.Close(), qt.IsNil)

	fsys, err := assets.Open(file)
	c.Assert(err, qt.IsNil)
	defer fsys.Close()

	fromPNG, err := assets.LoadImage(fsys, ":asset/textures/red.png")
	c.Assert(err, qt.IsNil)
	fromBMP, err := assets.LoadImage(fsys, ":asset/textures/red.bmp")
	c.Assert(err, qt.IsNil)
	c.Assert(fromBMP, qt.DeepEquals, fromPNG)

	_, err = fsys.ReadFile(":asset/nope.png")
	c.Assert(errors.Cause(err), qt.Equals, assets.ErrNotFound)
}

func TestDecodeImageGarbage(t *testing.T) {
	c := qt.New(t)
	_, err := assets.DecodeImage([]byte("not an image"))
	c.Assert(err, qt.ErrorMatches, "decode image: .*")
}
