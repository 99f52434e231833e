// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kar

import (
	"bytes"
	"os"
	"testing"
	"time"
)

func TestAddAndWrite(t *testing.T) {
	builder, err := NewBuilder(Header{
		Author:      "devblok",
		DateCreated: time.Now().Unix(),
		Version:     1,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer builder.Close()

	if err := builder.Add("test", bytes.NewReader([]byte("idunvovkjnreovmegihjbrqlkmfrjnb"))); err != nil {
		t.Error(err)
	}
	if err := builder.Add("test2", bytes.NewReader([]byte("idunvovkjnreovmsdvwrvnervnreegihjbrqlkmfrjnb"))); err != nil {
		t.Error(err)
	}

	if len(builder.files) != 2 {
		t.Error("incorrect number of files present")
	}

	var buf bytes.Buffer
	num, err := builder.WriteTo(&buf)
	if err != nil {
		t.Error(err)
	}
	if num != int64(buf.Len()) {
		t.Errorf("reported %d bytes written, buffer holds %d", num, buf.Len())
	}
	if !bytes.HasPrefix(buf.Bytes(), Magic[:]) {
		t.Error("archive does not start with the magic")
	}
	if len(builder.files) != 0 {
		t.Error("files not cleared after write")
	}

	entries, err := os.ReadDir(builder.tempDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("%d temporary files left behind", len(entries))
	}
}

func TestHeaderSizeRoundTrip(t *testing.T) {
	for _, num := range []int64{0, 1, 255, 1 << 40} {
		bts := int64ToBinary(num)
		if len(bts) != HeaderSizeNumberLength {
			t.Fatalf("encoded into %d bytes", len(bts))
		}
		got, err := binaryToint64(bts)
		if err != nil {
			t.Fatal(err)
		}
		if got != num {
			t.Errorf("got %d, want %d", got, num)
		}
	}
}
