// Copyright 2025 Zintix Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package corefmt

import (
	"bytes"
	"io"
	"testing"
)

func TestBase64URL(t *testing.T) {
	in := []byte{0xff, 0xfe, 0x00, 0x01, '?'}
	s := EncodeBase64URL(in)
	for _, c := range s {
		if c == '+' || c == '/' || c == '=' {
			t.Fatalf("not url safe: %q", s)
		}
	}
	out, err := DecodeBase64URL(s)
	if err != nil || !bytes.Equal(in, out) {
		t.Fatalf("round trip failed: %v %v", out, err)
	}
	if _, err := DecodeBase64URL("***"); err == nil {
		t.Fatal("want error")
	}
}

func TestBlobFrame(t *testing.T) {
	frame := EncodeBlobFrame([]byte("hello"))
	out, err := DecodeBlobFrame(frame)
	if err != nil || string(out) != "hello" {
		t.Fatalf("decode = %q, %v", out, err)
	}
	if _, err := DecodeBlobFrame(frame[:3]); err == nil {
		t.Fatal("want truncated error")
	}
	if _, err := DecodeBlobFrame(nil); err == nil {
		t.Fatal("want varint error")
	}
}

func TestFrameReader(t *testing.T) {
	var buf bytes.Buffer
	for _, p := range []string{"a", "", "ccc"} {
		if err := WriteBlobFrame(&buf, []byte(p)); err != nil {
			t.Fatal(err)
		}
	}
	fr := NewFrameReader(&buf, 16)
	var got []string
	for {
		p, err := fr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, string(p))
	}
	if len(got) != 3 || got[0] != "a" || got[1] != "" || got[2] != "ccc" {
		t.Fatalf("frames = %q", got)
	}

	buf.Reset()
	_ = WriteBlobFrame(&buf, make([]byte, 32))
	if _, err := ReadBlobFrame(&buf, 16); err == nil {
		t.Fatal("want maxBytes error")
	}
}
