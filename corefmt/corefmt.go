// Package corefmt 處理取樣器快照（[]byte）在不同傳輸媒介上的編碼。
//
//   - JSON / HTTP：Base64URL（無 padding），可直接放進 query 或 JSON 字串。
//   - 檔案 / 串流：長度前綴的 blob frame（uvarint(len) || payload），一個檔案可連續寫入多個快照。
package corefmt

import (
	"bufio"
	"encoding/base64"
	"encoding/binary"
	"io"

	"github.com/zintix-labs/acdc/errs"
)

func EncodeBase64URL(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

func DecodeBase64URL(s string) ([]byte, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, errs.Wrap(err, "decode base64url failed")
	}
	return b, nil
}

// EncodeBlobFrame 把 payload 編成 uvarint(len(payload)) || payload
func EncodeBlobFrame(payload []byte) []byte {
	var hdr [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(hdr[:], uint64(len(payload)))

	out := make([]byte, 0, n+len(payload))
	out = append(out, hdr[:n]...)
	return append(out, payload...)
}

// DecodeBlobFrame 解開 EncodeBlobFrame 的結果；回傳的是複本。
func DecodeBlobFrame(frame []byte) ([]byte, error) {
	n, size := binary.Uvarint(frame)
	if size <= 0 {
		return nil, errs.NewWarn("decode blob frame failed: invalid varint length")
	}
	if uint64(len(frame)-size) < n {
		return nil, errs.NewWarn("decode blob frame failed: truncated payload")
	}
	out := make([]byte, n)
	copy(out, frame[size:size+int(n)])
	return out, nil
}

// WriteBlobFrame 寫入一個 frame
func WriteBlobFrame(w io.Writer, payload []byte) error {
	if _, err := w.Write(EncodeBlobFrame(payload)); err != nil {
		return errs.Wrap(err, "write blob frame failed")
	}
	return nil
}

// FrameReader 依序讀取串流中的 frame
type FrameReader struct {
	br       *bufio.Reader
	maxBytes uint64
}

// NewFrameReader 建立 FrameReader；maxBytes 為單一 payload 的上限（0 表示不限制），讀取不可信輸入時務必設定。
func NewFrameReader(r io.Reader, maxBytes uint64) *FrameReader {
	return &FrameReader{br: bufio.NewReader(r), maxBytes: maxBytes}
}

// Next 讀取下一個 frame；串流在 frame 邊界結束時回傳 io.EOF。
func (fr *FrameReader) Next() ([]byte, error) {
	ln, err := binary.ReadUvarint(fr.br)
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, errs.Wrap(err, "read blob frame header failed")
	}
	if fr.maxBytes > 0 && ln > fr.maxBytes {
		return nil, errs.NewWarn("read blob frame failed: payload exceeds maxBytes")
	}
	buf := make([]byte, ln)
	if _, err := io.ReadFull(fr.br, buf); err != nil {
		return nil, errs.Wrap(err, "read blob frame payload failed")
	}
	return buf, nil
}

// ReadBlobFrame 只讀一個 frame
func ReadBlobFrame(r io.Reader, maxBytes uint64) ([]byte, error) {
	return NewFrameReader(r, maxBytes).Next()
}
