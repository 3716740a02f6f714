// Package safetensors writes and validates safetensors weight files.
//
// Layout: an 8-byte little-endian header length, a JSON header mapping tensor
// names to {dtype, shape, data_offsets}, then the raw tensor bytes. The
// optional "__metadata__" entry holds string pairs.
package safetensors

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
)

const metadataKey = "__metadata__"

// maxHeaderSize bounds the JSON header read from untrusted files.
const maxHeaderSize = 100 << 20

var ErrInvalid = errors.New("invalid safetensors file")

var dtypeSizes = map[string]int64{
	"BOOL": 1, "U8": 1, "I8": 1, "F8_E5M2": 1, "F8_E4M3": 1,
	"I16": 2, "U16": 2, "F16": 2, "BF16": 2,
	"I32": 4, "U32": 4, "F32": 4,
	"I64": 8, "U64": 8, "F64": 8,
}

// Tensor is one named tensor to write.
type Tensor struct {
	Name  string
	DType string
	Shape []int64
	Data  []byte
}

// TensorInfo is a header entry.
type TensorInfo struct {
	DType       string   `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// Header is the parsed JSON header.
type Header struct {
	Metadata map[string]string
	Tensors  map[string]TensorInfo
}

// Write encodes tensors and metadata. Tensors are laid out in name order.
func Write(w io.Writer, metadata map[string]string, tensors ...Tensor) error {
	sorted := append([]Tensor(nil), tensors...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	header := make(map[string]any, len(sorted)+1)
	if len(metadata) > 0 {
		header[metadataKey] = metadata
	}

	var offset int64
	for _, t := range sorted {
		if t.Name == "" || t.Name == metadataKey {
			return fmt.Errorf("%w: bad tensor name %q", ErrInvalid, t.Name)
		}
		if want, err := byteLen(t.DType, t.Shape); err != nil {
			return err
		} else if want != int64(len(t.Data)) {
			return fmt.Errorf("%w: tensor %s has %d bytes, shape needs %d", ErrInvalid, t.Name, len(t.Data), want)
		}
		end := offset + int64(len(t.Data))
		header[t.Name] = TensorInfo{DType: t.DType, Shape: t.Shape, DataOffsets: [2]int64{offset, end}}
		offset = end
	}

	raw, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("marshal header: %w", err)
	}
	if pad := len(raw) % 8; pad != 0 {
		raw = append(raw, bytes.Repeat([]byte(" "), 8-pad)...)
	}

	if err := binary.Write(w, binary.LittleEndian, uint64(len(raw))); err != nil {
		return err
	}
	if _, err := w.Write(raw); err != nil {
		return err
	}
	for _, t := range sorted {
		if _, err := w.Write(t.Data); err != nil {
			return err
		}
	}
	return nil
}

// WriteFile writes a safetensors file at path.
func WriteFile(path string, metadata map[string]string, tensors ...Tensor) error {
	var buf bytes.Buffer
	if err := Write(&buf, metadata, tensors...); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// WritePlaceholder writes a tensor-free file that loaders accept as an empty
// adapter.
func WritePlaceholder(path string) error {
	return WriteFile(path, map[string]string{"format": "pt", "placeholder": "true"})
}

// ReadHeader parses and checks the header of r, whose total length is size.
func ReadHeader(r io.Reader, size int64) (*Header, error) {
	if size < 8 {
		return nil, fmt.Errorf("%w: %d bytes is too short", ErrInvalid, size)
	}

	var n uint64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("%w: read header length: %v", ErrInvalid, err)
	}
	if n == 0 || n > maxHeaderSize || int64(n) > size-8 {
		return nil, fmt.Errorf("%w: header length %d out of range", ErrInvalid, n)
	}

	raw := make([]byte, n)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrInvalid, err)
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%w: header is not a JSON object: %v", ErrInvalid, err)
	}

	h := &Header{Tensors: make(map[string]TensorInfo, len(entries))}
	for name, msg := range entries {
		if name == metadataKey {
			if err := json.Unmarshal(msg, &h.Metadata); err != nil {
				return nil, fmt.Errorf("%w: metadata must map strings to strings", ErrInvalid)
			}
			continue
		}
		var info TensorInfo
		if err := json.Unmarshal(msg, &info); err != nil {
			return nil, fmt.Errorf("%w: tensor %s: %v", ErrInvalid, name, err)
		}
		h.Tensors[name] = info
	}

	if err := checkOffsets(h.Tensors, size-8-int64(n)); err != nil {
		return nil, err
	}
	return h, nil
}

// Validate checks that the file at path is a well-formed safetensors file.
func Validate(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return ReadHeader(f, st.Size())
}

// checkOffsets requires the tensors to tile the data section exactly.
func checkOffsets(tensors map[string]TensorInfo, dataLen int64) error {
	names := make([]string, 0, len(tensors))
	for name := range tensors {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return tensors[names[i]].DataOffsets[0] < tensors[names[j]].DataOffsets[0]
	})

	var next int64
	for _, name := range names {
		info := tensors[name]
		begin, end := info.DataOffsets[0], info.DataOffsets[1]
		if begin != next || end < begin {
			return fmt.Errorf("%w: tensor %s has offsets [%d, %d], expected start %d", ErrInvalid, name, begin, end, next)
		}
		want, err := byteLen(info.DType, info.Shape)
		if err != nil {
			return fmt.Errorf("tensor %s: %w", name, err)
		}
		if end-begin != want {
			return fmt.Errorf("%w: tensor %s spans %d bytes, shape needs %d", ErrInvalid, name, end-begin, want)
		}
		next = end
	}
	if next != dataLen {
		return fmt.Errorf("%w: tensors cover %d of %d data bytes", ErrInvalid, next, dataLen)
	}
	return nil
}

func byteLen(dtype string, shape []int64) (int64, error) {
	size, ok := dtypeSizes[dtype]
	if !ok {
		return 0, fmt.Errorf("%w: unknown dtype %q", ErrInvalid, dtype)
	}
	n := size
	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("%w: negative dimension %d", ErrInvalid, d)
		}
		n *= d
	}
	return n, nil
}
