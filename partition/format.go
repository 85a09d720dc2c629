package partition

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/quantfold/tickcat/codec"
	"github.com/quantfold/tickcat/internal/hash"
	"github.com/quantfold/tickcat/schema"
)

// Segment file layout (little-endian):
//
//	magic        [4]byte  "TCK1"
//	version      uint16
//	compression  uint8
//	codec name   uint8 length + bytes
//	kind         uint16 length + bytes
//	record count uint32
//	payload len  uint64   (compressed size)
//	payload      []byte   (rows, each uint32 length-prefixed, codec-encoded)
//	checksum     uint32   (crc32c of the compressed payload)
const (
	segmentMagic   = "TCK1"
	segmentVersion = 1
)

// Compression identifies the payload compression codec.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZstd
	CompressionLZ4
)

// String returns the stable name of the compression codec.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

var (
	// Shared zstd coders; both are safe for concurrent use via EncodeAll /
	// DecodeAll.
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

// CorruptionError indicates a sealed partition that fails an integrity
// check on read. The partition is not auto-repaired.
type CorruptionError struct {
	Path     string
	Reason   string
	Expected uint32
	Actual   uint32
}

func (e *CorruptionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("partition %s corrupted: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("partition %s corrupted: checksum mismatch: expected 0x%08x, got 0x%08x",
		e.Path, e.Expected, e.Actual)
}

// Segment is a decoded sealed partition.
type Segment struct {
	Kind        string
	CodecName   string
	Compression Compression
	Rows        []schema.Record
}

// EncodeSegment serializes rows into the segment format and returns the
// encoded bytes together with the payload checksum.
func EncodeSegment(kind string, cdc codec.Codec, comp Compression, rows []schema.Record) ([]byte, uint32, error) {
	if cdc == nil {
		cdc = codec.Default
	}

	var payload bytes.Buffer
	for i, row := range rows {
		encoded, err := cdc.Marshal(row)
		if err != nil {
			return nil, 0, fmt.Errorf("partition: encode row %d: %w", i, err)
		}
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(encoded)))
		payload.Write(lenBuf[:])
		payload.Write(encoded)
	}

	compressed, err := compress(comp, payload.Bytes())
	if err != nil {
		return nil, 0, err
	}
	crc := hash.CRC32C(compressed)

	var buf bytes.Buffer
	buf.WriteString(segmentMagic)
	var u16 [2]byte
	binary.LittleEndian.PutUint16(u16[:], segmentVersion)
	buf.Write(u16[:])
	buf.WriteByte(byte(comp))

	name := cdc.Name()
	if len(name) > 255 {
		return nil, 0, fmt.Errorf("partition: codec name too long: %q", name)
	}
	buf.WriteByte(byte(len(name)))
	buf.WriteString(name)

	if len(kind) > 65535 {
		return nil, 0, fmt.Errorf("partition: kind too long")
	}
	binary.LittleEndian.PutUint16(u16[:], uint16(len(kind)))
	buf.Write(u16[:])
	buf.WriteString(kind)

	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], uint32(len(rows)))
	buf.Write(u32[:])

	var u64 [8]byte
	binary.LittleEndian.PutUint64(u64[:], uint64(len(compressed)))
	buf.Write(u64[:])

	buf.Write(compressed)

	binary.LittleEndian.PutUint32(u32[:], crc)
	buf.Write(u32[:])

	return buf.Bytes(), crc, nil
}

// DecodeSegment parses segment bytes, verifying the size and checksum.
// path is used for error context only.
func DecodeSegment(path string, data []byte) (*Segment, error) {
	r := bytes.NewReader(data)

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil || string(magic[:]) != segmentMagic {
		return nil, &CorruptionError{Path: path, Reason: "invalid magic"}
	}

	var u16 [2]byte
	if _, err := io.ReadFull(r, u16[:]); err != nil {
		return nil, &CorruptionError{Path: path, Reason: "truncated header"}
	}
	if v := binary.LittleEndian.Uint16(u16[:]); v != segmentVersion {
		return nil, fmt.Errorf("partition %s: unsupported segment version %d", path, v)
	}

	compByte, err := r.ReadByte()
	if err != nil {
		return nil, &CorruptionError{Path: path, Reason: "truncated header"}
	}
	comp := Compression(compByte)

	nameLen, err := r.ReadByte()
	if err != nil {
		return nil, &CorruptionError{Path: path, Reason: "truncated header"}
	}
	nameBuf := make([]byte, nameLen)
	if _, err := io.ReadFull(r, nameBuf); err != nil {
		return nil, &CorruptionError{Path: path, Reason: "truncated header"}
	}
	codecName := string(nameBuf)

	if _, err := io.ReadFull(r, u16[:]); err != nil {
		return nil, &CorruptionError{Path: path, Reason: "truncated header"}
	}
	kindBuf := make([]byte, binary.LittleEndian.Uint16(u16[:]))
	if _, err := io.ReadFull(r, kindBuf); err != nil {
		return nil, &CorruptionError{Path: path, Reason: "truncated header"}
	}

	var u32 [4]byte
	if _, err := io.ReadFull(r, u32[:]); err != nil {
		return nil, &CorruptionError{Path: path, Reason: "truncated header"}
	}
	recordCount := binary.LittleEndian.Uint32(u32[:])

	var u64 [8]byte
	if _, err := io.ReadFull(r, u64[:]); err != nil {
		return nil, &CorruptionError{Path: path, Reason: "truncated header"}
	}
	payloadLen := binary.LittleEndian.Uint64(u64[:])

	if uint64(r.Len()) != payloadLen+4 {
		return nil, &CorruptionError{
			Path:   path,
			Reason: fmt.Sprintf("size mismatch: %d payload bytes on disk, header says %d", r.Len()-4, payloadLen),
		}
	}
	compressed := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, compressed); err != nil {
		return nil, &CorruptionError{Path: path, Reason: "truncated payload"}
	}

	if _, err := io.ReadFull(r, u32[:]); err != nil {
		return nil, &CorruptionError{Path: path, Reason: "missing checksum"}
	}
	expected := binary.LittleEndian.Uint32(u32[:])
	if actual := hash.CRC32C(compressed); actual != expected {
		return nil, &CorruptionError{Path: path, Expected: expected, Actual: actual}
	}

	cdc, ok := codec.ByName(codecName)
	if !ok {
		return nil, fmt.Errorf("partition %s: unknown codec %q", path, codecName)
	}

	payload, err := decompress(comp, compressed)
	if err != nil {
		return nil, &CorruptionError{Path: path, Reason: fmt.Sprintf("decompress (%s): %v", comp, err)}
	}

	rows := make([]schema.Record, 0, recordCount)
	pr := bytes.NewReader(payload)
	for i := uint32(0); i < recordCount; i++ {
		if _, err := io.ReadFull(pr, u32[:]); err != nil {
			return nil, &CorruptionError{Path: path, Reason: fmt.Sprintf("truncated row %d", i)}
		}
		rowBuf := make([]byte, binary.LittleEndian.Uint32(u32[:]))
		if _, err := io.ReadFull(pr, rowBuf); err != nil {
			return nil, &CorruptionError{Path: path, Reason: fmt.Sprintf("truncated row %d", i)}
		}
		var row schema.Record
		if err := cdc.Unmarshal(rowBuf, &row); err != nil {
			return nil, fmt.Errorf("partition %s: decode row %d: %w", path, i, err)
		}
		rows = append(rows, row)
	}
	if pr.Len() != 0 {
		return nil, &CorruptionError{Path: path, Reason: "trailing bytes after last row"}
	}

	return &Segment{
		Kind:        string(kindBuf),
		CodecName:   codecName,
		Compression: comp,
		Rows:        rows,
	}, nil
}

func compress(c Compression, data []byte) ([]byte, error) {
	switch c {
	case CompressionNone:
		return data, nil
	case CompressionZstd:
		return zstdEncoder.EncodeAll(data, nil), nil
	case CompressionLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("partition: unsupported compression %d", uint8(c))
	}
}

func decompress(c Compression, data []byte) ([]byte, error) {
	switch c {
	case CompressionNone:
		return data, nil
	case CompressionZstd:
		return zstdDecoder.DecodeAll(data, nil)
	case CompressionLZ4:
		return io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
	default:
		return nil, fmt.Errorf("partition: unsupported compression %d", uint8(c))
	}
}
