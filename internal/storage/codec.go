package storage

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Compression selects how table objects are encoded on the Blob
type Compression int

const (
	CompressionNone Compression = iota
	CompressionZstd
)

func (c Compression) String() string {
	if c == CompressionZstd {
		return "zstd"
	}
	return "none"
}

// ParseCompression accepts "", "none" and "zstd"
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	}
	return CompressionNone, fmt.Errorf("unknown compression %q", s)
}

const maxLineSize = 16 << 20

// codec turns table rows into JSONL objects, one row per line
type codec struct {
	compression Compression
	encoder     *zstd.Encoder
	decoder     *zstd.Decoder
}

func newCodec(c Compression) (*codec, error) {
	cd := &codec{compression: c}
	if c != CompressionZstd {
		return cd, nil
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	cd.encoder, cd.decoder = enc, dec
	return cd, nil
}

// ext is the object key suffix for tables
func (c *codec) ext() string {
	if c.compression == CompressionZstd {
		return ".jsonl.zst"
	}
	return ".jsonl"
}

func (c *codec) encode(rows []Row) ([]byte, error) {
	var buf bytes.Buffer
	for _, row := range rows {
		data, err := json.Marshal(row)
		if err != nil {
			return nil, fmt.Errorf("marshal row: %w", err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}

	if c.encoder == nil {
		return buf.Bytes(), nil
	}
	return c.encoder.EncodeAll(buf.Bytes(), nil), nil
}

// decode skips lines that are not valid JSON objects
func (c *codec) decode(data []byte) ([]Row, error) {
	if c.decoder != nil {
		plain, err := c.decoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress: %w", err)
		}
		data = plain
	}

	var rows []Row
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(line))
		dec.UseNumber()
		var row Row
		if err := dec.Decode(&row); err != nil {
			continue
		}
		rows = append(rows, normalizeNumbers(row))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *codec) close() {
	if c.encoder != nil {
		c.encoder.Close()
	}
	if c.decoder != nil {
		c.decoder.Close()
	}
}

// normalizeNumbers turns json.Number values into int64 when integral, float64 otherwise
func normalizeNumbers(row Row) Row {
	for k, v := range row {
		if n, ok := v.(json.Number); ok {
			if i, err := n.Int64(); err == nil {
				row[k] = i
			} else if f, err := n.Float64(); err == nil {
				row[k] = f
			} else {
				row[k] = n.String()
			}
		}
	}
	return row
}
