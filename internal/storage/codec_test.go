package storage

import (
	"bytes"
	"testing"
)

func TestParseCompression(t *testing.T) {
	tests := []struct {
		in      string
		want    Compression
		wantErr bool
	}{
		{"", CompressionNone, false},
		{"none", CompressionNone, false},
		{" ZSTD ", CompressionZstd, false},
		{"gzip", CompressionNone, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCompression(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCompression(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseCompression(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestCodec_RoundTripNormalizesNumbers(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionZstd} {
		t.Run(c.String(), func(t *testing.T) {
			cd, err := newCodec(c)
			if err != nil {
				t.Fatalf("newCodec failed: %v", err)
			}
			defer cd.close()

			data, err := cd.encode([]Row{
				{"id": int64(1), "price": 9.5, "name": "widget", "tags": nil},
				{"id": int64(9007199254740993)},
			})
			if err != nil {
				t.Fatalf("encode failed: %v", err)
			}
			if c == CompressionNone && !bytes.HasSuffix(data, []byte("\n")) {
				t.Fatal("expected newline-terminated JSONL")
			}

			rows, err := cd.decode(data)
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if len(rows) != 2 {
				t.Fatalf("expected 2 rows, got %d", len(rows))
			}
			if rows[0]["id"] != int64(1) {
				t.Errorf("expected int64 id, got %T %v", rows[0]["id"], rows[0]["id"])
			}
			if rows[0]["price"] != 9.5 {
				t.Errorf("expected float price, got %T %v", rows[0]["price"], rows[0]["price"])
			}
			if v, ok := rows[0]["tags"]; !ok || v != nil {
				t.Errorf("expected explicit null to survive, got %v (present=%v)", v, ok)
			}
			if rows[1]["id"] != int64(9007199254740993) {
				t.Errorf("large integer lost precision: %v", rows[1]["id"])
			}
		})
	}
}

func TestCodec_DecodeSkipsInvalidLines(t *testing.T) {
	cd, err := newCodec(CompressionNone)
	if err != nil {
		t.Fatal(err)
	}
	rows, err := cd.decode([]byte("{\"id\":1}\nnot json\n\n[1,2]\n{\"id\":2}\n"))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 valid rows, got %d: %v", len(rows), rows)
	}
}

func TestCodec_Extension(t *testing.T) {
	plain, _ := newCodec(CompressionNone)
	zst, _ := newCodec(CompressionZstd)
	defer zst.close()

	if plain.ext() != ".jsonl" {
		t.Errorf("plain ext = %q", plain.ext())
	}
	if zst.ext() != ".jsonl.zst" {
		t.Errorf("zstd ext = %q", zst.ext())
	}
}
