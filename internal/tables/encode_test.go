package tables

import (
	"bytes"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"
)

func sampleTable() *Table {
	return FromRecords(
		[]string{"time", "speed", "driver"},
		[][]string{
			{"0", "120.5", "ann"},
			{"1", "", "bob"},
			{"2", "98", ""},
		},
	)
}

func TestEncodeParquet(t *testing.T) {
	data, err := Encode(sampleTable(), FormatParquet)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	f, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	if f.NumRows() != 3 {
		t.Errorf("rows = %d, want 3", f.NumRows())
	}
	if got := len(f.Schema().Columns()); got != 3 {
		t.Errorf("columns = %d, want 3", got)
	}
}

func TestEncodeUnknownFormat(t *testing.T) {
	if _, err := Encode(sampleTable(), "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestCompressRoundTrip(t *testing.T) {
	payload := []byte(strings.Repeat(`{"speed": 120.5}`, 200))

	packed, err := Compress(payload, CompressionZstd)
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}
	if len(packed) >= len(payload) {
		t.Errorf("compressed size %d not smaller than %d", len(packed), len(payload))
	}

	unpacked, err := Decompress(packed, CompressionZstd)
	if err != nil {
		t.Fatalf("Decompress failed: %v", err)
	}
	if !bytes.Equal(unpacked, payload) {
		t.Error("round trip mismatch")
	}

	same, err := Compress(payload, CompressionNone)
	if err != nil || !bytes.Equal(same, payload) {
		t.Error("none compression should return input unchanged")
	}
}

func TestExtension(t *testing.T) {
	tests := []struct {
		format, compression, want string
	}{
		{FormatJSON, CompressionNone, ".json"},
		{FormatJSON, CompressionZstd, ".json.zst"},
		{FormatParquet, CompressionNone, ".parquet"},
	}
	for _, tt := range tests {
		if got := Extension(tt.format, tt.compression); got != tt.want {
			t.Errorf("Extension(%s, %s) = %s, want %s", tt.format, tt.compression, got, tt.want)
		}
	}
}

func TestComputeChecksum(t *testing.T) {
	sum := ComputeChecksum([]byte("abc"))
	want := "sha256:ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if sum != want {
		t.Errorf("checksum = %s, want %s", sum, want)
	}
}
