package pstats

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

const base64GzipPrefix = "gz:"

var gzipMagic = []byte{0x1f, 0x8b}

// ReadFile reads and decodes a profile stored as JSON records.
func ReadFile(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	records, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return records, nil
}

// Decode the JSON record list. The payload may be plain JSON, gzip
// compressed, or a "gz:" prefixed base64 encoded gzip stream.
func Decode(data []byte) ([]Record, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty data")
	}

	raw, err := decompress(data)
	if err != nil {
		return nil, err
	}

	var records []Record
	err = json.Unmarshal(raw, &records)
	if err != nil {
		return nil, fmt.Errorf("unmarshal records: %w", err)
	}
	return records, nil
}

func decompress(data []byte) ([]byte, error) {
	var compressed io.Reader
	switch {
	case bytes.HasPrefix(data, []byte(base64GzipPrefix)):
		trimmed := bytes.TrimSpace(data[len(base64GzipPrefix):])
		compressed = base64.NewDecoder(base64.StdEncoding, bytes.NewReader(trimmed))
	case bytes.HasPrefix(data, gzipMagic):
		compressed = bytes.NewReader(data)
	default:
		return data, nil
	}

	r, err := gzip.NewReader(compressed)
	if err != nil {
		return nil, fmt.Errorf("new gzip reader: %w", err)
	}
	defer r.Close()

	all, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read all: %w", err)
	}
	return all, nil
}

// Encode writes records as gzip compressed JSON.
func Encode(w io.Writer, records []Record) error {
	gz := gzip.NewWriter(w)
	err := json.NewEncoder(gz).Encode(records)
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	return gz.Close()
}
