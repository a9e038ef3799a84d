package core

// streaming.go prepares raw export bytes for parsing.
//
//   - BOMSkippingReader: Removes the UTF-8 BOM (0xEF 0xBB 0xBF) written by Windows tools
//   - readExport: Reads at most MaxFileSize bytes through the BOM skipper
//   - decodeCharset: Keeps valid UTF-8, otherwise decodes Windows-1252
//
// The regulator's legacy spreadsheet exports are Windows-1252; newer ones
// are UTF-8, sometimes with a BOM.

import (
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// MaxFileSize is the maximum accepted export size (50MB).
var MaxFileSize int64 = 50 * 1024 * 1024

// ErrFileTooLarge is returned when an export exceeds MaxFileSize.
var ErrFileTooLarge = errors.New("file too large")

// BOMSkippingReader wraps an io.Reader and skips the UTF-8 BOM if present.
type BOMSkippingReader struct {
	reader     io.Reader
	bomChecked bool
	buf        [3]byte
	pending    []byte // bytes read during BOM detection that were not a BOM
}

// NewBOMSkippingReader creates a new BOM-skipping reader.
func NewBOMSkippingReader(r io.Reader) *BOMSkippingReader {
	return &BOMSkippingReader{reader: r}
}

// Read implements io.Reader. On the first read, it checks for and skips the BOM.
func (r *BOMSkippingReader) Read(p []byte) (int, error) {
	if !r.bomChecked {
		r.bomChecked = true

		n, err := io.ReadFull(r.reader, r.buf[:])
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		if err != nil && err != io.EOF {
			return 0, err
		}
		if !(n == 3 && r.buf[0] == 0xEF && r.buf[1] == 0xBB && r.buf[2] == 0xBF) {
			r.pending = r.buf[:n]
		}
		if err == io.EOF && len(r.pending) == 0 {
			return 0, io.EOF
		}
	}

	if len(r.pending) > 0 {
		copied := copy(p, r.pending)
		r.pending = r.pending[copied:]
		return copied, nil
	}

	return r.reader.Read(p)
}

// readExport reads the whole export, stripping a leading BOM and enforcing
// MaxFileSize.
func readExport(r io.Reader) ([]byte, error) {
	limited := io.LimitReader(NewBOMSkippingReader(r), MaxFileSize+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > MaxFileSize {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrFileTooLarge, MaxFileSize)
	}
	return data, nil
}

// decodeCharset returns data as UTF-8 and the name of the source encoding.
func decodeCharset(data []byte) ([]byte, string, error) {
	if utf8.Valid(data) {
		return data, "utf-8", nil
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return nil, "", fmt.Errorf("decode windows-1252: %w", err)
	}
	return decoded, "windows-1252", nil
}
