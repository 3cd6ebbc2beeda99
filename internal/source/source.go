// Package source reads record batches from where scrapers leave them: a
// local file, stdin, an inbox directory, or an S3 object.
package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/JonMunkholm/regingest/internal/core"
	"github.com/JonMunkholm/regingest/internal/record"
)

// Stdin is the reference that reads a batch from standard input.
const Stdin = "-"

// Batch is a decoded batch and where it came from.
type Batch struct {
	Ref     string
	Records []*record.Record
}

// Config holds S3 settings. Local files need none.
type Config struct {
	Region   string
	Endpoint string
}

// Reader resolves batch references. The S3 client is created on first use
// so local runs never load AWS credentials.
type Reader struct {
	cfg   Config
	stdin io.Reader

	mu sync.Mutex
	s3 ObjectGetter
}

// NewReader creates a Reader that reads stdin from os.Stdin.
func NewReader(cfg Config) *Reader {
	return &Reader{cfg: cfg, stdin: os.Stdin}
}

// WithStdin replaces the stdin stream.
func (r *Reader) WithStdin(in io.Reader) *Reader {
	r.stdin = in
	return r
}

// WithObjectGetter sets the S3 client.
func (r *Reader) WithObjectGetter(g ObjectGetter) *Reader {
	r.mu.Lock()
	r.s3 = g
	r.mu.Unlock()
	return r
}

// Read loads the batch named by ref: "-", "s3://bucket/key" or a file path.
func (r *Reader) Read(ctx context.Context, ref string) (*Batch, error) {
	switch {
	case ref == Stdin:
		return r.readStdin()
	case IsS3(ref):
		return r.readS3(ctx, ref)
	default:
		return ReadFile(ref)
	}
}

// ReadFile decodes a local batch file. The format follows the extension.
func ReadFile(path string) (*Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open batch: %w", err)
	}
	defer f.Close()

	records, err := decode(f, record.FormatFromName(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return &Batch{Ref: path, Records: records}, nil
}

func (r *Reader) readStdin() (*Batch, error) {
	if r.stdin == nil {
		return nil, fmt.Errorf("stdin is not available")
	}
	br := bufio.NewReader(r.stdin)
	records, err := decode(br, sniff(br))
	if err != nil {
		return nil, fmt.Errorf("stdin: %w", err)
	}
	return &Batch{Ref: Stdin, Records: records}, nil
}

// sniff picks JSON when the first non-blank byte opens an array and CSV
// otherwise. BOM bytes count as blank.
func sniff(br *bufio.Reader) record.Format {
	for n := 1; n <= maxSniff; n++ {
		head, err := br.Peek(n)
		if err != nil {
			break
		}
		switch head[n-1] {
		case ' ', '\t', '\r', '\n', 0xEF, 0xBB, 0xBF:
			continue
		case '[':
			return record.FormatJSON
		default:
			return record.FormatCSV
		}
	}
	return record.FormatJSON
}

const maxSniff = 512

func decode(in io.Reader, format record.Format) ([]*record.Record, error) {
	records, err := record.Decode(in, format)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidBatch, err)
	}
	return records, nil
}

// IsBatchFile reports whether name has a batch extension.
func IsBatchFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".csv":
		return true
	}
	return false
}
