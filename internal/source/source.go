// Package source reads entity files as restartable row sequences.
//
// Files are opened through an Opener (local directory or S3 bucket), can be
// gzip or zstd compressed, and are either delimited text with a header row
// (.csv, .txt, .tsv) or one JSON object per line (.jsonl, .ndjson).
// Iteration never loads a whole file into memory; restarting a sequence
// reopens the file from the first data row.
package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

var (
	// ErrNotExist is returned by openers when a source file is absent.
	ErrNotExist = errors.New("source file does not exist")
	// ErrRootNotFound is returned by Check when the data root is absent.
	ErrRootNotFound = errors.New("data root not found")
)

// Opener gives access to source files by name relative to a data root.
// Check verifies the root itself, so an absent root is not mistaken for a
// root without optional files.
type Opener interface {
	Check(ctx context.Context) error
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	Exists(ctx context.Context, name string) (bool, error)
	Location(name string) string
}

// Row is one data row. Fields are keyed by lowercased header name.
// Err is set for rows that could not be parsed; the row still occupies
// its position in the sequence.
type Row struct {
	Line   int
	Fields map[string]string
	Err    error
}

// Format is the on-disk layout of a source file.
type Format int

const (
	FormatCSV Format = iota
	FormatTSV
	FormatJSONL
)

// FormatOf infers the format from the file name, ignoring a trailing
// compression suffix.
func FormatOf(name string) Format {
	base := strings.ToLower(trimCompression(name))
	switch path.Ext(base) {
	case ".jsonl", ".ndjson":
		return FormatJSONL
	case ".tsv":
		return FormatTSV
	default:
		return FormatCSV
	}
}

// File is a named source file bound to an opener.
type File struct {
	opener Opener
	name   string
	format Format
}

// NewFile binds name to opener.
func NewFile(opener Opener, name string) *File {
	return &File{opener: opener, name: name, format: FormatOf(name)}
}

// Name returns the file name relative to the data root.
func (f *File) Name() string { return f.name }

// Location returns a human-readable location for logs and errors.
func (f *File) Location() string { return f.opener.Location(f.name) }

// Exists reports whether the file is present.
func (f *File) Exists(ctx context.Context) (bool, error) {
	return f.opener.Exists(ctx, f.name)
}

// Header returns the column names of a delimited file, or nil for JSONL.
func (f *File) Header(ctx context.Context) ([]string, error) {
	if f.format == FormatJSONL {
		return nil, nil
	}

	rc, err := f.open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	header, err := f.csvReader(rc).Read()
	if errors.Is(err, io.EOF) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", f.Location(), err)
	}
	return normalizeHeader(header), nil
}

// Rows streams the data rows in file order. Blank lines are not rows.
// A non-nil error ends the sequence and means the file could not be read.
func (f *File) Rows(ctx context.Context) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		rc, err := f.open(ctx)
		if err != nil {
			yield(Row{}, err)
			return
		}
		defer rc.Close()

		if f.format == FormatJSONL {
			f.jsonRows(ctx, rc, yield)
			return
		}
		f.csvRows(ctx, rc, yield)
	}
}

// Count returns the number of data rows.
func (f *File) Count(ctx context.Context) (int, error) {
	n := 0
	for _, err := range f.Rows(ctx) {
		if err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}

func (f *File) open(ctx context.Context) (io.ReadCloser, error) {
	rc, err := f.opener.Open(ctx, f.name)
	if err != nil {
		return nil, err
	}

	dr, err := decompress(rc, f.name)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("open %s: %w", f.Location(), err)
	}
	return dr, nil
}

func (f *File) csvReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(Clean(r))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	if f.format == FormatTSV {
		cr.Comma = '\t'
	}
	return cr
}

func (f *File) csvRows(ctx context.Context, r io.Reader, yield func(Row, error) bool) {
	cr := f.csvReader(r)

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return
	}
	if err != nil {
		yield(Row{}, fmt.Errorf("read header of %s: %w", f.Location(), err))
		return
	}
	header = normalizeHeader(header)

	for {
		if err := ctx.Err(); err != nil {
			yield(Row{}, err)
			return
		}

		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return
		}

		var pe *csv.ParseError
		if errors.As(err, &pe) {
			if !yield(Row{Line: pe.StartLine, Err: pe}, nil) {
				return
			}
			continue
		}
		if err != nil {
			yield(Row{}, fmt.Errorf("read %s: %w", f.Location(), err))
			return
		}
		if isBlank(rec) {
			continue
		}
		line, _ := cr.FieldPos(0)

		fields := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(rec) {
				fields[h] = rec[i]
			}
		}
		if !yield(Row{Line: line, Fields: fields}, nil) {
			return
		}
	}
}

func (f *File) jsonRows(ctx context.Context, r io.Reader, yield func(Row, error) bool) {
	br := bufio.NewReader(Clean(r))
	num := 0

	for {
		if err := ctx.Err(); err != nil {
			yield(Row{}, err)
			return
		}

		line, err := br.ReadBytes('\n')
		num++
		if errors.Is(err, io.EOF) && len(line) == 0 {
			return
		}
		if err != nil && !errors.Is(err, io.EOF) {
			yield(Row{}, fmt.Errorf("read %s: %w", f.Location(), err))
			return
		}
		if strings.TrimSpace(string(line)) == "" {
			continue
		}

		fields, perr := flattenJSON(line)
		if !yield(Row{Line: num, Fields: fields, Err: perr}, nil) {
			return
		}
	}
}

// flattenJSON decodes one object into string cells. Arrays become
// comma-joined lists; nested objects are kept as JSON text.
func flattenJSON(line []byte) (map[string]string, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}

	fields := make(map[string]string, len(obj))
	for k, v := range obj {
		fields[strings.ToLower(strings.TrimSpace(k))] = cellString(v)
	}
	return fields, nil
}

func cellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			parts = append(parts, cellString(e))
		}
		return strings.Join(parts, ",")
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		out[i] = strings.ToLower(strings.Trim(strings.TrimSpace(h), `"'`))
	}
	return out
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func trimCompression(name string) string {
	lower := strings.ToLower(name)
	for _, ext := range []string{".gz", ".zst"} {
		if strings.HasSuffix(lower, ext) {
			return name[:len(name)-len(ext)]
		}
	}
	return name
}

// decompress wraps rc according to the file suffix. Closing the result
// closes rc.
func decompress(rc io.ReadCloser, name string) (io.ReadCloser, error) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".gz"):
		zr, err := gzip.NewReader(rc)
		if err != nil {
			return nil, err
		}
		return &stackedCloser{Reader: zr, closers: []io.Closer{zr, rc}}, nil
	case strings.HasSuffix(lower, ".zst"):
		zr, err := zstd.NewReader(rc)
		if err != nil {
			return nil, err
		}
		return &stackedCloser{Reader: zr, closers: []io.Closer{zr.IOReadCloser(), rc}}, nil
	default:
		return rc, nil
	}
}

type stackedCloser struct {
	io.Reader
	closers []io.Closer
}

func (s *stackedCloser) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
