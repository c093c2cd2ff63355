package core

import (
	"context"
	"fmt"
	"iter"

	"github.com/JonMunkholm/graphload/internal/source"
)

// Loader reads one kind's source file and turns it into batches of
// validated records. It holds no state between calls, so every method
// reopens the file.
type Loader struct {
	spec KindSpec
	file *source.File
}

// NewLoader creates a loader for spec reading from opener.
func NewLoader(spec KindSpec, opener source.Opener) *Loader {
	return &Loader{spec: spec, file: source.NewFile(opener, spec.File)}
}

// Spec returns the kind the loader reads.
func (l *Loader) Spec() KindSpec { return l.spec }

// Location describes where the source file lives.
func (l *Loader) Location() string { return l.file.Location() }

// Preflight checks that the source file exists and that its header
// carries every required column. It returns false without error for an
// optional kind whose file is absent.
func (l *Loader) Preflight(ctx context.Context) (bool, error) {
	exists, err := l.file.Exists(ctx)
	if err != nil {
		return false, &SourceError{Kind: l.spec.Name, Err: err}
	}
	if !exists {
		if l.spec.Optional {
			return false, nil
		}
		return false, &ConfigError{
			Op:  "preflight " + l.spec.Name,
			Err: fmt.Errorf("source file not found: %s", l.file.Location()),
		}
	}

	header, err := l.file.Header(ctx)
	if err != nil {
		return false, &SourceError{Kind: l.spec.Name, Err: err}
	}
	if err := ValidateHeader(l.spec, header); err != nil {
		return false, err
	}
	return true, nil
}

// CountRows returns the number of data rows, malformed ones included.
func (l *Loader) CountRows(ctx context.Context) (int, error) {
	n, err := l.file.Count(ctx)
	if err != nil {
		return 0, &SourceError{Kind: l.spec.Name, Err: err}
	}
	return n, nil
}

// Rows returns the raw rows of the source file.
func (l *Loader) Rows(ctx context.Context) iter.Seq2[source.Row, error] {
	return l.file.Rows(ctx)
}

// Records yields every row that passes validation, in source order.
// Invalid rows are skipped silently; use Batches to see them.
func (l *Loader) Records(ctx context.Context) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		for row, err := range l.file.Rows(ctx) {
			if err != nil {
				yield(Record{}, &SourceError{Kind: l.spec.Name, Err: err})
				return
			}
			rec, terr := Transform(l.spec, row)
			if terr != nil {
				continue
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// Batches yields batches of size raw rows starting at batch index from.
// Batch i always covers rows [i*size, (i+1)*size) regardless of how many
// of them validate, so indices are stable across runs on the same file.
func (l *Loader) Batches(ctx context.Context, size, from int) iter.Seq2[Batch, error] {
	return func(yield func(Batch, error) bool) {
		if size < 1 {
			yield(Batch{}, fmt.Errorf("batch size must be positive, got %d", size))
			return
		}
		if from < 0 {
			from = 0
		}

		skip := from * size
		pos := 0
		cur := Batch{Kind: l.spec.Name, Index: from}

		for row, err := range l.file.Rows(ctx) {
			if err != nil {
				yield(Batch{}, &SourceError{Kind: l.spec.Name, Err: err})
				return
			}
			pos++
			if pos <= skip {
				continue
			}

			cur.Rows++
			rec, terr := Transform(l.spec, row)
			if terr != nil {
				ve, ok := terr.(ValidationError)
				if !ok {
					ve = ValidationError{Line: row.Line, Message: terr.Error()}
				}
				cur.Invalid = append(cur.Invalid, ve)
			} else {
				cur.Records = append(cur.Records, rec)
			}

			if cur.Rows == size {
				if !yield(cur, nil) {
					return
				}
				cur = Batch{Kind: l.spec.Name, Index: cur.Index + 1}
			}
		}

		if cur.Rows > 0 {
			yield(cur, nil)
		}
	}
}

// Batch returns batch index alone. It reads the file from the start.
func (l *Loader) Batch(ctx context.Context, index, size int) (Batch, error) {
	for b, err := range l.Batches(ctx, size, index) {
		return b, err
	}
	return Batch{}, fmt.Errorf("%s has no batch %d of size %d", l.spec.Name, index, size)
}

// TotalBatches returns ceil(rows/size).
func TotalBatches(rows, size int) int {
	if rows <= 0 || size <= 0 {
		return 0
	}
	return (rows + size - 1) / size
}
