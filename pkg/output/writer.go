package output

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Writer outputs JSONL records for storage command results.
//
// Implementations must be safe for concurrent use from multiple
// goroutines. Each Write* method emits a complete record as a
// single line of JSON followed by a newline.
type Writer interface {
	WriteFile(ctx context.Context, f *FileRecord) error
	WriteContainer(ctx context.Context, c *ContainerRecord) error
	WritePage(ctx context.Context, p *PageRecord) error
	WriteTransfer(ctx context.Context, t *TransferRecord) error
	WriteSignedURL(ctx context.Context, u *SignedURLRecord) error
	WriteError(ctx context.Context, err *ErrorRecord) error
	WriteSummary(ctx context.Context, sum *SummaryRecord) error

	// Close flushes any buffered output and releases resources.
	Close() error
}

// JSONLWriter writes records as newline-delimited JSON to an io.Writer.
//
// JSONLWriter is safe for concurrent use. Writes are serialized using
// a mutex to ensure atomic line writes (no interleaved output).
type JSONLWriter struct {
	w        io.Writer
	runID    string
	provider string
	mu       sync.Mutex

	// closed indicates the writer has been closed.
	closed bool
}

// NewJSONLWriter creates a new JSONL writer. runID correlates the records of
// one invocation; provider names the storage provider (e.g., "s3").
func NewJSONLWriter(w io.Writer, runID, provider string) *JSONLWriter {
	return &JSONLWriter{
		w:        w,
		runID:    runID,
		provider: provider,
	}
}

// WriteFile emits a file record.
func (jw *JSONLWriter) WriteFile(ctx context.Context, f *FileRecord) error {
	return jw.writeRecord(ctx, TypeFile, f)
}

// WriteContainer emits a container record.
func (jw *JSONLWriter) WriteContainer(ctx context.Context, c *ContainerRecord) error {
	return jw.writeRecord(ctx, TypeContainer, c)
}

// WritePage emits a listing page trailer.
func (jw *JSONLWriter) WritePage(ctx context.Context, p *PageRecord) error {
	return jw.writeRecord(ctx, TypePage, p)
}

func (jw *JSONLWriter) WriteTransfer(ctx context.Context, t *TransferRecord) error {
	return jw.writeRecord(ctx, TypeTransfer, t)
}

func (jw *JSONLWriter) WriteSignedURL(ctx context.Context, u *SignedURLRecord) error {
	return jw.writeRecord(ctx, TypeSignedURL, u)
}

// WriteError emits an error record.
func (jw *JSONLWriter) WriteError(ctx context.Context, err *ErrorRecord) error {
	return jw.writeRecord(ctx, TypeError, err)
}

// WriteSummary emits a summary record.
func (jw *JSONLWriter) WriteSummary(ctx context.Context, sum *SummaryRecord) error {
	return jw.writeRecord(ctx, TypeSummary, sum)
}

// Close marks the writer as closed.
//
// If the underlying writer implements io.Closer, it is NOT closed.
// The caller is responsible for closing the underlying writer.
func (jw *JSONLWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	jw.closed = true
	return nil
}

// writeRecord marshals data and writes a complete record line.
//
// This method holds the mutex for the entire operation to ensure
// atomic line writes. The record is written as a single line of
// JSON followed by a newline character.
func (jw *JSONLWriter) writeRecord(ctx context.Context, recordType string, data any) error {
	// Check context cancellation before acquiring lock
	if err := ctx.Err(); err != nil {
		return err
	}

	// Marshal the data payload first (outside the lock for better concurrency)
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return &WriteError{Op: "marshal_data", Err: err}
	}

	jw.mu.Lock()
	defer jw.mu.Unlock()

	// Check if writer is closed
	if jw.closed {
		return ErrWriterClosed
	}

	// Check context again after acquiring lock
	if err := ctx.Err(); err != nil {
		return err
	}

	// Create the envelope record
	record := Record{
		Type:     recordType,
		TS:       time.Now().UTC(),
		RunID:    jw.runID,
		Provider: jw.provider,
		Data:     dataBytes,
	}

	// Marshal the complete record
	recordBytes, err := json.Marshal(record)
	if err != nil {
		return &WriteError{Op: "marshal_record", Err: err}
	}

	// Write the record followed by newline.
	// We must handle short writes: io.Writer is allowed to return n < len(p)
	// with nil error, which would silently truncate JSONL lines and corrupt output.
	recordBytes = append(recordBytes, '\n')
	if err := writeAll(jw.w, recordBytes); err != nil {
		return &WriteError{Op: "write", Err: err}
	}

	return nil
}

// writeAll writes all bytes to w, handling short writes.
//
// io.Writer.Write may return n < len(p) with a nil error (short write).
// This function loops until all bytes are written or an error occurs,
// ensuring complete JSONL lines are emitted.
func writeAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			// No progress made - avoid infinite loop
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

// Compile-time check that JSONLWriter implements Writer.
var _ Writer = (*JSONLWriter)(nil)
