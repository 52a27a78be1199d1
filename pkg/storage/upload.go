package storage

import (
	"context"
	"io"
	"sync"
)

// UploadFunc performs a provider upload, reading body until EOF.
type UploadFunc func(ctx context.Context, body io.Reader) (*File, error)

// Upload is the caller side of a managed upload.
//
// Bytes written to an Upload are piped to the provider's upload routine,
// which consumes them from an internal sink the caller never sees. Close
// signals the end of the data; the terminal outcome is reported exactly once
// through Wait (and Done), after the provider has acknowledged every byte.
// If the provider fails first, pending and later writes fail with its error.
type Upload struct {
	pw   *io.PipeWriter
	done chan struct{}
	once sync.Once
	file *File
	err  error
}

var _ io.WriteCloser = (*Upload)(nil)

// StartUpload runs fn in its own goroutine and returns the Upload feeding it.
func StartUpload(ctx context.Context, fn UploadFunc) *Upload {
	pr, pw := io.Pipe()
	u := &Upload{pw: pw, done: make(chan struct{})}

	go func() {
		f, err := fn(ctx, pr)
		if err != nil {
			_ = pr.CloseWithError(err)
		} else {
			_ = pr.Close()
		}
		u.finish(f, err)
	}()

	return u
}

// FailedUpload returns an Upload that has already failed with err.
func FailedUpload(err error) *Upload {
	pr, pw := io.Pipe()
	_ = pr.CloseWithError(err)
	u := &Upload{pw: pw, done: make(chan struct{})}
	u.finish(nil, err)
	return u
}

// Write streams p to the provider.
func (u *Upload) Write(p []byte) (int, error) {
	return u.pw.Write(p)
}

// Close marks the end of the data. It does not wait for the upload to finish.
func (u *Upload) Close() error {
	return u.pw.Close()
}

// CloseWithError aborts the upload; the provider observes err on its next read.
func (u *Upload) CloseWithError(err error) error {
	return u.pw.CloseWithError(err)
}

// Done is closed once the upload has succeeded or failed.
func (u *Upload) Done() <-chan struct{} {
	return u.done
}

// Wait blocks until the upload finishes and returns its outcome: the
// uploaded file on success, or the provider error.
func (u *Upload) Wait() (*File, error) {
	<-u.done
	return u.file, u.err
}

func (u *Upload) finish(f *File, err error) {
	u.once.Do(func() {
		if err == nil {
			u.file = f
		} else {
			u.err = err
		}
		close(u.done)
	})
}
