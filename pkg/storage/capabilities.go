package storage

import "context"

// Optional client capability interfaces.
//
// These interfaces are used for feature detection (type assertions). The core
// Client interface remains intentionally small.

// URLSigner can mint time-limited download URLs.
//
// Implementations return ErrSignedURLDisabled unless signed URLs were enabled
// in the client options; the URL lifetime is the configured cache max age.
type URLSigner interface {
	SignedURL(ctx context.Context, container ContainerRef, file FileRef) (string, error)
}
