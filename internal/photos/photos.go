// Package photos stores receipt photos attached to expenses.
package photos

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"expensync/internal/core"
)

const DefaultMaxBytes = 5 << 20

var (
	ErrUnsupportedType = errors.New("unsupported photo type")
	ErrTooLarge        = errors.New("photo too large")
	ErrInvalidRef      = errors.New("invalid photo reference")
)

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// Store persists photo bytes and hands back an opaque reference of the
// form "<scheme>:<key>".
type Store interface {
	Save(ctx context.Context, contentType string, r io.Reader) (string, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, ref string) error
}

// Extension returns the file extension for an accepted content type.
func Extension(contentType string) (string, error) {
	ext, ok := extensions[strings.ToLower(strings.TrimSpace(contentType))]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}
	return ext, nil
}

// ContentTypeFor maps a stored file extension back to its content type.
func ContentTypeFor(name string) string {
	lower := strings.ToLower(name)
	for ct, ext := range extensions {
		if strings.HasSuffix(lower, ext) {
			return ct
		}
	}
	if strings.HasSuffix(lower, ".jpeg") {
		return "image/jpeg"
	}
	return "application/octet-stream"
}

// Sniff reads at most max bytes from r, rejects oversized input and returns
// the content and its detected type. The declared type is ignored.
func Sniff(r io.Reader, max int64) ([]byte, string, error) {
	if max <= 0 {
		max = DefaultMaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, "", fmt.Errorf("read photo: %w", err)
	}
	if int64(len(data)) > max {
		return nil, "", ErrTooLarge
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty file", ErrUnsupportedType)
	}
	ct := http.DetectContentType(data)
	if _, err := Extension(ct); err != nil {
		return nil, "", err
	}
	return data, ct, nil
}

// SplitRef splits "scheme:key".
func SplitRef(ref string) (scheme, key string, err error) {
	scheme, key, ok := strings.Cut(ref, ":")
	if !ok || scheme == "" || key == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	return scheme, key, nil
}

// Router saves new photos to a primary store and resolves existing
// references by scheme, so photos written by a previous backend remain
// readable after a switch.
type Router struct {
	primary Store
	schemes map[string]Store
}

func NewRouter(primaryScheme string, primary Store) *Router {
	return &Router{primary: primary, schemes: map[string]Store{primaryScheme: primary}}
}

// Mount registers a secondary store for refs with the given scheme.
func (r *Router) Mount(scheme string, s Store) *Router {
	r.schemes[scheme] = s
	return r
}

func (r *Router) Save(ctx context.Context, contentType string, body io.Reader) (string, error) {
	return r.primary.Save(ctx, contentType, body)
}

func (r *Router) Open(ctx context.Context, ref string) (io.ReadCloser, string, error) {
	s, err := r.lookup(ref)
	if err != nil {
		return nil, "", err
	}
	return s.Open(ctx, ref)
}

func (r *Router) Delete(ctx context.Context, ref string) error {
	s, err := r.lookup(ref)
	if err != nil {
		return err
	}
	return s.Delete(ctx, ref)
}

func (r *Router) lookup(ref string) (Store, error) {
	scheme, _, err := SplitRef(ref)
	if err != nil {
		return nil, err
	}
	s, ok := r.schemes[scheme]
	if !ok {
		return nil, fmt.Errorf("%w: no store for scheme %q", core.ErrNotFound, scheme)
	}
	return s, nil
}
