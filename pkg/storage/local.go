package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// LocalStore persists blobs on disk under a base directory. Download URLs are
// HMAC-signed tokens resolved by the public blob endpoint.
type LocalStore struct {
	baseDir string
	baseURL string
	signer  *URLSigner
}

// NewLocalStore ensures the base directory exists and returns a handle.
func NewLocalStore(baseDir, baseURL string, signer *URLSigner) (*LocalStore, error) {
	if baseDir == "" {
		baseDir = "./blobs"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob directory: %w", err)
	}
	return &LocalStore{
		baseDir: baseDir,
		baseURL: strings.TrimRight(baseURL, "/"),
		signer:  signer,
	}, nil
}

// Put streams the reader contents to disk under folder/name.
func (s *LocalStore) Put(ctx context.Context, folder, name string, r io.Reader) (BlobRef, error) {
	if err := ctx.Err(); err != nil {
		return BlobRef{}, err
	}

	key := path.Join(folder, fmt.Sprintf("%s_%s", randomID(), sanitizeName(name)))
	target := s.resolve(key)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return BlobRef{}, fmt.Errorf("prepare blob directory: %w", err)
	}

	var sniff [512]byte
	n, readErr := io.ReadFull(r, sniff[:])
	if readErr != nil && readErr != io.EOF && readErr != io.ErrUnexpectedEOF {
		return BlobRef{}, fmt.Errorf("read sniff: %w", readErr)
	}
	mimeType := http.DetectContentType(sniff[:n])

	file, err := os.Create(target)
	if err != nil {
		return BlobRef{}, fmt.Errorf("create blob file: %w", err)
	}
	defer file.Close() //nolint:errcheck

	written, err := io.Copy(file, io.MultiReader(bytes.NewReader(sniff[:n]), r))
	if err != nil {
		return BlobRef{}, fmt.Errorf("write blob file: %w", err)
	}

	url, err := s.SignURL(ctx, key, 0)
	if err != nil {
		url = s.baseURL + "/blobs/" + key
	}

	return BlobRef{URL: url, Key: key, MimeType: mimeType, Size: written}, nil
}

// Open returns a read-only handle for the stored blob.
func (s *LocalStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := os.Open(s.resolve(key))
	if err != nil {
		return nil, fmt.Errorf("open blob file: %w", err)
	}
	return file, nil
}

// Delete removes a stored blob if present.
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(s.resolve(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete blob file: %w", err)
	}
	return nil
}

// SignURL produces a tokenised URL served by the public blob endpoint.
func (s *LocalStore) SignURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	if s.signer == nil {
		return "", fmt.Errorf("local store has no signer configured")
	}
	token, _, err := s.signer.Generate(key, ttl)
	if err != nil {
		return "", err
	}
	return s.baseURL + "/blobs/" + token, nil
}

func (s *LocalStore) resolve(key string) string {
	cleaned := filepath.Clean("/" + filepath.FromSlash(key))
	return filepath.Join(s.baseDir, cleaned)
}

var _ BlobStore = (*LocalStore)(nil)
