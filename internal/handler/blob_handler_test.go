package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuvault/docuvault-api/pkg/storage"
)

func newBlobFixture(t *testing.T) (*BlobHandler, *storage.URLSigner, storage.BlobRef) {
	t.Helper()
	signer := storage.NewURLSigner("test-secret", time.Minute)
	store, err := storage.NewLocalStore(t.TempDir(), "http://localhost:8080", signer)
	require.NoError(t, err)

	ref, err := store.Put(context.Background(), "cat-1/folder-1", "report.pdf", bytes.NewReader([]byte("%PDF-1.4 test")))
	require.NoError(t, err)

	return NewBlobHandler(store, signer, nil), signer, ref
}

func serveToken(h *BlobHandler, token string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/blobs/"+token, nil)
	c.Request = req
	c.Params = gin.Params{{Key: "token", Value: token}}
	h.Serve(c)
	return w
}

func TestBlobHandlerServesSignedToken(t *testing.T) {
	h, signer, ref := newBlobFixture(t)

	token, _, err := signer.Generate(ref.Key, time.Minute)
	require.NoError(t, err)

	w := serveToken(h, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "%PDF-1.4 test", w.Body.String())
}

func TestBlobHandlerRejectsTamperedToken(t *testing.T) {
	h, signer, ref := newBlobFixture(t)

	token, _, err := signer.Generate(ref.Key, time.Minute)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	parts[2] = strings.Repeat("0", len(parts[2]))

	w := serveToken(h, strings.Join(parts, "."))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBlobHandlerRejectsExpiredToken(t *testing.T) {
	h, signer, ref := newBlobFixture(t)

	token, _, err := signer.Generate(ref.Key, -time.Minute)
	require.NoError(t, err)

	w := serveToken(h, token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
