package service

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/docuvault/docuvault-api/internal/models"
	appErrors "github.com/docuvault/docuvault-api/pkg/errors"
)

func newDownloadFixture(t *testing.T) (*DownloadService, *docFixture, *models.Document) {
	t.Helper()
	f := newDocFixture()
	doc := f.mustCreate(t, adminClaims(), "f-shared", "handbook.pdf", "version-one")
	svc := NewDownloadService(f.svc, f.repo, f.store, f.audit, nil, time.Minute, zap.NewNop())
	return svc, f, doc
}

func TestDownloadStreamsCurrentVersion(t *testing.T) {
	svc, f, doc := newDownloadFixture(t)

	reader, _, version, err := svc.Stream(context.Background(), userClaims("u2"), doc.ID, "", models.LoginRequest{})
	require.NoError(t, err)
	defer reader.Close()

	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "version-one", string(data))
	assert.Equal(t, 1, version.VersionNumber)

	var downloads int
	for _, log := range f.audit.logs {
		if log.Action == models.AuditActionDownload {
			downloads++
		}
	}
	assert.Equal(t, 1, downloads)
}

func TestDownloadSpecificVersion(t *testing.T) {
	svc, f, doc := newDownloadFixture(t)

	v2, err := f.svc.UploadVersion(context.Background(), adminClaims(), doc.ID, strings.NewReader("version-two"), models.LoginRequest{})
	require.NoError(t, err)

	versions, err := f.svc.ListVersions(context.Background(), adminClaims(), doc.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	v1 := versions[1]

	reader, _, version, err := svc.Stream(context.Background(), userClaims("u1"), doc.ID, v1.ID, models.LoginRequest{})
	require.NoError(t, err)
	defer reader.Close()
	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "version-one", string(data))
	assert.Equal(t, 1, version.VersionNumber)

	reader2, _, _, err := svc.Stream(context.Background(), userClaims("u1"), doc.ID, v2.ID, models.LoginRequest{})
	require.NoError(t, err)
	defer reader2.Close()
	data2, err := io.ReadAll(reader2)
	require.NoError(t, err)
	assert.Equal(t, "version-two", string(data2))
}

func TestDownloadRecheckedAfterRevoke(t *testing.T) {
	svc, f, doc := newDownloadFixture(t)

	_, _, _, err := svc.Stream(context.Background(), userClaims("u2"), doc.ID, "", models.LoginRequest{})
	require.NoError(t, err)

	delete(f.grants.grants, grantKey("u2", "cat-finance"))

	_, _, _, err = svc.Stream(context.Background(), userClaims("u2"), doc.ID, "", models.LoginRequest{})
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestSignedURL(t *testing.T) {
	svc, _, doc := newDownloadFixture(t)

	url, expiresAt, err := svc.SignedURL(context.Background(), userClaims("u1"), doc.ID, "", models.LoginRequest{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "signed://"))
	assert.True(t, expiresAt.After(time.Now()))
}

func TestSignedURLFallsBackToStoredURL(t *testing.T) {
	svc, f, doc := newDownloadFixture(t)
	f.store.failSign = true

	url, _, err := svc.SignedURL(context.Background(), userClaims("u1"), doc.ID, "", models.LoginRequest{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "mem://"))
}

func TestDownloadVersionFromOtherDocumentRejected(t *testing.T) {
	svc, f, doc := newDownloadFixture(t)
	other := f.mustCreate(t, adminClaims(), "f-shared", "other.pdf", "other-bytes")

	_, _, _, err := svc.Stream(context.Background(), userClaims("u1"), doc.ID, *other.CurrentVersionID, models.LoginRequest{})
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
