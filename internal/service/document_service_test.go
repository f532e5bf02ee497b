package service

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/docuvault/docuvault-api/internal/models"
	"github.com/docuvault/docuvault-api/pkg/config"
	appErrors "github.com/docuvault/docuvault-api/pkg/errors"
	"github.com/docuvault/docuvault-api/pkg/storage"
)

type mockDocRepo struct {
	docs     map[string]*models.Document
	versions map[string]*models.DocumentVersion
	nextID   int
}

func (m *mockDocRepo) genID(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

func (m *mockDocRepo) FindByID(ctx context.Context, id string) (*models.Document, error) {
	if d, ok := m.docs[id]; ok {
		copy := *d
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockDocRepo) ListByFolder(ctx context.Context, folderID string, filter models.DocumentFilter) ([]models.Document, int, error) {
	var out []models.Document
	for _, d := range m.docs {
		if d.FolderID == folderID {
			out = append(out, *d)
		}
	}
	return out, len(out), nil
}

func (m *mockDocRepo) CreateWithVersion(ctx context.Context, doc *models.Document, version *models.DocumentVersion) error {
	if doc.ID == "" {
		doc.ID = m.genID("doc")
	}
	if version.ID == "" {
		version.ID = m.genID("ver")
	}
	version.DocumentID = doc.ID
	version.VersionNumber = 1
	version.CreatedAt = time.Now().UTC()
	doc.CurrentVersionID = &version.ID
	doc.BlobURL = version.BlobURL

	docCopy := *doc
	verCopy := *version
	m.docs[doc.ID] = &docCopy
	m.versions[version.ID] = &verCopy
	return nil
}

func (m *mockDocRepo) AddVersion(ctx context.Context, version *models.DocumentVersion) error {
	doc, ok := m.docs[version.DocumentID]
	if !ok {
		return sql.ErrNoRows
	}
	max := 0
	for _, v := range m.versions {
		if v.DocumentID == version.DocumentID && v.VersionNumber > max {
			max = v.VersionNumber
		}
	}
	if version.ID == "" {
		version.ID = m.genID("ver")
	}
	version.VersionNumber = max + 1
	version.CreatedAt = time.Now().UTC()
	verCopy := *version
	m.versions[version.ID] = &verCopy

	doc.CurrentVersionID = &version.ID
	doc.BlobURL = version.BlobURL
	return nil
}

func (m *mockDocRepo) FindVersion(ctx context.Context, id string) (*models.DocumentVersion, error) {
	if v, ok := m.versions[id]; ok {
		copy := *v
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockDocRepo) ListVersions(ctx context.Context, documentID string) ([]models.DocumentVersion, error) {
	var out []models.DocumentVersion
	for _, v := range m.versions {
		if v.DocumentID == documentID {
			out = append(out, *v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VersionNumber > out[j].VersionNumber })
	return out, nil
}

func (m *mockDocRepo) CountVersions(ctx context.Context, documentID string) (int, error) {
	count := 0
	for _, v := range m.versions {
		if v.DocumentID == documentID {
			count++
		}
	}
	return count, nil
}

func (m *mockDocRepo) DeleteVersion(ctx context.Context, documentID, versionID string) (*models.DocumentVersion, error) {
	victim, ok := m.versions[versionID]
	if !ok || victim.DocumentID != documentID {
		return nil, sql.ErrNoRows
	}
	delete(m.versions, versionID)

	var survivor *models.DocumentVersion
	for _, v := range m.versions {
		if v.DocumentID == documentID && (survivor == nil || v.VersionNumber > survivor.VersionNumber) {
			survivor = v
		}
	}
	if survivor == nil {
		return nil, sql.ErrNoRows
	}
	doc := m.docs[documentID]
	doc.CurrentVersionID = &survivor.ID
	doc.BlobURL = survivor.BlobURL
	copy := *survivor
	return &copy, nil
}

func (m *mockDocRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.docs[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.docs, id)
	for vid, v := range m.versions {
		if v.DocumentID == id {
			delete(m.versions, vid)
		}
	}
	return nil
}

type mockFolderFinder struct {
	folders map[string]*models.Folder
}

func (m *mockFolderFinder) FindByID(ctx context.Context, id string) (*models.Folder, error) {
	if f, ok := m.folders[id]; ok {
		copy := *f
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

type memBlobStore struct {
	blobs    map[string][]byte
	mimeType string
	failSign bool
	seq      int
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{blobs: make(map[string][]byte), mimeType: "application/pdf"}
}

func (m *memBlobStore) Put(ctx context.Context, folder, name string, r io.Reader) (storage.BlobRef, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return storage.BlobRef{}, err
	}
	m.seq++
	key := fmt.Sprintf("%s/%d-%s", folder, m.seq, name)
	m.blobs[key] = data
	return storage.BlobRef{
		URL:      "mem://" + key,
		Key:      key,
		MimeType: m.mimeType,
		Size:     int64(len(data)),
	}, nil
}

func (m *memBlobStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.blobs[key]
	if !ok {
		return nil, fmt.Errorf("blob %s not found", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memBlobStore) Delete(ctx context.Context, key string) error {
	delete(m.blobs, key)
	return nil
}

func (m *memBlobStore) SignURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if m.failSign {
		return "", fmt.Errorf("signing unavailable")
	}
	return "signed://" + key, nil
}

type docFixture struct {
	svc     *DocumentService
	repo    *mockDocRepo
	folders *mockFolderFinder
	grants  *mockGrantRepo
	store   *memBlobStore
	audit   *mockAuditRepo
	janitor *mockJanitor
}

// newDocFixture builds a Finance category with one shared folder, a personal
// folder for u1 and a personal folder for u2. u1 holds full access, u2 read.
func newDocFixture() *docFixture {
	grants := &mockGrantRepo{
		categories: map[string]*models.Category{
			"cat-finance": {ID: "cat-finance", Name: "Finance"},
		},
		grants: map[string]*models.AccessGrant{
			grantKey("u1", "cat-finance"): {UserID: "u1", CategoryID: "cat-finance", Level: models.AccessFull},
			grantKey("u2", "cat-finance"): {UserID: "u2", CategoryID: "cat-finance", Level: models.AccessRead},
		},
	}
	users := &mockGrantUserRepo{users: map[string]*models.User{}}
	access := NewAccessService(grants, users, nil, validator.New(), zap.NewNop())

	folders := &mockFolderFinder{folders: map[string]*models.Folder{
		"f-shared":      {ID: "f-shared", Name: "Reports", CategoryID: "cat-finance", CreatedBy: "admin-1", IsPersonal: false},
		"f-personal-u1": {ID: "f-personal-u1", Name: "Drafts", CategoryID: "cat-finance", CreatedBy: "u1", IsPersonal: true},
		"f-personal-u2": {ID: "f-personal-u2", Name: "Scratch", CategoryID: "cat-finance", CreatedBy: "u2", IsPersonal: true},
	}}

	repo := &mockDocRepo{docs: make(map[string]*models.Document), versions: make(map[string]*models.DocumentVersion)}
	store := newMemBlobStore()
	audit := &mockAuditRepo{}
	janitor := &mockJanitor{}

	uploads := config.UploadsConfig{MaxFileSizeBytes: 1024, AllowedMIMEs: []string{"application/pdf"}}
	svc := NewDocumentService(repo, folders, access, audit, store, janitor, nil, uploads, validator.New(), zap.NewNop())

	return &docFixture{svc: svc, repo: repo, folders: folders, grants: grants, store: store, audit: audit, janitor: janitor}
}

func (f *docFixture) mustCreate(t *testing.T, claims *models.JWTClaims, folderID, name, content string) *models.Document {
	t.Helper()
	doc, err := f.svc.Create(context.Background(), claims, folderID, name, strings.NewReader(content), models.LoginRequest{})
	require.NoError(t, err)
	return doc
}

func TestDocumentCreateStartsVersionChain(t *testing.T) {
	f := newDocFixture()

	doc := f.mustCreate(t, userClaims("u1"), "f-personal-u1", "budget.pdf", "hello")
	require.NotNil(t, doc.CurrentVersionID)

	versions, err := f.svc.ListVersions(context.Background(), userClaims("u1"), doc.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, 1, versions[0].VersionNumber)
	assert.Equal(t, int64(5), versions[0].SizeBytes)
}

func TestDocumentCreateSharedFolderForbidden(t *testing.T) {
	f := newDocFixture()

	_, err := f.svc.Create(context.Background(), userClaims("u1"), "f-shared", "budget.pdf", strings.NewReader("x"), models.LoginRequest{})
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	// Admins still write to shared folders.
	doc, err := f.svc.Create(context.Background(), adminClaims(), "f-shared", "budget.pdf", strings.NewReader("x"), models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, "f-shared", doc.FolderID)
}

func TestUploadVersionIncrementsFromMax(t *testing.T) {
	f := newDocFixture()
	doc := f.mustCreate(t, userClaims("u1"), "f-personal-u1", "budget.pdf", "v1")

	v2, err := f.svc.UploadVersion(context.Background(), userClaims("u1"), doc.ID, strings.NewReader("v2"), models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, 2, v2.VersionNumber)

	v3, err := f.svc.UploadVersion(context.Background(), userClaims("u1"), doc.ID, strings.NewReader("v3"), models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, 3, v3.VersionNumber)

	stored := f.repo.docs[doc.ID]
	assert.Equal(t, v3.ID, *stored.CurrentVersionID)
	assert.Equal(t, v3.BlobURL, stored.BlobURL)
}

func TestVersionDeletionWalk(t *testing.T) {
	f := newDocFixture()
	claims := userClaims("u1")
	doc := f.mustCreate(t, claims, "f-personal-u1", "budget.pdf", "v1")

	v2, err := f.svc.UploadVersion(context.Background(), claims, doc.ID, strings.NewReader("v2"), models.LoginRequest{})
	require.NoError(t, err)
	v3, err := f.svc.UploadVersion(context.Background(), claims, doc.ID, strings.NewReader("v3"), models.LoginRequest{})
	require.NoError(t, err)

	// Deleting the current version repoints to the remaining max.
	survivor, err := f.svc.DeleteVersion(context.Background(), claims, doc.ID, v3.ID, models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, v2.ID, survivor.ID)
	assert.Equal(t, v2.ID, *f.repo.docs[doc.ID].CurrentVersionID)
	assert.Contains(t, f.janitor.keys, v3.BlobKey)

	// Deleting a non-current version leaves the pointer at the max.
	versions, err := f.svc.ListVersions(context.Background(), claims, doc.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	v1 := versions[1]
	_, err = f.svc.DeleteVersion(context.Background(), claims, doc.ID, v1.ID, models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, v2.ID, *f.repo.docs[doc.ID].CurrentVersionID)

	// The only remaining version cannot be deleted.
	_, err = f.svc.DeleteVersion(context.Background(), claims, doc.ID, v2.ID, models.LoginRequest{})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrLastVersion.Code, appErr.Code)
}

func TestDocumentDeleteRemovesAllVersions(t *testing.T) {
	f := newDocFixture()
	claims := userClaims("u1")
	doc := f.mustCreate(t, claims, "f-personal-u1", "budget.pdf", "v1")
	_, err := f.svc.UploadVersion(context.Background(), claims, doc.ID, strings.NewReader("v2"), models.LoginRequest{})
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(context.Background(), claims, doc.ID, models.LoginRequest{}))

	_, ok := f.repo.docs[doc.ID]
	assert.False(t, ok)
	assert.Len(t, f.janitor.keys, 2)
}

func TestCloneCopiesCurrentVersionOnly(t *testing.T) {
	f := newDocFixture()

	source := f.mustCreate(t, adminClaims(), "f-shared", "handbook.pdf", "v1")
	_, err := f.svc.UploadVersion(context.Background(), adminClaims(), source.ID, strings.NewReader("v2-final"), models.LoginRequest{})
	require.NoError(t, err)

	// u2 holds only read access, which is enough to clone into an owned
	// personal folder.
	clone, err := f.svc.Clone(context.Background(), userClaims("u2"), source.ID, CloneDocumentRequest{TargetFolderID: "f-personal-u2"}, models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, "f-personal-u2", clone.FolderID)
	assert.Equal(t, source.Name, clone.Name)

	versions, err := f.svc.ListVersions(context.Background(), userClaims("u2"), clone.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, 1, versions[0].VersionNumber)

	reader, err := f.store.Open(context.Background(), versions[0].BlobKey)
	require.NoError(t, err)
	defer reader.Close()
	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "v2-final", string(data))
}

func TestCloneIntoSharedFolderForbidden(t *testing.T) {
	f := newDocFixture()
	source := f.mustCreate(t, adminClaims(), "f-shared", "handbook.pdf", "v1")

	_, err := f.svc.Clone(context.Background(), userClaims("u1"), source.ID, CloneDocumentRequest{TargetFolderID: "f-shared"}, models.LoginRequest{})
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestUploadRejectsDisallowedMime(t *testing.T) {
	f := newDocFixture()
	f.store.mimeType = "application/x-msdownload"

	_, err := f.svc.Create(context.Background(), userClaims("u1"), "f-personal-u1", "tool.exe", strings.NewReader("MZ"), models.LoginRequest{})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.NotEmpty(t, f.janitor.keys)
}

func TestUploadRejectsOversizedFile(t *testing.T) {
	f := newDocFixture()

	_, err := f.svc.Create(context.Background(), userClaims("u1"), "f-personal-u1", "big.pdf", strings.NewReader(strings.Repeat("a", 2048)), models.LoginRequest{})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestReadGranteeWritesOwnPersonalFolder(t *testing.T) {
	f := newDocFixture()

	// Read access blocks shared-folder writes but not the grantee's own
	// personal folder.
	_, err := f.svc.Create(context.Background(), userClaims("u2"), "f-shared", "memo.pdf", strings.NewReader("x"), models.LoginRequest{})
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	doc := f.mustCreate(t, userClaims("u2"), "f-personal-u2", "memo.pdf", "v1")

	v2, err := f.svc.UploadVersion(context.Background(), userClaims("u2"), doc.ID, strings.NewReader("v2"), models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, 2, v2.VersionNumber)
}

func TestVersionChangesRequireDocumentCreator(t *testing.T) {
	f := newDocFixture()

	// Folder ownership is not enough once someone else created the document.
	doc := f.mustCreate(t, adminClaims(), "f-personal-u1", "handover.pdf", "v1")

	_, err := f.svc.UploadVersion(context.Background(), userClaims("u1"), doc.ID, strings.NewReader("v2"), models.LoginRequest{})
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	err = f.svc.Delete(context.Background(), userClaims("u1"), doc.ID, models.LoginRequest{})
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	v2, err := f.svc.UploadVersion(context.Background(), adminClaims(), doc.ID, strings.NewReader("v2"), models.LoginRequest{})
	require.NoError(t, err)

	_, err = f.svc.DeleteVersion(context.Background(), userClaims("u1"), doc.ID, v2.ID, models.LoginRequest{})
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	survivor, err := f.svc.DeleteVersion(context.Background(), adminClaims(), doc.ID, v2.ID, models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, survivor.VersionNumber)
}

func TestPersonalFolderHiddenFromOthers(t *testing.T) {
	f := newDocFixture()
	doc := f.mustCreate(t, userClaims("u1"), "f-personal-u1", "budget.pdf", "v1")

	_, err := f.svc.Get(context.Background(), userClaims("u2"), doc.ID)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	// Admins see everything.
	_, err = f.svc.Get(context.Background(), adminClaims(), doc.ID)
	assert.NoError(t, err)
}
