package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/docvault/docvault/internal/config"
	"github.com/docvault/docvault/internal/db/models"
	"github.com/docvault/docvault/internal/storage"
	"github.com/docvault/docvault/internal/web/handler/accesslevel"
	"github.com/docvault/docvault/internal/web/handler/document"
	"github.com/docvault/docvault/internal/web/handler/group"
	"github.com/docvault/docvault/internal/web/handler/user"
)

type testApp struct {
	app *fiber.App
	db  *gorm.DB
}

func setupApp(t *testing.T) *testApp {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err, "failed to create test database")

	err = db.AutoMigrate(
		&models.User{},
		&models.Group{},
		&models.AccessLevel{},
		&models.UserGroup{},
		&models.GroupAccessLevel{},
		&models.Folder{},
		&models.File{},
		&models.FileAccessLevel{},
		&models.UserAccessFile{},
	)
	require.NoError(t, err, "failed to migrate test database")

	// user 1 is the admin, user 2 a regular account
	require.NoError(t, db.Create(&models.User{
		Active: true, Username: "root", Email: "root@example.com", Role: models.RoleAdmin,
	}).Error)
	require.NoError(t, db.Create(&models.User{
		Active: true, Username: "alice", Email: "alice@example.com", Role: models.RoleUser,
	}).Error)

	base := t.TempDir()
	store, err := storage.New(config.Storage{
		UploadDir:     filepath.Join(base, "uploads"),
		TempDir:       filepath.Join(base, "tmp"),
		MaxUploadSize: 1 << 20,
	})
	require.NoError(t, err, "failed to create store")

	cfg := &config.Config{Title: "DocVault Test"}

	app := fiber.New()
	app.Use(IdentityMiddleware(db))

	require.NoError(t, group.Handler.Init(app, cfg, db))
	require.NoError(t, accesslevel.Handler.Init(app, cfg, db))
	require.NoError(t, user.Handler.Init(app, cfg, db))
	require.NoError(t, document.Handler.Init(app, cfg, db, store))

	return &testApp{app: app, db: db}
}

// do runs a JSON request as the given user (0 means anonymous).
func (ta *testApp) do(t *testing.T, method, path string, asUser uint64, body interface{}) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}

	if asUser != 0 {
		req.Header.Set(HeaderUserID, fmt.Sprint(asUser))
	}

	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)

	return resp
}

func decode(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()

	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestGroupRoutesRequireIdentity(t *testing.T) {
	ta := setupApp(t)

	resp := ta.do(t, http.MethodGet, "/api/groups", 0, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGroupRoutesRequireAdmin(t *testing.T) {
	ta := setupApp(t)

	resp := ta.do(t, http.MethodGet, "/api/groups", 2, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestGroupMembershipFlow(t *testing.T) {
	ta := setupApp(t)

	// a shared document behind the "internal" level
	require.NoError(t, ta.db.Create(&models.AccessLevel{Name: "internal"}).Error)
	require.NoError(t, ta.db.Create(&models.File{
		OriginalName: "handbook.pdf", UploadedByUserID: 1, Status: models.StatusProcessed,
	}).Error)
	require.NoError(t, ta.db.Create(&models.FileAccessLevel{FileID: 1, AccessLevelID: 1}).Error)

	resp := ta.do(t, http.MethodPost, "/api/groups", 1, fiber.Map{"name": "staff"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var g models.Group
	decode(t, resp, &g)

	resp = ta.do(t, http.MethodPut, fmt.Sprintf("/api/groups/%d/access-levels", g.ID), 1,
		fiber.Map{"access_level_ids": []uint{1}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ta.do(t, http.MethodPut, fmt.Sprintf("/api/groups/%d/members", g.ID), 1,
		fiber.Map{"user_ids": []uint64{2}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rec struct {
		Added    int `json:"added"`
		Removed  int `json:"removed"`
		Attempts int `json:"attempts"`
	}
	decode(t, resp, &rec)
	assert.Equal(t, 1, rec.Added)
	assert.Equal(t, 1, rec.Attempts)

	// alice's cache now contains the shared document
	var cached int64
	require.NoError(t, ta.db.Model(&models.UserAccessFile{}).Where("user_id = ?", 2).Count(&cached).Error)
	assert.Equal(t, int64(1), cached)

	// and she can see it through search
	resp = ta.do(t, http.MethodGet, "/api/documents?name=handbook", 2, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var page struct {
		Total int64 `json:"total"`
	}
	decode(t, resp, &page)
	assert.Equal(t, int64(1), page.Total)

	// removing everyone empties the membership and her cache
	resp = ta.do(t, http.MethodPut, fmt.Sprintf("/api/groups/%d/members", g.ID), 1,
		fiber.Map{"user_ids": []uint64{}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	decode(t, resp, &rec)
	assert.Equal(t, 1, rec.Removed)

	require.NoError(t, ta.db.Model(&models.UserAccessFile{}).Where("user_id = ?", 2).Count(&cached).Error)
	assert.Zero(t, cached)
}

func TestDocumentHiddenFromStrangers(t *testing.T) {
	ta := setupApp(t)

	require.NoError(t, ta.db.Create(&models.File{
		OriginalName: "secret.pdf", UploadedByUserID: 1, Status: models.StatusProcessed,
	}).Error)

	// the owner sees it
	resp := ta.do(t, http.MethodGet, "/api/documents/1", 1, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// a stranger gets 404, not 403, so existence is not leaked
	resp = ta.do(t, http.MethodGet, "/api/documents/1", 2, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestInvalidIDParam(t *testing.T) {
	ta := setupApp(t)

	resp := ta.do(t, http.MethodGet, "/api/groups/banana", 1, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUserCRUDAndDuplicate(t *testing.T) {
	ta := setupApp(t)

	resp := ta.do(t, http.MethodPost, "/api/users", 1, fiber.Map{
		"username": "bob", "email": "bob@example.com", "password": "hunter2hunter2",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created models.User
	decode(t, resp, &created)
	assert.Empty(t, created.Password, "password hash must never be serialized")

	resp = ta.do(t, http.MethodPost, "/api/users", 1, fiber.Map{
		"username": "bob", "email": "bob2@example.com", "password": "hunter2hunter2",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestInactiveUserIsAnonymous(t *testing.T) {
	ta := setupApp(t)

	require.NoError(t, ta.db.Model(&models.User{}).Where("id = ?", 2).Update("active", false).Error)

	resp := ta.do(t, http.MethodGet, "/api/access-levels", 2, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestFolderVisibilityThroughAPI(t *testing.T) {
	ta := setupApp(t)

	resp := ta.do(t, http.MethodPost, "/api/folders", 2, fiber.Map{"name": "mine"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var f models.Folder
	decode(t, resp, &f)
	assert.Equal(t, fmt.Sprintf("/%d/", f.ID), f.Path)

	// the creator sees it, the admin sees it, another user would not
	resp = ta.do(t, http.MethodGet, "/api/folders", 2, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var folders []models.Folder
	decode(t, resp, &folders)
	assert.Len(t, folders, 1)

	resp = ta.do(t, http.MethodGet, "/api/folders", 1, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &folders)
	assert.Len(t, folders, 1)
}

// seedSharedGroup builds a group granted the "internal" level with user 2
// as its member, behind one shared document. The membership update also
// populates user 2's access cache.
func seedSharedGroup(t *testing.T, ta *testApp) models.Group {
	t.Helper()

	require.NoError(t, ta.db.Create(&models.AccessLevel{Name: "internal"}).Error)
	require.NoError(t, ta.db.Create(&models.File{
		OriginalName: "handbook.pdf", UploadedByUserID: 1, Status: models.StatusProcessed,
	}).Error)
	require.NoError(t, ta.db.Create(&models.FileAccessLevel{FileID: 1, AccessLevelID: 1}).Error)

	resp := ta.do(t, http.MethodPost, "/api/groups", 1, fiber.Map{"name": "staff"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var g models.Group
	decode(t, resp, &g)

	resp = ta.do(t, http.MethodPut, fmt.Sprintf("/api/groups/%d/access-levels", g.ID), 1,
		fiber.Map{"access_level_ids": []uint{1}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ta.do(t, http.MethodPut, fmt.Sprintf("/api/groups/%d/members", g.ID), 1,
		fiber.Map{"user_ids": []uint64{2}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	return g
}

func cachedCount(t *testing.T, ta *testApp, userID uint64) int64 {
	t.Helper()

	var n int64
	require.NoError(t, ta.db.Model(&models.UserAccessFile{}).Where("user_id = ?", userID).Count(&n).Error)

	return n
}

func TestCachedDocumentListing(t *testing.T) {
	ta := setupApp(t)
	seedSharedGroup(t, ta)

	resp := ta.do(t, http.MethodGet, "/api/documents/cached", 2, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var page struct {
		Total int64         `json:"total"`
		Items []models.File `json:"items"`
	}
	decode(t, resp, &page)
	assert.Equal(t, int64(1), page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "handbook.pdf", page.Items[0].OriginalName)
}

func TestGroupDeleteRefreshesMemberCaches(t *testing.T) {
	ta := setupApp(t)
	g := seedSharedGroup(t, ta)
	require.Equal(t, int64(1), cachedCount(t, ta, 2))

	resp := ta.do(t, http.MethodDelete, fmt.Sprintf("/api/groups/%d", g.ID), 1, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// alice lost the group's grants, so her cache must not keep the row
	assert.Zero(t, cachedCount(t, ta, 2))
}

func TestAccessLevelDeleteRefreshesCaches(t *testing.T) {
	ta := setupApp(t)
	seedSharedGroup(t, ta)
	require.Equal(t, int64(1), cachedCount(t, ta, 2))

	resp := ta.do(t, http.MethodDelete, "/api/access-levels/1", 1, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	assert.Zero(t, cachedCount(t, ta, 2))
}

func TestGroupMembersUpdateToleratesStaleIDs(t *testing.T) {
	ta := setupApp(t)
	g := seedSharedGroup(t, ta)

	// replacing the membership with a set containing a long-gone user
	// must still succeed and refresh the surviving members
	require.NoError(t, ta.db.Where("user_id = ?", 2).Delete(&models.UserAccessFile{}).Error)

	resp := ta.do(t, http.MethodPut, fmt.Sprintf("/api/groups/%d/members", g.ID), 1,
		fiber.Map{"user_ids": []uint64{2, 9999}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, int64(1), cachedCount(t, ta, 2))
}
