package routes

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"au-panel/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testServer struct {
	router  *gin.Engine
	deps    *Deps
	appsDir string
	token   string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{}
	cfg.Server.Mode = "release"
	cfg.Server.Workers = 4
	cfg.Database.Type = "sqlite"
	cfg.Database.SQLite.Path = filepath.Join(t.TempDir(), "test.db")
	cfg.Auth.TokenTTLMinutes = 5
	cfg.Auth.SessionCacheSize = 64
	cfg.Auth.BcryptCost = 4
	cfg.Ports.Rest = 23380
	cfg.Ports.WS = 23381
	cfg.Ports.Prof = 23450
	cfg.Paths.Temp = t.TempDir()
	cfg.Paths.Apps = t.TempDir()
	cfg.Paths.Audit = t.TempDir()
	cfg.DefaultUser.Username = "admin"
	cfg.DefaultUser.Email = "admin@localhost"
	cfg.DefaultUser.Password = "admin123"

	deps, err := NewDeps(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { deps.DB.Close() })

	require.NoError(t, deps.Auth.CreateDefaultUser())
	require.NoError(t, deps.AppSvc.RefreshCache())
	require.NoError(t, deps.AppSvc.SeedPorts())

	r := gin.New()
	SetupRoutes(r, deps)

	ts := &testServer{router: r, deps: deps, appsDir: cfg.Paths.Apps}
	ts.login(t, "admin", "admin123")
	return ts
}

func (ts *testServer) login(t *testing.T, user, pass string) {
	t.Helper()
	body := fmt.Sprintf(`{"userName":%q,"password":%q}`, user, pass)
	w := ts.do(t, http.MethodPost, "/api/auth/login", "application/json", []byte(body), false)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	ts.token = resp.Token
}

func (ts *testServer) do(t *testing.T, method, path, contentType string, body []byte, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if auth {
		req.Header.Set("Authorization", "Bearer "+ts.token)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) doJSON(t *testing.T, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		require.NoError(t, err)
	}
	return ts.do(t, method, path, "application/json", body, true)
}

func sampleBundle(t *testing.T, bundleName string) []byte {
	t.Helper()
	base := bundleName[:len(bundleName)-len(filepath.Ext(bundleName))]

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range map[string]string{
		base + "/" + bundleName:           "binary payload",
		base + "/config/config.json":      `{"name":"sample"}`,
		base + "/" + "extra/resource.txt": "resource",
	} {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func multipartUpload(t *testing.T, data any, fileName string, archive []byte) (string, []byte) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	meta, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("appunit_data", string(meta)))

	if archive != nil {
		part, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = part.Write(archive)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return mw.FormDataContentType(), buf.Bytes()
}

func (ts *testServer) createCompany(t *testing.T, name string) uint {
	t.Helper()
	w := ts.doJSON(t, http.MethodPost, "/api/companies", gin.H{"name": name, "enable": 1})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var company struct {
		CID uint `json:"cid"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &company))
	return company.CID
}

func (ts *testServer) createApplication(t *testing.T, cid uint, zid string) uint {
	t.Helper()
	meta := gin.H{
		"name": "Sample App", "ip": "10.0.0.5",
		"rest_port": 23390, "ws_port": 23391, "prof_port": 23460,
		"zid": zid, "desc": "test app", "enable": 1, "cid": cid,
		"appunit": gin.H{"uname": "sample", "enable": 1, "pool_size": 2, "ifname": "ISample", "path": "zappunits/", "name": "sample.zip"},
	}
	contentType, body := multipartUpload(t, meta, "sample.zip", sampleBundle(t, "sample.zip"))
	w := ts.do(t, http.MethodPost, "/api/applications", contentType, body, true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var app struct {
		AID uint `json:"aid"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &app))
	return app.AID
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/health", "", nil, false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok"`)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/applications", "", nil, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/auth/login", "application/json",
		[]byte(`{"userName":"admin","password":"wrong"}`), false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestValidateAndLogout(t *testing.T) {
	ts := newTestServer(t)

	w := ts.doJSON(t, http.MethodGet, "/api/auth/validate", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.doJSON(t, http.MethodPost, "/api/auth/logout", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.doJSON(t, http.MethodGet, "/api/auth/validate", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestApplicationLifecycle(t *testing.T) {
	ts := newTestServer(t)

	cid := ts.createCompany(t, "acme")
	aid := ts.createApplication(t, cid, "zone1")

	// The zone was scaffolded with its descriptor and the bundle installed.
	zone := filepath.Join(ts.appsDir, "acme", "zone1")
	assert.FileExists(t, filepath.Join(zone, "appconfig.json"))
	assert.FileExists(t, filepath.Join(zone, "mainconfig.json"))
	assert.FileExists(t, filepath.Join(zone, "run.sh"))
	assert.FileExists(t, filepath.Join(zone, "zappunits", "sample", "sample.zip"))

	// The app shows up in the cached listing without its key.
	w := ts.doJSON(t, http.MethodGet, "/api/applications", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"Sample App"`)
	assert.NotContains(t, w.Body.String(), `"key"`)

	w = ts.doJSON(t, http.MethodGet, fmt.Sprintf("/api/applications/%d", aid), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"acme"`)

	// The port marks moved to the new deployment.
	w = ts.doJSON(t, http.MethodGet, "/api/applications/ports", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"max_rest_port":23390`)

	// Deleting quarantines the zone under Delete/.
	w = ts.doJSON(t, http.MethodDelete, fmt.Sprintf("/api/applications/%d?cid=%d", aid, cid), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NoDirExists(t, zone)
	assert.DirExists(t, filepath.Join(ts.appsDir, "Delete", "acme", "zone1"))

	w = ts.doJSON(t, http.MethodGet, fmt.Sprintf("/api/applications/%d", aid), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestApplicationCreateRejectsBadArchive(t *testing.T) {
	ts := newTestServer(t)
	cid := ts.createCompany(t, "acme")

	meta := gin.H{"name": "Broken", "zid": "zone1", "enable": 1, "cid": cid, "appunit": gin.H{}}
	contentType, body := multipartUpload(t, meta, "sample.zip", []byte("not a zip"))
	w := ts.do(t, http.MethodPost, "/api/applications", contentType, body, true)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NoDirExists(t, filepath.Join(ts.appsDir, "acme", "zone1"))
}

func TestAppUnitLifecycle(t *testing.T) {
	ts := newTestServer(t)

	cid := ts.createCompany(t, "acme")
	ts.createApplication(t, cid, "zone1")

	listPath := fmt.Sprintf("/api/applications/appunits/%d/zone1", cid)
	w := ts.doJSON(t, http.MethodGet, listPath, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var listing struct {
		AppUnits []struct {
			ID    uint   `json:"id"`
			UName string `json:"uname"`
		} `json:"appunits"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listing))
	require.Len(t, listing.AppUnits, 1)
	assert.Equal(t, "sample", listing.AppUnits[0].UName)

	// Deploy a second unit into the same zone.
	meta := gin.H{"uname": "worker", "enable": 1, "pool_size": 1, "ifname": "IWorker", "path": "zappunits/", "name": "worker.zip"}
	contentType, body := multipartUpload(t, meta, "worker.zip", sampleBundle(t, "worker.zip"))
	w = ts.do(t, http.MethodPost, fmt.Sprintf("/api/applications/appunit/%d/zone1", cid), contentType, body, true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var unit struct {
		ID uint `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &unit))
	assert.FileExists(t, filepath.Join(ts.appsDir, "acme", "zone1", "zappunits", "worker", "worker.zip"))

	w = ts.doJSON(t, http.MethodGet, listPath, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listing))
	assert.Len(t, listing.AppUnits, 2)

	// Update without a replacement archive: pool size and enable change.
	patch := gin.H{"uname": "worker", "enable": 0, "pool_size": 8}
	contentType, body = multipartUpload(t, patch, "", nil)
	w = ts.do(t, http.MethodPut, fmt.Sprintf("/api/applications/appunit/%d/zone1/%d", cid, unit.ID), contentType, body, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"pool_size":8`)

	// Delete quarantines the unit install.
	w = ts.doJSON(t, http.MethodDelete, fmt.Sprintf("/api/applications/appunit/%d/zone1/%d", cid, unit.ID), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NoDirExists(t, filepath.Join(ts.appsDir, "acme", "zone1", "zappunits", "worker"))
	assert.DirExists(t, filepath.Join(ts.appsDir, "Delete", "acme", "zone1", "zappunits", "worker"))
}

func TestUserManagementRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	cid := ts.createCompany(t, "acme")

	payload := gin.H{
		"name": "jane", "email": "jane@acme.example", "password": "secret1",
		"enable": 1, "cid": fmt.Sprint(cid), "utid": 1,
	}
	w := ts.doJSON(t, http.MethodPost, "/api/users", payload)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "hashed_password")

	var created struct {
		UID uint `json:"uid"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	// Duplicate names are refused.
	w = ts.doJSON(t, http.MethodPost, "/api/users", payload)
	assert.Equal(t, http.StatusConflict, w.Code)

	// The new admin can log in and sees only the own company.
	admin := newSessionFor(t, ts, "jane", "secret1")
	w = admin.doJSON(t, http.MethodGet, "/api/users", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"jane"`)
	assert.NotContains(t, w.Body.String(), `"admin"`)

	// Self-deletion is refused outright.
	w = admin.doJSON(t, http.MethodDelete, fmt.Sprintf("/api/users/%d", created.UID), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// The super admin hard deletes.
	w = ts.doJSON(t, http.MethodDelete, fmt.Sprintf("/api/users/%d", created.UID), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.doJSON(t, http.MethodGet, fmt.Sprintf("/api/users/%d", created.UID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func newSessionFor(t *testing.T, ts *testServer, user, pass string) *testServer {
	t.Helper()
	clone := &testServer{router: ts.router, deps: ts.deps, appsDir: ts.appsDir}
	clone.login(t, user, pass)
	return clone
}

func TestMonitorActionUnknown(t *testing.T) {
	ts := newTestServer(t)
	cid := ts.createCompany(t, "acme")
	aid := ts.createApplication(t, cid, "zone1")

	w := ts.doJSON(t, http.MethodPost, fmt.Sprintf("/api/apps/%d/reboot", aid), gin.H{"ip": "127.0.0.1", "port": 9})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
