package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/halcyonos/halcyon/internal/backup"
	"github.com/halcyonos/halcyon/internal/config"
	"github.com/halcyonos/halcyon/internal/database"
	"github.com/halcyonos/halcyon/internal/keys"
	"github.com/halcyonos/halcyon/internal/manifest"
	"github.com/halcyonos/halcyon/internal/models"
	"github.com/halcyonos/halcyon/internal/notifications"
	"github.com/halcyonos/halcyon/internal/packages"
	"github.com/halcyonos/halcyon/internal/procedure"
	"github.com/halcyonos/halcyon/internal/volume"
)

type stubRunner struct {
	calls []procedure.Name
}

func (r *stubRunner) Execute(_ context.Context, name procedure.Name, _ *procedure.PackageProcedure, _ models.PackageID, _ models.Version, _ volume.Volumes) error {
	r.calls = append(r.calls, name)
	return nil
}

type stubRestarter struct{}

func (stubRestarter) RestartContainer(context.Context, models.PackageID) error { return nil }

const testManifest = `id: acme-crm
title: Acme CRM
version: 1.2.0
container:
  image: main
images:
  - main
volumes:
  main:
    type: data
    path: /srv/acme-crm/main
backup:
  create:
    kind: docker
    image: main
    entrypoint: /usr/local/bin/backup.sh
    mounts: [main, BACKUP]
  restore:
    kind: docker
    image: main
    entrypoint: /usr/local/bin/restore.sh
    mounts: [main, BACKUP]
`

func setupServer(t *testing.T) (*gin.Engine, string) {
	t.Helper()
	root := t.TempDir()

	db, err := database.NewDB(filepath.Join(root, "halcyon.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	archiveRoot := filepath.Join(root, "archive")
	backupRoot := filepath.Join(root, "backups")
	pkgDir := filepath.Join(archiveRoot, "acme-crm", "1.2.0")
	if err := os.MkdirAll(pkgDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(pkgDir, "manifest.yaml"), []byte(testManifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(pkgDir, "acme-crm.s9pk"), []byte("s9pk-bytes"), 0o644); err != nil {
		t.Fatalf("write archive: %v", err)
	}

	pkgStore := packages.NewStore(db.DB)
	ctx := context.Background()
	url := "https://marketplace.example.com/"
	if err := pkgStore.SaveInstalled(ctx, &models.InstalledPackage{
		ID: "acme-crm", Title: "Acme CRM", Version: "1.2.0", MarketplaceURL: &url,
	}); err != nil {
		t.Fatalf("SaveInstalled: %v", err)
	}

	keyStore := keys.NewSQLStore(db.DB)
	if _, err := keyStore.Ensure(ctx, "acme-crm", "main"); err != nil {
		t.Fatalf("Ensure key: %v", err)
	}

	notifier := notifications.NewManager(db.DB, notifications.NewDebounceCache())
	reconf := packages.NewReconfigurer(pkgStore, stubRestarter{})
	orchestrator := backup.NewOrchestrator(backupRoot, archiveRoot, "0.1.0", &stubRunner{}, keyStore, pkgStore, reconf)

	cfg := &config.Config{}
	cfg.Logging.Level = "info"
	router := SetupRouter(cfg, orchestrator, manifest.NewSource(archiveRoot), pkgStore, notifier)
	return router, backupRoot
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := setupServer(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestGetPackage(t *testing.T) {
	router, _ := setupServer(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/packages/acme-crm", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "Acme CRM") {
		t.Errorf("body missing title: %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/packages/missing-app", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing package status = %d", w.Code)
	}
}

func TestBackupEndpointProducesArtifactsAndNotification(t *testing.T) {
	router, backupRoot := setupServer(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/packages/acme-crm/backup", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	if _, err := os.Stat(filepath.Join(backupRoot, "acme-crm", "metadata.cbor")); err != nil {
		t.Errorf("metadata envelope not written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(backupRoot, "acme-crm", "acme-crm.s9pk")); err != nil {
		t.Errorf("archive copy not written: %v", err)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var listed struct {
		Notifications []notifications.Notification `json:"notifications"`
		Count         int                          `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if listed.Count != 1 {
		t.Fatalf("expected 1 notification, got %d", listed.Count)
	}
	n := listed.Notifications[0]
	if n.Level != notifications.LevelSuccess || n.Code != 1 {
		t.Errorf("unexpected notification: level=%s code=%d", n.Level, n.Code)
	}
}

func TestRestoreEndpoint(t *testing.T) {
	router, _ := setupServer(t)

	// Restore requires an existing envelope, so back up first.
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/packages/acme-crm/backup", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("backup status = %d: %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/packages/acme-crm/restore", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("restore status = %d: %s", w.Code, w.Body.String())
	}
}

func TestRestoreWithoutBackupFails(t *testing.T) {
	router, _ := setupServer(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/packages/acme-crm/restore", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
}

func TestNotificationCRUD(t *testing.T) {
	router, _ := setupServer(t)

	body := `{"level":"info","title":"Hello","message":"World","package-id":"acme-crm"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/notifications/unread-count", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"unread":1`) {
		t.Fatalf("unread = %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/notifications/1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/notifications", strings.NewReader(`{"level":"nope","title":"x","message":"y"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad level status = %d", w.Code)
	}
}
