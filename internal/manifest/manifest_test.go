package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/halcyonos/halcyon/internal/errs"
)

const sampleManifest = `id: acme-crm
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

func writeManifest(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "manifest.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

func TestLoadValidManifest(t *testing.T) {
	path := writeManifest(t, t.TempDir(), sampleManifest)

	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.ID != "acme-crm" || m.Title != "Acme CRM" {
		t.Errorf("unexpected identity: %q %q", m.ID, m.Title)
	}
	if m.Container == nil || m.Container.Image != "main" {
		t.Errorf("container not parsed: %+v", m.Container)
	}
	if !m.ImageIDSet()["main"] {
		t.Error("expected image set to contain main")
	}
}

func TestLoadMissingManifestIsNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "manifest.yaml"))
	if !errs.IsKind(err, errs.KindNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestLoadRejectsBadID(t *testing.T) {
	path := writeManifest(t, t.TempDir(), "id: Not_Valid\ntitle: X\nversion: 1.0.0\n")
	if _, err := Load(path); !errs.IsKind(err, errs.KindValidatePackage) {
		t.Fatalf("expected ValidatePackage, got %v", err)
	}
}

func TestSourceForPackage(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "acme-crm", "1.2.0")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeManifest(t, dir, sampleManifest)

	src := NewSource(root)
	m, err := src.ForPackage("acme-crm", "1.2.0")
	if err != nil {
		t.Fatalf("ForPackage: %v", err)
	}
	if m.ID != "acme-crm" {
		t.Errorf("unexpected id %q", m.ID)
	}

	if _, err := src.ForPackage("acme-crm", "9.9.9"); !errs.IsKind(err, errs.KindNotFound) {
		t.Fatalf("expected NotFound for missing version, got %v", err)
	}
}
