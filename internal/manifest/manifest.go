package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/halcyonos/halcyon/internal/backup"
	"github.com/halcyonos/halcyon/internal/errs"
	"github.com/halcyonos/halcyon/internal/models"
	"github.com/halcyonos/halcyon/internal/volume"
)

// Container describes the package's long-running container, when it has one.
type Container struct {
	Image models.ImageID `yaml:"image" json:"image"`
}

// Manifest is the subset of a package manifest the backup subsystem needs:
// identity, declared volumes and images, and the author-supplied backup
// actions. Extracted next to the installed archive at install time.
type Manifest struct {
	ID        models.PackageID     `yaml:"id" json:"id"`
	Title     string               `yaml:"title" json:"title"`
	Version   models.Version       `yaml:"version" json:"version"`
	Container *Container           `yaml:"container" json:"container"`
	Images    []models.ImageID     `yaml:"images" json:"images"`
	Volumes   volume.Volumes       `yaml:"volumes" json:"volumes"`
	Backup    backup.BackupActions `yaml:"backup" json:"backup"`
}

// ImageIDSet returns the declared image ids as a set.
func (m *Manifest) ImageIDSet() map[models.ImageID]bool {
	set := make(map[models.ImageID]bool, len(m.Images))
	for _, id := range m.Images {
		set[id] = true
	}
	return set
}

// Validate checks the manifest's identity fields and validates both backup
// procedures against the declared container, volumes and images.
func (m *Manifest) Validate() error {
	if !m.ID.Valid() {
		return errs.New(errs.KindValidatePackage, "invalid package id %q", m.ID)
	}
	if !m.Version.Valid() {
		return errs.New(errs.KindValidatePackage, "invalid version %q for %s", m.Version, m.ID)
	}
	return m.Backup.Validate(m.Container != nil, m.Volumes, m.ImageIDSet())
}

// Load reads and validates a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.Wrapf(errs.KindNotFound, err, "manifest %s", path)
		}
		return nil, errs.Wrapf(errs.KindFilesystem, err, "read manifest %s", path)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errs.Wrapf(errs.KindSerialization, err, "parse manifest %s", path)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Source resolves manifests for installed package versions from the
// archive tree.
type Source struct {
	archiveRoot string
}

// NewSource creates a manifest source over the installed archive tree.
func NewSource(archiveRoot string) *Source {
	return &Source{archiveRoot: archiveRoot}
}

// ForPackage loads the manifest stored alongside a package's installed
// archive.
func (s *Source) ForPackage(pkgID models.PackageID, version models.Version) (*Manifest, error) {
	path := filepath.Join(s.archiveRoot, string(pkgID), version.String(), "manifest.yaml")
	m, err := Load(path)
	if err != nil {
		return nil, err
	}
	if m.ID != pkgID {
		return nil, errs.New(errs.KindValidatePackage, "manifest id %q does not match package %q", m.ID, pkgID)
	}
	if m.Version != version {
		return nil, fmt.Errorf("manifest version %s does not match installed %s: %w",
			m.Version, version, errs.New(errs.KindValidatePackage, "version mismatch for %s", pkgID))
	}
	return m, nil
}
