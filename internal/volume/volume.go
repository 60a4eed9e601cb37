package volume

import (
	"path/filepath"

	"github.com/halcyonos/halcyon/internal/models"
)

// ID names a volume within a package's declared volume set.
type ID string

// Backup is the reserved volume id bound to a package's backup directory
// for the duration of a create or restore procedure.
const Backup ID = "BACKUP"

// Type discriminates how a volume is provided to the sandbox.
type Type string

const (
	// TypeData is a persistent data directory owned by the package.
	TypeData Type = "data"
	// TypePointer references another package's volume.
	TypePointer Type = "pointer"
	// TypeBackup is the backup directory mount injected by the orchestrator.
	TypeBackup Type = "backup"
)

// Volume describes a single mount handed to the sandbox runtime.
type Volume struct {
	Type     Type   `json:"type" yaml:"type"`
	Path     string `json:"path,omitempty" yaml:"path,omitempty"`
	ReadOnly bool   `json:"readonly" yaml:"readonly"`

	// Pointer fields, set when Type is TypePointer.
	PackageID models.PackageID `json:"package_id,omitempty" yaml:"package-id,omitempty"`
	VolumeID  ID               `json:"volume_id,omitempty" yaml:"volume-id,omitempty"`
}

// Volumes is a package's effective volume set keyed by volume id.
type Volumes map[ID]Volume

// Clone returns an independent copy of the set.
func (v Volumes) Clone() Volumes {
	out := make(Volumes, len(v))
	for id, vol := range v {
		out[id] = vol
	}
	return out
}

// ToReadOnly returns a copy with every volume marked read-only.
func (v Volumes) ToReadOnly() Volumes {
	out := make(Volumes, len(v))
	for id, vol := range v {
		vol.ReadOnly = true
		out[id] = vol
	}
	return out
}

// WithBackup returns a copy with the backup volume bound to dir.
func (v Volumes) WithBackup(dir string, readonly bool) Volumes {
	out := v.Clone()
	out[Backup] = Volume{Type: TypeBackup, Path: dir, ReadOnly: readonly}
	return out
}

// BackupDir returns the backup directory for a package under root.
func BackupDir(root string, pkgID models.PackageID) string {
	return filepath.Join(root, string(pkgID))
}
