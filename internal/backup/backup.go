package backup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/halcyonos/halcyon/internal/atomicfile"
	"github.com/halcyonos/halcyon/internal/errs"
	"github.com/halcyonos/halcyon/internal/keys"
	"github.com/halcyonos/halcyon/internal/models"
	"github.com/halcyonos/halcyon/internal/procedure"
	"github.com/halcyonos/halcyon/internal/volume"
)

// BackupActions is the pair of procedures a package author supplies for
// backing up and restoring the package's own data. Owned by the manifest,
// immutable after installation.
type BackupActions struct {
	Create  procedure.PackageProcedure `json:"create" yaml:"create"`
	Restore procedure.PackageProcedure `json:"restore" yaml:"restore"`
}

// Validate checks both procedures against the package's declared
// container, volumes and image ids. Neither may run before this passes.
func (a *BackupActions) Validate(hasContainer bool, volumes volume.Volumes, imageIDs map[models.ImageID]bool) error {
	if err := a.Create.Validate(hasContainer, volumes, imageIDs); err != nil {
		return fmt.Errorf("backup create: %w", err)
	}
	if err := a.Restore.Validate(hasContainer, volumes, imageIDs); err != nil {
		return fmt.Errorf("backup restore: %w", err)
	}
	return nil
}

// PackageStore is the installed-package record contract the orchestrator
// consumes: marketplace origin read during create, written during restore,
// full record read after restore.
type PackageStore interface {
	GetInstalled(ctx context.Context, id models.PackageID) (*models.InstalledPackage, error)
	MarketplaceURL(ctx context.Context, id models.PackageID) (*string, error)
	SetMarketplaceURL(ctx context.Context, id models.PackageID, url *string) error
}

// DependencyReconfigurer re-derives the configuration of every package
// holding a live pointer into a just-restored package.
type DependencyReconfigurer interface {
	ReconfigureDependents(ctx context.Context, installed *models.InstalledPackage) error
}

// Orchestrator drives per-package backup create and restore. Callers must
// serialize create/restore calls per package id; the orchestrator does not
// lock the backup directory itself.
type Orchestrator struct {
	backupRoot  string
	archiveRoot string
	osVersion   models.Version
	runner      procedure.Runner
	keyStore    keys.Store
	pkgs        PackageStore
	reconf      DependencyReconfigurer
}

// NewOrchestrator creates a backup orchestrator. backupRoot is the mounted
// backup volume; archiveRoot holds the installed package archives.
func NewOrchestrator(backupRoot, archiveRoot string, osVersion models.Version, runner procedure.Runner, keyStore keys.Store, pkgs PackageStore, reconf DependencyReconfigurer) *Orchestrator {
	return &Orchestrator{
		backupRoot:  backupRoot,
		archiveRoot: archiveRoot,
		osVersion:   osVersion,
		runner:      runner,
		keyStore:    keyStore,
		pkgs:        pkgs,
		reconf:      reconf,
	}
}

// BackupDir returns the backup directory for a package.
func (o *Orchestrator) BackupDir(pkgID models.PackageID) string {
	return volume.BackupDir(o.backupRoot, pkgID)
}

// archivePath is the installed archive's location for a package version.
func (o *Orchestrator) archivePath(pkgID models.PackageID, version models.Version) string {
	return filepath.Join(o.archiveRoot, string(pkgID), version.String(), fmt.Sprintf("%s.s9pk", pkgID))
}

// Create backs up a package: runs the package's own create procedure with
// the backup directory mounted writable, captures its network identity
// keys and marketplace origin, and commits the archive copy and metadata
// envelope atomically. Any failure aborts the whole operation; the durable
// writer guarantees no valid-looking partial artifact is left behind.
func (o *Orchestrator) Create(ctx context.Context, actions *BackupActions, pkgID models.PackageID, pkgTitle string, pkgVersion models.Version, volumes volume.Volumes) (*PackageBackupInfo, error) {
	log.Printf("[Backup] Creating backup for %s@%s", pkgID, pkgVersion)

	backupDir := o.BackupDir(pkgID)
	if err := os.MkdirAll(backupDir, 0755); err != nil {
		return nil, errs.Wrapf(errs.KindFilesystem, err, "create backup dir %s", backupDir)
	}
	effective := volumes.ToReadOnly().WithBackup(backupDir, false)

	if err := o.runner.Execute(ctx, procedure.NameCreateBackup, &actions.Create, pkgID, pkgVersion, effective); err != nil {
		var procErr *procedure.Error
		if errors.As(err, &procErr) {
			return nil, errs.New(errs.KindBackup, "%s", procErr.Message)
		}
		return nil, err
	}
	// The envelope records the instant the create procedure succeeded,
	// not the instant metadata hits disk.
	timestamp := time.Now().UTC()

	exported, err := o.keyStore.ForPackage(ctx, pkgID)
	if err != nil {
		return nil, err
	}
	networkKeys := make(map[models.InterfaceID][]byte)
	torKeys := make(map[models.InterfaceID][]byte)
	for _, k := range exported {
		iface, ok := k.Interface()
		if !ok {
			// Keys with no bound interface are not part of the
			// per-interface identity snapshot.
			continue
		}
		nk := k.NetworkKey()
		tk := k.TorKey()
		networkKeys[iface] = nk[:]
		torKeys[iface] = tk[:]
	}

	marketplaceURL, err := o.pkgs.MarketplaceURL(ctx, pkgID)
	if err != nil {
		return nil, err
	}

	srcPath := o.archivePath(pkgID, pkgVersion)
	src, err := os.Open(srcPath)
	if err != nil {
		return nil, errs.Wrapf(errs.KindFilesystem, err, "open archive %s", srcPath)
	}
	defer src.Close()

	archiveDst := filepath.Join(backupDir, fmt.Sprintf("%s.s9pk", pkgID))
	if _, err := atomicfile.CopyFrom(archiveDst, src); err != nil {
		return nil, errs.Wrapf(errs.KindFilesystem, err, "cp %s -> %s", srcPath, archiveDst)
	}

	encoded, err := EncodeMetadata(&BackupMetadata{
		Timestamp:      timestamp,
		NetworkKeys:    networkKeys,
		TorKeys:        torKeys,
		MarketplaceURL: marketplaceURL,
	})
	if err != nil {
		return nil, err
	}
	if err := atomicfile.Commit(filepath.Join(backupDir, MetadataFilename), encoded); err != nil {
		return nil, err
	}

	log.Printf("[Backup] Backup for %s@%s complete", pkgID, pkgVersion)
	return &PackageBackupInfo{
		OSVersion: o.osVersion,
		Title:     pkgTitle,
		Version:   pkgVersion,
		Timestamp: timestamp,
	}, nil
}

// Restore replays a package's backup: runs the package's own restore
// procedure with the backup directory mounted read-only, then re-applies
// the envelope's marketplace origin and triggers dependent
// reconfiguration exactly once. A reconfiguration failure is surfaced but
// the package's own restored data is not rolled back.
func (o *Orchestrator) Restore(ctx context.Context, actions *BackupActions, pkgID models.PackageID, pkgVersion models.Version, volumes volume.Volumes) error {
	log.Printf("[Backup] Restoring %s@%s", pkgID, pkgVersion)

	effective := volumes.Clone().WithBackup(o.BackupDir(pkgID), true)

	if err := o.runner.Execute(ctx, procedure.NameRestoreBackup, &actions.Restore, pkgID, pkgVersion, effective); err != nil {
		var procErr *procedure.Error
		if errors.As(err, &procErr) {
			return errs.New(errs.KindRestore, "%s", procErr.Message)
		}
		return err
	}

	metadataPath := filepath.Join(o.BackupDir(pkgID), MetadataFilename)
	raw, err := os.ReadFile(metadataPath)
	if err != nil {
		return errs.Wrapf(errs.KindFilesystem, err, "read %s", metadataPath)
	}
	metadata, err := DecodeMetadata(raw)
	if err != nil {
		return err
	}

	if err := o.pkgs.SetMarketplaceURL(ctx, pkgID, metadata.MarketplaceURL); err != nil {
		return err
	}

	installed, err := o.pkgs.GetInstalled(ctx, pkgID)
	if err != nil {
		return err
	}
	if err := o.reconf.ReconfigureDependents(ctx, installed); err != nil {
		// Partial restore: the package's data is restored but dependents
		// may be unreconciled. Surfaced, never swallowed.
		return fmt.Errorf("reconfigure dependents of %s: %w", pkgID, err)
	}

	log.Printf("[Backup] Restore of %s@%s complete", pkgID, pkgVersion)
	return nil
}
