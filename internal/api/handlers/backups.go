package handlers

import (
	"log"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/halcyonos/halcyon/internal/backup"
	"github.com/halcyonos/halcyon/internal/errs"
	"github.com/halcyonos/halcyon/internal/manifest"
	"github.com/halcyonos/halcyon/internal/models"
	"github.com/halcyonos/halcyon/internal/notifications"
	"github.com/halcyonos/halcyon/internal/packages"
)

// BackupHandler handles backup and restore HTTP requests
type BackupHandler struct {
	orchestrator *backup.Orchestrator
	manifests    *manifest.Source
	pkgs         *packages.Store
	notifier     *notifications.Manager

	// one mutex per package id; backup and restore of the same package
	// never run concurrently
	inFlight sync.Map
}

// NewBackupHandler creates a new backup handler
func NewBackupHandler(orchestrator *backup.Orchestrator, manifests *manifest.Source, pkgs *packages.Store, notifier *notifications.Manager) *BackupHandler {
	return &BackupHandler{
		orchestrator: orchestrator,
		manifests:    manifests,
		pkgs:         pkgs,
		notifier:     notifier,
	}
}

// RegisterRoutes registers package backup routes under the API group
func (h *BackupHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("packages/:id", h.GetPackage)
	rg.POST("packages/:id/backup", h.CreateBackup)
	rg.POST("packages/:id/restore", h.RestoreBackup)
}

func (h *BackupHandler) lockFor(pkgID models.PackageID) *sync.Mutex {
	mu, _ := h.inFlight.LoadOrStore(pkgID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// resolve loads the installed record and its manifest, answering the
// request itself when either lookup fails.
func (h *BackupHandler) resolve(c *gin.Context) (*models.InstalledPackage, *manifest.Manifest, bool) {
	pkgID := models.PackageID(c.Param("id"))
	if !pkgID.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid package id"})
		return nil, nil, false
	}

	pkg, err := h.pkgs.GetInstalled(c.Request.Context(), pkgID)
	if err != nil {
		if errs.IsKind(err, errs.KindNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Package not installed"})
			return nil, nil, false
		}
		log.Printf("[API] Failed to load package %s: %v", pkgID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load package"})
		return nil, nil, false
	}

	mf, err := h.manifests.ForPackage(pkg.ID, pkg.Version)
	if err != nil {
		log.Printf("[API] Failed to load manifest for %s@%s: %v", pkg.ID, pkg.Version, err)
		c.JSON(statusForError(err), gin.H{"error": "Failed to load package manifest"})
		return nil, nil, false
	}

	return pkg, mf, true
}

// GetPackage returns the installed record for a package
// GET /api/v1/packages/:id
func (h *BackupHandler) GetPackage(c *gin.Context) {
	pkgID := models.PackageID(c.Param("id"))
	if !pkgID.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid package id"})
		return
	}

	pkg, err := h.pkgs.GetInstalled(c.Request.Context(), pkgID)
	if err != nil {
		if errs.IsKind(err, errs.KindNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Package not installed"})
			return
		}
		log.Printf("[API] Failed to load package %s: %v", pkgID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load package"})
		return
	}

	c.JSON(http.StatusOK, pkg)
}

// CreateBackup runs a backup of a single installed package
// POST /api/v1/packages/:id/backup
func (h *BackupHandler) CreateBackup(c *gin.Context) {
	pkg, mf, ok := h.resolve(c)
	if !ok {
		return
	}

	mu := h.lockFor(pkg.ID)
	if !mu.TryLock() {
		c.JSON(http.StatusConflict, gin.H{"error": "A backup or restore is already running for this package"})
		return
	}
	defer mu.Unlock()

	info, err := h.orchestrator.Create(c.Request.Context(), &mf.Backup, pkg.ID, pkg.Title, pkg.Version, mf.Volumes)
	report := backup.BackupReport{
		Server:   backup.ServerBackupReport{Attempted: false},
		Packages: map[models.PackageID]backup.PackageBackupReport{},
	}
	if err != nil {
		msg := err.Error()
		report.Packages[pkg.ID] = backup.PackageBackupReport{Error: &msg}
		if nerr := h.notifier.Notify(c.Request.Context(), &pkg.ID, notifications.LevelError,
			"Backup Failed", msg, report, nil); nerr != nil {
			log.Printf("[API] Failed to record backup failure notification: %v", nerr)
		}
		log.Printf("[API] Backup of %s failed: %v", pkg.ID, err)
		c.JSON(statusForError(err), gin.H{"error": msg})
		return
	}

	report.Packages[pkg.ID] = backup.PackageBackupReport{}
	if nerr := h.notifier.Notify(c.Request.Context(), &pkg.ID, notifications.LevelSuccess,
		"Backup Complete", "Backup of "+pkg.Title+" completed successfully", report, nil); nerr != nil {
		log.Printf("[API] Failed to record backup notification: %v", nerr)
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Backup complete",
		"backup":  info,
	})
}

// RestoreBackup restores a single package from its backup directory
// POST /api/v1/packages/:id/restore
func (h *BackupHandler) RestoreBackup(c *gin.Context) {
	pkg, mf, ok := h.resolve(c)
	if !ok {
		return
	}

	mu := h.lockFor(pkg.ID)
	if !mu.TryLock() {
		c.JSON(http.StatusConflict, gin.H{"error": "A backup or restore is already running for this package"})
		return
	}
	defer mu.Unlock()

	if err := h.orchestrator.Restore(c.Request.Context(), &mf.Backup, pkg.ID, pkg.Version, mf.Volumes); err != nil {
		msg := err.Error()
		if nerr := h.notifier.Notify(c.Request.Context(), &pkg.ID, notifications.LevelError,
			"Restore Failed", msg, nil, nil); nerr != nil {
			log.Printf("[API] Failed to record restore failure notification: %v", nerr)
		}
		log.Printf("[API] Restore of %s failed: %v", pkg.ID, err)
		c.JSON(statusForError(err), gin.H{"error": msg})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Restore complete"})
}

func statusForError(err error) int {
	switch {
	case errs.IsKind(err, errs.KindNotFound):
		return http.StatusNotFound
	case errs.IsKind(err, errs.KindValidatePackage):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
