package backup

import (
	"time"

	"github.com/halcyonos/halcyon/internal/models"
)

// PackageBackupInfo summarizes a successful create for the caller. It is
// not persisted by this subsystem; bulk drivers aggregate it into a report.
type PackageBackupInfo struct {
	OSVersion models.Version `json:"os_version"`
	Title     string         `json:"title"`
	Version   models.Version `json:"version"`
	Timestamp time.Time      `json:"timestamp"`
}

// BackupReport is the aggregate outcome of a bulk backup run.
type BackupReport struct {
	Server   ServerBackupReport                          `json:"server"`
	Packages map[models.PackageID]PackageBackupReport `json:"packages"`
}

// ServerBackupReport records whether the system's own config backup was
// attempted and how it ended.
type ServerBackupReport struct {
	Attempted bool    `json:"attempted"`
	Error     *string `json:"error"`
}

// PackageBackupReport records a single package's outcome within a bulk run.
type PackageBackupReport struct {
	Error *string `json:"error"`
}

// NotificationCode tags notification payloads carrying a backup report.
func (BackupReport) NotificationCode() int {
	return 1
}
