package packages

import (
	"context"
	"fmt"
	"log"

	"github.com/halcyonos/halcyon/internal/models"
)

// ContainerRestarter restarts a package's running container.
type ContainerRestarter interface {
	RestartContainer(ctx context.Context, pkgID models.PackageID) error
}

// Reconfigurer reconciles packages that hold live pointers into another
// package's volumes. After a restore their view of the data is stale, so
// each dependent's container is restarted.
type Reconfigurer struct {
	store     *Store
	restarter ContainerRestarter
}

// NewReconfigurer creates a reconfigurer over the installed-package store.
func NewReconfigurer(store *Store, restarter ContainerRestarter) *Reconfigurer {
	return &Reconfigurer{store: store, restarter: restarter}
}

// ReconfigureDependents restarts every installed package holding a live
// pointer into installed. The first failure aborts and is returned.
func (r *Reconfigurer) ReconfigureDependents(ctx context.Context, installed *models.InstalledPackage) error {
	dependents, err := r.store.DependentsWithLivePointers(ctx, installed.ID)
	if err != nil {
		return err
	}
	for _, dep := range dependents {
		log.Printf("[Packages] Reconfiguring %s after restore of %s", dep, installed.ID)
		if err := r.restarter.RestartContainer(ctx, dep); err != nil {
			return fmt.Errorf("reconfigure %s: %w", dep, err)
		}
	}
	return nil
}
