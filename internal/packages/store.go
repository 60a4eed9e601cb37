package packages

import (
	"context"
	"database/sql"
	"time"

	"github.com/halcyonos/halcyon/internal/errs"
	"github.com/halcyonos/halcyon/internal/models"
)

// Store reads and writes installed-package records. Every call acquires
// read or write intent on the fields it touches for the duration of the
// call only; no lock is held across a procedure invocation.
type Store struct {
	db *sql.DB
}

// NewStore creates an installed-package store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// SaveInstalled inserts or replaces an installed-package record.
func (s *Store) SaveInstalled(ctx context.Context, pkg *models.InstalledPackage) error {
	installedAt := pkg.InstalledAt
	if installedAt.IsZero() {
		installedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO packages (id, title, version, marketplace_url, installed_at)
		VALUES (?, ?, ?, ?, ?)
	`, pkg.ID.String(), pkg.Title, pkg.Version.String(), pkg.MarketplaceURL, installedAt)
	if err != nil {
		return errs.Wrapf(errs.KindDatabase, err, "save package %s", pkg.ID)
	}
	return nil
}

// GetInstalled returns the installed record for a package, or a not-found
// error if the package is not installed.
func (s *Store) GetInstalled(ctx context.Context, id models.PackageID) (*models.InstalledPackage, error) {
	pkg := &models.InstalledPackage{}
	var marketplaceURL sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, version, marketplace_url, installed_at
		FROM packages
		WHERE id = ?
	`, id.String()).Scan(&pkg.ID, &pkg.Title, &pkg.Version, &marketplaceURL, &pkg.InstalledAt)
	if err == sql.ErrNoRows {
		return nil, errs.New(errs.KindNotFound, "package %s is not installed", id)
	}
	if err != nil {
		return nil, errs.Wrapf(errs.KindDatabase, err, "query package %s", id)
	}

	if marketplaceURL.Valid {
		pkg.MarketplaceURL = &marketplaceURL.String
	}
	return pkg, nil
}

// MarketplaceURL reads the marketplace origin of an installed package.
func (s *Store) MarketplaceURL(ctx context.Context, id models.PackageID) (*string, error) {
	pkg, err := s.GetInstalled(ctx, id)
	if err != nil {
		return nil, err
	}
	return pkg.MarketplaceURL, nil
}

// SetMarketplaceURL writes the marketplace origin back into the installed
// record. url may be nil to clear the field.
func (s *Store) SetMarketplaceURL(ctx context.Context, id models.PackageID, url *string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE packages SET marketplace_url = ? WHERE id = ?
	`, url, id.String())
	if err != nil {
		return errs.Wrapf(errs.KindDatabase, err, "update marketplace url for %s", id)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errs.Wrap(errs.KindDatabase, err)
	}
	if affected == 0 {
		return errs.New(errs.KindNotFound, "package %s is not installed", id)
	}
	return nil
}

// SetDependency records that pkg depends on target, optionally through a
// live configuration pointer.
func (s *Store) SetDependency(ctx context.Context, pkg, target models.PackageID, livePointer bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO package_dependencies (package_id, depends_on, live_pointer)
		VALUES (?, ?, ?)
	`, pkg.String(), target.String(), livePointer)
	if err != nil {
		return errs.Wrapf(errs.KindDatabase, err, "save dependency %s -> %s", pkg, target)
	}
	return nil
}

// DependentsWithLivePointers lists the packages holding a live
// configuration pointer into target. These are the packages that must
// re-derive configuration after target's state changes.
func (s *Store) DependentsWithLivePointers(ctx context.Context, target models.PackageID) ([]models.PackageID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT package_id FROM package_dependencies
		WHERE depends_on = ? AND live_pointer = 1
		ORDER BY package_id
	`, target.String())
	if err != nil {
		return nil, errs.Wrapf(errs.KindDatabase, err, "query dependents of %s", target)
	}
	defer rows.Close()

	var dependents []models.PackageID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errs.Wrap(errs.KindDatabase, err)
		}
		dependents = append(dependents, models.PackageID(id))
	}
	return dependents, rows.Err()
}

// OSVersion reads the host system version.
func (s *Store) OSVersion(ctx context.Context) (models.Version, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT os_version FROM server_info WHERE id = 1`).Scan(&v)
	if err != nil {
		return "", errs.Wrap(errs.KindDatabase, err)
	}
	return models.Version(v), nil
}
