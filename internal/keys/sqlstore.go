package keys

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"database/sql"

	"github.com/halcyonos/halcyon/internal/errs"
	"github.com/halcyonos/halcyon/internal/models"
)

// SQLStore persists network identity keys in the network_keys table.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a key store over db.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// ForPackage returns every key scoped to pkgID, bound and unbound alike.
func (s *SQLStore) ForPackage(ctx context.Context, pkgID models.PackageID) ([]Key, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT interface_id, seed FROM network_keys WHERE package_id = ? ORDER BY interface_id
	`, pkgID.String())
	if err != nil {
		return nil, errs.Wrapf(errs.KindDatabase, err, "query keys for %s", pkgID)
	}
	defer rows.Close()

	var out []Key
	for rows.Next() {
		var iface string
		var seed []byte
		if err := rows.Scan(&iface, &seed); err != nil {
			return nil, errs.Wrap(errs.KindDatabase, err)
		}
		key, err := New(pkgID, models.InterfaceID(iface), seed)
		if err != nil {
			return nil, err
		}
		out = append(out, key)
	}
	return out, rows.Err()
}

// Ensure returns the key bound to (pkgID, iface), generating and persisting
// a fresh ed25519 seed on first use. iface may be empty for the package's
// unbound key.
func (s *SQLStore) Ensure(ctx context.Context, pkgID models.PackageID, iface models.InterfaceID) (Key, error) {
	var seed []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT seed FROM network_keys WHERE package_id = ? AND interface_id = ?
	`, pkgID.String(), string(iface)).Scan(&seed)
	if err == nil {
		return New(pkgID, iface, seed)
	}
	if err != sql.ErrNoRows {
		return Key{}, errs.Wrapf(errs.KindDatabase, err, "query key %s/%s", pkgID, iface)
	}

	seed = make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return Key{}, errs.Wrapf(errs.KindDatabase, err, "generate key seed")
	}

	// Concurrent first use races to the same row; the loser keeps the
	// winner's seed.
	if _, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO network_keys (package_id, interface_id, seed) VALUES (?, ?, ?)
	`, pkgID.String(), string(iface), seed); err != nil {
		return Key{}, errs.Wrapf(errs.KindDatabase, err, "persist key %s/%s", pkgID, iface)
	}
	if err := s.db.QueryRowContext(ctx, `
		SELECT seed FROM network_keys WHERE package_id = ? AND interface_id = ?
	`, pkgID.String(), string(iface)).Scan(&seed); err != nil {
		return Key{}, errs.Wrapf(errs.KindDatabase, err, "reload key %s/%s", pkgID, iface)
	}
	return New(pkgID, iface, seed)
}

// Restore overwrites the stored seed for (pkgID, iface) with material
// recovered from a backup envelope.
func (s *SQLStore) Restore(ctx context.Context, pkgID models.PackageID, iface models.InterfaceID, seed []byte) error {
	key, err := New(pkgID, iface, seed)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO network_keys (package_id, interface_id, seed) VALUES (?, ?, ?)
		ON CONFLICT (package_id, interface_id) DO UPDATE SET seed = excluded.seed
	`, pkgID.String(), string(iface), key.seed); err != nil {
		return errs.Wrapf(errs.KindDatabase, err, "restore key %s/%s", pkgID, iface)
	}
	return nil
}
