package keys

import (
	"context"
	"crypto/ed25519"
	"crypto/sha512"
	"encoding/base32"
	"strings"

	"golang.org/x/crypto/sha3"

	"github.com/halcyonos/halcyon/internal/errs"
	"github.com/halcyonos/halcyon/internal/models"
)

// Key is a package-scoped ed25519 network identity key, optionally bound to
// one of the package's declared interfaces. The 32-byte seed is the
// authoritative material; everything else is derived from it.
type Key struct {
	pkgID models.PackageID
	iface models.InterfaceID // empty when unbound
	seed  []byte
}

// Store is the key-material collaborator. It exports every network identity
// key scoped to a package.
type Store interface {
	ForPackage(ctx context.Context, pkgID models.PackageID) ([]Key, error)
}

// New builds a key from a 32-byte ed25519 seed. iface may be empty for a
// key with no bound interface.
func New(pkgID models.PackageID, iface models.InterfaceID, seed []byte) (Key, error) {
	if len(seed) != ed25519.SeedSize {
		return Key{}, errs.New(errs.KindParseDBField, "key for %s has %d-byte seed, want %d", pkgID, len(seed), ed25519.SeedSize)
	}
	k := Key{pkgID: pkgID, iface: iface}
	k.seed = append([]byte(nil), seed...)
	return k, nil
}

// Package returns the package this key is scoped to.
func (k Key) Package() models.PackageID {
	return k.pkgID
}

// Interface returns the bound interface, if any.
func (k Key) Interface() (models.InterfaceID, bool) {
	return k.iface, k.iface != ""
}

// NetworkKey returns the 32-byte seed value persisted in backup envelopes.
func (k Key) NetworkKey() [32]byte {
	var out [32]byte
	copy(out[:], k.seed)
	return out
}

// TorKey returns the 64-byte expanded secret key derived from the seed, as
// consumed by the tor daemon. Retained for envelope back-compatibility; the
// seed in NetworkKey is the source of truth.
func (k Key) TorKey() [64]byte {
	h := sha512.Sum512(k.seed)
	h[0] &= 248
	h[31] &= 63
	h[31] |= 64
	return h
}

// OnionAddress returns the v3 onion service address for this key.
func (k Key) OnionAddress() string {
	pub := ed25519.NewKeyFromSeed(k.seed).Public().(ed25519.PublicKey)

	// checksum = H(".onion checksum" || pubkey || version)[:2]
	h := sha3.New256()
	h.Write([]byte(".onion checksum"))
	h.Write(pub)
	h.Write([]byte{0x03})
	checksum := h.Sum(nil)[:2]

	raw := make([]byte, 0, 35)
	raw = append(raw, pub...)
	raw = append(raw, checksum...)
	raw = append(raw, 0x03)
	return strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw)) + ".onion"
}
