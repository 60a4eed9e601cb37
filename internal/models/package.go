package models

import (
	"fmt"
	"regexp"
	"time"

	"golang.org/x/mod/semver"
)

// PackageID uniquely identifies an installed package. Assigned at
// install time and immutable afterwards.
type PackageID string

var packageIDPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// Valid reports whether the id is a well-formed package identifier.
func (p PackageID) Valid() bool {
	return packageIDPattern.MatchString(string(p))
}

func (p PackageID) String() string {
	return string(p)
}

// InterfaceID identifies a network interface declared by a package.
type InterfaceID string

func (i InterfaceID) String() string {
	return string(i)
}

// ImageID identifies a container image declared by a package manifest.
type ImageID string

// Version is a semantic version of a package or of the host system.
type Version string

func (v Version) String() string {
	return string(v)
}

// Valid reports whether the version parses as semver.
func (v Version) Valid() bool {
	return semver.IsValid(v.canonical())
}

// Compare orders versions: -1 if v < other, 0 if equal, +1 if v > other.
func (v Version) Compare(other Version) int {
	return semver.Compare(v.canonical(), other.canonical())
}

// canonical prefixes the "v" that x/mod/semver expects; manifests carry
// bare versions like "1.2.0".
func (v Version) canonical() string {
	s := string(v)
	if s == "" || s[0] == 'v' {
		return s
	}
	return "v" + s
}

// InstalledPackage is the installed-package database record consumed and
// produced by the backup subsystem.
type InstalledPackage struct {
	ID             PackageID `json:"id"`
	Title          string    `json:"title"`
	Version        Version   `json:"version"`
	MarketplaceURL *string   `json:"marketplace_url"`
	InstalledAt    time.Time `json:"installed_at"`
}

func (p *InstalledPackage) String() string {
	return fmt.Sprintf("%s@%s", p.ID, p.Version)
}
