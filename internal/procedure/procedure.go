package procedure

import (
	"context"
	"fmt"

	"github.com/halcyonos/halcyon/internal/errs"
	"github.com/halcyonos/halcyon/internal/models"
	"github.com/halcyonos/halcyon/internal/volume"
)

// Name identifies which manifest procedure is being invoked.
type Name string

const (
	NameCreateBackup  Name = "create-backup"
	NameRestoreBackup Name = "restore-backup"
)

// Kind discriminates the supported execution mechanisms for a
// package-supplied procedure.
type Kind string

const (
	// KindDocker runs the procedure inside the package's container image.
	KindDocker Kind = "docker"
	// KindScript runs the procedure as a script in the package's
	// long-running container.
	KindScript Kind = "script"
)

// PackageProcedure is an opaque executable descriptor from a package
// manifest. It is data, not a call target: the runtime collaborator
// dispatches on Kind. Immutable after package installation.
type PackageProcedure struct {
	Kind Kind `json:"kind" yaml:"kind"`

	// Docker fields.
	Image      models.ImageID `json:"image,omitempty" yaml:"image,omitempty"`
	Entrypoint string         `json:"entrypoint,omitempty" yaml:"entrypoint,omitempty"`
	Args       []string       `json:"args,omitempty" yaml:"args,omitempty"`
	Mounts     []volume.ID    `json:"mounts,omitempty" yaml:"mounts,omitempty"`

	// Script fields.
	Script string `json:"script,omitempty" yaml:"script,omitempty"`
}

// Validate checks the descriptor against the package's declared container,
// volumes and image-id set. A procedure that fails validation may never run.
func (p *PackageProcedure) Validate(hasContainer bool, volumes volume.Volumes, imageIDs map[models.ImageID]bool) error {
	switch p.Kind {
	case KindDocker:
		if p.Image == "" {
			return errs.New(errs.KindValidatePackage, "docker procedure missing image")
		}
		if !imageIDs[p.Image] {
			return errs.New(errs.KindValidatePackage, "docker procedure references undeclared image %q", p.Image)
		}
		for _, m := range p.Mounts {
			if _, ok := volumes[m]; !ok && m != volume.Backup {
				return errs.New(errs.KindValidatePackage, "docker procedure mounts undeclared volume %q", m)
			}
		}
		return nil
	case KindScript:
		if !hasContainer {
			return errs.New(errs.KindValidatePackage, "script procedure requires a declared container")
		}
		if p.Script == "" {
			return errs.New(errs.KindValidatePackage, "script procedure missing script path")
		}
		return nil
	default:
		return errs.New(errs.KindValidatePackage, "unknown procedure kind %q", p.Kind)
	}
}

// Error is a failure reported by the package's own procedure. The message
// is free text from untrusted third-party code and is passed through
// verbatim, never parsed.
type Error struct {
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("procedure failed: %s", e.Message)
}

// Runner is the sandboxed execution runtime collaborator. Execute runs the
// named procedure with the given effective volume set and blocks until it
// returns; timeouts are the runtime's responsibility. A procedure-reported
// failure comes back as *Error; any other error is an infrastructure
// failure of the runtime itself.
type Runner interface {
	Execute(ctx context.Context, name Name, proc *PackageProcedure, pkgID models.PackageID, version models.Version, volumes volume.Volumes) error
}
