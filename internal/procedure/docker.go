package procedure

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/halcyonos/halcyon/internal/errs"
	"github.com/halcyonos/halcyon/internal/models"
	"github.com/halcyonos/halcyon/internal/volume"
)

// DockerRunner executes package procedures through the docker CLI. Docker
// procedures run in a fresh one-shot container of the declared image;
// script procedures exec inside the package's long-running container.
type DockerRunner struct {
	dataRoot string
}

// NewDockerRunner creates a runner resolving volume paths under dataRoot.
func NewDockerRunner(dataRoot string) *DockerRunner {
	return &DockerRunner{dataRoot: dataRoot}
}

// containerName is the name of a package's long-running container.
func containerName(pkgID models.PackageID) string {
	return fmt.Sprintf("%s.halcyon", pkgID)
}

// imageTag is the local tag a package image is loaded under at install time.
func imageTag(pkgID models.PackageID, image models.ImageID, version models.Version) string {
	return fmt.Sprintf("halcyon/%s/%s:%s", pkgID, image, version)
}

// hostPath resolves where a volume lives on the host. Declared paths win;
// data and pointer volumes without one follow the standard layout.
func (r *DockerRunner) hostPath(pkgID models.PackageID, id volume.ID, vol volume.Volume) string {
	if vol.Path != "" && vol.Type != volume.TypePointer {
		return vol.Path
	}
	switch vol.Type {
	case volume.TypePointer:
		return filepath.Join(r.dataRoot, string(vol.PackageID), "volumes", string(vol.VolumeID))
	default:
		return filepath.Join(r.dataRoot, string(pkgID), "volumes", string(id))
	}
}

// Execute implements Runner.
func (r *DockerRunner) Execute(ctx context.Context, name Name, proc *PackageProcedure, pkgID models.PackageID, version models.Version, volumes volume.Volumes) error {
	var cmd *exec.Cmd
	switch proc.Kind {
	case KindDocker:
		runID := uuid.New().String()[:8]
		args := []string{
			"run", "--rm",
			"--name", fmt.Sprintf("%s.%s-%s", pkgID, name, runID),
			"--entrypoint", proc.Entrypoint,
		}
		for _, id := range proc.Mounts {
			vol, ok := volumes[id]
			if !ok {
				continue
			}
			mount := fmt.Sprintf("%s:%s", r.hostPath(pkgID, id, vol), filepath.Join("/mnt", string(id)))
			if vol.ReadOnly {
				mount += ":ro"
			}
			args = append(args, "-v", mount)
		}
		args = append(args, imageTag(pkgID, proc.Image, version))
		args = append(args, proc.Args...)
		cmd = exec.CommandContext(ctx, "docker", args...)
	case KindScript:
		args := append([]string{"exec", containerName(pkgID), proc.Script}, proc.Args...)
		cmd = exec.CommandContext(ctx, "docker", args...)
	default:
		return errs.New(errs.KindValidatePackage, "unknown procedure kind %q", proc.Kind)
	}

	log.Printf("[Runner] %s %s@%s: %s", name, pkgID, version, strings.Join(cmd.Args, " "))

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if _, exited := err.(*exec.ExitError); exited {
		// The package's own process failed; its output is the message.
		return &Error{Message: strings.TrimSpace(out.String())}
	}
	return fmt.Errorf("run %s for %s: %w", name, pkgID, err)
}

// RestartContainer restarts a package's long-running container, picking up
// restored volume contents.
func (r *DockerRunner) RestartContainer(ctx context.Context, pkgID models.PackageID) error {
	cmd := exec.CommandContext(ctx, "docker", "restart", containerName(pkgID))
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("restart %s: %w: %s", pkgID, err, strings.TrimSpace(out.String()))
	}
	return nil
}
