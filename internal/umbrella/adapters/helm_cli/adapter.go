package helmcli

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
)

// Adapter implements ports.DependencyUpdaterPort by shelling out to the helm CLI.
type Adapter struct {
	helmBin string
	logger  *slog.Logger
}

// New creates a new Helm CLI adapter. It verifies that the helm binary
// is available on PATH at construction time.
func New(logger *slog.Logger) (*Adapter, error) {
	helmBin, err := exec.LookPath("helm")
	if err != nil {
		return nil, fmt.Errorf("helm binary not found: %w", err)
	}
	return &Adapter{helmBin: helmBin, logger: logger}, nil
}

// UpdateDependencies runs `helm dependency update` on the chart directory so
// the sub-charts listed in requirements.yaml are fetched into charts/.
func (a *Adapter) UpdateDependencies(ctx context.Context, chartDir string) error {
	args := []string{"dependency", "update", chartDir}
	a.logger.Info("running helm dependency update", "chartDir", chartDir, "args", args)

	cmd := exec.CommandContext(ctx, a.helmBin, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		a.logger.Error("helm dependency update failed", "error", err, "stderr", stderr.String())
		return fmt.Errorf("helm dependency update failed: %w\nstderr: %s", err, stderr.String())
	}

	a.logger.Debug("helm command completed", "output", stdout.String())
	return nil
}
