package services

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"go.uber.org/zap"
)

// DeployService starts a zone by running its start script. run.sh is
// preferred; a zone scaffolded before run.sh existed still carries only its
// build script.
type DeployService struct {
	appsDir string
	log     *zap.Logger
}

func NewDeployService(appsDir string, log *zap.Logger) *DeployService {
	return &DeployService{appsDir: appsDir, log: log}
}

// DeployResult carries the script that ran and everything it printed.
type DeployResult struct {
	Script string `json:"script"`
	Output string `json:"output"`
	Errors string `json:"errors"`
}

// Run executes the zone's start script with the zone directory as working
// directory. A missing or non-executable script is a validation error, not
// a server fault.
func (s *DeployService) Run(ctx context.Context, cname, zid string) (*DeployResult, error) {
	zone := filepath.Join(s.appsDir, cname, zid)

	script := filepath.Join(zone, "run.sh")
	if _, err := os.Stat(script); os.IsNotExist(err) {
		script = filepath.Join(zone, "build_"+sanitizeName(zid)+".sh")
	}

	info, err := os.Stat(script)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: no start script in %s", ErrValidation, zone)
		}
		return nil, err
	}
	if info.Mode().Perm()&0111 == 0 {
		return nil, fmt.Errorf("%w: start script %s is not executable", ErrValidation, filepath.Base(script))
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "/bin/sh", script)
	cmd.Dir = zone
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	result := &DeployResult{
		Script: filepath.Base(script),
		Output: stdout.String(),
		Errors: stderr.String(),
	}
	if runErr != nil {
		s.log.Error("start script failed",
			zap.String("company", cname), zap.String("zid", zid),
			zap.String("script", result.Script), zap.Error(runErr))
		return result, fmt.Errorf("start script failed: %w", runErr)
	}

	s.log.Info("zone started",
		zap.String("company", cname), zap.String("zid", zid), zap.String("script", result.Script))
	return result, nil
}
