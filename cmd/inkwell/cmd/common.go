package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/inkwell-press/inkwell/internal/checkpoint"
	"github.com/inkwell-press/inkwell/internal/config"
	"github.com/inkwell-press/inkwell/internal/logging"
	"github.com/inkwell-press/inkwell/internal/pipeline"
	"github.com/inkwell-press/inkwell/internal/rules"
	"github.com/inkwell-press/inkwell/internal/runner"
	"github.com/inkwell-press/inkwell/internal/state"
	"github.com/inkwell-press/inkwell/internal/trash"
)

// app bundles the wired collaborators every subcommand needs.
type app struct {
	cfg     *config.Config
	log     *logging.Logger
	doc     *rules.Document
	manager *pipeline.Manager
}

// newApp loads configuration and wires the orchestrator. Every
// subcommand goes through here so flag/env/file precedence behaves the
// same everywhere.
func newApp() (*app, error) {
	loader := config.NewLoaderWithViper(viper.GetViper())
	if cfgFile != "" {
		loader.WithConfigFile(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}

	log := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})

	doc, err := rules.Load(cfg.RulesPath())
	if err != nil {
		return nil, fmt.Errorf("loading workflow rules: %w", err)
	}

	store := state.NewStore(cfg.StatePath())
	lock := state.NewFileLock(cfg.StatePath(), cfg.LockTimeout)
	bin := trash.New(cfg.TrashPath())
	shell := runner.NewShell(cfg.WorkDir)
	checkpoints := checkpoint.NewManager(cfg.CheckpointPath(), cfg.WorkDir, doc.Checkpoints, bin, log)

	return &app{
		cfg:     cfg,
		log:     log,
		doc:     doc,
		manager: pipeline.New(doc, store, lock, checkpoints, shell, log, cfg.WorkDir),
	}, nil
}

func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseJSONFlag decodes a JSON flag value into dst; empty input is a
// no-op.
func parseJSONFlag(name, value string, dst interface{}) error {
	if value == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(value), dst); err != nil {
		return fmt.Errorf("invalid --%s JSON: %w", name, err)
	}
	return nil
}
