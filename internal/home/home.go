package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the folio home directory.
	DefaultDirName = ".folio"

	// LogsDirName is the subdirectory for the append-only result logs.
	LogsDirName = "logs"

	// ArtifactsDirName is the subdirectory for generated reports.
	ArtifactsDirName = "artifacts"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"

	// Step1LogName and Step2LogName are the phase result logs.
	Step1LogName = "step1.jsonl"
	Step2LogName = "step2.jsonl"
)

// Dir represents the folio home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.folio).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// LogsPath returns the directory holding the result logs.
func (d *Dir) LogsPath() string {
	return filepath.Join(d.path, LogsDirName)
}

// Step1Log returns the path of the phase 1 result log.
func (d *Dir) Step1Log() string {
	return filepath.Join(d.LogsPath(), Step1LogName)
}

// Step2Log returns the path of the phase 2 result log.
func (d *Dir) Step2Log() string {
	return filepath.Join(d.LogsPath(), Step2LogName)
}

// ArtifactsPath returns the directory for generated reports.
func (d *Dir) ArtifactsPath() string {
	return filepath.Join(d.path, ArtifactsDirName)
}

// Artifact returns the path of a named report file.
func (d *Dir) Artifact(name string) string {
	return filepath.Join(d.ArtifactsPath(), name)
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	for _, dir := range []string{d.LogsPath(), d.ArtifactsPath()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}

// ClearLogs truncates both result logs.
func (d *Dir) ClearLogs() error {
	for _, p := range []string{d.Step1Log(), d.Step2Log()} {
		if err := os.Truncate(p, 0); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to clear %s: %w", p, err)
		}
	}
	return nil
}
