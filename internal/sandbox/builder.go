package sandbox

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cuemby/flowexec/internal/config"
	"github.com/cuemby/flowexec/internal/tasks"
)

// Extend lets an engine contribute extra settings files and extra
// secrets to a sandbox build.
type Extend func() (files map[string]map[string]any, secrets map[string][]byte, err error)

// Plan is the result of a successful Build: everything Run needs to
// launch the task.
type Plan struct {
	DataDir    string
	RuntimeDir string
	ScriptPath string
	Argv       []string
}

// Builder prepares per-task sandboxes from config.Settings.
type Builder struct {
	cfg *config.Settings
}

// NewBuilder returns a Builder bound to cfg.
func NewBuilder(cfg *config.Settings) *Builder {
	return &Builder{cfg: cfg}
}

// Build executes the six-step sandbox contract for task, given its
// already-evaluated run program, the active executor's dotted module
// suffix, and an optional engine settings/secrets extension. effective,
// when non-nil, is the composed host/override/per-message configuration
// for this pass (see scanner.Options.Settings) and takes precedence over
// the Builder's own bound config.Settings for DATA_DIR, RUNTIME_DIR,
// PYTHON, SET_ENV and the config.json bundle; a nil effective falls back
// to the Builder's config entirely.
func (b *Builder) Build(task *tasks.Task, program, executorModule string, secrets map[string][]byte, extend Extend, effective *config.Settings) (*Plan, error) {
	cfg := b.cfg
	if effective != nil {
		cfg = effective
	}

	dataDir := filepath.Join(cfg.Executor.DataDir, task.ID)
	if err := b.prepareDataDir(cfg, dataDir); err != nil {
		return nil, err
	}

	runtimeDir := filepath.Join(cfg.Executor.RuntimeDir, task.ID)
	if err := b.prepareRuntimeDir(cfg, runtimeDir); err != nil {
		return nil, err
	}

	extraFiles := map[string]map[string]any{}
	extraSecrets := map[string][]byte{}
	if extend != nil {
		f, s, err := extend()
		if err != nil {
			return nil, &BuildError{Step: "extend_settings", Err: err}
		}
		extraFiles, extraSecrets = f, s
	}

	if err := b.writeSettingsBundle(cfg, runtimeDir, dataDir, extraFiles); err != nil {
		return nil, err
	}

	merged := make(map[string][]byte, len(secrets)+len(extraSecrets))
	for k, v := range secrets {
		merged[k] = v
	}
	for k, v := range extraSecrets {
		merged[k] = v
	}
	if len(merged) > 0 {
		if err := writeSecretsVault(filepath.Join(runtimeDir, "secrets"), merged); err != nil {
			return nil, err
		}
	}

	scriptPath, err := b.writeScript(cfg, runtimeDir, program)
	if err != nil {
		return nil, err
	}

	argv := []string{
		"/bin/bash",
		"-c",
		fmt.Sprintf("%s -m executors %s", cfg.Executor.Python, executorModule),
	}

	return &Plan{DataDir: dataDir, RuntimeDir: runtimeDir, ScriptPath: scriptPath, Argv: argv}, nil
}

func (b *Builder) prepareDataDir(cfg *config.Settings, dir string) error {
	mode := cfg.Executor.DataDirMode
	if mode == 0 {
		mode = 0o755
	}
	if err := os.MkdirAll(dir, mode); err != nil {
		return classifyFSError("data dir mkdir", err)
	}
	// Creation mode is filtered through the process umask; re-chmod to
	// guarantee the configured bits stick.
	if err := os.Chmod(dir, mode); err != nil {
		return classifyFSError("data dir chmod", err)
	}
	return nil
}

func (b *Builder) prepareRuntimeDir(cfg *config.Settings, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return classifyFSError("runtime dir mkdir", err)
	}
	if cfg.Executor.PackageDir != "" {
		if err := copyTree(cfg.Executor.PackageDir, dir); err != nil {
			return classifyFSError("runtime package copy", err)
		}
	}
	mode := cfg.Executor.RuntimeDirMode
	if mode == 0 {
		mode = 0o755
	}
	if err := os.Chmod(dir, mode); err != nil {
		return classifyFSError("runtime dir chmod", err)
	}
	return nil
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// writeSettingsBundle writes the executor settings, the effective
// configuration, scheduling-class constants, status constants, and any
// engine-contributed files, plus a manifest enumerating them all.
func (b *Builder) writeSettingsBundle(cfg *config.Settings, runtimeDir, dataDir string, extra map[string]map[string]any) error {
	files := map[string]map[string]any{
		"executor_settings.json": {
			"DATA_DIR":           dataDir,
			"RUNTIME_DIR":        runtimeDir,
			"COMMUNICATE_CHANNEL": "communicate",
		},
		"config.json": cfg.ToMap(),
		"constants.json": {
			"SCHEDULING_CLASS_INTERACTIVE": string(tasks.SchedulingClassInteractive),
			"SCHEDULING_CLASS_BATCH":       string(tasks.SchedulingClassBatch),
			"STATUS_RESOLVING":             string(tasks.StatusResolving),
			"STATUS_WAITING":               string(tasks.StatusWaiting),
			"STATUS_PROCESSING":            string(tasks.StatusProcessing),
			"STATUS_DONE":                  string(tasks.StatusDone),
			"STATUS_ERROR":                 string(tasks.StatusError),
		},
	}
	for name, content := range extra {
		files[name] = content
	}

	manifest := make([]manifestEntry, 0, len(files))
	for name := range files {
		manifest = append(manifest, manifestEntry{Name: strings.TrimSuffix(name, ".json"), File: name})
	}

	for name, content := range files {
		if err := writeJSON(filepath.Join(runtimeDir, name), content); err != nil {
			return err
		}
	}
	return writeJSON(filepath.Join(runtimeDir, "manifest.json"), manifest)
}

func writeJSON(path string, v any) error {
	safe := coerceJSON(v)
	data, err := json.MarshalIndent(safe, "", "  ")
	if err != nil {
		return &BuildError{Step: "settings encode " + path, Err: err}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return classifyFSError("settings write "+path, err)
	}
	return nil
}

// writeScript prefixes program with `export KEY="VALUE"` lines for the
// host URL and any user-configured environment, then writes it with
// mode 0700.
func (b *Builder) writeScript(cfg *config.Settings, runtimeDir, program string) (string, error) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("export RESOLWE_HOST_URL=%s\n", strconv.Quote(cfg.HostURL)))
	for k, v := range cfg.Executor.SetEnv {
		sb.WriteString(fmt.Sprintf("export %s=%s\n", k, strconv.Quote(v)))
	}
	sb.WriteString(program)

	path := filepath.Join(runtimeDir, "script.sh")
	if err := os.WriteFile(path, []byte(sb.String()), 0o700); err != nil {
		return "", classifyFSError("script write", err)
	}
	return path, nil
}
