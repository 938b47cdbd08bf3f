// Package manifest handles uvm.toml configuration.
package manifest

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/chain/txvm/errors"

	"github.com/chazu/uvm/pkg/bytecode"
)

// FileName is the configuration file looked up by Load and FindAndLoad.
const FileName = "uvm.toml"

// ErrInvalid is the root of every validation error.
var ErrInvalid = errors.New("invalid configuration")

// Manifest represents a uvm.toml configuration.
type Manifest struct {
	Engine Engine      `toml:"engine"`
	Source Source      `toml:"source"`
	Trace  Trace       `toml:"trace"`
	Image  ImageConfig `toml:"image"`

	// Dir is the directory containing the uvm.toml file (set at load time).
	Dir string `toml:"-"`
}

// Engine sizes and tunes the virtual machine.
type Engine struct {
	StackCapacity    int  `toml:"stack-capacity"`
	ProgramCapacity  int  `toml:"program-capacity"`
	InstructionLimit int  `toml:"instruction-limit"` // 0 = unlimited
	StrictFloat      bool `toml:"strict-float"`
}

// Source configures the assembler.
type Source struct {
	Comment string `toml:"comment"`
	Entry   string `toml:"entry"`
}

// Trace selects what the engine logs per step.
type Trace struct {
	Stack        bool `toml:"stack"`
	Instructions bool `toml:"instructions"`
}

// ImageConfig configures debug image output.
type ImageConfig struct {
	Output        string `toml:"output"`
	IncludeSource bool   `toml:"include-source"`
}

// Default returns the configuration used when no uvm.toml exists.
func Default() *Manifest {
	return &Manifest{
		Engine: Engine{
			StackCapacity:   bytecode.DefaultStackCapacity,
			ProgramCapacity: bytecode.DefaultProgramCapacity,
			StrictFloat:     true,
		},
		Source: Source{Comment: bytecode.DefaultCommentMarker},
		Image:  ImageConfig{IncludeSource: true},
	}
}

// Load parses a uvm.toml file from the given directory. Keys absent from
// the file keep their defaults; unknown keys are an error.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read %s", path)
	}

	m := Default()
	md, err := toml.Decode(string(data), m)
	if err != nil {
		return nil, errors.Wrapf(err, "parse error in %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, errors.WithData(
			errors.Wrapf(ErrInvalid, "%s: unknown keys %s", path, strings.Join(keys, ", ")),
			"keys", keys)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot resolve path %s", dir)
	}

	// Defaults
	if m.Source.Comment == "" {
		m.Source.Comment = bytecode.DefaultCommentMarker
	}

	if err := m.Validate(); err != nil {
		return nil, errors.Wrap(err, path)
	}
	return m, nil
}

// FindAndLoad walks up from startDir to find a uvm.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Write stores m as dir/uvm.toml, replacing any existing file.
func (m *Manifest) Write(dir string) error {
	path := filepath.Join(dir, FileName)
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "cannot create %s", path)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(m); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	return f.Close()
}

// Validate checks capacities and limits.
func (m *Manifest) Validate() error {
	switch {
	case m.Engine.StackCapacity <= 0:
		return errors.Wrapf(ErrInvalid, "engine.stack-capacity must be positive, got %d", m.Engine.StackCapacity)
	case m.Engine.ProgramCapacity <= 0:
		return errors.Wrapf(ErrInvalid, "engine.program-capacity must be positive, got %d", m.Engine.ProgramCapacity)
	case m.Engine.InstructionLimit < 0:
		return errors.Wrapf(ErrInvalid, "engine.instruction-limit must not be negative, got %d", m.Engine.InstructionLimit)
	}
	return nil
}

// Assembler returns an assembler configured from the [source] and
// [engine] sections.
func (m *Manifest) Assembler() *bytecode.Assembler {
	return bytecode.NewAssembler(
		bytecode.WithCommentMarker(m.Source.Comment),
		bytecode.WithMaxInstructions(m.Engine.ProgramCapacity),
	)
}

// EngineOptions translates the configuration into engine options.
func (m *Manifest) EngineOptions() []bytecode.Option {
	return []bytecode.Option{
		bytecode.WithStackCapacity(m.Engine.StackCapacity),
		bytecode.WithProgramCapacity(m.Engine.ProgramCapacity),
		bytecode.WithStrictFloat(m.Engine.StrictFloat),
		bytecode.WithAssembler(m.Assembler()),
		bytecode.WithTrace(m.Trace.Stack, m.Trace.Instructions),
	}
}

// EntryPath returns the absolute path of the configured entry program, or
// "" if none is set.
func (m *Manifest) EntryPath() string {
	if m.Source.Entry == "" {
		return ""
	}
	if filepath.IsAbs(m.Source.Entry) || m.Dir == "" {
		return m.Source.Entry
	}
	return filepath.Join(m.Dir, m.Source.Entry)
}

// ImagePath returns the absolute path for image output, or "" if none is
// configured.
func (m *Manifest) ImagePath() string {
	if m.Image.Output == "" {
		return ""
	}
	if filepath.IsAbs(m.Image.Output) || m.Dir == "" {
		return m.Image.Output
	}
	return filepath.Join(m.Dir, m.Image.Output)
}
