// uvm - assembles, converts and runs programs for the USM stack machine
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/chain/txvm/errors"
	"github.com/tliron/commonlog"

	"github.com/chazu/uvm/manifest"
	"github.com/chazu/uvm/pkg/bytecode"
	"github.com/chazu/uvm/pkg/image"
	"github.com/chazu/uvm/server"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("uvm")

// options holds the parsed command line.
type options struct {
	binary      bool
	fromImage   bool
	limit       int
	traceStack  bool
	traceInstr  bool
	output      string
	showSource  bool
	imageOutput string
	configDir   string
	initConfig  bool
	lsp         bool
	verbosity   int
}

func main() {
	var opts options
	flag.BoolVar(&opts.binary, "b", false, "Input is wire form (binary bytecode)")
	flag.BoolVar(&opts.fromImage, "img", false, "Input is a debug image")
	flag.IntVar(&opts.limit, "l", -1, "Instruction limit, 0 for none (default from uvm.toml)")
	flag.BoolVar(&opts.traceStack, "ds", false, "Trace the stack after every instruction")
	flag.BoolVar(&opts.traceInstr, "di", false, "Trace every executed instruction")
	flag.StringVar(&opts.output, "o", "", "Write wire form to `file` instead of running")
	flag.BoolVar(&opts.showSource, "S", false, "Print source form instead of running")
	flag.StringVar(&opts.imageOutput, "image", "", "Write a debug image to `file`")
	flag.StringVar(&opts.configDir, "config", "", "Directory containing uvm.toml (default: search upward)")
	flag.BoolVar(&opts.initConfig, "init", false, "Write a default uvm.toml to the current directory")
	flag.BoolVar(&opts.lsp, "lsp", false, "Start the language server on stdio")
	flag.IntVar(&opts.verbosity, "v", 0, "Log verbosity (1 info, 2 debug)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: uvm [options] [program]\n\n")
		fmt.Fprintf(os.Stderr, "Assembles or decodes a program, then runs it, prints it or converts it.\n")
		fmt.Fprintf(os.Stderr, "Without a program argument the entry from uvm.toml is used.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  uvm prog.usm                  # Assemble and run\n")
		fmt.Fprintf(os.Stderr, "  uvm -l 1000 -di prog.usm      # Run at most 1000 steps, tracing instructions\n")
		fmt.Fprintf(os.Stderr, "  uvm -o prog.uvm prog.usm      # Assemble to wire form\n")
		fmt.Fprintf(os.Stderr, "  uvm -b -S prog.uvm            # Disassemble wire form\n")
		fmt.Fprintf(os.Stderr, "  uvm -image prog.uvmi prog.usm # Write a debug image with labels\n")
		fmt.Fprintf(os.Stderr, "  uvm -lsp                      # Language server for editors\n")
	}
	flag.Parse()

	if err := run(opts, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if detail := errors.Detail(err); detail != "" {
			fmt.Fprintln(os.Stderr, detail)
		}
		os.Exit(1)
	}
}

func run(opts options, args []string) error {
	verbosity := opts.verbosity
	if (opts.traceStack || opts.traceInstr) && verbosity < 2 {
		verbosity = 2
	}
	commonlog.Configure(verbosity, nil)

	if opts.initConfig {
		return manifest.Default().Write(".")
	}

	m, err := loadManifest(opts.configDir)
	if err != nil {
		return err
	}

	if opts.lsp {
		return server.NewLSP(m).Run()
	}

	if opts.limit >= 0 {
		m.Engine.InstructionLimit = opts.limit
	}
	m.Trace.Stack = m.Trace.Stack || opts.traceStack
	m.Trace.Instructions = m.Trace.Instructions || opts.traceInstr
	if err := m.Validate(); err != nil {
		return err
	}

	path := m.EntryPath()
	switch len(args) {
	case 0:
		if path == "" {
			flag.Usage()
			return errors.New("no program given and no entry in uvm.toml")
		}
	case 1:
		path = args[0]
	default:
		return errors.New("only one program may be given")
	}

	engine := bytecode.NewEngine(m.EngineOptions()...)
	labels, source, err := load(engine, m, opts, path)
	if err != nil {
		return err
	}
	log.Infof("loaded %d instructions from %s", engine.Program().Len(), path)

	imagePath := opts.imageOutput
	if imagePath == "" && !opts.binary && !opts.fromImage {
		imagePath = m.ImagePath()
	}
	if imagePath != "" {
		if !m.Image.IncludeSource {
			source = ""
		}
		if err := writeImage(imagePath, image.FromProgram(engine.Program(), labels, source)); err != nil {
			return err
		}
	}

	converted := false
	if opts.output != "" {
		if err := os.WriteFile(opts.output, engine.ToBinary(), 0644); err != nil {
			return errors.Wrapf(err, "writing %s", opts.output)
		}
		log.Infof("wrote %d bytes to %s", engine.Program().Len()*bytecode.ChunkSize, opts.output)
		converted = true
	}
	if opts.showSource {
		fmt.Print(bytecode.DisassembleWithLabels(engine.Program(), labels))
		converted = true
	}
	if converted || opts.imageOutput != "" {
		return nil
	}

	return execute(engine, m.Engine.InstructionLimit)
}

func loadManifest(dir string) (*manifest.Manifest, error) {
	if dir != "" {
		return manifest.Load(dir)
	}
	m, err := manifest.FindAndLoad(".")
	if err != nil {
		return nil, err
	}
	if m == nil {
		return manifest.Default(), nil
	}
	log.Infof("using %s/%s", m.Dir, manifest.FileName)
	return m, nil
}

// load reads path in the selected form into the engine and returns the
// label table and source text, where the form keeps them.
func load(e *bytecode.Engine, m *manifest.Manifest, opts options, path string) ([]bytecode.Label, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", errors.Wrapf(err, "reading %s", path)
	}

	switch {
	case opts.binary:
		return nil, "", errors.Wrap(e.LoadBinary(data), path)

	case opts.fromImage:
		img, err := image.Unmarshal(data)
		if err != nil {
			return nil, "", errors.Wrap(err, path)
		}
		p, err := img.Decode(m.Engine.ProgramCapacity)
		if err != nil {
			return nil, "", errors.Wrap(err, path)
		}
		return img.Symbols(), img.Source, e.Load(p)

	default:
		src := string(data)
		unit, err := m.Assembler().AssembleUnit(src)
		if err != nil {
			return nil, "", errors.Wrap(err, path)
		}
		return unit.Labels, src, e.Load(unit.Program)
	}
}

func writeImage(path string, img *image.Image) error {
	data, err := image.Marshal(img)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	log.Infof("wrote image %s (%d labels)", path, len(img.Labels))
	return nil
}

func execute(e *bytecode.Engine, limit int) error {
	state, err := e.Run(limit)
	if err != nil {
		return err
	}
	if state == bytecode.Running {
		return errors.WithData(
			errors.New(fmt.Sprintf("instruction limit %d reached at ip %d", limit, e.IP())),
			bytecode.DataIP, e.IP())
	}

	stack := e.Stack()
	log.Infof("halted with %d values on the stack", len(stack))
	for i := len(stack) - 1; i >= 0; i-- {
		log.Debugf("  [%d] %s", len(stack)-1-i, stack[i])
	}
	return nil
}
