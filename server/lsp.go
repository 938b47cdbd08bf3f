package server

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode"
	"unicode/utf16"

	"github.com/chain/txvm/errors"
	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/uvm/manifest"
	"github.com/chazu/uvm/pkg/bytecode"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "uvm-lsp"

// defaultCheckLimit bounds the trial run when the configuration sets no
// instruction limit.
const defaultCheckLimit = 100000

// LspServer provides editor features for USM source files: assembly
// diagnostics, a bounded trial run, hover, completion and label navigation.
type LspServer struct {
	asm    *bytecode.Assembler
	worker *EngineWorker
	limit  int
	log    commonlog.Logger

	mu   sync.Mutex
	docs map[string]string // URI → full document content

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new LSP server. A nil manifest means defaults.
func NewLSP(m *manifest.Manifest) *LspServer {
	if m == nil {
		m = manifest.Default()
	}
	limit := m.Engine.InstructionLimit
	if limit == 0 {
		limit = defaultCheckLimit
	}

	opts := append(m.EngineOptions(),
		bytecode.WithOutput(io.Discard),
		bytecode.WithTrace(false, false),
	)

	s := &LspServer{
		asm:     m.Assembler(),
		worker:  NewEngineWorker(bytecode.NewEngine(opts...)),
		limit:   limit,
		log:     commonlog.GetLogger("uvm.lsp"),
		docs:    make(map[string]string),
		version: "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
		TextDocumentDefinition: s.textDocumentDefinition,
		TextDocumentReferences: s.textDocumentReferences,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	s.log.Info("USM language server initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{}
	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true
	capabilities.ReferencesProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	s.log.Info("USM language server shutting down")
	s.worker.Stop()
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	text := params.TextDocument.Text

	s.mu.Lock()
	s.docs[string(uri)] = text
	s.mu.Unlock()

	s.publishDiagnostics(ctx, uri, text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.mu.Lock()
			s.docs[string(uri)] = whole.Text
			s.mu.Unlock()

			s.publishDiagnostics(ctx, uri, whole.Text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	// Clear diagnostics for the closed document
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

func (s *LspServer) document(uri protocol.DocumentUri) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.docs[string(uri)]
	return text, ok
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	prefix := extractPrefix(text, params.Position)
	if prefix == "" {
		return nil, nil
	}
	return s.complete(text, prefix), nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}
	return s.hover(text, word), nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	uri := params.TextDocument.URI
	text, ok := s.document(uri)
	if !ok {
		return nil, nil
	}

	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}

	loc := s.definition(uri, text, word)
	if loc == nil {
		return nil, nil
	}
	return *loc, nil
}

func (s *LspServer) textDocumentReferences(ctx *glsp.Context, params *protocol.ReferenceParams) ([]protocol.Location, error) {
	uri := params.TextDocument.URI
	text, ok := s.document(uri)
	if !ok {
		return nil, nil
	}

	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}
	return s.references(uri, text, word, params.Context.IncludeDeclaration), nil
}

// --- Source analysis ---

// labelDecl is a label declaration found by scanning tokens.
type labelDecl struct {
	name string
	tok  bytecode.Token
}

// scanLabels returns label declarations in source order. It works on
// sources that do not assemble.
func (s *LspServer) scanLabels(text string) []labelDecl {
	var labels []labelDecl
	for _, tok := range s.asm.Tokens(text) {
		if name, ok := strings.CutSuffix(tok.Text, ":"); ok {
			labels = append(labels, labelDecl{name: name, tok: tok})
		}
	}
	return labels
}

func (s *LspServer) complete(text, prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem

	// Mnemonics
	for _, op := range bytecode.AllOpcodes() {
		info := bytecode.GetOpcodeInfo(op)
		if !strings.HasPrefix(info.Mnemonic, prefix) {
			continue
		}
		kind := protocol.CompletionItemKindKeyword
		detail := info.Doc
		mnemonic := info.Mnemonic
		items = append(items, protocol.CompletionItem{
			Label:      mnemonic,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &mnemonic,
		})
	}

	// Labels, first declaration wins as in the assembler
	seen := make(map[string]bool)
	for _, l := range s.scanLabels(text) {
		if seen[l.name] || l.name == prefix || !strings.HasPrefix(l.name, prefix) {
			continue
		}
		seen[l.name] = true
		kind := protocol.CompletionItemKindReference
		detail := fmt.Sprintf("label, line %d", l.tok.Line)
		name := l.name
		items = append(items, protocol.CompletionItem{
			Label:      name,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &name,
		})
	}

	return items
}

func (s *LspServer) hover(text, word string) *protocol.Hover {
	var b strings.Builder

	mnemonic, cond := strings.CutSuffix(word, "?")
	if op, ok := bytecode.LookupMnemonic(mnemonic); ok {
		info := bytecode.GetOpcodeInfo(op)
		fmt.Fprintf(&b, "**%s** (opcode %d)\n\n%s\n\n", info.Mnemonic, byte(op), info.Doc)
		if info.Operand != bytecode.OperandNone {
			fmt.Fprintf(&b, "Operand: `%s`  \n", info.Operand)
		}
		fmt.Fprintf(&b, "Stack: pops %d, pushes %d", info.StackPop, info.StackPush)
		if cond {
			b.WriteString("\n\nConditional: pops a guard first and is skipped when it is zero.")
		}
		return markdownHover(b.String())
	}

	name := strings.TrimSuffix(word, ":")
	for _, l := range s.scanLabels(text) {
		if l.name != name {
			continue
		}
		fmt.Fprintf(&b, "label **%s**, declared on line %d", name, l.tok.Line)
		if unit, err := s.asm.AssembleUnit(text); err == nil {
			for _, ul := range unit.Labels {
				if ul.Name == name {
					fmt.Fprintf(&b, "\n\naddress %d", ul.Addr)
					break
				}
			}
		}
		return markdownHover(b.String())
	}

	if v, ok := bytecode.ParseValue(word); ok {
		fmt.Fprintf(&b, "`%s` literal %s\n\nsource form: `%s`", v.Kind(), v, bytecode.FormatValue(v))
		return markdownHover(b.String())
	}

	return nil
}

func markdownHover(value string) *protocol.Hover {
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: value,
		},
	}
}

func (s *LspServer) definition(uri protocol.DocumentUri, text, word string) *protocol.Location {
	name := strings.TrimSuffix(word, ":")
	lines := splitLines(text)
	for _, l := range s.scanLabels(text) {
		if l.name == name {
			loc := tokenLocation(uri, lines, l.tok)
			return &loc
		}
	}
	return nil
}

func (s *LspServer) references(uri protocol.DocumentUri, text, word string, includeDecl bool) []protocol.Location {
	name := strings.TrimSuffix(word, ":")
	lines := splitLines(text)

	declared := false
	for _, l := range s.scanLabels(text) {
		if l.name == name {
			declared = true
			break
		}
	}
	if !declared {
		return nil
	}

	var locations []protocol.Location
	for _, tok := range s.asm.Tokens(text) {
		switch tok.Text {
		case name:
			locations = append(locations, tokenLocation(uri, lines, tok))
		case name + ":":
			if includeDecl {
				locations = append(locations, tokenLocation(uri, lines, tok))
			}
		}
	}
	return locations
}

// --- Diagnostics ---

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	diagnostics := s.diagnose(text)
	if diagnostics == nil {
		diagnostics = []protocol.Diagnostic{}
	}

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

// diagnose assembles text and, if that succeeds, runs the program on the
// worker engine with the instruction limit. Assembly faults are errors;
// runtime faults are warnings on the faulting instruction's line.
func (s *LspServer) diagnose(text string) []protocol.Diagnostic {
	lines := splitLines(text)

	unit, err := s.asm.AssembleUnit(text)
	if err != nil {
		return []protocol.Diagnostic{assemblyDiagnostic(lines, err)}
	}

	runErr := s.worker.TrialRun(unit.Program, s.limit)
	switch root := errors.Root(runErr); {
	case runErr == nil:
		return nil
	case root == ErrWorkerStopped:
		s.log.Debugf("trial run skipped: %s", runErr)
		return nil
	case root == bytecode.ErrUnknownExtern:
		// Host callbacks are registered by the embedding program, not here.
		return nil
	}
	return []protocol.Diagnostic{runDiagnostic(lines, unit, runErr)}
}

func assemblyDiagnostic(lines []string, err error) protocol.Diagnostic {
	severity := protocol.DiagnosticSeverityError
	source := lspName
	d := protocol.Diagnostic{
		Severity: &severity,
		Source:   &source,
		Message:  errors.Root(err).Error(),
	}

	line, col, ok := bytecode.FaultPosition(err)
	if !ok {
		d.Message = err.Error()
		return d
	}
	token, _ := errors.Data(err)[bytecode.DataToken].(string)
	d.Message = fmt.Sprintf("%s: %q", d.Message, token)
	d.Range = tokenRange(lines, bytecode.Token{Text: token, Line: line, Column: col})
	return d
}

func runDiagnostic(lines []string, unit *bytecode.Unit, err error) protocol.Diagnostic {
	severity := protocol.DiagnosticSeverityWarning
	source := lspName

	msg := "trial run: " + err.Error()
	if detail := errors.Detail(err); detail != "" {
		msg += " (" + detail + ")"
	}
	d := protocol.Diagnostic{
		Severity: &severity,
		Source:   &source,
		Message:  msg,
	}

	ip, _ := errors.Data(err)[bytecode.DataIP].(int)
	if line := unit.Line(ip); line > 0 && line <= len(lines) {
		d.Range = protocol.Range{
			Start: protocol.Position{Line: protocol.UInteger(line - 1)},
			End:   protocol.Position{Line: protocol.UInteger(line - 1), Character: utf16Len(lines[line-1])},
		}
	}
	return d
}

// --- Positions ---

// Token positions are 1-based rune columns; LSP positions are 0-based
// UTF-16 offsets.

func tokenRange(lines []string, tok bytecode.Token) protocol.Range {
	line := tok.Line - 1
	if line < 0 || line >= len(lines) {
		return protocol.Range{}
	}
	start := utf16Offset(lines[line], tok.Column-1)
	return protocol.Range{
		Start: protocol.Position{Line: protocol.UInteger(line), Character: start},
		End:   protocol.Position{Line: protocol.UInteger(line), Character: start + utf16Len(tok.Text)},
	}
}

func tokenLocation(uri protocol.DocumentUri, lines []string, tok bytecode.Token) protocol.Location {
	return protocol.Location{URI: uri, Range: tokenRange(lines, tok)}
}

func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, "\r")
	}
	return lines
}

// utf16Offset converts a rune index within line to a UTF-16 offset.
func utf16Offset(line string, runes int) protocol.UInteger {
	var n protocol.UInteger
	for i, r := range []rune(line) {
		if i >= runes {
			break
		}
		n += protocol.UInteger(utf16.RuneLen(r))
	}
	return n
}

func utf16Len(s string) protocol.UInteger {
	return protocol.UInteger(len(utf16.Encode([]rune(s))))
}

// runeIndex converts a UTF-16 offset within line to a rune index, clamped
// to the line length.
func runeIndex(line []rune, offset protocol.UInteger) int {
	var n protocol.UInteger
	for i, r := range line {
		if n >= offset {
			return i
		}
		n += protocol.UInteger(utf16.RuneLen(r))
	}
	return len(line)
}

// --- Text extraction helpers ---

func cursorLine(text string, pos protocol.Position) ([]rune, int, bool) {
	lines := splitLines(text)
	if int(pos.Line) >= len(lines) {
		return nil, 0, false
	}
	line := []rune(lines[pos.Line])
	return line, runeIndex(line, pos.Character), true
}

// extractPrefix returns the token fragment before the cursor for completion.
func extractPrefix(text string, pos protocol.Position) string {
	line, col, ok := cursorLine(text, pos)
	if !ok {
		return ""
	}

	// Walk backwards from cursor to find the start of the token
	start := col
	for start > 0 && !unicode.IsSpace(line[start-1]) {
		start--
	}

	return string(line[start:col])
}

// extractWord returns the full whitespace-delimited token under the cursor.
func extractWord(text string, pos protocol.Position) string {
	line, col, ok := cursorLine(text, pos)
	if !ok {
		return ""
	}

	start := col
	for start > 0 && !unicode.IsSpace(line[start-1]) {
		start--
	}
	end := col
	for end < len(line) && !unicode.IsSpace(line[end]) {
		end++
	}

	return string(line[start:end])
}

func boolPtr(b bool) *bool {
	return &b
}
