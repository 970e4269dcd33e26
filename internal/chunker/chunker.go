package chunker

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/dshills/ruleminer/pkg/types"
)

const (
	// MaxUnitChars is the default maximum unit size in bytes
	MaxUnitChars = 15000

	// SliceOverlap is the overlap between consecutive fallback slices
	SliceOverlap = 500
)

// Chunker splits source files into syntactic units
type Chunker struct {
	logger *slog.Logger
}

// New creates a new Chunker instance
func New(logger *slog.Logger) *Chunker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chunker{logger: logger}
}

// Chunk splits source into units no larger than maxChars where the grammar
// allows it. Unknown languages, parse failures and sources with no splittable
// nodes fall back to overlapping slices. Chunk never fails.
func (c *Chunker) Chunk(source []byte, language string, maxChars int) (units []types.CodeUnit) {
	if maxChars <= 0 {
		maxChars = MaxUnitChars
	}
	if len(source) == 0 {
		return nil
	}

	lang, ok := Lookup(language)
	if !ok {
		return Slice(source, maxChars, SliceOverlap)
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("chunker.grammar.panic", "language", lang.Tag, "panic", r)
			units = Slice(source, maxChars, SliceOverlap)
		}
	}()

	units = c.chunkTree(source, lang, maxChars)
	if len(units) == 0 {
		return Slice(source, maxChars, SliceOverlap)
	}
	return units
}

func (c *Chunker) chunkTree(source []byte, lang *Language, maxChars int) []types.CodeUnit {
	p := sitter.NewParser()
	p.SetLanguage(lang.Grammar())

	tree, err := p.ParseCtx(context.Background(), nil, source)
	if err != nil {
		c.logger.Debug("chunker.parse.failed", "language", lang.Tag, "error", err)
		return nil
	}
	defer tree.Close()

	root := tree.RootNode()
	header := buildHeader(root, source, lang)

	w := &walker{
		source:   source,
		lang:     lang,
		header:   header,
		maxChars: maxChars,
	}
	w.walk(root)
	return w.units
}

// buildHeader joins the text of root-level context nodes (imports, package)
func buildHeader(root *sitter.Node, source []byte, lang *Language) string {
	var parts []string
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		if child != nil && lang.ContextKinds[child.Type()] {
			parts = append(parts, child.Content(source))
		}
	}
	return strings.Join(parts, "\n")
}

type walker struct {
	source   []byte
	lang     *Language
	header   string
	maxChars int
	units    []types.CodeUnit
}

func (w *walker) walk(n *sitter.Node) {
	if n == nil {
		return
	}

	if kind, ok := w.lang.SplitKinds[n.Type()]; ok {
		text := n.Content(w.source)
		if len(text) < w.maxChars {
			w.units = append(w.units, w.emit(n, text, kind))
			return
		}
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		w.walk(n.Child(i))
	}
}

func (w *walker) emit(n *sitter.Node, text string, kind types.UnitKind) types.CodeUnit {
	content := text
	if w.header != "" {
		content = w.header + "\n\n" + text
	}

	return types.CodeUnit{
		Content:   content,
		StartLine: int(n.StartPoint().Row) + 1,
		EndLine:   int(n.EndPoint().Row) + 1,
		Name:      w.nodeName(n),
		Kind:      kind,
		NodeType:  n.Type(),
	}
}

// nodeName reads the name field, looking through decorators to the definition
func (w *walker) nodeName(n *sitter.Node) string {
	if name := n.ChildByFieldName(w.lang.NameField); name != nil {
		return name.Content(w.source)
	}
	if def := n.ChildByFieldName("definition"); def != nil {
		if name := def.ChildByFieldName(w.lang.NameField); name != nil {
			return name.Content(w.source)
		}
	}
	// Go type declarations hold the name on their type_spec child
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child != nil && child.Type() == "type_spec" {
			if name := child.ChildByFieldName(w.lang.NameField); name != nil {
				return name.Content(w.source)
			}
		}
	}
	return types.AnonymousName
}

// Slice cuts source into overlapping windows of at most maxChars bytes.
// Windows advance by maxChars-overlap; overlap is clamped to maxChars/2.
// Window edges are moved back to the nearest rune boundary.
func Slice(source []byte, maxChars, overlap int) []types.CodeUnit {
	if len(source) == 0 {
		return nil
	}
	if maxChars <= 0 {
		maxChars = MaxUnitChars
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap > maxChars/2 {
		overlap = maxChars / 2
	}
	step := maxChars - overlap

	var units []types.CodeUnit
	for start, n := 0, 0; start < len(source); n++ {
		end := start + maxChars
		if end > len(source) {
			end = len(source)
		}
		end = runeBoundary(source, end, start)

		text := source[start:end]
		startLine := 1 + countLines(source[:start])
		units = append(units, types.CodeUnit{
			Content:   string(text),
			StartLine: startLine,
			EndLine:   startLine + countLines(text),
			Name:      types.SliceName(n),
			Kind:      types.UnitSlice,
		})

		if end == len(source) {
			break
		}
		next := runeBoundary(source, start+step, start)
		if next <= start {
			next = end
		}
		start = next
	}
	return units
}

// runeBoundary moves pos back until it sits on a rune start, never below floor+1
func runeBoundary(source []byte, pos, floor int) int {
	if pos >= len(source) {
		return len(source)
	}
	for pos > floor+1 && !utf8.RuneStart(source[pos]) {
		pos--
	}
	return pos
}

func countLines(b []byte) int {
	n := 0
	for _, c := range b {
		if c == '\n' {
			n++
		}
	}
	return n
}
