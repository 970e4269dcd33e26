package parser

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/dshills/ruleminer/pkg/types"
)

// indexPython walks a tree-sitter python tree. Trees containing syntax
// errors still yield every definition the grammar recovered.
func indexPython(content []byte, imports importSet, meta *types.FileMetadata) error {
	p := sitter.NewParser()
	p.SetLanguage(python.GetLanguage())

	tree, err := p.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return fmt.Errorf("%w: tree-sitter parse: %v", types.ErrParse, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return fmt.Errorf("%w: empty tree", types.ErrParse)
	}

	walkPython(root, content, imports, meta)
	return nil
}

func walkPython(n *sitter.Node, src []byte, imports importSet, meta *types.FileMetadata) {
	switch n.Type() {
	case "import_statement":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			imports.add(importedName(n.NamedChild(i), src))
		}
	case "import_from_statement":
		pythonFromImport(n, src, imports)
	case "function_definition":
		meta.Definitions = append(meta.Definitions, pythonFunction(n, src))
	case "class_definition":
		meta.Definitions = append(meta.Definitions, pythonClass(n, src))
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		if child := n.NamedChild(i); child != nil {
			walkPython(child, src, imports, meta)
		}
	}
}

// importedName returns the dotted module of a dotted_name or aliased_import
func importedName(n *sitter.Node, src []byte) string {
	if n == nil {
		return ""
	}
	switch n.Type() {
	case "dotted_name":
		return n.Content(src)
	case "aliased_import":
		if name := n.ChildByFieldName("name"); name != nil {
			return name.Content(src)
		}
	}
	return ""
}

// pythonFromImport records the module of a from-import. A bare relative
// module ("from . import x") records each imported name relative to it.
func pythonFromImport(n *sitter.Node, src []byte, imports importSet) {
	module := n.ChildByFieldName("module_name")
	if module == nil {
		return
	}
	moduleText := module.Content(src)
	if strings.Trim(moduleText, ".") != "" {
		imports.add(moduleText)
		return
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child == nil || child.StartByte() == module.StartByte() {
			continue
		}
		if name := importedName(child, src); name != "" {
			imports.add(moduleText + name)
		}
	}
}

func pythonFunction(n *sitter.Node, src []byte) types.Definition {
	name := types.AnonymousName
	if nameNode := n.ChildByFieldName("name"); nameNode != nil {
		name = nameNode.Content(src)
	}
	return types.Definition{
		Name:      name,
		Kind:      types.DefFunction,
		Signature: fmt.Sprintf("def %s(...)", name),
		Doc:       pythonDocstring(n.ChildByFieldName("body"), src),
	}
}

func pythonClass(n *sitter.Node, src []byte) types.Definition {
	name := types.AnonymousName
	if nameNode := n.ChildByFieldName("name"); nameNode != nil {
		name = nameNode.Content(src)
	}

	var bases []string
	if supers := n.ChildByFieldName("superclasses"); supers != nil {
		for i := 0; i < int(supers.NamedChildCount()); i++ {
			if arg := supers.NamedChild(i); arg != nil && arg.Type() == "identifier" {
				bases = append(bases, arg.Content(src))
			}
		}
	}

	sig := "class " + name
	if len(bases) > 0 {
		sig += "(" + strings.Join(bases, ", ") + ")"
	}

	return types.Definition{
		Name:      name,
		Kind:      types.DefClass,
		Signature: sig,
		Bases:     bases,
	}
}

// pythonDocstring returns the first line of the block's leading string literal
func pythonDocstring(body *sitter.Node, src []byte) string {
	if body == nil || body.NamedChildCount() == 0 {
		return ""
	}
	stmt := body.NamedChild(0)
	if stmt == nil || stmt.Type() != "expression_statement" || stmt.NamedChildCount() == 0 {
		return ""
	}
	lit := stmt.NamedChild(0)
	if lit == nil || lit.Type() != "string" {
		return ""
	}
	return firstLine(unquote(lit.Content(src)))
}

func unquote(s string) string {
	s = strings.TrimLeft(s, "rRuUbBfF")
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(s, q) && strings.HasSuffix(s, q) && len(s) >= 2*len(q) {
			return s[len(q) : len(s)-len(q)]
		}
	}
	return s
}
