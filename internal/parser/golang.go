package parser

import (
	"fmt"
	"go/ast"
	goparser "go/parser"
	"go/token"
	"strings"

	"github.com/dshills/ruleminer/pkg/types"
)

// indexGo extracts imports and definitions with go/ast. A syntax error still
// yields the partial AST; only a missing AST is reported as an error.
func indexGo(filePath string, content []byte, imports importSet, meta *types.FileMetadata) error {
	fset := token.NewFileSet()
	file, err := goparser.ParseFile(fset, filePath, content, goparser.ParseComments)
	if file == nil {
		return fmt.Errorf("%w: %v", types.ErrParse, err)
	}

	for _, imp := range file.Imports {
		imports.add(strings.Trim(imp.Path.Value, "\"`"))
	}

	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			meta.Definitions = append(meta.Definitions, goFuncDefinition(d))
		case *ast.GenDecl:
			if d.Tok != token.TYPE {
				continue
			}
			for _, spec := range d.Specs {
				if ts, ok := spec.(*ast.TypeSpec); ok {
					doc := ts.Doc
					if doc == nil {
						doc = d.Doc
					}
					meta.Definitions = append(meta.Definitions, goTypeDefinition(ts, doc))
				}
			}
		}
	}
	return nil
}

func goFuncDefinition(fn *ast.FuncDecl) types.Definition {
	def := types.Definition{
		Name:      fn.Name.Name,
		Kind:      types.DefFunction,
		Signature: funcSignature(fn),
		Doc:       firstLine(docText(fn.Doc)),
	}
	if fn.Recv != nil && len(fn.Recv.List) > 0 {
		def.Kind = types.DefMethod
	}
	return def
}

func goTypeDefinition(ts *ast.TypeSpec, doc *ast.CommentGroup) types.Definition {
	def := types.Definition{
		Name: ts.Name.Name,
		Doc:  firstLine(docText(doc)),
	}

	switch t := ts.Type.(type) {
	case *ast.StructType:
		def.Kind = types.DefClass
		fields := 0
		if t.Fields != nil {
			fields = t.Fields.NumFields()
		}
		def.Signature = fmt.Sprintf("type %s struct { ... } // %d fields", ts.Name.Name, fields)
		if roleForName(ts.Name.Name) == "" && hasIdentityField(t) {
			def.Role = RoleEntity
		}
	case *ast.InterfaceType:
		def.Kind = types.DefInterface
		methods := 0
		if t.Methods != nil {
			methods = t.Methods.NumFields()
		}
		def.Signature = fmt.Sprintf("type %s interface { ... } // %d methods", ts.Name.Name, methods)
	default:
		def.Kind = types.DefType
		def.Signature = fmt.Sprintf("type %s %s", ts.Name.Name, exprToString(ts.Type))
	}
	return def
}

// funcSignature renders func (Recv) Name(params) results
func funcSignature(fn *ast.FuncDecl) string {
	var sig strings.Builder

	sig.WriteString("func ")
	if fn.Recv != nil && len(fn.Recv.List) > 0 {
		sig.WriteString("(")
		sig.WriteString(exprToString(fn.Recv.List[0].Type))
		sig.WriteString(") ")
	}

	sig.WriteString(fn.Name.Name)
	sig.WriteString("(")
	sig.WriteString(fieldListToString(fn.Type.Params))
	sig.WriteString(")")

	if fn.Type.Results != nil {
		results := fieldListToString(fn.Type.Results)
		if results != "" {
			if fn.Type.Results.NumFields() > 1 {
				sig.WriteString(" (" + results + ")")
			} else {
				sig.WriteString(" " + results)
			}
		}
	}

	return sig.String()
}

func fieldListToString(fieldList *ast.FieldList) string {
	if fieldList == nil || len(fieldList.List) == 0 {
		return ""
	}

	var parts []string
	for _, field := range fieldList.List {
		typeStr := exprToString(field.Type)
		if len(field.Names) == 0 {
			parts = append(parts, typeStr)
			continue
		}
		for _, name := range field.Names {
			parts = append(parts, name.Name+" "+typeStr)
		}
	}
	return strings.Join(parts, ", ")
}

func exprToString(expr ast.Expr) string {
	switch t := expr.(type) {
	case nil:
		return ""
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return "*" + exprToString(t.X)
	case *ast.ArrayType:
		return "[]" + exprToString(t.Elt)
	case *ast.MapType:
		return fmt.Sprintf("map[%s]%s", exprToString(t.Key), exprToString(t.Value))
	case *ast.ChanType:
		return "chan " + exprToString(t.Value)
	case *ast.FuncType:
		return "func(...)"
	case *ast.InterfaceType:
		return "interface{}"
	case *ast.SelectorExpr:
		return exprToString(t.X) + "." + t.Sel.Name
	case *ast.Ellipsis:
		return "..." + exprToString(t.Elt)
	case *ast.IndexExpr:
		return exprToString(t.X) + "[" + exprToString(t.Index) + "]"
	default:
		return "..."
	}
}

func docText(doc *ast.CommentGroup) string {
	if doc == nil {
		return ""
	}
	return doc.Text()
}

func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
