package chunker

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/csharp"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/dshills/ruleminer/pkg/types"
)

// Language describes how one grammar is split into units
type Language struct {
	Tag          string
	Grammar      func() *sitter.Language
	SplitKinds   map[string]types.UnitKind
	ContextKinds map[string]bool
	NameField    string
}

var languages = map[string]*Language{
	"python": {
		Tag:     "python",
		Grammar: python.GetLanguage,
		SplitKinds: map[string]types.UnitKind{
			"class_definition":     types.UnitClass,
			"function_definition":  types.UnitFunction,
			"decorated_definition": types.UnitFunction,
		},
		ContextKinds: set("import_statement", "import_from_statement"),
		NameField:    "name",
	},
	"java": {
		Tag:     "java",
		Grammar: java.GetLanguage,
		SplitKinds: map[string]types.UnitKind{
			"class_declaration":     types.UnitClass,
			"method_declaration":    types.UnitMethod,
			"interface_declaration": types.UnitInterface,
			"enum_declaration":      types.UnitType,
		},
		ContextKinds: set("import_declaration", "package_declaration"),
		NameField:    "name",
	},
	"c_sharp": {
		Tag:     "c_sharp",
		Grammar: csharp.GetLanguage,
		SplitKinds: map[string]types.UnitKind{
			"class_declaration":     types.UnitClass,
			"method_declaration":    types.UnitMethod,
			"interface_declaration": types.UnitInterface,
			"struct_declaration":    types.UnitType,
		},
		ContextKinds: set("using_directive", "namespace_declaration"),
		NameField:    "name",
	},
	"go": {
		Tag:     "go",
		Grammar: golang.GetLanguage,
		SplitKinds: map[string]types.UnitKind{
			"function_declaration": types.UnitFunction,
			"method_declaration":   types.UnitMethod,
			"type_declaration":     types.UnitType,
		},
		ContextKinds: set("import_declaration", "package_clause"),
		NameField:    "name",
	},
	"javascript": {
		Tag:     "javascript",
		Grammar: javascript.GetLanguage,
		SplitKinds: map[string]types.UnitKind{
			"class_declaration":    types.UnitClass,
			"function_declaration": types.UnitFunction,
			"method_definition":    types.UnitMethod,
			"arrow_function":       types.UnitFunction,
		},
		ContextKinds: set("import_statement", "export_statement", "lexical_declaration", "variable_declaration"),
		NameField:    "name",
	},
}

var aliases = map[string]string{
	"py":         "python",
	"cs":         "c_sharp",
	"c#":         "c_sharp",
	"csharp":     "c_sharp",
	"golang":     "go",
	"js":         "javascript",
	"ts":         "javascript",
	"typescript": "javascript",
}

// extensions maps file extensions to canonical language tags
var extensions = map[string]string{
	".py":   "python",
	".java": "java",
	".cs":   "c_sharp",
	".go":   "go",
	".js":   "javascript",
	".jsx":  "javascript",
	".mjs":  "javascript",
	".ts":   "javascript",
	".tsx":  "javascript",
}

func set(kinds ...string) map[string]bool {
	m := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		m[k] = true
	}
	return m
}

// Normalize maps a language tag or alias to its canonical tag.
// Unknown tags are returned lower-cased.
func Normalize(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if canonical, ok := aliases[tag]; ok {
		return canonical
	}
	return tag
}

// Lookup returns the language entry for a tag or alias
func Lookup(tag string) (*Language, bool) {
	lang, ok := languages[Normalize(tag)]
	return lang, ok
}

// LanguageForExtension returns the canonical tag for a file extension (with dot)
func LanguageForExtension(ext string) (string, bool) {
	tag, ok := extensions[strings.ToLower(ext)]
	return tag, ok
}
