package parser

import (
	"go/ast"
	"strings"

	"github.com/dshills/ruleminer/pkg/types"
)

// Architectural role hints attached to class-like definitions
const (
	RoleAggregate   = "aggregate"
	RoleEntity      = "entity"
	RoleValueObject = "value object"
	RoleRepository  = "repository"
	RoleService     = "service"
	RoleCommand     = "command"
	RoleQuery       = "query"
	RoleHandler     = "handler"
)

var roleSuffixes = []struct {
	suffixes []string
	role     string
}{
	{[]string{"AggregateRoot", "Aggregate"}, RoleAggregate},
	{[]string{"Entity"}, RoleEntity},
	{[]string{"ValueObject", "VO"}, RoleValueObject},
	{[]string{"Repository", "Repo"}, RoleRepository},
	{[]string{"Service"}, RoleService},
	{[]string{"Command", "Cmd"}, RoleCommand},
	{[]string{"Query"}, RoleQuery},
	{[]string{"Handler"}, RoleHandler},
}

// annotateRole sets the role hint on class, interface and type definitions
// whose names follow domain-driven design conventions.
func annotateRole(def *types.Definition) {
	if def.Role != "" {
		return
	}
	switch def.Kind {
	case types.DefClass, types.DefInterface, types.DefType:
		def.Role = roleForName(def.Name)
	}
}

func roleForName(name string) string {
	for _, rs := range roleSuffixes {
		for _, suffix := range rs.suffixes {
			if strings.HasSuffix(name, suffix) && name != suffix {
				return rs.role
			}
		}
	}
	return ""
}

// hasIdentityField reports whether a struct declares an ID-like field
func hasIdentityField(st *ast.StructType) bool {
	if st.Fields == nil {
		return false
	}
	for _, field := range st.Fields.List {
		for _, name := range field.Names {
			lower := strings.ToLower(name.Name)
			if lower == "id" || strings.HasSuffix(name.Name, "ID") {
				return true
			}
		}
	}
	return false
}
