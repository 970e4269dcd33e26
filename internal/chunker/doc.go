// Package chunker divides source files into syntactic units for extraction.
//
// Units are cut at grammar boundaries (classes, functions, methods, type
// declarations) using tree-sitter. Each unit carries the file's header
// context, the root-level import and package nodes, so the completion
// service sees which names are in scope.
//
// # Basic Usage
//
//	c := chunker.New(logger)
//	units := c.Chunk(source, "python", chunker.MaxUnitChars)
//	for _, u := range units {
//	    fmt.Printf("%s %s lines %d-%d\n", u.Kind, u.Name, u.StartLine, u.EndLine)
//	}
//
// # Languages
//
// Supported tags are python, java, c_sharp, go and javascript. Aliases
// (py, cs, c#, golang, js, ts) are normalized first. Each language is a row
// in a capability table: the grammar, the node kinds that become units, the
// node kinds that form the header, and the field that holds a unit's name.
//
// # Splitting
//
// The tree is walked from the root. A splittable node smaller than the limit
// is emitted whole and not descended into; a larger one is recursed so its
// methods become units of their own. Nodes without a name field are named
// "anonymous".
//
// # Fallback
//
// When the language is unknown, the grammar fails, or nothing splittable is
// found, the source is cut into windows of maxChars bytes overlapping by
// SliceOverlap, named part_0, part_1, and so on.
package chunker
