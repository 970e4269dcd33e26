// Package parser is the static indexer: it extracts a summary node and raw
// import identifiers from a source file without calling the LLM.
//
// The results seed the dependency graph. Each file becomes a node whose
// summary lists its definitions, and each import becomes an outgoing edge.
//
// # Basic Usage
//
//	p := parser.New(logger)
//	meta := p.IndexFile("/repo/billing/invoice.py", "python")
//	if meta.Err != nil {
//	    // meta.Summary reads "Error analyzing /repo/billing/invoice.py"
//	}
//	fmt.Println(meta.Summary)
//
// # Languages
//
// Python is parsed with tree-sitter, Go with go/ast. Every other language,
// and any file a precise parser rejects, goes through a line-oriented regex
// indexer recognising import, from, using, package and require forms and
// class, def, function, public and private declarations.
//
// # Role Hints
//
// Class-like definitions named by domain-driven design conventions get a
// role suffix in the summary: OrderRepository becomes
// "class OrderRepository [repository]". Go structs without a conventional
// suffix but with an ID field are tagged as entities.
//
// # Import Resolution
//
// A Resolver built over a project's file list maps raw identifiers to file
// paths: Python dotted and relative modules, JavaScript relative
// specifiers, Java and C# qualified names, and Go import paths (to every
// file of the package).
package parser
