// Package pipeline runs the four analysis phases over a set of codebases:
//
//  1. Discovery resolves each codebase to a local root, registers a run and
//     enumerates its source files.
//  2. Indexing stores a summary node per file and an edge per import in the
//     dependency graph, sequentially and before any analysis starts.
//  3. Analysis extracts business rules from every file of every run behind a
//     single concurrency gate of MaxConcurrentJobs. A failing file is counted
//     and logged; it never fails its run or its siblings.
//  4. Reporting generates one report per run and moves it to COMPLETED, or to
//     FAILED when the report cannot be produced.
//
// Codebases that fail validation or source resolution are skipped and listed
// in Summary.Skipped. When ctx is cancelled, every run still in flight is
// marked FAILED before Run returns ctx.Err().
package pipeline
