// Package types provides shared type definitions for the ruleminer pipeline.
//
// The types here cross package boundaries: the chunker produces CodeUnits,
// the static indexer produces FileMetadata, the extraction worker produces
// FileResults carrying Findings, and the orchestrator drives RunStatus.
//
// # Code Units
//
// A CodeUnit is one syntactically-bounded section of a file with the file's
// header context (imports, package declaration) prepended:
//
//	unit := types.CodeUnit{
//	    Content:   "import os\n\ndef charge(order): ...",
//	    StartLine: 12,
//	    EndLine:   40,
//	    Name:      "charge",
//	    Kind:      types.UnitFunction,
//	}
//
// Files without a usable grammar are sliced into fixed windows named
// part_0, part_1, ... with kind UnitSlice.
//
// # Graph Nodes
//
// FileMetadata.BuildSummary renders the node text that is injected into the
// context of every file depending on it. At most MaxSummaryDefinitions
// definitions are listed, followed by "... (more)" when truncated.
//
// # Run Lifecycle
//
// RunStatus encodes the analysis run state machine:
//
//	IN_PROGRESS -> ANALYZING -> REPORTING -> COMPLETED
//	      \____________\____________\______-> FAILED
//
// CanTransition is the single source of truth for legal moves; storage
// rejects anything else.
//
// # Failure Taxonomy
//
// ErrParse, ErrCompletion, ErrRateLimited, ErrPersistence, ErrConfiguration
// and ErrUnexpected classify failures with errors.Is. ErrRateLimited is also
// an ErrCompletion.
package types
