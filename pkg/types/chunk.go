package types

import (
	"errors"
	"fmt"
)

// UnitKind represents the syntactic kind of a code unit
type UnitKind string

const (
	UnitClass     UnitKind = "class"
	UnitFunction  UnitKind = "function"
	UnitMethod    UnitKind = "method"
	UnitInterface UnitKind = "interface"
	UnitType      UnitKind = "type"
	UnitSlice     UnitKind = "slice"
	UnitFile      UnitKind = "file"
)

// AnonymousName is assigned to units whose name cannot be located
const AnonymousName = "anonymous"

// CodeUnit is one syntactically-bounded section of a source file, sent to the
// completion service as a single extraction request.
type CodeUnit struct {
	// Content is the unit text with the file's header context prepended
	Content string

	// Location (1-based, inclusive)
	StartLine int
	EndLine   int

	Name string
	Kind UnitKind

	// NodeType is the raw grammar node type the unit was cut from (empty for slices)
	NodeType string
}

// SliceName returns the generated ordinal name for the n-th fallback slice
func SliceName(n int) string {
	return fmt.Sprintf("part_%d", n)
}

// Validate checks that the unit carries content and a sane line range
func (u *CodeUnit) Validate() error {
	if u.Content == "" {
		return errors.New("unit content cannot be empty")
	}

	if u.StartLine <= 0 || u.EndLine <= 0 {
		return errors.New("line numbers must be positive")
	}

	if u.StartLine > u.EndLine {
		return errors.New("start line must be before or equal to end line")
	}

	if u.Name == "" {
		return errors.New("unit name is required")
	}

	return nil
}

// TokenEstimate estimates the number of tokens in the unit (chars / 4)
func (u *CodeUnit) TokenEstimate() int {
	return EstimateTokens(u.Content)
}

// EstimateTokens estimates tokens for text with the chars/4 heuristic
func EstimateTokens(text string) int {
	return len(text) / 4
}
