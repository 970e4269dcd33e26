package types

// FileStatus is the outcome of analyzing one file
type FileStatus string

const (
	FileSuccess FileStatus = "success"
	FileFailed  FileStatus = "error"
)

// Finding is one extracted business rule attributed to a source file
type Finding struct {
	FilePath    string `json:"file_path,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description"`
	CodeSnippet string `json:"code_snippet,omitempty"`
}

// UnitOutcome records how one code unit's completion was handled
type UnitOutcome struct {
	Name       string
	Findings   int
	RawOutput  string // kept only when the response could not be parsed
	ParseError string
}

// FileResult is the per-file success/failure record produced by the analysis phase
type FileResult struct {
	FilePath string
	Language string
	RunID    string
	Status   FileStatus
	Findings []Finding
	Units    []UnitOutcome
	Err      error
}

// Succeeded reports whether the file was analyzed successfully
func (r *FileResult) Succeeded() bool {
	return r != nil && r.Status == FileSuccess
}

// NewFailedResult builds a failure record for a file
func NewFailedResult(filePath, language, runID string, err error) *FileResult {
	return &FileResult{
		FilePath: filePath,
		Language: language,
		RunID:    runID,
		Status:   FileFailed,
		Err:      err,
	}
}
