package extractor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dshills/ruleminer/pkg/types"
)

// rule is one entry of a business_rules array
type rule struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	CodeSnippet string `json:"code_snippet"`
}

// ruleSet is the documented response object. A bare rule in a list is
// accepted as a set of one.
type ruleSet struct {
	BusinessRules []rule `json:"business_rules"`
	rule
}

func (s ruleSet) rules() []rule {
	if len(s.BusinessRules) > 0 {
		return s.BusinessRules
	}
	if s.Title != "" || s.Description != "" {
		return []rule{s.rule}
	}
	return nil
}

// ruleEnvelope holds either a single object or a list, decided by the first
// non-space byte.
type ruleEnvelope struct {
	single *ruleSet
	list   []ruleSet
}

func (e *ruleEnvelope) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("empty response")
	}
	switch trimmed[0] {
	case '{':
		e.single = &ruleSet{}
		return json.Unmarshal(trimmed, e.single)
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return err
		}
		for _, item := range items {
			// non-object elements are skipped
			item = bytes.TrimSpace(item)
			if len(item) == 0 || item[0] != '{' {
				continue
			}
			var s ruleSet
			if err := json.Unmarshal(item, &s); err != nil {
				continue
			}
			e.list = append(e.list, s)
		}
		return nil
	default:
		return fmt.Errorf("response is neither an object nor a list")
	}
}

func (e *ruleEnvelope) findings() []types.Finding {
	var sets []ruleSet
	if e.single != nil {
		sets = []ruleSet{*e.single}
	} else {
		sets = e.list
	}

	var out []types.Finding
	for _, s := range sets {
		for _, r := range s.rules() {
			title := strings.TrimSpace(r.Title)
			desc := strings.TrimSpace(r.Description)
			if title == "" && desc == "" {
				continue
			}
			out = append(out, types.Finding{
				Title:       title,
				Description: desc,
				CodeSnippet: r.CodeSnippet,
			})
		}
	}
	return out
}

// ParseFindings decodes a completion into findings. Markdown code fences
// around the JSON are ignored.
func ParseFindings(raw string) ([]types.Finding, error) {
	var env ruleEnvelope
	if err := json.Unmarshal([]byte(StripCodeFences(raw)), &env); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrParse, err)
	}
	return env.findings(), nil
}

// StripCodeFences removes a surrounding ``` or ```json fence.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
