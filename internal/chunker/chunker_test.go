package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/ruleminer/pkg/types"
)

func TestNew(t *testing.T) {
	c := New(nil)
	assert.NotNil(t, c)
	assert.NotNil(t, c.logger)
}

func TestChunk_PythonUnits(t *testing.T) {
	source := `import os
from billing.rates import tax_rate

class Invoice:
    def total(self):
        return self.amount * (1 + tax_rate())

def charge(order):
    if order.amount > 1000:
        raise ValueError("limit exceeded")
    return order.amount
`
	c := New(nil)
	units := c.Chunk([]byte(source), "python", MaxUnitChars)

	require.Len(t, units, 2)

	assert.Equal(t, "Invoice", units[0].Name)
	assert.Equal(t, types.UnitClass, units[0].Kind)
	assert.Equal(t, 4, units[0].StartLine)
	assert.True(t, strings.HasPrefix(units[0].Content, "import os\nfrom billing.rates import tax_rate\n\nclass Invoice:"))

	assert.Equal(t, "charge", units[1].Name)
	assert.Equal(t, types.UnitFunction, units[1].Kind)
	assert.Equal(t, 8, units[1].StartLine)
	assert.Equal(t, 11, units[1].EndLine)
	assert.Contains(t, units[1].Content, "limit exceeded")
}

func TestChunk_OversizedClassIsDescended(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("class Big:\n")
	for i := 0; i < 3; i++ {
		sb.WriteString("    def m")
		sb.WriteString(string(rune('a' + i)))
		sb.WriteString("(self):\n        return ")
		sb.WriteString(strings.Repeat("1 + ", 20))
		sb.WriteString("1\n")
	}

	c := New(nil)
	units := c.Chunk([]byte(sb.String()), "py", 150)

	require.Len(t, units, 3)
	for i, u := range units {
		assert.Equal(t, "m"+string(rune('a'+i)), u.Name)
		assert.Equal(t, types.UnitFunction, u.Kind)
		assert.Less(t, len(u.Content), 150)
	}
}

func TestChunk_GoUnits(t *testing.T) {
	source := `package billing

import "errors"

type Account struct {
	Balance int
}

func (a *Account) Withdraw(n int) error {
	if n > a.Balance {
		return errors.New("insufficient funds")
	}
	a.Balance -= n
	return nil
}
`
	c := New(nil)
	units := c.Chunk([]byte(source), "golang", MaxUnitChars)

	require.Len(t, units, 2)
	assert.Equal(t, "Account", units[0].Name)
	assert.Equal(t, types.UnitType, units[0].Kind)
	assert.Equal(t, "Withdraw", units[1].Name)
	assert.Equal(t, types.UnitMethod, units[1].Kind)
	assert.True(t, strings.HasPrefix(units[1].Content, "package billing\nimport \"errors\"\n\n"))
}

func TestChunk_JavaUnit(t *testing.T) {
	source := `package com.shop;
import java.util.List;

public class Pricing {
    public int discount(int total) {
        if (total > 100) {
            return 10;
        }
        return 0;
    }
}
`
	c := New(nil)
	units := c.Chunk([]byte(source), "java", MaxUnitChars)

	require.Len(t, units, 1)
	assert.Equal(t, "Pricing", units[0].Name)
	assert.Equal(t, types.UnitClass, units[0].Kind)
	assert.Equal(t, 4, units[0].StartLine)
	assert.True(t, strings.HasPrefix(units[0].Content, "package com.shop;\nimport java.util.List;\n\npublic class Pricing"))
	assert.Contains(t, units[0].Content, "return 10;")
}

// A C# namespace is a header node, so its whole body, including the class,
// is repeated in front of every unit.
func TestChunk_CSharpNamespaceInHeader(t *testing.T) {
	source := `using System;
namespace Shop {
    public class Pricing {
        public int Discount(int total) { return total > 100 ? 10 : 0; }
    }
}
`
	c := New(nil)
	units := c.Chunk([]byte(source), "cs", MaxUnitChars)

	require.Len(t, units, 1)
	assert.Equal(t, "Pricing", units[0].Name)
	assert.Equal(t, types.UnitClass, units[0].Kind)
	assert.True(t, strings.HasPrefix(units[0].Content, "using System;\nnamespace Shop {"))
	assert.Equal(t, 2, strings.Count(units[0].Content, "public class Pricing"))
}

func TestChunk_JavaScriptAnonymous(t *testing.T) {
	source := `const apply = (x) => x * 2;
`
	c := New(nil)
	units := c.Chunk([]byte(source), "js", MaxUnitChars)

	require.Len(t, units, 1)
	assert.Equal(t, types.AnonymousName, units[0].Name)
	assert.Equal(t, "arrow_function", units[0].NodeType)
}

func TestChunk_FallbackCases(t *testing.T) {
	tests := []struct {
		name     string
		source   string
		language string
	}{
		{"unknown language", "SELECT * FROM orders;", "sql"},
		{"no splittable nodes", "import os\nx = 1\n", "python"},
		{"empty language", "plain text", ""},
	}

	c := New(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			units := c.Chunk([]byte(tt.source), tt.language, MaxUnitChars)
			require.Len(t, units, 1)
			assert.Equal(t, "part_0", units[0].Name)
			assert.Equal(t, types.UnitSlice, units[0].Kind)
			assert.Equal(t, tt.source, units[0].Content)
		})
	}
}

func TestChunk_Empty(t *testing.T) {
	c := New(nil)
	assert.Empty(t, c.Chunk(nil, "python", MaxUnitChars))
}

func TestSlice_WindowsAndOverlap(t *testing.T) {
	source := []byte(strings.Repeat("x", 2500))
	units := Slice(source, 1000, 500)

	// windows start at 0, 500, 1000, 1500; the last reaches the end
	require.Len(t, units, 4)
	for i, u := range units {
		assert.Equal(t, types.SliceName(i), u.Name)
		assert.LessOrEqual(t, len(u.Content), 1000)
	}
	assert.Len(t, units[3].Content, 1000)
}

func TestSlice_CoversSource(t *testing.T) {
	source := []byte(strings.Repeat("abcdefghij\n", 300))
	units := Slice(source, 1000, SliceOverlap)

	require.NotEmpty(t, units)
	assert.True(t, strings.HasPrefix(string(source), units[0].Content))
	assert.True(t, strings.HasSuffix(string(source), units[len(units)-1].Content))
	assert.Equal(t, 1, units[0].StartLine)
}

func TestSlice_OverlapClampedForSmallLimits(t *testing.T) {
	units := Slice([]byte("abcdefghij"), 4, SliceOverlap)

	// overlap clamps to 2, so windows advance by 2
	require.Len(t, units, 4)
	assert.Equal(t, "abcd", units[0].Content)
	assert.Equal(t, "cdef", units[1].Content)
	assert.Equal(t, "efgh", units[2].Content)
	assert.Equal(t, "ghij", units[3].Content)
}

func TestSlice_RuneBoundaries(t *testing.T) {
	source := []byte(strings.Repeat("é", 100)) // 2 bytes per rune
	units := Slice(source, 31, 10)

	require.NotEmpty(t, units)
	for _, u := range units {
		assert.True(t, utf8.ValidString(u.Content), "slice %s is not valid UTF-8", u.Name)
	}
}

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"py":         "python",
		"Python":     "python",
		"cs":         "c_sharp",
		"c#":         "c_sharp",
		"golang":     "go",
		"ts":         "javascript",
		"typescript": "javascript",
		"rust":       "rust",
	}
	for in, want := range tests {
		assert.Equal(t, want, Normalize(in), in)
	}
}

func TestLanguageForExtension(t *testing.T) {
	tag, ok := LanguageForExtension(".CS")
	assert.True(t, ok)
	assert.Equal(t, "c_sharp", tag)

	_, ok = LanguageForExtension(".rb")
	assert.False(t, ok)
}
