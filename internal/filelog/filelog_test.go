package filelog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmem/substrate/internal/model"
	"github.com/agentmem/substrate/internal/parser"
)

func testFile() *model.File {
	return &model.File{
		Envelope: model.Envelope{ID: "file-1", Kind: model.KindFile, ProjectID: "proj-1"},
		Path:     "src/auth.py",
		Language: "python",
	}
}

func TestGenerateSections(t *testing.T) {
	symbols := []parser.Symbol{
		{Name: "authenticate_user", Kind: parser.SymbolFunction, StartLine: 4, Doc: "Check a user's password.", Signature: "def authenticate_user(u, p)", Exported: true},
		{Name: "hash_password", Kind: parser.SymbolFunction, StartLine: 9, Signature: "def hash_password(p)", Exported: true},
		{Name: "_salt", Kind: parser.SymbolVariable, StartLine: 1},
	}
	deps := []parser.Dependency{
		{Kind: parser.DependencyImports, Target: "hashlib"},
		{Kind: parser.DependencyImports, Target: "hashlib"}, // duplicate
		{Kind: parser.DependencyCalls, SourceName: "authenticate_user", Target: "hash_password"},
	}

	log := Generate(testFile(), symbols, deps)

	assert.Equal(t, "file-1", log.FileID)
	assert.Equal(t, "src/auth.py", log.Path)
	assert.Equal(t, model.KindFileLog, log.Kind)

	// Fixed section order
	md := log.Markdown
	pIdx := strings.Index(md, "## Purpose")
	sIdx := strings.Index(md, "## Key Symbols")
	dIdx := strings.Index(md, "## Dependencies")
	nIdx := strings.Index(md, "## Notes")
	require.True(t, pIdx >= 0 && sIdx > pIdx && dIdx > sIdx && nIdx > dIdx)

	// Purpose is the first docstring
	assert.Contains(t, md, "Check a user's password.")

	// Exported symbols first
	require.Len(t, log.KeySymbols, 3)
	assert.Equal(t, "authenticate_user", log.KeySymbols[0])
	assert.Equal(t, "hash_password", log.KeySymbols[1])

	// Imports deduplicated; calls excluded
	assert.Equal(t, []string{"hashlib"}, log.Dependencies)
}

func TestGenerateEmptyFile(t *testing.T) {
	log := Generate(testFile(), nil, nil)
	assert.Contains(t, log.Markdown, "Source file `auth.py` in `src`.")
	assert.Contains(t, log.Markdown, "(none)")
	assert.Empty(t, log.KeySymbols)
	assert.Empty(t, log.Dependencies)
}

func TestGenerateCapsKeySymbols(t *testing.T) {
	var symbols []parser.Symbol
	for i := 0; i < 40; i++ {
		symbols = append(symbols, parser.Symbol{
			Name:      "sym" + string(rune('a'+i%26)) + string(rune('a'+i/26)),
			Kind:      parser.SymbolFunction,
			StartLine: i + 1,
			Exported:  i%2 == 0,
		})
	}
	log := Generate(testFile(), symbols, nil)
	assert.Len(t, log.KeySymbols, 20)
}

func TestIDForIsStable(t *testing.T) {
	assert.Equal(t, IDFor("file-1"), IDFor("file-1"))
	assert.NotEqual(t, IDFor("file-1"), IDFor("file-2"))
}
