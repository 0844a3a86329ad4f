// Package filelog synthesizes the per-file Markdown summary record from
// a file's parsed symbols and dependencies. The summary has four fixed
// sections in order: purpose, key symbols, dependencies, notes.
package filelog

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/agentmem/substrate/internal/model"
	"github.com/agentmem/substrate/internal/parser"
)

const (
	maxKeySymbols   = 20
	maxDependencies = 30
)

// Generate builds the FileLog record for file from its parse result.
// The Markdown summary is also the record's embedding input.
func Generate(file *model.File, symbols []parser.Symbol, deps []parser.Dependency) *model.FileLog {
	keySymbols := selectKeySymbols(symbols)
	depStrings := collectDependencies(deps)

	var md strings.Builder
	fmt.Fprintf(&md, "# %s\n\n", file.Path)

	md.WriteString("## Purpose\n\n")
	md.WriteString(purposeOf(file.Path, symbols))
	md.WriteString("\n\n")

	md.WriteString("## Key Symbols\n\n")
	if len(keySymbols) == 0 {
		md.WriteString("(none)\n")
	}
	for _, name := range keySymbols {
		sym := symbolByName(symbols, name)
		if sym != nil && sym.Signature != "" {
			fmt.Fprintf(&md, "- `%s` (%s, line %d)\n", sym.Signature, sym.Kind, sym.StartLine)
		} else if sym != nil {
			fmt.Fprintf(&md, "- `%s` (%s, line %d)\n", name, sym.Kind, sym.StartLine)
		} else {
			fmt.Fprintf(&md, "- `%s`\n", name)
		}
	}
	md.WriteString("\n")

	md.WriteString("## Dependencies\n\n")
	if len(depStrings) == 0 {
		md.WriteString("(none)\n")
	}
	for _, d := range depStrings {
		fmt.Fprintf(&md, "- %s\n", d)
	}
	md.WriteString("\n")

	md.WriteString("## Notes\n")

	return &model.FileLog{
		Envelope: model.Envelope{
			ID:        IDFor(file.ID),
			Kind:      model.KindFileLog,
			TenantID:  file.TenantID,
			ProjectID: file.ProjectID,
		},
		FileID:       file.ID,
		Path:         file.Path,
		Markdown:     md.String(),
		KeySymbols:   keySymbols,
		Dependencies: depStrings,
	}
}

// IDFor derives the FileLog id from its owning file id; one log per file.
func IDFor(fileID string) string {
	sum := sha256.Sum256([]byte("filelog:" + fileID))
	return hex.EncodeToString(sum[:16])
}

// purposeOf is the first non-empty docstring in the file, else a
// heuristic line based on the file path.
func purposeOf(filePath string, symbols []parser.Symbol) string {
	best := -1
	for i, s := range symbols {
		if strings.TrimSpace(s.Doc) == "" {
			continue
		}
		if best == -1 || s.StartLine < symbols[best].StartLine {
			best = i
		}
	}
	if best >= 0 {
		return firstLine(symbols[best].Doc)
	}

	base := path.Base(filePath)
	dir := path.Dir(filePath)
	if dir == "." || dir == "/" {
		return fmt.Sprintf("Source file `%s`.", base)
	}
	return fmt.Sprintf("Source file `%s` in `%s`.", base, dir)
}

// selectKeySymbols picks up to 20 symbols, preferring exported ones,
// breaking ties by earliest line.
func selectKeySymbols(symbols []parser.Symbol) []string {
	sorted := make([]parser.Symbol, len(symbols))
	copy(sorted, symbols)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Exported != sorted[j].Exported {
			return sorted[i].Exported
		}
		return sorted[i].StartLine < sorted[j].StartLine
	})

	var out []string
	seen := map[string]bool{}
	for _, s := range sorted {
		if s.Name == "" || seen[s.Name] {
			continue
		}
		seen[s.Name] = true
		out = append(out, s.Name)
		if len(out) >= maxKeySymbols {
			break
		}
	}
	return out
}

// collectDependencies returns the deduplicated import strings, up to 30,
// in first-seen order.
func collectDependencies(deps []parser.Dependency) []string {
	var out []string
	seen := map[string]bool{}
	for _, d := range deps {
		if d.Kind != parser.DependencyImports || d.Target == "" || seen[d.Target] {
			continue
		}
		seen[d.Target] = true
		out = append(out, d.Target)
		if len(out) >= maxDependencies {
			break
		}
	}
	return out
}

func symbolByName(symbols []parser.Symbol, name string) *parser.Symbol {
	for i := range symbols {
		if symbols[i].Name == name {
			return &symbols[i]
		}
	}
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	return s
}
