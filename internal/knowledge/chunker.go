package knowledge

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"unicode"

	"hospital-assistant/pkg"
)

// MinChunkSize drops headings and fragments too short to answer anything.
const MinChunkSize = 30

// restrictedPrefix marks FAQ files only verified patients may retrieve.
const restrictedPrefix = "patient_"

// Chunk is one retrievable section of an FAQ document.
type Chunk struct {
	Content string
	Source  string
	File    string
	Access  pkg.AccessLevel
}

// Public reports whether guests may see the chunk.
func (c Chunk) Public() bool { return c.Access == pkg.AccessPublic }

// SplitSections splits markdown on "## " headings. Text before the first
// heading forms its own section.
func SplitSections(content string) []string {
	var (
		sections []string
		current  []string
	)
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, "## ") && len(current) > 0 {
			sections = append(sections, strings.Join(current, "\n"))
			current = current[:0]
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		sections = append(sections, strings.Join(current, "\n"))
	}
	return sections
}

// SourceLabel turns "insurance_billing.md" into "Insurance Billing".
func SourceLabel(file string) string {
	stem := strings.TrimSuffix(path.Base(file), path.Ext(file))
	words := strings.Fields(strings.ReplaceAll(stem, "_", " "))
	for i, w := range words {
		r := []rune(strings.ToLower(w))
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// LoadFS reads every *.md file at the root of fsys, in name order.
func LoadFS(fsys fs.FS) ([]Chunk, error) {
	names, err := fs.Glob(fsys, "*.md")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	var chunks []Chunk
	for _, name := range names {
		b, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		access := pkg.AccessPublic
		if strings.HasPrefix(name, restrictedPrefix) {
			access = pkg.AccessAll
		}
		source := SourceLabel(name)
		for _, s := range SplitSections(string(b)) {
			s = strings.TrimSpace(s)
			if len(s) < MinChunkSize {
				continue
			}
			chunks = append(chunks, Chunk{Content: s, Source: source, File: name, Access: access})
		}
	}
	return chunks, nil
}
