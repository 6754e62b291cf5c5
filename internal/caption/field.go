package caption

import (
	"regexp"
	"strings"
)

// Field enumerates the labeled lines a caption block may carry.
type Field int

// Recognized fields, in the order a line is tested against them.
const (
	FieldProjeto Field = iota
	FieldAtracoes
	FieldLocal
	FieldQuanto
	FieldHorario
)

func (f Field) String() string {
	switch f {
	case FieldProjeto:
		return "projeto"
	case FieldAtracoes:
		return "atracoes"
	case FieldLocal:
		return "local"
	case FieldQuanto:
		return "quanto"
	case FieldHorario:
		return "horario"
	default:
		return "unknown"
	}
}

type fieldPattern struct {
	field  Field
	prefix *regexp.Regexp
}

// fieldPatterns is ordered; the first match wins for a line.
var fieldPatterns = []fieldPattern{
	{FieldProjeto, regexp.MustCompile(`(?i)^projeto:\s*`)},
	{FieldAtracoes, regexp.MustCompile(`(?i)^atra[çc](?:[õo]es|[ãa]o):\s*`)},
	{FieldLocal, regexp.MustCompile(`(?i)^local:\s*`)},
	{FieldQuanto, regexp.MustCompile(`(?i)^quanto:\s*`)},
	{FieldHorario, regexp.MustCompile(`(?i)^hor[áa]rio:\s*`)},
}

// Fields holds the values extracted from one block, keyed by field kind.
type Fields map[Field]string

// Get returns the value of f and whether it was set to a non-empty value.
func (fs Fields) Get(f Field) (string, bool) {
	v, ok := fs[f]
	return v, ok && v != ""
}

// HasTitle reports whether a title-bearing field is present.
func (fs Fields) HasTitle() bool {
	_, projeto := fs.Get(FieldProjeto)
	_, atracoes := fs.Get(FieldAtracoes)
	return projeto || atracoes
}

// matchField tests a trimmed line against the field prefixes and returns the
// value with the prefix stripped.
func matchField(line string) (Field, string, bool) {
	for _, fp := range fieldPatterns {
		loc := fp.prefix.FindStringIndex(line)
		if loc == nil {
			continue
		}
		return fp.field, strings.TrimSpace(line[loc[1]:]), true
	}
	return 0, "", false
}

// ParseBlock extracts labeled fields from every non-blank line of block.
// Unlabeled lines are ignored. A later line with the same label overwrites an
// earlier one. ok is false when neither Projeto nor Atrações is present.
func ParseBlock(block string) (Fields, bool) {
	fields := Fields{}
	for _, raw := range strings.Split(block, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if f, value, ok := matchField(line); ok {
			fields[f] = value
		}
	}
	if !fields.HasTitle() {
		return nil, false
	}
	return fields, true
}
