// Package command builds concrete argument vectors from a command
// template and claimed input records. The placeholder language is a
// small closed set evaluated against the records, not free-form string
// interpolation, so a template is checked once when the run starts.
//
// Placeholders: {} whole record, {.} without extension, {/} basename,
// {//} dirname, {/.} basename without extension, {#} job sequence
// number, {N} the N-th record of a group. A template with no
// placeholder appends the records as trailing arguments.
package command

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/parlcmd/parl/internal/model"
)

// Builder turns one claimed record group into a JobSpec. Implementations
// are chosen once at configuration time; per-job code never branches on
// the execution mode.
type Builder interface {
	Build(recs []model.Record) (model.JobSpec, error)
}

// IndexError reports a {N} placeholder outside the claimed group. The
// job is invalid and fails before spawning.
type IndexError struct {
	Index int
	Len   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("placeholder {%d} out of range: job has %d record(s)", e.Index, e.Len)
}

type partKind int

const (
	partLiteral partKind = iota
	partRecord           // {}
	partNoExt            // {.}
	partBase             // {/}
	partDir              // {//}
	partBaseNoExt        // {/.}
	partSeq              // {#}
	partIndex            // {N}
)

type part struct {
	kind  partKind
	lit   string
	index int // for partIndex, 1-based
}

type token struct {
	parts []part
	// whole is set when the token is exactly one record placeholder, in
	// which case it expands to one argument per claimed record.
	whole bool
}

// Template is a parsed command template.
type Template struct {
	exe     string
	tokens  []token
	implied bool // no placeholder anywhere: append records at the end
	dir     string
}

// New parses the tokenized command once. The first token is the
// executable and is taken literally.
func New(argv []string, workdir string) (*Template, error) {
	if len(argv) == 0 {
		return nil, &model.ParseError{Kind: model.ParseNoArguments}
	}
	t := &Template{exe: argv[0], dir: workdir}
	sawPlaceholder := false
	for _, raw := range argv[1:] {
		tok, err := parseToken(raw)
		if err != nil {
			return nil, err
		}
		for _, p := range tok.parts {
			if p.kind != partLiteral && p.kind != partSeq {
				sawPlaceholder = true
			}
		}
		t.tokens = append(t.tokens, tok)
	}
	t.implied = !sawPlaceholder
	return t, nil
}

// Build substitutes the records into the template. recs must be
// non-empty; the job's sequence number is the first record's.
func (t *Template) Build(recs []model.Record) (model.JobSpec, error) {
	seq := recs[0].Seq
	texts := make([]string, len(recs))
	for i, r := range recs {
		texts[i] = r.Text
	}

	args := make([]string, 0, len(t.tokens)+len(recs)+1)
	args = append(args, t.exe)
	for _, tok := range t.tokens {
		if tok.whole {
			// expand to one argument per record
			transform := tok.parts[0].kind
			for _, text := range texts {
				args = append(args, applyTransform(transform, text))
			}
			continue
		}
		s, err := renderToken(tok, seq, texts)
		if err != nil {
			return model.JobSpec{}, err
		}
		args = append(args, s)
	}
	if t.implied {
		args = append(args, texts...)
	}

	return model.JobSpec{
		Seq:     seq,
		Args:    args,
		Records: recs,
		Dir:     t.dir,
	}, nil
}

func renderToken(tok token, seq int, texts []string) (string, error) {
	var b strings.Builder
	for _, p := range tok.parts {
		switch p.kind {
		case partLiteral:
			b.WriteString(p.lit)
		case partSeq:
			b.WriteString(strconv.Itoa(seq))
		case partIndex:
			if p.index < 1 || p.index > len(texts) {
				return "", &IndexError{Index: p.index, Len: len(texts)}
			}
			b.WriteString(texts[p.index-1])
		default:
			b.WriteString(applyTransform(p.kind, strings.Join(texts, " ")))
		}
	}
	return b.String(), nil
}

func applyTransform(kind partKind, text string) string {
	switch kind {
	case partNoExt:
		return strings.TrimSuffix(text, filepath.Ext(text))
	case partBase:
		return filepath.Base(text)
	case partDir:
		return filepath.Dir(text)
	case partBaseNoExt:
		base := filepath.Base(text)
		return strings.TrimSuffix(base, filepath.Ext(base))
	default:
		return text
	}
}

func parseToken(raw string) (token, error) {
	var tok token
	rest := raw
	for {
		open := strings.Index(rest, "{")
		if open < 0 {
			break
		}
		closing := strings.Index(rest[open:], "}")
		if closing < 0 {
			break
		}
		inner := rest[open+1 : open+closing]
		kind, index, ok := classify(inner)
		if !ok {
			// not a known placeholder, keep it literal up to and
			// including the brace pair
			if open+closing+1 >= len(rest) {
				break
			}
			tok.parts = append(tok.parts, part{kind: partLiteral, lit: rest[:open+closing+1]})
			rest = rest[open+closing+1:]
			continue
		}
		if open > 0 {
			tok.parts = append(tok.parts, part{kind: partLiteral, lit: rest[:open]})
		}
		tok.parts = append(tok.parts, part{kind: kind, index: index})
		rest = rest[open+closing+1:]
	}
	if rest != "" || len(tok.parts) == 0 {
		tok.parts = append(tok.parts, part{kind: partLiteral, lit: rest})
	}

	if len(tok.parts) == 1 {
		switch tok.parts[0].kind {
		case partRecord, partNoExt, partBase, partDir, partBaseNoExt:
			tok.whole = true
		}
	}
	return tok, nil
}

func classify(inner string) (partKind, int, bool) {
	switch inner {
	case "":
		return partRecord, 0, true
	case ".":
		return partNoExt, 0, true
	case "/":
		return partBase, 0, true
	case "//":
		return partDir, 0, true
	case "/.":
		return partBaseNoExt, 0, true
	case "#":
		return partSeq, 0, true
	}
	if n, err := strconv.Atoi(inner); err == nil && n > 0 {
		return partIndex, n, true
	}
	return partLiteral, 0, false
}
