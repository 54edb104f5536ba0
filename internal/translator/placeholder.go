package translator

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Kind 受保护片段类型. Declaration order is detection priority: a kind
// declared earlier claims text before later kinds see it. The two table
// kinds are produced by the table guard, which runs before every rule.
type Kind int

const (
	KindCodeBlock      Kind = iota // ```...```
	KindInlineCode                 // `...`
	KindWikiLink                   // [[page]] / ![[embed]] / [[page|alias]]
	KindMdLink                     // [text](target)
	KindCallout                    // > [!note] ...
	KindTag                        // #tag/nested
	KindBlockRef                   // ^block-id
	KindHTMLTag                    // <tag attr>
	KindFilePath                   // C:\x, /x/y, ./x, ../x
	KindKeyword                    // 用户配置的技术关键词
	KindTablePipe                  // | inside a content row
	KindTableSeparator             // |---|---|
)

var kindTags = [...]string{
	KindCodeBlock:      "CODEBLOCK",
	KindInlineCode:     "INLINECODE",
	KindWikiLink:       "WIKILINK",
	KindMdLink:         "MDLINK",
	KindCallout:        "CALLOUT",
	KindTag:            "TAG",
	KindBlockRef:       "BLOCKREF",
	KindHTMLTag:        "HTMLTAG",
	KindFilePath:       "FILEPATH",
	KindKeyword:        "KEYWORD",
	KindTablePipe:      "PIPE",
	KindTableSeparator: "SEP",
}

var kindNames = [...]string{
	KindCodeBlock:      "code_block",
	KindInlineCode:     "inline_code",
	KindWikiLink:       "wiki_link",
	KindMdLink:         "md_link",
	KindCallout:        "callout",
	KindTag:            "tag",
	KindBlockRef:       "block_ref",
	KindHTMLTag:        "html_tag",
	KindFilePath:       "file_path",
	KindKeyword:        "keyword",
	KindTablePipe:      "table_pipe",
	KindTableSeparator: "table_separator",
}

// String returns the string representation of Kind
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Tag returns the upper-case tag embedded in tokens of this kind.
func (k Kind) Tag() string {
	if k < 0 || int(k) >= len(kindTags) {
		return ""
	}
	return kindTags[k]
}

// kindFromTag maps an embedded tag back to its kind, ignoring case.
func kindFromTag(tag string) (Kind, bool) {
	tag = strings.ToUpper(tag)
	for k, t := range kindTags {
		if t == tag {
			return Kind(k), true
		}
	}
	return 0, false
}

// Span 一个受保护的文本区域. Offsets refer to the text passed to Protect.
type Span struct {
	Kind     Kind
	Original string
	Start    int
	End      int
}

// markerAlphabet holds the letters no kind tag uses, so a marker can never
// be confused with part of a tag.
const markerAlphabet = "XQZJV"

// ordinalWidth is the minimum number of digits in a token ordinal.
const ordinalWidth = 4

// markerCandidates lists the markers tried in order: doubled letters first,
// then mixed pairs, then triples.
func markerCandidates() []string {
	var out []string
	for _, c := range markerAlphabet {
		out = append(out, strings.Repeat(string(c), 2))
	}
	for _, a := range markerAlphabet {
		for _, b := range markerAlphabet {
			if a != b {
				out = append(out, string(a)+string(b))
			}
		}
	}
	for _, a := range markerAlphabet {
		for _, b := range markerAlphabet {
			for _, c := range markerAlphabet {
				out = append(out, string(a)+string(b)+string(c))
			}
		}
	}
	return out
}

// chooseMarker returns the first candidate that does not occur, ignoring
// case, in text or in any keyword.
func chooseMarker(text string, keywords []string) (string, error) {
	haystack := strings.ToUpper(text)
	var kw []string
	for _, k := range keywords {
		kw = append(kw, strings.ToUpper(k))
	}

	for _, m := range markerCandidates() {
		if strings.Contains(haystack, m) {
			continue
		}
		clash := false
		for _, k := range kw {
			if strings.Contains(k, m) {
				clash = true
				break
			}
		}
		if !clash {
			return m, nil
		}
	}
	return "", fmt.Errorf("no placeholder marker is free in this document")
}

// TokenGenerator 生成占位符. It is created per operation and passed down
// explicitly; ordinals increase across all kinds.
type TokenGenerator struct {
	marker string
	next   int
}

// NewTokenGenerator creates a generator with the given marker.
func NewTokenGenerator(marker string) *TokenGenerator {
	return &TokenGenerator{marker: marker, next: 1}
}

// Marker returns the marker embedded in every token.
func (g *TokenGenerator) Marker() string {
	return g.marker
}

// Next returns a fresh token for kind and its ordinal.
func (g *TokenGenerator) Next(kind Kind) (string, int) {
	n := g.next
	g.next++
	return formatToken(g.marker, kind.Tag(), n), n
}

func formatToken(marker, tag string, ordinal int) string {
	return fmt.Sprintf("%s%s%s%0*d%s", marker, tag, marker, ordinalWidth, ordinal, marker)
}

// exactTokenPattern matches well-formed tokens for marker.
func exactTokenPattern(marker string) *regexp.Regexp {
	m := regexp.QuoteMeta(marker)
	return regexp.MustCompile(m + `([A-Z]+)` + m + `([0-9]+)` + m)
}

// Entry 占位符映射项
type Entry struct {
	Token    string
	Kind     Kind
	Original string
	Ordinal  int
}

// Vault maps tokens to the text they replaced. It remembers insertion order
// for display only; restoration never depends on it.
type Vault struct {
	order   []string
	entries map[string]Entry
}

// NewVault creates an empty vault.
func NewVault() *Vault {
	return &Vault{entries: make(map[string]Entry)}
}

// Put stores e under its token.
func (v *Vault) Put(e Entry) {
	if _, ok := v.entries[e.Token]; !ok {
		v.order = append(v.order, e.Token)
	}
	v.entries[e.Token] = e
}

// Get returns the entry for token.
func (v *Vault) Get(token string) (Entry, bool) {
	e, ok := v.entries[token]
	return e, ok
}

// Remove deletes token from the vault.
func (v *Vault) Remove(token string) {
	if _, ok := v.entries[token]; !ok {
		return
	}
	delete(v.entries, token)
	for i, t := range v.order {
		if t == token {
			v.order = append(v.order[:i], v.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of entries.
func (v *Vault) Len() int {
	return len(v.entries)
}

// Entries returns the entries in insertion order.
func (v *Vault) Entries() []Entry {
	out := make([]Entry, 0, len(v.entries))
	for _, t := range v.order {
		if e, ok := v.entries[t]; ok {
			out = append(out, e)
		}
	}
	return out
}

// CountByKind tallies entries per kind.
func (v *Vault) CountByKind() map[Kind]int {
	counts := make(map[Kind]int)
	for _, e := range v.entries {
		counts[e.Kind]++
	}
	return counts
}

// SeparatorEntry 表格分隔行. The line is kept byte for byte.
type SeparatorEntry struct {
	Token   string
	Line    string
	Index   int // line index in the protected input
	Columns int
	Ordinal int
}

// SeparatorSet holds extracted separator lines, apart from the vault.
type SeparatorSet struct {
	items []SeparatorEntry
}

// Put appends a separator entry.
func (s *SeparatorSet) Put(e SeparatorEntry) {
	s.items = append(s.items, e)
}

// Get returns the separator stored under token.
func (s *SeparatorSet) Get(token string) (SeparatorEntry, bool) {
	for _, e := range s.items {
		if e.Token == token {
			return e, true
		}
	}
	return SeparatorEntry{}, false
}

// Remove drops the separator stored under token.
func (s *SeparatorSet) Remove(token string) {
	for i, e := range s.items {
		if e.Token == token {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return
		}
	}
}

// Len returns the number of separators.
func (s *SeparatorSet) Len() int {
	return len(s.items)
}

// Entries returns the separators in document order.
func (s *SeparatorSet) Entries() []SeparatorEntry {
	return append([]SeparatorEntry(nil), s.items...)
}

// Manifest is everything Restore needs to undo one Protect call. It is
// owned by a single operation and discarded afterward.
type Manifest struct {
	Marker     string
	Vault      *Vault
	Separators *SeparatorSet
	Spans      []Span
	CRLF       bool // input had CRLF line endings; Restore writes them back
}

// pending flattens the vault and separators into restorable entries.
func (m *Manifest) pending() map[string]Entry {
	out := make(map[string]Entry, m.Vault.Len()+m.Separators.Len())
	for _, e := range m.Vault.Entries() {
		out[e.Token] = e
	}
	for _, s := range m.Separators.Entries() {
		out[s.Token] = Entry{Token: s.Token, Kind: KindTableSeparator, Original: s.Line, Ordinal: s.Ordinal}
	}
	return out
}

// parseOrdinal converts an ASCII digit run to an int.
func parseOrdinal(digits string) (int, bool) {
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}
