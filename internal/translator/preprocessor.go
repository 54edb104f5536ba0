// Package translator protects Markdown markup from an external text
// transform and restores it afterward.
package translator

import (
	"regexp"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"md-translator/internal/logger"
	"md-translator/internal/types"
)

// Rule 一条检测规则
type Rule struct {
	Kind    Kind
	Pattern *regexp.Regexp
	Group   int  // submatch to protect, 0 is the whole match
	Runs    bool // run-like span: cut at the next token instead of swallowing it
	Bounded [2]bool
}

// builtinRules are the markup rules, in Kind order.
var builtinRules = []Rule{
	{Kind: KindCodeBlock, Pattern: regexp.MustCompile("```[\\s\\S]*?```|~~~[\\s\\S]*?~~~")},
	{Kind: KindInlineCode, Pattern: regexp.MustCompile("`[^`\n]+`")},
	{Kind: KindWikiLink, Pattern: regexp.MustCompile(`!?\[\[[^\[\]\n]+\]\]`)},
	{Kind: KindMdLink, Pattern: regexp.MustCompile(`!?\[[^\]\n]*\]\([^)\n]+\)`)},
	{Kind: KindCallout, Pattern: regexp.MustCompile(`(?m)^>[ \t]*\[![\w-]+\][^\n]*`)},
	{Kind: KindTag, Pattern: regexp.MustCompile(`#[\w/-]+`), Runs: true},
	{Kind: KindBlockRef, Pattern: regexp.MustCompile(`\^[\w-]+`), Runs: true},
	{Kind: KindHTMLTag, Pattern: regexp.MustCompile(`<[^<>\n]+>`)},
	{
		// POSIX paths need a leading space or paren so "and/or" stays prose
		Kind: KindFilePath,
		Pattern: regexp.MustCompile(`(?m)(?:^|[\s(])(` +
			`[A-Za-z]:\\(?:[^\s\\/:*?"<>|]+\\)*[^\s\\/:*?"<>|]*` +
			`|\.{1,2}/(?:[^\s/]+/)*[^\s/]*` +
			`|/(?:[^\s/]+/)*[^\s/]+)`),
		Group: 1,
		Runs:  true,
	},
}

// keywordRuleCache keeps compiled keyword rules per keyword list.
var keywordRuleCache, _ = lru.New[string, []Rule](32)

// keywordRules builds one case-insensitive rule per keyword, longest first.
// Word boundaries are enforced only on the sides where the keyword starts or
// ends with a word character.
func keywordRules(keywords []string) []Rule {
	key := strings.Join(keywords, "\x1f")
	if rules, ok := keywordRuleCache.Get(key); ok {
		return rules
	}

	seen := make(map[string]bool)
	var list []string
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" || seen[strings.ToLower(k)] {
			continue
		}
		seen[strings.ToLower(k)] = true
		list = append(list, k)
	}
	sort.SliceStable(list, func(i, j int) bool { return len(list[i]) > len(list[j]) })

	rules := make([]Rule, 0, len(list))
	for _, k := range list {
		rules = append(rules, Rule{
			Kind:    KindKeyword,
			Pattern: regexp.MustCompile(`(?i)` + regexp.QuoteMeta(k)),
			Bounded: [2]bool{isWordByte(k[0]), isWordByte(k[len(k)-1])},
		})
	}
	keywordRuleCache.Add(key, rules)
	return rules
}

func isWordByte(b byte) bool {
	return b == '_' || ('0' <= b && b <= '9') || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z')
}

// Detector 片段检测器
type Detector struct {
	keywords    []string
	rules       []Rule
	GuardTables bool
}

// NewDetector creates a detector for the built-in rules plus keywords.
func NewDetector(keywords []string) *Detector {
	rules := make([]Rule, 0, len(builtinRules)+len(keywords))
	rules = append(rules, builtinRules...)
	rules = append(rules, keywordRules(keywords)...)
	return &Detector{
		keywords:    keywords,
		rules:       rules,
		GuardTables: true,
	}
}

// Rules returns the ordered rule list.
func (d *Detector) Rules() []Rule {
	return append([]Rule(nil), d.rules...)
}

// Detect returns the spans Protect would substitute, ordered by offset.
func (d *Detector) Detect(text string) ([]Span, error) {
	_, m, err := d.Protect(text)
	if err != nil {
		return nil, err
	}
	return m.Spans, nil
}

// Protect replaces every protected span of text with a token. The table
// guard runs first, then each rule in priority order.
func (d *Detector) Protect(text string) (string, *Manifest, error) {
	text, crlf := toLF(text)
	marker, err := chooseMarker(text, d.keywords)
	if err != nil {
		logger.Error("failed to choose placeholder marker", err, logger.Int("length", len(text)))
		return "", nil, types.NewAppError(types.ErrInternal, "failed to choose placeholder marker", err)
	}

	p := newProtection(marker)
	safe := text
	if d.GuardTables {
		safe = p.guardTables(safe)
	}
	for _, r := range d.rules {
		safe = p.applyRule(r, safe)
	}

	m := &Manifest{
		Marker:     marker,
		Vault:      p.vault,
		Separators: p.seps,
		Spans:      p.sortedSpans(),
		CRLF:       crlf,
	}

	logger.Debug("markup protected",
		logger.String("marker", marker),
		logger.Int("tokens", m.Vault.Len()),
		logger.Int("separators", m.Separators.Len()),
		logger.Int("spans", len(m.Spans)))
	return safe, m, nil
}

// toLF rewrites CRLF line endings to LF when every line break is CRLF.
// Mixed endings are left alone; the line scan tolerates a trailing "\r".
func toLF(text string) (string, bool) {
	n := strings.Count(text, "\r\n")
	if n == 0 || n != strings.Count(text, "\n") {
		return text, false
	}
	return strings.ReplaceAll(text, "\r\n", "\n"), true
}

// withLineEnding undoes toLF.
func withLineEnding(text string, crlf bool) string {
	if !crlf {
		return text
	}
	return strings.ReplaceAll(text, "\n", "\r\n")
}

// protection is the state of one Protect call.
type protection struct {
	marker  string
	gen     *TokenGenerator
	vault   *Vault
	seps    *SeparatorSet
	spans   map[string]Span
	tokenRE *regexp.Regexp
}

func newProtection(marker string) *protection {
	return &protection{
		marker:  marker,
		gen:     NewTokenGenerator(marker),
		vault:   NewVault(),
		seps:    &SeparatorSet{},
		spans:   make(map[string]Span),
		tokenRE: exactTokenPattern(marker),
	}
}

// originalOf returns what a live token stands for.
func (p *protection) originalOf(tok string) string {
	if e, ok := p.vault.Get(tok); ok {
		return e.Original
	}
	if s, ok := p.seps.Get(tok); ok {
		return s.Line
	}
	return tok
}

// expand folds the tokens inside s back into their originals and drops
// them, so a vault original never contains a token.
func (p *protection) expand(s string) string {
	if !strings.Contains(s, p.marker) {
		return s
	}
	return p.tokenRE.ReplaceAllStringFunc(s, func(tok string) string {
		if e, ok := p.vault.Get(tok); ok {
			p.vault.Remove(tok)
			delete(p.spans, tok)
			return e.Original
		}
		if sep, ok := p.seps.Get(tok); ok {
			p.seps.Remove(tok)
			delete(p.spans, tok)
			return sep.Line
		}
		return tok
	})
}

type hit struct {
	start, end int
}

// applyRule substitutes every accepted match of r. Tokens are numbered
// left to right and substituted right to left.
func (p *protection) applyRule(r Rule, text string) string {
	matches := r.Pattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text
	}
	toks := p.tokenRE.FindAllStringIndex(text, -1)

	hits := make([]hit, 0, len(matches))
	for _, mt := range matches {
		s, e := mt[2*r.Group], mt[2*r.Group+1]
		if s < 0 || e <= s || tokenAt(toks, s) >= 0 {
			continue
		}
		if r.Runs {
			e = cutAtToken(toks, s, e)
			if e-s < 2 {
				continue
			}
		} else if i := tokenAt(toks, e-1); i >= 0 && toks[i][1] > e {
			continue
		}
		if r.Kind == KindKeyword && !p.bounded(r, text, toks, s, e) {
			continue
		}
		hits = append(hits, hit{s, e})
	}
	if len(hits) == 0 {
		return text
	}

	// 计算原文偏移 before folding removes anything
	starts := make([]int, len(hits))
	j, delta := 0, 0
	for i, h := range hits {
		for j < len(toks) && toks[j][1] <= h.start {
			tok := text[toks[j][0]:toks[j][1]]
			delta += len(p.originalOf(tok)) - len(tok)
			j++
		}
		starts[i] = h.start + delta
	}

	tokens := make([]string, len(hits))
	for i, h := range hits {
		original := p.expand(text[h.start:h.end])
		tok, n := p.gen.Next(r.Kind)
		p.vault.Put(Entry{Token: tok, Kind: r.Kind, Original: original, Ordinal: n})
		p.spans[tok] = Span{Kind: r.Kind, Original: original, Start: starts[i], End: starts[i] + len(original)}
		tokens[i] = tok
	}

	// 从后向前替换
	pieces := make([]string, 0, 2*len(hits)+1)
	last := len(text)
	for i := len(hits) - 1; i >= 0; i-- {
		pieces = append(pieces, text[hits[i].end:last], tokens[i])
		last = hits[i].start
	}
	pieces = append(pieces, text[:last])

	var sb strings.Builder
	sb.Grow(len(text))
	for i := len(pieces) - 1; i >= 0; i-- {
		sb.WriteString(pieces[i])
	}

	logger.Debug("rule applied",
		logger.String("kind", r.Kind.String()),
		logger.Int("matches", len(hits)))
	return sb.String()
}

// tokenAt returns the index of the token covering pos, or -1.
func tokenAt(toks [][]int, pos int) int {
	i := sort.Search(len(toks), func(i int) bool { return toks[i][1] > pos })
	if i < len(toks) && toks[i][0] <= pos {
		return i
	}
	return -1
}

// cutAtToken shortens [s,e) to end at the first token starting inside it.
func cutAtToken(toks [][]int, s, e int) int {
	i := sort.Search(len(toks), func(i int) bool { return toks[i][0] > s })
	if i < len(toks) && toks[i][0] < e {
		return toks[i][0]
	}
	return e
}

// bounded checks the keyword word boundaries. A neighbouring token counts
// as the text it stands for.
func (p *protection) bounded(r Rule, text string, toks [][]int, s, e int) bool {
	if r.Bounded[0] && s > 0 {
		prev := text[s-1]
		if i := tokenAt(toks, s-1); i >= 0 {
			orig := p.originalOf(text[toks[i][0]:toks[i][1]])
			prev = orig[len(orig)-1]
		}
		if isWordByte(prev) {
			return false
		}
	}
	if r.Bounded[1] && e < len(text) {
		next := text[e]
		if i := tokenAt(toks, e); i >= 0 {
			next = p.originalOf(text[toks[i][0]:toks[i][1]])[0]
		}
		if isWordByte(next) {
			return false
		}
	}
	return true
}

func (p *protection) sortedSpans() []Span {
	spans := make([]Span, 0, len(p.spans))
	for _, s := range p.spans {
		spans = append(spans, s)
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
	return spans
}
