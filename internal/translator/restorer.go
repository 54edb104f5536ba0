package translator

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/width"

	"md-translator/internal/logger"
	"md-translator/internal/validator"
)

// Strategy names, in cascade order.
const (
	LevelExact    = "exact"
	LevelTolerant = "tolerant"
	LevelSalvage  = "salvage"
	LevelRebuild  = "rebuild"
)

// Strategy 恢复策略. Apply resolves what it can of the outstanding entries
// and reports how many it resolved and whether nothing is left.
type Strategy interface {
	Name() string
	Apply(text string, st *restoreState) (string, int, bool)
}

// restoreState is the bookkeeping of one Restore call.
type restoreState struct {
	manifest *Manifest
	pending  map[string]Entry
}

func (st *restoreState) resolve(tok string) {
	delete(st.pending, tok)
}

func (st *restoreState) done() bool {
	return len(st.pending) == 0
}

// sortedPending returns outstanding entries by ordinal, for deterministic
// iteration.
func (st *restoreState) sortedPending() []Entry {
	out := make([]Entry, 0, len(st.pending))
	for _, e := range st.pending {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out
}

// RestorationReport 恢复报告
type RestorationReport struct {
	Total      int            `json:"total"`
	Resolved   map[string]int `json:"resolved"`   // per strategy
	Unresolved map[string]int `json:"unresolved"` // per kind
}

func newReport(total int) *RestorationReport {
	return &RestorationReport{
		Total:      total,
		Resolved:   make(map[string]int),
		Unresolved: make(map[string]int),
	}
}

// Shortfall returns how many entries stayed unresolved.
func (r *RestorationReport) Shortfall() int {
	n := 0
	for _, c := range r.Unresolved {
		n += c
	}
	return n
}

// Heuristic reports whether salvage or rebuild had to step in.
func (r *RestorationReport) Heuristic() bool {
	return r.Resolved[LevelSalvage] > 0 || r.Resolved[LevelRebuild] > 0
}

// NeedsRepair reports whether the structural repair pass should run.
func (r *RestorationReport) NeedsRepair() bool {
	return r.Shortfall() > 0 || r.Heuristic()
}

// Merge adds o into r.
func (r *RestorationReport) Merge(o *RestorationReport) {
	if o == nil {
		return
	}
	r.Total += o.Total
	for k, v := range o.Resolved {
		r.Resolved[k] += v
	}
	for k, v := range o.Unresolved {
		r.Unresolved[k] += v
	}
}

// Restorer runs a chain of strategies, each seeing only what the previous
// ones left unresolved.
type Restorer struct {
	strategies []Strategy
}

// NewRestorer creates a restorer with the given chain.
func NewRestorer(strategies ...Strategy) *Restorer {
	return &Restorer{strategies: strategies}
}

// DefaultRestorer is exact, tolerant, salvage, rebuild.
func DefaultRestorer() *Restorer {
	return NewRestorer(ExactStrategy{}, TolerantStrategy{}, SalvageStrategy{}, RebuildStrategy{})
}

// Restore reverses Protect on transformed text using the default chain.
func Restore(transformed string, m *Manifest) (string, *RestorationReport) {
	return DefaultRestorer().Restore(transformed, m)
}

// Restore reverses Protect on transformed text. Restoring already-restored
// text returns it unchanged.
func (r *Restorer) Restore(text string, m *Manifest) (string, *RestorationReport) {
	if m.CRLF {
		text, _ = toLF(text)
	}
	st := &restoreState{manifest: m, pending: m.pending()}
	report := newReport(len(st.pending))

	for _, s := range r.strategies {
		if st.done() {
			break
		}
		var n int
		var ok bool
		text, n, ok = s.Apply(text, st)
		if n > 0 {
			report.Resolved[s.Name()] += n
			logger.Debug("restoration level resolved tokens",
				logger.String("level", s.Name()),
				logger.Int("resolved", n),
				logger.Int("remaining", len(st.pending)))
		}
		if ok {
			break
		}
	}

	for _, e := range st.pending {
		report.Unresolved[e.Kind.String()]++
	}
	if report.Shortfall() > 0 {
		logger.Warn("restoration shortfall",
			logger.Int("unresolved", report.Shortfall()),
			logger.Int("total", report.Total))
	}
	return withLineEnding(text, m.CRLF), report
}

// substitute replaces the [start,end) ranges of text with e's original,
// right to left. A separator is kept on a line of its own.
func substitute(text string, locs [][]int, e Entry) string {
	for i := len(locs) - 1; i >= 0; i-- {
		s, end := locs[i][0], locs[i][1]
		repl := e.Original
		if e.Kind == KindTableSeparator {
			if s > 0 && text[s-1] != '\n' {
				repl = "\n" + repl
			}
			if end < len(text) && text[end] != '\n' {
				repl += "\n"
			}
		}
		text = text[:s] + repl + text[end:]
	}
	return text
}

// ExactStrategy replaces every literal occurrence of each token.
type ExactStrategy struct{}

// Name returns the level name
func (ExactStrategy) Name() string { return LevelExact }

// Apply implements Strategy
func (ExactStrategy) Apply(text string, st *restoreState) (string, int, bool) {
	n := 0
	for _, e := range st.sortedPending() {
		if !strings.Contains(text, e.Token) {
			continue
		}
		if e.Kind == KindTableSeparator {
			text = substitute(text, indexAll(text, e.Token), e)
		} else {
			text = strings.ReplaceAll(text, e.Token, e.Original)
		}
		st.resolve(e.Token)
		n++
	}
	return text, n, st.done()
}

func indexAll(text, sub string) [][]int {
	var locs [][]int
	for off := 0; ; {
		i := strings.Index(text[off:], sub)
		if i < 0 {
			return locs
		}
		locs = append(locs, []int{off + i, off + i + len(sub)})
		off += i + len(sub)
	}
}

// TolerantStrategy matches tokens with whitespace inserted anywhere, any
// letter case, and full-width characters.
type TolerantStrategy struct{}

// Name returns the level name
func (TolerantStrategy) Name() string { return LevelTolerant }

// Apply implements Strategy
func (TolerantStrategy) Apply(text string, st *restoreState) (string, int, bool) {
	n := 0
	for _, e := range st.sortedPending() {
		locs := tolerantPattern(e.Token).FindAllStringIndex(text, -1)
		if len(locs) == 0 {
			continue
		}
		text = substitute(text, locs, e)
		st.resolve(e.Token)
		n++
	}
	return text, n, st.done()
}

const gap = `[\s\x{3000}]*`

// charClass matches r in either case, half or full width.
func charClass(r rune) string {
	seen := make(map[string]bool)
	var sb strings.Builder
	sb.WriteByte('[')
	for _, v := range []rune{r, unicode.ToLower(r), unicode.ToUpper(r)} {
		for _, s := range []string{string(v), width.Widen.String(string(v))} {
			if seen[s] {
				continue
			}
			seen[s] = true
			sb.WriteString(regexp.QuoteMeta(s))
		}
	}
	sb.WriteByte(']')
	return sb.String()
}

func tolerantText(s string) string {
	parts := make([]string, 0, len(s))
	for _, r := range s {
		parts = append(parts, charClass(r))
	}
	return strings.Join(parts, gap)
}

func tolerantPattern(token string) *regexp.Regexp {
	return regexp.MustCompile(tolerantText(token))
}

const (
	letterRange = `A-Za-z\x{FF21}-\x{FF3A}\x{FF41}-\x{FF5A}`
	digitRange  = `0-9\x{FF10}-\x{FF19}`
)

// shapePattern matches any token-shaped text for marker, capturing the kind
// tag and the ordinal whatever they were changed into.
func shapePattern(marker string) *regexp.Regexp {
	m := tolerantText(marker)
	return regexp.MustCompile(m + gap +
		`([` + letterRange + `][` + letterRange + `\s\x{3000}]*?)` + gap +
		m + gap +
		`([` + digitRange + `][` + digitRange + `\s\x{3000}]*)` + gap +
		m)
}

func normalizeShape(s string) string {
	s = width.Narrow.String(s)
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, s)
}

// SalvageStrategy consumes one outstanding entry per surviving token-shaped
// marker, even when its tag or ordinal was scrambled. Pipe markers go first
// since their content is always "|".
type SalvageStrategy struct{}

// Name returns the level name
func (SalvageStrategy) Name() string { return LevelSalvage }

type shapeHit struct {
	loc     []int
	kind    Kind
	known   bool
	ordinal int
	entry   *Entry
}

// Apply implements Strategy
func (SalvageStrategy) Apply(text string, st *restoreState) (string, int, bool) {
	matches := shapePattern(st.manifest.Marker).FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text, 0, st.done()
	}

	byOrdinal := make(map[int]Entry, len(st.pending))
	for _, e := range st.pending {
		byOrdinal[e.Ordinal] = e
	}
	taken := make(map[string]bool)

	hits := make([]*shapeHit, 0, len(matches))
	for _, mt := range matches {
		h := &shapeHit{loc: mt[:2], ordinal: -1}
		h.kind, h.known = kindFromTag(normalizeShape(text[mt[2]:mt[3]]))
		if n, ok := parseOrdinal(normalizeShape(text[mt[4]:mt[5]])); ok {
			h.ordinal = n
		}
		hits = append(hits, h)
	}

	claim := func(h *shapeHit, e Entry) {
		taken[e.Token] = true
		h.entry = &e
	}
	lowest := func(kind Kind) (Entry, bool) {
		best, found := Entry{Ordinal: math.MaxInt}, false
		for _, e := range st.pending {
			if e.Kind == kind && !taken[e.Token] && e.Ordinal < best.Ordinal {
				best, found = e, true
			}
		}
		return best, found
	}

	phases := []func(h *shapeHit){
		// pipes by ordinal, then any pipe
		func(h *shapeHit) {
			e, ok := byOrdinal[h.ordinal]
			if h.known && h.kind == KindTablePipe && ok && e.Kind == KindTablePipe && !taken[e.Token] {
				claim(h, e)
			}
		},
		func(h *shapeHit) {
			if h.known && h.kind == KindTablePipe {
				if e, ok := lowest(KindTablePipe); ok {
					claim(h, e)
				}
			}
		},
		// same kind by ordinal, then lowest outstanding of that kind
		func(h *shapeHit) {
			if e, ok := byOrdinal[h.ordinal]; ok && h.known && e.Kind == h.kind && !taken[e.Token] {
				claim(h, e)
			}
		},
		func(h *shapeHit) {
			if h.known {
				if e, ok := lowest(h.kind); ok {
					claim(h, e)
				}
			}
		},
		// mangled tag: ordinal alone
		func(h *shapeHit) {
			if e, ok := byOrdinal[h.ordinal]; ok && !taken[e.Token] {
				claim(h, e)
			}
		},
	}
	for _, phase := range phases {
		for _, h := range hits {
			if h.entry == nil {
				phase(h)
			}
		}
	}

	n := 0
	for i := len(hits) - 1; i >= 0; i-- {
		h := hits[i]
		if h.entry == nil {
			continue
		}
		text = substitute(text, [][]int{h.loc}, *h.entry)
		st.resolve(h.entry.Token)
		n++
	}
	return text, n, st.done()
}

// RebuildStrategy puts back separators the transform lost entirely. Only
// as many separators as are actually missing from the text are rebuilt,
// each paired with the nearest header row that lacks one.
type RebuildStrategy struct{}

// Name returns the level name
func (RebuildStrategy) Name() string { return LevelRebuild }

type insertion struct {
	after   int
	line    string
	replace bool // overwrite the blank line after the header
}

// Apply implements Strategy
func (RebuildStrategy) Apply(text string, st *restoreState) (string, int, bool) {
	var seps []SeparatorEntry
	for _, e := range st.sortedPending() {
		if e.Kind != KindTableSeparator {
			continue
		}
		if s, ok := st.manifest.Separators.Get(e.Token); ok {
			seps = append(seps, s)
		}
	}
	if len(seps) == 0 {
		return text, 0, st.done()
	}

	lines := validator.Classify(text)
	present := 0
	for _, l := range lines {
		if l.Kind == validator.LineTableSeparator {
			present++
		}
	}
	deficit := st.manifest.Separators.Len() - present
	if deficit <= 0 {
		return text, 0, st.done()
	}
	if deficit < len(seps) {
		seps = seps[:deficit]
	}

	var headerless []validator.Table
	for _, t := range validator.Tables(lines) {
		if t.Header(lines) && t.Separator < 0 {
			headerless = append(headerless, t)
		}
	}

	used := make(map[int]bool)
	var inserts []insertion
	for _, sep := range seps {
		best, bestScore := -1, math.MaxInt
		for i, t := range headerless {
			if used[i] {
				continue
			}
			score := abs(t.Start - (sep.Index - 1))
			if validator.Columns(lines[t.Start].Text) != sep.Columns {
				score += len(lines)
			}
			if score < bestScore {
				best, bestScore = i, score
			}
		}
		if best < 0 {
			break
		}
		used[best] = true
		t := headerless[best]

		header := lines[t.Start].Text
		line := sep.Line
		if validator.Columns(header) != sep.Columns {
			line = synthesizeSeparator(validator.Columns(header), nil)
		}
		ins := insertion{after: t.Start, line: line}
		if t.End == t.Start+1 && t.Start+2 < len(lines) &&
			lines[t.Start+1].Kind == validator.LineBlank && lines[t.Start+2].Kind == validator.LineTableRow {
			ins.replace = true
		}
		inserts = append(inserts, ins)
		st.resolve(sep.Token)
	}
	if len(inserts) == 0 {
		return text, 0, st.done()
	}

	sort.Slice(inserts, func(i, j int) bool { return inserts[i].after > inserts[j].after })
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.Text
	}
	for _, ins := range inserts {
		if ins.replace {
			out[ins.after+1] = ins.line
			continue
		}
		out = append(out[:ins.after+1], append([]string{ins.line}, out[ins.after+1:]...)...)
	}

	logger.Debug("separators rebuilt", logger.Int("count", len(inserts)), logger.Int("deficit", deficit))
	return strings.Join(out, "\n"), len(inserts), st.done()
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
