package backend

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/longbridgeapp/opencc"
	"golang.org/x/text/transform"

	"md-translator/internal/logger"
	"md-translator/internal/types"
)

// DefaultConverterConfig converts Simplified Chinese to Taiwan Traditional
// with Taiwanese phrasing (簡體 -> 台灣正體 + 慣用詞).
const DefaultConverterConfig = "s2twp"

// Dictionary maps phrases to replacements. Lookups are longest match.
type Dictionary struct {
	entries map[string]string
	maxKey  int // longest key in bytes
}

// NewDictionary returns an empty dictionary.
func NewDictionary() *Dictionary {
	return &Dictionary{entries: make(map[string]string)}
}

// Add sets the replacement for key. Later entries win.
func (d *Dictionary) Add(key, value string) {
	if key == "" {
		return
	}
	d.entries[key] = value
	if len(key) > d.maxKey {
		d.maxKey = len(key)
	}
}

// Len returns the number of entries.
func (d *Dictionary) Len() int {
	return len(d.entries)
}

// Load reads an OpenCC text dictionary: one "key<TAB>value [value...]" per
// line. Only the first value is used.
func (d *Dictionary) Load(r io.Reader) error {
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, rest, ok := strings.Cut(line, "\t")
		if !ok {
			logger.Debug("skipping malformed dictionary line", logger.Int("line", n))
			continue
		}
		values := strings.Fields(rest)
		if len(values) == 0 {
			continue
		}
		d.Add(key, values[0])
	}
	return sc.Err()
}

// Converter converts Chinese script locally through OpenCC. It never calls
// the network. User dictionaries, when loaded, are applied to the OpenCC
// output, so their keys are written in the converted script.
type Converter struct {
	mu        sync.Mutex // serialises Convert
	cc        *opencc.OpenCC
	overrides *Dictionary
	name      string
}

// NewConverter creates a converter for an OpenCC configuration such as
// "s2twp", "s2tw" or "s2hk". An empty config selects s2twp.
func NewConverter(config string) (*Converter, error) {
	if config == "" {
		config = DefaultConverterConfig
	}
	cc, err := opencc.New(config)
	if err != nil {
		logger.Error("failed to load opencc configuration", err, logger.String("config", config))
		return nil, types.NewAppErrorWithDetails(types.ErrConfig, "failed to load opencc configuration", config, err)
	}
	return &Converter{cc: cc, overrides: NewDictionary(), name: "opencc"}, nil
}

// DefaultConverter returns the s2twp converter.
func DefaultConverter() (*Converter, error) {
	return NewConverter(DefaultConverterConfig)
}

// NewConverterFromDir creates a converter for config and loads every *.txt
// dictionary under dir as user overrides. An empty dir loads none.
func NewConverterFromDir(config, dir string) (*Converter, error) {
	c, err := NewConverter(config)
	if err != nil || dir == "" {
		return c, err
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	if err != nil {
		return nil, types.NewAppError(types.ErrConfig, "invalid dictionary directory", err)
	}
	if len(files) == 0 {
		return nil, types.NewAppErrorWithDetails(types.ErrFileNotFound, "no dictionaries found", dir, nil)
	}
	sort.Strings(files)

	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return nil, types.NewAppError(types.ErrFileNotFound, "failed to open dictionary", err)
		}
		err = c.overrides.Load(f)
		f.Close()
		if err != nil {
			return nil, types.NewAppErrorWithDetails(types.ErrConfig, "failed to read dictionary", path, err)
		}
	}
	logger.Info("loaded user dictionaries",
		logger.String("dir", dir),
		logger.Int("files", len(files)),
		logger.Int("entries", c.overrides.Len()))
	return c, nil
}

// Name returns the backend name
func (c *Converter) Name() string { return c.name }

// Transform converts text. target is ignored; the configuration decides the
// variant.
func (c *Converter) Transform(ctx context.Context, text, target string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", types.NewAppError(types.ErrNetwork, "operation cancelled", err)
	}
	if text == "" {
		return "", nil
	}

	c.mu.Lock()
	out, err := c.cc.Convert(text)
	c.mu.Unlock()
	if err != nil {
		return "", types.NewAppError(types.ErrInternal, "conversion failed", err)
	}

	if c.overrides.Len() > 0 {
		out, _, err = transform.String(c.Overrides(), out)
		if err != nil {
			return "", types.NewAppError(types.ErrInternal, "user dictionary failed", err)
		}
	}
	return out, nil
}

// Overrides returns a streaming transform over the user dictionaries.
func (c *Converter) Overrides() transform.Transformer {
	return &dictTransformer{dict: c.overrides}
}

type dictTransformer struct {
	transform.NopResetter
	dict *Dictionary
}

// Transform implements transform.Transformer. It holds back input shorter
// than the longest key so that a match is never split across buffers.
func (t *dictTransformer) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		if !atEOF && len(src)-nSrc < t.dict.maxKey {
			return nDst, nSrc, transform.ErrShortSrc
		}

		rest := src[nSrc:]
		limit := t.dict.maxKey
		if limit > len(rest) {
			limit = len(rest)
		}
		matched := 0
		var repl string
		for l := limit; l > 0; l-- {
			if v, ok := t.dict.entries[string(rest[:l])]; ok {
				matched, repl = l, v
				break
			}
		}

		if matched == 0 {
			r, size := utf8.DecodeRune(rest)
			if r == utf8.RuneError && size == 1 && !atEOF && !utf8.FullRune(rest) {
				return nDst, nSrc, transform.ErrShortSrc
			}
			if len(dst)-nDst < size {
				return nDst, nSrc, transform.ErrShortDst
			}
			nDst += copy(dst[nDst:], rest[:size])
			nSrc += size
			continue
		}

		if len(dst)-nDst < len(repl) {
			return nDst, nSrc, transform.ErrShortDst
		}
		nDst += copy(dst[nDst:], repl)
		nSrc += matched
	}
	return nDst, nSrc, nil
}
