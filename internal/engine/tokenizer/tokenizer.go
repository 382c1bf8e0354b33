package tokenizer

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/crimson-sun/persona/internal/engine/vocab"
)

// MaxLength is the deployed sequence length.
const MaxLength = 500

// Sequence is a fixed-length, right-padded list of token ids.
type Sequence []int64

// NonZero returns the number of non-padding ids.
func (s Sequence) NonZero() int {
	n := 0
	for _, id := range s {
		if id != vocab.UnknownID {
			n++
		}
	}
	return n
}

// Preprocessor turns raw text into a Sequence. It is immutable and safe for
// concurrent use.
type Preprocessor struct {
	vocab  *vocab.Vocabulary
	maxLen int
	lang   language.Tag
}

// Option configures a Preprocessor.
type Option func(*Preprocessor)

// WithMaxLength overrides MaxLength. Non-positive values are ignored.
func WithMaxLength(n int) Option {
	return func(p *Preprocessor) {
		if n > 0 {
			p.maxLen = n
		}
	}
}

// WithLanguage sets the tag used for case folding.
func WithLanguage(tag language.Tag) Option {
	return func(p *Preprocessor) {
		p.lang = tag
	}
}

// New creates a Preprocessor over the given vocabulary.
func New(v *vocab.Vocabulary, opts ...Option) *Preprocessor {
	p := &Preprocessor{vocab: v, maxLen: MaxLength, lang: language.English}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MaxLen returns the length of every Sequence this Preprocessor produces.
func (p *Preprocessor) MaxLen() int {
	return p.maxLen
}

// Prepare lower-cases and tokenizes text, maps tokens through the
// vocabulary, truncates and right-pads to MaxLen.
//
// Out-of-vocabulary tokens are dropped, not mapped to the unknown id. The
// trained models saw sequences built this way, so the behavior is kept even
// though rare-word-heavy text ends up shorter than it looks.
func (p *Preprocessor) Prepare(text string) Sequence {
	seq := make(Sequence, p.maxLen)
	n := 0
	for _, tok := range p.Tokenize(text) {
		if n == p.maxLen {
			break
		}
		id := p.vocab.Lookup(tok)
		if id == vocab.UnknownID {
			continue
		}
		seq[n] = id
		n++
	}
	return seq
}

// Coverage reports how many of the text's tokens survive vocabulary mapping.
func (p *Preprocessor) Coverage(text string) (kept, total int) {
	for _, tok := range p.Tokenize(text) {
		total++
		if p.vocab.Contains(tok) {
			kept++
		}
	}
	return kept, total
}

// Tokenize splits text into lower-cased tokens the way NLTK's
// word_tokenize does: sentences first, then the Treebank rules per
// sentence.
func (p *Preprocessor) Tokenize(text string) []string {
	text = cleanText(text)
	text = norm.NFC.String(text)
	text = cases.Lower(p.lang).String(text)

	var tokens []string
	for _, sent := range splitSentences(text) {
		tokens = append(tokens, treebank(sent)...)
	}
	return tokens
}

type rule struct {
	re   *regexp.Regexp
	repl string
}

func newRule(pattern, repl string) rule {
	return rule{regexp.MustCompile(pattern), repl}
}

func apply(text string, rules []rule) string {
	for _, rl := range rules {
		text = rl.re.ReplaceAllString(text, rl.repl)
	}
	return text
}

var (
	startingQuotes = []rule{
		newRule("([«“‘„]|`+)", " ${1} "),
		newRule(`^"`, "``"),
		newRule("(``)", " ${1} "),
		newRule(`([ (\[{<])("|'')`, "${1} `` "),
	}

	punctuation = []rule{
		newRule(`([^.])(\.)([\])}>"']*)\s*$`, "${1} ${2} ${3} "),
		newRule(`([:,])([^\d])`, " ${1} ${2}"),
		newRule(`([:,])$`, " ${1} "),
		newRule(`\.{2,}`, " ${0} "),
		newRule(`[;@#$%&]`, " ${0} "),
		newRule(`([^.])(\.)([\])}>"']*)\s*$`, "${1} ${2}${3} "),
		newRule(`[?!]`, " ${0} "),
		newRule(`([^'])' `, "${1} ' "),
		newRule(`[*]`, " ${0} "),
		newRule(`[\][(){}<>]`, " ${0} "),
		newRule(`--`, " -- "),
	}

	endingQuotes = []rule{
		newRule(`([»”’])`, " ${1} "),
		newRule(`''`, " '' "),
		newRule(`"`, " '' "),
		newRule(`([^' ])('[sS]|'[mM]|'[dD]|') `, "${1} ${2} "),
		newRule(`([^' ])('ll|'LL|'re|'RE|'ve|'VE|n't|N'T) `, "${1} ${2} "),
	}

	// contractions are split into two tokens wherever they occur as a
	// whole word.
	contractions = []rule{
		newRule(`(?i)\b(can)(not)\b`, " ${1} ${2} "),
		newRule(`(?i)\b(d)('ye)\b`, " ${1} ${2} "),
		newRule(`(?i)\b(gim)(me)\b`, " ${1} ${2} "),
		newRule(`(?i)\b(gon)(na)\b`, " ${1} ${2} "),
		newRule(`(?i)\b(got)(ta)\b`, " ${1} ${2} "),
		newRule(`(?i)\b(lem)(me)\b`, " ${1} ${2} "),
		newRule(`(?i)\b(more)('n)\b`, " ${1} ${2} "),
		newRule(`(?i)\b(wan)(na)(\s)`, " ${1} ${2} ${3}"),
		newRule(`(?i) ('t)(is)\b`, " ${1} ${2} "),
		newRule(`(?i) ('t)(was)\b`, " ${1} ${2} "),
	}
)

// treebank tokenizes a single sentence.
func treebank(text string) []string {
	text = apply(text, startingQuotes)
	text = splitLeadingApostrophe(text)
	text = apply(text, punctuation)
	text = apply(" "+text+" ", endingQuotes)
	text = apply(text, contractions)
	return strings.Fields(text)
}

// splitLeadingApostrophe separates an apostrophe from a following
// one-character word unless the pair reads as a clitic ('m, 't, 's, 'd, 'n).
func splitLeadingApostrophe(text string) string {
	runes := []rune(text)
	var b strings.Builder
	b.Grow(len(text) + 4)
	for i := 0; i < len(runes); i++ {
		b.WriteRune(runes[i])
		if runes[i] != '\'' || i+1 >= len(runes) {
			continue
		}
		c := runes[i+1]
		if !isWordRune(c) || (i+2 < len(runes) && isWordRune(runes[i+2])) {
			continue
		}
		if strings.ContainsRune("mtsdn", unicode.ToLower(c)) {
			continue
		}
		b.WriteRune(' ')
		b.WriteRune(c)
		i++
	}
	return b.String()
}

// abbreviations are words that keep their period and do not end a
// sentence.
var abbreviations = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true, "st": true,
	"vs": true, "jr": true, "sr": true, "inc": true, "ltd": true, "co": true, "etc": true,
}

const (
	closers = "\"')]}»”’"
	openers = "\"'([{«“‘`"
)

// splitSentences breaks text after a word ending in '?', '!' or a single
// '.', ignoring trailing quotes and brackets. Initials, dotted words such
// as "u.s." and known abbreviations do not end a sentence.
func splitSentences(text string) []string {
	var (
		sents []string
		cur   []string
	)
	for _, w := range strings.Fields(text) {
		cur = append(cur, w)
		core := strings.TrimRight(w, closers)
		switch {
		case strings.HasSuffix(core, "?") || strings.HasSuffix(core, "!"):
		case strings.HasSuffix(core, ".") && !strings.HasSuffix(core, ".."):
			stem := strings.TrimLeft(strings.TrimSuffix(core, "."), openers)
			if stem == "" || strings.Contains(stem, ".") || utf8.RuneCountInString(stem) == 1 || abbreviations[stem] {
				continue
			}
		default:
			continue
		}
		sents = append(sents, strings.Join(cur, " "))
		cur = cur[:0]
	}
	if len(cur) > 0 {
		sents = append(sents, strings.Join(cur, " "))
	}
	return sents
}

// cleanText removes control characters and replaces whitespace with spaces.
func cleanText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r == 0 || r == unicode.ReplacementChar || isControl(r) {
			continue
		}
		if isWhitespace(r) {
			b.WriteRune(' ')
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) || r == '_'
}

func isWhitespace(r rune) bool {
	if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
		return true
	}
	return unicode.Is(unicode.Zs, r)
}

func isControl(r rune) bool {
	if r == '\t' || r == '\n' || r == '\r' {
		return false
	}
	return unicode.IsControl(r)
}
