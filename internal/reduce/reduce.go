// Package reduce turns a rendered HTML document into bounded, deduplicated,
// structure-preserving plain text.
package reduce

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const (
	defaultMaxChars = 15000
	defaultMinChars = 200
	dedupKeyRunes   = 80

	headingMarker   = "## "
	bulletMarker    = "- "
	truncatedMarker = "\n[truncated]"
)

// Config tunes the reducer.
type Config struct {
	// MaxChars caps the output length in characters.
	MaxChars int
	// MinChars is the floor below which the unfiltered fallback is used.
	MinChars int
	// DenyList overrides the class/id keywords that mark marketing chrome.
	DenyList []string
	// ContentSelectors are tried in order; the first one matching an element
	// with text narrows the reduction to that element. No match reduces the
	// whole body.
	ContentSelectors []string
}

// Result is the reduced text plus how it was produced.
type Result struct {
	Text      string
	Fallback  bool
	Truncated bool
}

// Reducer implements the document → text reduction.
type Reducer struct {
	cfg Config
}

// DefaultDenyList holds the class/id keywords stripped from every document.
// It stays conservative: words such as "menu" or "modal" are not listed since
// tour content sometimes lives in those containers.
var DefaultDenyList = []string{
	"cookie", "gdpr", "consent", "newsletter", "advert", "ad-container",
	"adsbygoogle", "social-share", "share-buttons",
}

// DefaultContentSelectors locate the main content region of common tour and
// CMS page layouts.
var DefaultContentSelectors = []string{
	"main", "article", "[role=main]", ".page-content", ".content",
	".main-content", "#content", "#main-content", ".tour-detail",
	".product-detail", ".entry-content",
}

const removeSelector = "script, style, noscript, template, meta, link, iframe, svg, " +
	"nav, footer, form, input, textarea, [role=navigation]"

var (
	blankRuns     = regexp.MustCompile(`\n{3,}`)
	whitespace    = regexp.MustCompile(`\s+`)
	priceBearing  = regexp.MustCompile(`(?i)[$€£¥]|\b(price|prices|pricing|adults?|child|children|per person|fare|aud|usd|nzd)\b`)
	residueTokens = []string{
		"function(", "function (", "@media", "@import", "@font-face",
		"!important", "window.", "document.", "=>", "var(--",
	}
	// noisePhrases mark site chrome wherever they appear in a line.
	noisePhrases = []string{
		"skip to content", "all rights reserved", "follow us on",
		"accept all cookies", "manage cookies", "subscribe to newsletter",
	}
	// noiseLines are dropped only when they make up the whole line, since
	// words like "search" also occur in tour copy.
	noiseLines = map[string]struct{}{
		"menu": {}, "close menu": {}, "search": {}, "cart": {}, "login": {},
		"sign up": {}, "terms and conditions": {}, "privacy policy": {},
	}
)

// New builds a Reducer, applying defaults to zero values.
func New(cfg Config) *Reducer {
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = defaultMaxChars
	}
	if cfg.MinChars <= 0 {
		cfg.MinChars = defaultMinChars
	}
	if len(cfg.DenyList) == 0 {
		cfg.DenyList = DefaultDenyList
	}
	if len(cfg.ContentSelectors) == 0 {
		cfg.ContentSelectors = DefaultContentSelectors
	}
	return &Reducer{cfg: cfg}
}

// Reduce converts document into plain text. Underflow is handled by falling
// back to an unfiltered extraction of the whole document.
func (r *Reducer) Reduce(document string) (Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(document))
	if err != nil {
		return Result{}, fmt.Errorf("parse document: %w", err)
	}
	doc.Find(removeSelector).Remove()
	r.removeChrome(doc)

	w := newWriter()
	for _, n := range r.contentRoot(doc).Nodes {
		w.visit(n)
	}
	res := Result{Text: w.String()}

	if utf8.RuneCountInString(res.Text) < r.cfg.MinChars {
		fallback, err := fallbackText(document)
		if err != nil {
			return Result{}, err
		}
		if utf8.RuneCountInString(fallback) > utf8.RuneCountInString(res.Text) {
			res.Text = fallback
			res.Fallback = true
		}
	}

	res.Text, res.Truncated = truncate(res.Text, r.cfg.MaxChars)
	return res, nil
}

// contentRoot returns the first content selector match that carries text,
// then body, then the whole document.
func (r *Reducer) contentRoot(doc *goquery.Document) *goquery.Selection {
	for _, sel := range r.cfg.ContentSelectors {
		match := doc.Find(sel).FilterFunction(func(_ int, s *goquery.Selection) bool {
			return strings.TrimSpace(s.Text()) != ""
		}).First()
		if match.Length() > 0 {
			return match
		}
	}
	if body := doc.Find("body"); body.Length() > 0 {
		return body
	}
	return doc.Selection
}

func (r *Reducer) removeChrome(doc *goquery.Document) {
	doc.Find("[class], [id]").Each(func(_ int, s *goquery.Selection) {
		attrs := strings.ToLower(s.AttrOr("class", "") + " " + s.AttrOr("id", ""))
		for _, kw := range r.cfg.DenyList {
			if strings.Contains(attrs, kw) {
				s.Remove()
				return
			}
		}
	})
}

// fallbackText extracts all document text, keeping only script and style
// out, and drops residue lines that carry braces or "function".
func fallbackText(document string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(document))
	if err != nil {
		return "", fmt.Errorf("parse document: %w", err)
	}
	doc.Find("script, style, noscript, template").Remove()

	var lines []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			for _, raw := range strings.Split(n.Data, "\n") {
				line := collapse(raw)
				if line == "" || strings.Contains(line, "{") || strings.Contains(line, "function") {
					continue
				}
				lines = append(lines, line)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}
	return strings.Join(lines, "\n"), nil
}

type lineKind int

const (
	plainLine lineKind = iota
	headingLine
	bulletLine
)

type writer struct {
	b     strings.Builder
	seen  []string
	lines int
}

func newWriter() *writer {
	return &writer{}
}

func (w *writer) visit(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		w.emit(plainLine, n.Data)
		return
	case html.ElementNode:
		switch n.Data {
		case "h1", "h2", "h3", "h4", "h5", "h6":
			w.emit(headingLine, nodeText(n))
			return
		case "li":
			text, nested := splitListItem(n)
			w.emit(bulletLine, text)
			for _, list := range nested {
				w.visit(list)
			}
			return
		case "p", "td", "th", "dt", "dd", "blockquote", "figcaption", "caption":
			w.emit(plainLine, nodeText(n))
			return
		}
		if !hasBlockDescendant(n) {
			w.emit(plainLine, nodeText(n))
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.visit(c)
	}
}

func (w *writer) emit(kind lineKind, raw string) {
	line := collapse(raw)
	if utf8.RuneCountInString(line) < 3 {
		return
	}
	key := dedupKey(line)
	if w.duplicate(key) {
		return
	}
	if looksLikeResidue(line) {
		return
	}
	if looksLikeCode(line) && !priceBearing.MatchString(line) {
		return
	}
	w.seen = append(w.seen, key)

	if w.lines > 0 {
		w.b.WriteString("\n\n")
	}
	switch kind {
	case headingLine:
		w.b.WriteString(headingMarker)
	case bulletLine:
		w.b.WriteString(bulletMarker)
	}
	w.b.WriteString(line)
	w.lines++
}

// duplicate reports whether key equals, or is a word-aligned prefix of, a
// line already emitted.
func (w *writer) duplicate(key string) bool {
	for _, prev := range w.seen {
		if !strings.HasPrefix(prev, key) {
			continue
		}
		if len(prev) == len(key) {
			return true
		}
		next, _ := utf8.DecodeRuneInString(prev[len(key):])
		if !unicode.IsLetter(next) && !unicode.IsDigit(next) {
			return true
		}
	}
	return false
}

func (w *writer) String() string {
	return strings.TrimSpace(blankRuns.ReplaceAllString(w.b.String(), "\n\n"))
}

var blockElements = map[string]struct{}{
	"address": {}, "article": {}, "aside": {}, "blockquote": {}, "details": {},
	"dd": {}, "div": {}, "dl": {}, "dt": {}, "fieldset": {}, "figcaption": {},
	"figure": {}, "h1": {}, "h2": {}, "h3": {}, "h4": {}, "h5": {}, "h6": {},
	"header": {}, "hr": {}, "li": {}, "main": {}, "ol": {}, "p": {},
	"section": {}, "table": {}, "tbody": {}, "thead": {}, "tfoot": {},
	"tr": {}, "td": {}, "th": {}, "ul": {}, "body": {}, "html": {},
}

func hasBlockDescendant(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if _, ok := blockElements[c.Data]; ok {
			return true
		}
		if hasBlockDescendant(c) {
			return true
		}
	}
	return false
}

// splitListItem returns the text of li outside any nested list, and the
// nested lists themselves so their items keep their own markers.
func splitListItem(li *html.Node) (string, []*html.Node) {
	var b strings.Builder
	var nested []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			b.WriteString(n.Data)
			return
		case n.Type == html.ElementNode && (n.Data == "ul" || n.Data == "ol"):
			nested = append(nested, n)
			return
		case n.Type == html.ElementNode && n.Data == "br":
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for c := li.FirstChild; c != nil; c = c.NextSibling {
		walk(c)
	}
	return b.String(), nested
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			b.WriteString(n.Data)
		case n.Type == html.ElementNode && n.Data == "br":
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func collapse(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

func dedupKey(line string) string {
	lower := strings.ToLower(line)
	if utf8.RuneCountInString(lower) <= dedupKeyRunes {
		return lower
	}
	return string([]rune(lower)[:dedupKeyRunes])
}

func looksLikeResidue(line string) bool {
	lower := strings.ToLower(line)
	if _, ok := noiseLines[strings.TrimRight(lower, ".!:")]; ok {
		return true
	}
	for _, phrase := range noisePhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	for _, tok := range residueTokens {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	return false
}

// looksLikeCode flags lines dominated by punctuation. Letters, digits and
// spaces count as prose so that times such as "8:00am - 5:00pm" survive.
func looksLikeCode(line string) bool {
	var symbols, total int
	for _, r := range line {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			symbols++
		}
	}
	if total == 0 {
		return true
	}
	return float64(symbols)/float64(total) > 0.3
}

func truncate(text string, maxChars int) (string, bool) {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text, false
	}
	head := string(runes[:maxChars])
	if cut := lastSentenceEnd(head); cut > 0 && utf8.RuneCountInString(head[:cut]) >= maxChars*8/10 {
		return strings.TrimSpace(head[:cut]), true
	}
	keep := maxChars - utf8.RuneCountInString(truncatedMarker)
	if keep < 0 {
		keep = 0
	}
	return strings.TrimSpace(string(runes[:keep])) + truncatedMarker, true
}

// lastSentenceEnd returns the byte offset just past the last sentence
// terminator in s, or -1.
func lastSentenceEnd(s string) int {
	best := -1
	for _, sep := range []string{". ", "! ", "? ", ".\n", "!\n", "?\n"} {
		if i := strings.LastIndex(s, sep); i >= 0 && i+1 > best {
			best = i + 1
		}
	}
	return best
}
