package scanner

import (
	"path"
	"strconv"
	"strings"
	"unicode"
)

const (
	// DefaultCategory is used when a template has neither an explicit tag nor
	// a parent folder below the scan root.
	DefaultCategory = "Default"

	// UnsetCategory is the explicit "no category" sentinel. It behaves like an
	// empty tag.
	UnsetCategory = "none"

	emptyNameFallback = "Template"
	digitPrefix       = "T"
)

// resolveCategory applies the three-tier fallback: explicit tag, then the
// immediate parent folder (unless it is the scan root), then DefaultCategory.
func resolveCategory(explicit, rel string) string {
	if c := strings.TrimSpace(explicit); c != "" && !strings.EqualFold(c, UnsetCategory) {
		return c
	}
	if dir := path.Dir(rel); dir != "." && dir != "/" && dir != "" {
		return path.Base(dir)
	}
	return DefaultCategory
}

// Sanitize turns a display name into an identifier fragment: runs of ASCII
// letters and digits become capitalized words, everything else is dropped.
// A leading digit gets a prefix; an empty result becomes fallback.
func Sanitize(name, fallback string) string {
	var b strings.Builder
	upperNext := true
	for _, r := range name {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			upperNext = true
			continue
		}
		if upperNext {
			r = unicode.ToUpper(r)
			upperNext = false
		}
		b.WriteRune(r)
	}
	out := b.String()
	if out == "" {
		return fallback
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = digitPrefix + out
	}
	return out
}

// namer hands out symbolic call names. Counters are keyed on the
// (category, sanitized name) base and live for the whole scan run.
type namer struct {
	counters map[string]int
	used     map[string]bool
}

func newNamer() *namer {
	return &namer{counters: make(map[string]int), used: make(map[string]bool)}
}

// assign returns create{Category}{Name}, suffixed with 2, 3, ... when the
// base was already handed out. The used set also guards against a literal
// name colliding with an earlier suffixed one ("Box" twice, then "Box2").
func (n *namer) assign(category, display string) string {
	base := "create" + Sanitize(category, DefaultCategory) + Sanitize(display, emptyNameFallback)
	for {
		n.counters[base]++
		name := base
		if c := n.counters[base]; c > 1 {
			name = base + strconv.Itoa(c)
		}
		if !n.used[name] {
			n.used[name] = true
			return name
		}
	}
}
