// Package title derives collision-free file names for notes.
package title

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/aretw0/notesync/pkg/core"
	"github.com/aretw0/notesync/pkg/template"
)

const (
	// Ext is appended to every resolved name.
	Ext = ".md"

	contentTitleLen = 40
)

var (
	illegalRe  = regexp.MustCompile(`[\[\]#*:/\\^.]`)
	newlinesRe = regexp.MustCompile(`[\r\n]+`)
)

// Settings controls title derivation.
type Settings struct {
	AutoGenerate bool
	// Template is applied to the stem, e.g. "${created_date} ${title}".
	Template string
}

// Resolver turns notes into file names.
type Resolver struct {
	engine *template.Engine
}

// NewResolver returns a Resolver that formats title templates with engine.
func NewResolver(engine *template.Engine) *Resolver {
	if engine == nil {
		engine = template.New("")
	}
	return &Resolver{engine: engine}
}

// Sanitize strips characters that are illegal or confusing in file names and
// collapses line breaks to spaces.
func Sanitize(s string) string {
	s = newlinesRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(illegalRe.ReplaceAllString(s, ""))
}

// Resolve returns the file name (with extension) for n. existing holds the
// names currently present in the target folder, excluding the file already
// bound to n. A title the note carries itself is used verbatim after
// sanitizing; derived titles get a " (n)" suffix until they are unique.
func (r *Resolver) Resolve(n core.Note, existing map[string]bool, s Settings) string {
	if t := Sanitize(n.GetTitle()); t != "" {
		return r.finish(t, n, s)
	}

	stem := n.ID
	if s.AutoGenerate {
		if derived := derive(n); derived != "" {
			stem = derived
		}
	}

	return Disambiguate(r.finish(stem, n, s), existing)
}

// Disambiguate appends " (1)", " (2)", ... to name until it is not in existing.
func Disambiguate(name string, existing map[string]bool) string {
	base := strings.TrimSuffix(name, Ext)
	for i := 1; existing[name]; i++ {
		name = fmt.Sprintf("%s (%d)%s", base, i, Ext)
	}
	return name
}

func derive(n core.Note) string {
	content := []rune(n.GetContent())
	if len(content) > contentTitleLen {
		content = content[:contentTitleLen]
	}
	if t := Sanitize(string(content)); t != "" {
		return t
	}
	return Sanitize(n.GetSourceTitle())
}

func (r *Resolver) finish(stem string, n core.Note, s Settings) string {
	tmpl := s.Template
	if tmpl == "" {
		tmpl = template.DefaultTitleTemplate
	}
	withTitle := n
	withTitle.Title = core.String(stem)
	name := strings.TrimSpace(r.engine.RenderTitle(tmpl, withTitle))
	name = strings.ReplaceAll(name, "/", "")
	if name == "" {
		name = n.ID
	}
	if !strings.HasSuffix(name, Ext) {
		name += Ext
	}
	return name
}
