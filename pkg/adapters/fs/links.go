package fs

import (
	"context"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/aretw0/notesync/pkg/core"
)

var (
	wikiLinkRe = regexp.MustCompile(`!?\[\[([^\]\|#\^]+)(?:[#\^][^\]\|]*)?(?:\|[^\]]*)?\]\]`)
	doneTaskRe = regexp.MustCompile(`(?m)^\s*[-*+] \[[xX]\] .*$`)
	mdParser   = goldmark.New().Parser()
)

// Links groups link targets by whether a vault file answers to them.
type Links struct {
	Resolved   []string
	Unresolved []string
}

// All returns resolved and unresolved targets, sorted.
func (l Links) All() []string {
	out := append(append([]string{}, l.Resolved...), l.Unresolved...)
	sort.Strings(out)
	return out
}

// CollectLinks returns every link target referenced from a markdown file in
// the vault, as sorted unique note stems.
func (s *Store) CollectLinks(ctx context.Context) ([]string, error) {
	links, err := s.CollectLinkSet(ctx)
	if err != nil {
		return nil, err
	}
	return links.All(), nil
}

// CollectLinkSet is CollectLinks split by resolution.
func (s *Store) CollectLinkSet(ctx context.Context) (Links, error) {
	files, err := s.files.List(ctx)
	if err != nil {
		return Links{}, err
	}
	stems := make(map[string]bool, len(files))
	for _, f := range files {
		stems[core.FileStem(f.Path)] = true
	}

	targets := make(map[string]bool)
	for _, f := range files {
		if !strings.HasSuffix(f.Path, noteExt) {
			continue
		}
		// every note is itself a link target
		targets[core.FileStem(f.Path)] = true
		raw, err := s.files.Read(ctx, f.Path)
		if err != nil {
			s.logger.Warn("skipping unreadable file", "path", f.Path, "error", err)
			continue
		}
		for _, l := range ExtractLinks(raw) {
			targets[l] = true
		}
	}

	var links Links
	for t := range targets {
		if stems[t] {
			links.Resolved = append(links.Resolved, t)
		} else {
			links.Unresolved = append(links.Unresolved, t)
		}
	}
	sort.Strings(links.Resolved)
	sort.Strings(links.Unresolved)
	return links, nil
}

// ExtractLinks returns the stems of wikilinks and relative markdown links in
// src, in order of appearance and without duplicates.
func ExtractLinks(src string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(target string) {
		stem := linkStem(target)
		if stem == "" || seen[stem] {
			return
		}
		seen[stem] = true
		out = append(out, stem)
	}

	for _, m := range wikiLinkRe.FindAllStringSubmatch(src, -1) {
		add(m[1])
	}

	source := []byte(src)
	doc := mdParser.Parse(text.NewReader(source))
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if l, ok := n.(*ast.Link); ok {
			dest := string(l.Destination)
			if u, err := url.Parse(dest); err == nil && u.Scheme == "" && u.Host == "" && u.Path != "" {
				add(u.Path)
			}
		}
		return ast.WalkContinue, nil
	})
	return out
}

func linkStem(target string) string {
	target = strings.TrimSpace(target)
	if target == "" {
		return ""
	}
	if unescaped, err := url.PathUnescape(target); err == nil {
		target = unescaped
	}
	return strings.TrimSuffix(path.Base(target), noteExt)
}

// Unprocessed returns the in-scope notes that no checked task anywhere in
// the vault links to.
func (s *Store) Unprocessed(ctx context.Context) ([]core.LocalNote, error) {
	notes, err := s.GetAllNotes(ctx)
	if err != nil {
		return nil, err
	}
	files, err := s.files.List(ctx)
	if err != nil {
		return nil, err
	}

	processed := make(map[string]bool)
	for _, f := range files {
		if !strings.HasSuffix(f.Path, noteExt) {
			continue
		}
		raw, err := s.files.Read(ctx, f.Path)
		if err != nil {
			continue
		}
		for _, line := range doneTaskRe.FindAllString(raw, -1) {
			for _, m := range wikiLinkRe.FindAllStringSubmatch(line, -1) {
				processed[linkStem(m[1])] = true
			}
		}
	}

	var out []core.LocalNote
	for _, n := range notes {
		if !processed[n.Stem()] {
			out = append(out, n)
		}
	}
	return out, nil
}
