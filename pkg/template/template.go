// Package template renders notes into markdown files and parses them back.
//
// A template is plain text with an optional leading front-matter block
// ("---\n...\n---\n"). Placeholders such as ${title} are substituted in both
// regions; values landing in the front-matter are escaped so they stay valid
// inside double-quoted YAML scalars.
package template

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/notesync/pkg/core"
)

// DefaultNoteTemplate is used when no template is configured, and always in
// two-way modes where the front-matter shape must be known.
const DefaultNoteTemplate = `---
# Mandatory fields
id: "${id}"
# Optional fields
title: "${title}"
tags: ${tags}
source: "${source}"
source_title: "${source_title}"
source_description: "${source_description}"
source_image_url: "${source_image_url}"
created_date: "${created_date}"
modified_date: "${last_modified_date}"
---
${content}`

// DefaultTitleTemplate keeps the resolved title unchanged.
const DefaultTitleTemplate = "${title}"

// DefaultDateFormat renders ${created_date} and ${last_modified_date}.
const DefaultDateFormat = "YYYY-MM-DD"

var (
	frontMatterRe = regexp.MustCompile(`(?s)\A---\r?\n(.*?)\r?\n---(?:\r?\n|\z)`)
	deletedLineRe = regexp.MustCompile(`(?m)^deleted:.*$`)
)

// Engine renders notes with a fixed date format.
type Engine struct {
	DateFormat string
	// Location for formatted dates. Defaults to time.Local.
	Location *time.Location
}

// New returns an Engine for dateFormat, falling back to DefaultDateFormat.
func New(dateFormat string) *Engine {
	if dateFormat == "" {
		dateFormat = DefaultDateFormat
	}
	return &Engine{DateFormat: dateFormat, Location: time.Local}
}

// Render fills tmpl with n. When markDeleted is set the front-matter gets a
// "deleted: true" line, replacing any existing deleted key.
func (e *Engine) Render(tmpl string, n core.Note, markDeleted bool) string {
	var tags []string
	if strings.Contains(tmpl, "${tags}") {
		tags = ExtractAllTags(n.GetContent())
	}
	values := e.values(n, tags)

	body := tmpl
	var header string
	hasHeader := false
	if loc := frontMatterRe.FindStringSubmatchIndex(tmpl); loc != nil {
		hasHeader = true
		header = tmpl[loc[2]:loc[3]]
		body = tmpl[loc[1]:]
		header = replacer(values, escapeFrontMatter).Replace(header)
		if markDeleted {
			header = MarkDeleted(header)
		}
	}
	body = replacer(values, nil).Replace(body)
	if !hasHeader {
		return body
	}
	return "---\n" + header + "\n---\n" + body
}

// RenderTitle applies a title template. No escaping takes place.
func (e *Engine) RenderTitle(tmpl string, n core.Note) string {
	var tags []string
	if strings.Contains(tmpl, "${tags}") {
		tags = ExtractAllTags(n.GetContent())
	}
	return replacer(e.values(n, tags), nil).Replace(tmpl)
}

func (e *Engine) values(n core.Note, tags []string) map[string]string {
	quoted := make([]string, len(tags))
	for i, t := range tags {
		quoted[i] = `"` + t + `"`
	}
	return map[string]string{
		"id":                 n.ID,
		"title":              n.GetTitle(),
		"content":            n.GetContent(),
		"source":             n.GetSource(),
		"source_title":       n.GetSourceTitle(),
		"source_description": n.GetSourceDescription(),
		"source_image_url":   n.GetSourceImageURL(),
		"tags":               "[" + strings.Join(quoted, ", ") + "]",
		"datetime":           n.GetCreatedAt(),
		"created_date":       e.formatTimestamp(n.GetCreatedAt()),
		"last_modified_date": e.formatTimestamp(n.GetModifiedAt()),
	}
}

// escaped lists the placeholders whose values are escaped in front-matter.
var escaped = map[string]bool{
	"title": true, "content": true, "source": true,
	"source_title": true, "source_description": true, "source_image_url": true,
}

func replacer(values map[string]string, escape func(string) string) *strings.Replacer {
	pairs := make([]string, 0, len(values)*2)
	for k, v := range values {
		if escape != nil && escaped[k] {
			v = escape(v)
		}
		pairs = append(pairs, "${"+k+"}", v)
	}
	return strings.NewReplacer(pairs...)
}

func escapeFrontMatter(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "\r\n", " ")
	return strings.NewReplacer("\n", " ", "\r", " ").Replace(s)
}

func (e *Engine) formatTimestamp(ts string) string {
	t, ok := ParseTimestamp(ts)
	if !ok {
		return ""
	}
	loc := e.Location
	if loc == nil {
		loc = time.Local
	}
	return FormatDate(t.In(loc), e.DateFormat)
}

// MarkDeleted sets "deleted: true" in a front-matter block body (without the
// dashes). An existing deleted line is rewritten instead of duplicated.
func MarkDeleted(header string) string {
	if deletedLineRe.MatchString(header) {
		return deletedLineRe.ReplaceAllString(header, "deleted: true")
	}
	return header + "\ndeleted: true"
}

// Parse splits raw file text into its front-matter mapping and body. Text
// without front-matter is all body. A malformed block yields an empty mapping,
// the whole text as body, and the parse error for the caller to report.
func Parse(text string) (core.FrontMatter, string, error) {
	m := frontMatterRe.FindStringSubmatchIndex(text)
	if m == nil {
		return core.FrontMatter{}, text, nil
	}
	fm := core.FrontMatter{}
	if err := yaml.Unmarshal([]byte(text[m[2]:m[3]]), &fm); err != nil {
		return core.FrontMatter{}, text, fmt.Errorf("failed to parse front-matter: %w", err)
	}
	if fm == nil {
		fm = core.FrontMatter{}
	}
	return fm, text[m[1]:], nil
}

// Validate checks that tmpl has a front-matter block that parses as YAML once
// placeholders are filled, and that it carries an id key.
func Validate(tmpl string) error {
	sample := core.Note{
		ID:        "00000000-0000-0000-0000-000000000000",
		Title:     core.String("title"),
		Content:   core.String("content #tag"),
		CreatedAt: core.String("2024-01-01T00:00:00Z"),
	}
	fm, _, err := Parse(New("").Render(tmpl, sample, false))
	if err != nil {
		return err
	}
	if fm.String("id") == "" {
		return fmt.Errorf("note template must contain an id field in its front-matter")
	}
	return nil
}
