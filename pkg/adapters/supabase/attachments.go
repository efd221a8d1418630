package supabase

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
)

var storagePathRe = regexp.MustCompile(`^/storage/v1/object/(?:public/|sign/|authenticated/)?([^/]+)/(.+)$`)

// Attachments downloads files that note sources point at in the project's
// storage buckets.
type Attachments struct {
	backend Backend
	host    string
}

// NewAttachments serves sources hosted under baseURL.
func NewAttachments(backend Backend, baseURL string) *Attachments {
	host := ""
	if u, err := url.Parse(baseURL); err == nil {
		host = u.Host
	}
	return &Attachments{backend: backend, host: host}
}

func (a *Attachments) locate(source string) (bucket, object string, ok bool) {
	u, err := url.Parse(source)
	if err != nil || u.Host == "" || !strings.EqualFold(u.Host, a.host) {
		return "", "", false
	}
	m := storagePathRe.FindStringSubmatch(u.Path)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// Match implements core.AttachmentFetcher.
func (a *Attachments) Match(source string) (string, bool) {
	_, object, ok := a.locate(source)
	if !ok {
		return "", false
	}
	name := path.Base(object)
	if name == "" || name == "." || name == "/" {
		return "", false
	}
	return name, true
}

// Download implements core.AttachmentFetcher.
func (a *Attachments) Download(ctx context.Context, source string) ([]byte, error) {
	bucket, object, ok := a.locate(source)
	if !ok {
		return nil, fmt.Errorf("not a storage url: %s", source)
	}
	return a.backend.Download(ctx, bucket, object)
}
