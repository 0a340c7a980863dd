// Package imagery builds the ordered list of image URLs a product view tries
// before settling on the placeholder.
package imagery

import (
	"fmt"
	"iter"
	"net/url"
	"strings"
)

const Placeholder = "/placeholder.jpg"

const (
	DefaultWidth   = 800
	DefaultQuality = 80
	Bucket         = "product-images"
)

// RenderURL is the hosted storage transform URL for key, or "" without a storage base or key.
func RenderURL(storageURL, key string, width, quality int) string {
	if storageURL == "" || key == "" {
		return ""
	}
	return fmt.Sprintf("%s/storage/v1/render/image/public/%s/%s?width=%d&quality=%d&format=webp",
		strings.TrimRight(storageURL, "/"), Bucket, EscapeKey(key), width, quality)
}

// EscapeKey escapes each segment of an object key and keeps the separators.
func EscapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// Candidates lists every URL in priority order, always ending with Placeholder.
func Candidates(storageURL, key, alt string, width, quality int) []string {
	var out []string
	if u := RenderURL(storageURL, key, width, quality); u != "" {
		out = append(out, u)
	}
	if alt = strings.TrimSpace(alt); alt != "" {
		name := url.PathEscape(alt)
		out = append(out, "/images/"+name+".jpeg", "/images/"+name+".png")
	}
	return append(out, Placeholder)
}

// Chain is the client-side cursor over Candidates. It only moves forward, and
// only when the current image fails to load.
type Chain struct {
	urls []string
	pos  int
}

func NewChain(storageURL, key, alt string, width, quality int) *Chain {
	return &Chain{urls: Candidates(storageURL, key, alt, width, quality)}
}

func (c *Chain) Current() string { return c.urls[c.pos] }

// Fail advances to the next candidate. It reports false once the placeholder
// is current, which is where the chain stays.
func (c *Chain) Fail() bool {
	if c.pos == len(c.urls)-1 {
		return false
	}
	c.pos++
	return true
}

func (c *Chain) Exhausted() bool { return c.pos == len(c.urls)-1 }

func (c *Chain) All() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, u := range c.urls {
			if !yield(u) {
				return
			}
		}
	}
}
