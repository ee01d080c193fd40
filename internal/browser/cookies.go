package browser

import (
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/go-rod/rod/lib/proto"
)

// staticJar is a read-mostly cookie jar seeded from the browser context. The
// PDF endpoint only needs the session cookies the browser already holds, so
// set-cookie responses are accepted but never written back to the browser.
type staticJar struct {
	mu      sync.Mutex
	cookies []*http.Cookie
}

func newStaticJar() *staticJar {
	return &staticJar{}
}

// add converts a devtools cookie into an http.Cookie.
func (j *staticJar) add(c *proto.NetworkCookie) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cookies = append(j.cookies, &http.Cookie{
		Name:   c.Name,
		Value:  c.Value,
		Domain: c.Domain,
		Path:   c.Path,
		Secure: c.Secure,
	})
}

// Cookies returns the cookies applicable to u.
func (j *staticJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()

	var out []*http.Cookie
	for _, c := range j.cookies {
		if domainMatches(u.Hostname(), c.Domain) && pathMatches(u.Path, c.Path) {
			out = append(out, c)
		}
	}
	return out
}

// SetCookies accepts and stores response cookies for the remainder of the
// client's life.
func (j *staticJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, c := range cookies {
		if c.Domain == "" {
			c.Domain = u.Hostname()
		}
		if c.Path == "" {
			c.Path = "/"
		}
		j.cookies = append(j.cookies, c)
	}
}

func domainMatches(host, domain string) bool {
	domain = strings.TrimPrefix(domain, ".")
	if domain == "" {
		return true
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}

func pathMatches(reqPath, cookiePath string) bool {
	if cookiePath == "" || cookiePath == "/" {
		return true
	}
	return strings.HasPrefix(reqPath, cookiePath)
}
