package browser

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/go-rod/rod/lib/proto"
)

func TestStaticJar_DomainAndPathMatching(t *testing.T) {
	jar := newStaticJar()
	jar.add(&proto.NetworkCookie{Name: "session", Value: "abc", Domain: ".example.com", Path: "/"})
	jar.add(&proto.NetworkCookie{Name: "scoped", Value: "xyz", Domain: "app.example.com", Path: "/reports"})

	tests := []struct {
		url  string
		want []string
	}{
		{"https://app.example.com/reports/GetPdfReport?id=1", []string{"session", "scoped"}},
		{"https://app.example.com/other", []string{"session"}},
		{"https://example.com/", []string{"session"}},
		{"https://other.com/", nil},
	}

	for _, tt := range tests {
		u, err := url.Parse(tt.url)
		if err != nil {
			t.Fatal(err)
		}
		got := jar.Cookies(u)
		if len(got) != len(tt.want) {
			t.Errorf("%s: got %d cookies, want %d", tt.url, len(got), len(tt.want))
			continue
		}
		for i, c := range got {
			if c.Name != tt.want[i] {
				t.Errorf("%s: cookie[%d] = %q, want %q", tt.url, i, c.Name, tt.want[i])
			}
		}
	}
}

func TestStaticJar_SetCookiesFillsDefaults(t *testing.T) {
	jar := newStaticJar()
	u, _ := url.Parse("https://app.example.com/login")

	jar.SetCookies(u, []*http.Cookie{{Name: "fresh", Value: "1"}})

	got := jar.Cookies(u)
	if len(got) != 1 || got[0].Name != "fresh" {
		t.Fatalf("expected stored cookie back, got %v", got)
	}
	if got[0].Domain != "app.example.com" || got[0].Path != "/" {
		t.Errorf("defaults not applied: domain=%q path=%q", got[0].Domain, got[0].Path)
	}
}

func TestIsPDF(t *testing.T) {
	if !isPDF([]byte("%PDF-1.7 rest of document")) {
		t.Error("expected PDF magic to match")
	}
	if isPDF([]byte("<html>error page</html>")) {
		t.Error("HTML must not pass the PDF check")
	}
	if isPDF(nil) {
		t.Error("empty data must not pass the PDF check")
	}
}
