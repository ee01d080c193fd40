package browser

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFetchPDFBytes(t *testing.T) {
	pdf := []byte("%PDF-1.4\n1 0 obj\nendobj\n%%EOF\n")

	mux := http.NewServeMux()
	mux.HandleFunc("/pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Write(pdf)
	})
	mux.HandleFunc("/bounce", func(w http.ResponseWriter, r *http.Request) {
		// Expired session: the portal redirects the PDF endpoint to login.
		http.Redirect(w, r, "/login", http.StatusFound)
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>please log in</html>"))
	})
	mux.HandleFunc("/error", func(w http.ResponseWriter, r *http.Request) {
		// Generation failure: an HTML error page with a 200.
		w.Write([]byte("<html><body>report unavailable</body></html>"))
	})
	mux.HandleFunc("/empty", func(w http.ResponseWriter, r *http.Request) {})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := newPortalClient(nil, 5*time.Second)
	ctx := context.Background()

	t.Run("pdf bytes pass through", func(t *testing.T) {
		data, err := fetchPDFBytes(ctx, client, srv.URL+"/pdf")
		if err != nil {
			t.Fatalf("fetch failed: %v", err)
		}
		if !bytes.Equal(data, pdf) {
			t.Error("pdf bytes mangled in transit")
		}
	})

	t.Run("login redirect is session loss", func(t *testing.T) {
		_, err := fetchPDFBytes(ctx, client, srv.URL+"/bounce")
		if !errors.Is(err, ErrSessionLost) {
			t.Errorf("expected ErrSessionLost for a login bounce, got %v", err)
		}
	})

	t.Run("html error page is a bad download", func(t *testing.T) {
		_, err := fetchPDFBytes(ctx, client, srv.URL+"/error")
		if !errors.Is(err, ErrEmptyDownload) {
			t.Errorf("expected ErrEmptyDownload for an HTML body, got %v", err)
		}
	})

	t.Run("empty body is a bad download", func(t *testing.T) {
		_, err := fetchPDFBytes(ctx, client, srv.URL+"/empty")
		if !errors.Is(err, ErrEmptyDownload) {
			t.Errorf("expected ErrEmptyDownload for an empty body, got %v", err)
		}
	})
}
