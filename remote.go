package models

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// driveFileIDPattern extracts the file id from ".../file/d/<id>/..." share links.
var driveFileIDPattern = regexp.MustCompile(`/file/d/([^/?#]+)`)

// archiveClient downloads model archives, following the Google Drive
// large-file confirmation page when one is served instead of the file.
type archiveClient struct {
	// httpClient is used for HTTP requests.
	httpClient HTTPClient

	// logger receives diagnostic messages. May be nil.
	logger Logger
}

// newArchiveClient creates a new archive client.
func newArchiveClient(client HTTPClient, logger Logger) *archiveClient {
	return &archiveClient{httpClient: client, logger: logger}
}

// normalizeDriveURL rewrites Google Drive share links into direct download links.
// Other URLs are returned unchanged.
func normalizeDriveURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid link %q: %w", raw, ErrDownload)
	}

	if u.Host != "drive.google.com" {
		return u.String(), nil
	}

	if m := driveFileIDPattern.FindStringSubmatch(u.Path); m != nil {
		return "https://drive.google.com/uc?export=download&id=" + m[1], nil
	}

	if u.Path == "/open" || u.Path == "/uc" {
		if id := u.Query().Get("id"); id != "" {
			return "https://drive.google.com/uc?export=download&id=" + id, nil
		}
	}

	return u.String(), nil
}

// download fetches link and writes the archive body to w.
// onProgress receives (completed, total) byte counts; total is 0 when unknown.
func (c *archiveClient) download(ctx context.Context, link string, w io.Writer, onProgress func(completed, total int64)) error {
	target, err := normalizeDriveURL(link)
	if err != nil {
		return err
	}

	resp, err := c.get(ctx, target)
	if err != nil {
		return err
	}

	if isHTML(resp) {
		confirm, perr := confirmURL(resp.Body, target)
		resp.Body.Close()
		if perr != nil {
			return fmt.Errorf("%s served a page instead of an archive: %w", link, ErrDownload)
		}
		if c.logger != nil {
			c.logger.Debug("following download confirmation", "url", confirm)
		}

		resp, err = c.get(ctx, confirm)
		if err != nil {
			return err
		}
		if isHTML(resp) {
			resp.Body.Close()
			return fmt.Errorf("%s still serves a page after confirmation: %w", link, ErrDownload)
		}
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if onProgress != nil {
		total := resp.ContentLength
		if total < 0 {
			total = 0
		}
		var completed int64
		reader = &progressReader{reader: resp.Body, onProgress: func(delta int64) {
			completed += delta
			onProgress(completed, total)
		}}
	}

	if _, err := io.Copy(w, reader); err != nil {
		return fmt.Errorf("reading archive body: %v: %w", err, ErrDownload)
	}
	return nil
}

// get issues a GET and checks the status code.
func (c *archiveClient) get(ctx context.Context, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %v: %w", err, ErrDownload)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %v: %w", target, err, ErrDownload)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetching %s: status %d: %w", target, resp.StatusCode, ErrDownload)
	}

	return resp, nil
}

// isHTML reports whether resp is an HTML page rather than a file download.
func isHTML(resp *http.Response) bool {
	if resp.Header.Get("Content-Disposition") != "" {
		return false
	}
	return strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html")
}

// confirmURL finds the confirmation target in a Google Drive warning page.
// It understands both the download form with hidden inputs and the older
// anchor whose href carries a confirm token.
func confirmURL(page io.Reader, base string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}

	var (
		inForm     bool
		formAction string
		formValues = url.Values{}
		anchorHref string
	)

	z := html.NewTokenizer(page)
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if errors.Is(z.Err(), io.EOF) {
				break
			}
			return "", z.Err()
		}

		if tt != html.StartTagToken && tt != html.SelfClosingTagToken && tt != html.EndTagToken {
			continue
		}

		tok := z.Token()
		switch tok.Data {
		case "form":
			if tt == html.EndTagToken {
				inForm = false
				continue
			}
			if attr(tok, "id") == "download-form" {
				inForm = true
				formAction = attr(tok, "action")
			}
		case "input":
			if inForm && attr(tok, "name") != "" {
				formValues.Set(attr(tok, "name"), attr(tok, "value"))
			}
		case "a":
			if href := attr(tok, "href"); anchorHref == "" && strings.Contains(href, "confirm=") {
				anchorHref = href
			}
		}
	}

	switch {
	case formAction != "":
		action, err := baseURL.Parse(formAction)
		if err != nil {
			return "", err
		}
		action.RawQuery = formValues.Encode()
		return action.String(), nil
	case anchorHref != "":
		ref, err := baseURL.Parse(anchorHref)
		if err != nil {
			return "", err
		}
		return ref.String(), nil
	}

	return "", errors.New("no confirmation target found")
}

// attr returns the value of the named attribute, or "".
func attr(tok html.Token, name string) string {
	for _, a := range tok.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

// progressReader wraps an io.Reader and reports progress as bytes are read.
type progressReader struct {
	reader     io.Reader
	onProgress func(delta int64)
}

func (pr *progressReader) Read(p []byte) (n int, err error) {
	n, err = pr.reader.Read(p)
	if n > 0 && pr.onProgress != nil {
		pr.onProgress(int64(n))
	}
	return
}
