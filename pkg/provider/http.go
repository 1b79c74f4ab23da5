package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// HTTPConfig configures the HTTP backend.
type HTTPConfig struct {
	Timeout   time.Duration
	UserAgent string
	Client    *http.Client // optional; overrides Timeout
}

// DefaultUserAgent identifies requests made by the HTTP backend.
const DefaultUserAgent = "rpaflow/1.0 (+https://github.com/ormasoftchile/rpaflow)"

// HTTP is a browserless backend: pages are fetched over HTTP and queried
// with CSS selectors. Input and date steps edit the in-memory form state,
// clicks follow links and submit forms. Script evaluation is unsupported.
type HTTP struct {
	client    *http.Client
	userAgent string

	mu     sync.Mutex
	page   *scope
	frames []*scope
	loaded bool // frames fetched for the current page
}

// scope is one searchable document: the page itself or one of its frames.
type scope struct {
	url *url.URL
	doc *goquery.Document
}

// NewHTTP creates an HTTP backend.
func NewHTTP(cfg HTTPConfig) *HTTP {
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	return &HTTP{client: client, userAgent: ua}
}

// OpenURL navigates to rawURL and makes it the primary scope.
func (h *HTTP) OpenURL(ctx context.Context, rawURL string) error {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("invalid url %q", rawURL)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.navigateLocked(ctx, http.MethodGet, parsed, nil)
}

// Click follows a link or submits the enclosing form of a submit control.
// Other elements are reported as clicked without navigation.
func (h *HTTP) Click(ctx context.Context, selector string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sc, el := h.findLocked(ctx, selector)
	if el == nil {
		return false, nil
	}

	if goquery.NodeName(el) == "a" {
		href, ok := el.Attr("href")
		if !ok || strings.HasPrefix(strings.TrimSpace(href), "#") {
			return true, nil
		}
		target, err := sc.url.Parse(strings.TrimSpace(href))
		if err != nil {
			return true, fmt.Errorf("link %q: %w", href, err)
		}
		return true, h.navigateLocked(ctx, http.MethodGet, target, nil)
	}

	if isSubmit(el) {
		form := el.Closest("form")
		if form.Length() > 0 {
			return true, h.submitLocked(ctx, sc, form, el)
		}
	}
	return true, nil
}

// InputText fills a field in the current document.
func (h *HTTP) InputText(ctx context.Context, selector, text string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	_, el := h.findLocked(ctx, selector)
	if el == nil {
		return false, nil
	}
	setValue(el, text)
	return true, nil
}

// SetDatetime sets a date field's value. There is no script runtime, so the
// change notification is implicit in the updated form state.
func (h *HTTP) SetDatetime(ctx context.Context, selector, value string) (bool, error) {
	return h.InputText(ctx, selector, value)
}

// GetText returns the whitespace-normalized text of an element, or the
// current value of a form field.
func (h *HTTP) GetText(ctx context.Context, selector string) (string, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	_, el := h.findLocked(ctx, selector)
	if el == nil {
		return "", false, nil
	}
	switch goquery.NodeName(el) {
	case "input", "textarea", "select":
		return fieldValue(el), true, nil
	}
	return strings.Join(strings.Fields(el.Text()), " "), true, nil
}

// Evaluate is not available without a script runtime.
func (h *HTTP) Evaluate(ctx context.Context, script string) (any, error) {
	return nil, fmt.Errorf("evaluate: %w", ErrUnsupported)
}

// Stop drops the current page and idle connections.
func (h *HTTP) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.page = nil
	h.frames = nil
	h.loaded = false
	h.client.CloseIdleConnections()
	return nil
}

// CurrentURL returns the URL of the primary scope, or "" before navigation.
func (h *HTTP) CurrentURL() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.page == nil {
		return ""
	}
	return h.page.url.String()
}

// findLocked searches the page first and then each frame document.
func (h *HTTP) findLocked(ctx context.Context, selector string) (*scope, *goquery.Selection) {
	if h.page == nil || strings.TrimSpace(selector) == "" {
		return nil, nil
	}
	if sel := h.page.doc.Find(selector); sel.Length() > 0 {
		return h.page, sel.First()
	}
	h.loadFramesLocked(ctx)
	for _, fr := range h.frames {
		if sel := fr.doc.Find(selector); sel.Length() > 0 {
			return fr, sel.First()
		}
	}
	return nil, nil
}

// loadFramesLocked fetches iframe documents once per page. Frames that fail
// to load are skipped.
func (h *HTTP) loadFramesLocked(ctx context.Context) {
	if h.loaded || h.page == nil {
		return
	}
	h.loaded = true
	h.page.doc.Find("iframe[src], frame[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		target, err := h.page.url.Parse(strings.TrimSpace(src))
		if err != nil {
			return
		}
		fr, err := h.fetch(ctx, http.MethodGet, target, nil)
		if err != nil {
			return
		}
		h.frames = append(h.frames, fr)
	})
}

func (h *HTTP) navigateLocked(ctx context.Context, method string, target *url.URL, form url.Values) error {
	sc, err := h.fetch(ctx, method, target, form)
	if err != nil {
		return err
	}
	h.page = sc
	h.frames = nil
	h.loaded = false
	return nil
}

func (h *HTTP) fetch(ctx context.Context, method string, target *url.URL, form url.Values) (*scope, error) {
	var body io.Reader
	u := *target
	if form != nil {
		if method == http.MethodGet {
			u.RawQuery = form.Encode()
		} else {
			body = strings.NewReader(form.Encode())
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", h.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", u.String(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("request %s: status code %d", u.String(), resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", u.String(), err)
	}
	final := resp.Request.URL
	if final == nil {
		final = &u
	}
	return &scope{url: final, doc: doc}, nil
}

func (h *HTTP) submitLocked(ctx context.Context, sc *scope, form, submitter *goquery.Selection) error {
	action, _ := form.Attr("action")
	target, err := sc.url.Parse(strings.TrimSpace(action))
	if err != nil {
		return fmt.Errorf("form action %q: %w", action, err)
	}
	method := strings.ToUpper(strings.TrimSpace(form.AttrOr("method", http.MethodGet)))
	if method != http.MethodPost {
		method = http.MethodGet
	}
	return h.navigateLocked(ctx, method, target, formValues(form, submitter))
}

// formValues collects the successful controls of a form.
func formValues(form, submitter *goquery.Selection) url.Values {
	values := url.Values{}
	form.Find("input[name], textarea[name], select[name]").Each(func(_ int, s *goquery.Selection) {
		if _, disabled := s.Attr("disabled"); disabled {
			return
		}
		name, _ := s.Attr("name")
		if goquery.NodeName(s) == "input" {
			switch strings.ToLower(s.AttrOr("type", "text")) {
			case "checkbox", "radio":
				if _, checked := s.Attr("checked"); !checked {
					return
				}
				values.Add(name, s.AttrOr("value", "on"))
				return
			case "submit", "button", "image", "reset":
				if submitter == nil || !s.IsSelection(submitter) {
					return
				}
			}
		}
		values.Add(name, fieldValue(s))
	})
	if submitter != nil && goquery.NodeName(submitter) == "button" {
		if name, ok := submitter.Attr("name"); ok {
			values.Add(name, submitter.AttrOr("value", ""))
		}
	}
	return values
}

func isSubmit(el *goquery.Selection) bool {
	switch goquery.NodeName(el) {
	case "button":
		t := strings.ToLower(el.AttrOr("type", "submit"))
		return t == "submit"
	case "input":
		t := strings.ToLower(el.AttrOr("type", ""))
		return t == "submit" || t == "image"
	}
	return false
}

func fieldValue(el *goquery.Selection) string {
	switch goquery.NodeName(el) {
	case "textarea":
		return el.Text()
	case "select":
		opt := el.Find("option[selected]").First()
		if opt.Length() == 0 {
			opt = el.Find("option").First()
		}
		if v, ok := opt.Attr("value"); ok {
			return v
		}
		return strings.TrimSpace(opt.Text())
	}
	return el.AttrOr("value", "")
}

func setValue(el *goquery.Selection, value string) {
	switch goquery.NodeName(el) {
	case "textarea":
		el.SetText(value)
	case "select":
		el.Find("option").RemoveAttr("selected")
		el.Find("option").Each(func(_ int, opt *goquery.Selection) {
			if opt.AttrOr("value", strings.TrimSpace(opt.Text())) == value {
				opt.SetAttr("selected", "selected")
			}
		})
	default:
		el.SetAttr("value", value)
	}
}
