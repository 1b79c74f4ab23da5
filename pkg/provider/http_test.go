package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `<html><body>
<h1 class="title">  Shop
   Front </h1>
<a id="next" href="/detail">detail</a>
<form action="/search" method="get">
  <input id="q" name="q" value="">
  <input id="date_picker" type="date" name="date" value="2024-01-01">
  <input type="checkbox" name="skip" value="1">
  <button id="go" type="submit" name="go" value="yes">Go</button>
</form>
<iframe src="/frame"></iframe>
</body></html>`)
	})
	mux.HandleFunc("/detail", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<span class="price-tag">$12.50</span>`)
	})
	mux.HandleFunc("/frame", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<div class="price-tag">in frame</div>`)
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<p id="echo">%s|%s|%s|%s</p>`,
			r.URL.Query().Get("q"), r.URL.Query().Get("date"),
			r.URL.Query().Get("skip"), r.URL.Query().Get("go"))
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTP_OpenURLAndGetText(t *testing.T) {
	srv := newSite(t)
	p := NewHTTP(HTTPConfig{})
	ctx := context.Background()

	if err := p.OpenURL(ctx, srv.URL+"/"); err != nil {
		t.Fatalf("open: %v", err)
	}
	text, found, err := p.GetText(ctx, ".title")
	if err != nil || !found {
		t.Fatalf("GetText found=%v err=%v", found, err)
	}
	if text != "Shop Front" {
		t.Errorf("text = %q, want %q", text, "Shop Front")
	}
}

func TestHTTP_MissingElementIsNegative(t *testing.T) {
	srv := newSite(t)
	p := NewHTTP(HTTPConfig{})
	ctx := context.Background()
	if err := p.OpenURL(ctx, srv.URL); err != nil {
		t.Fatal(err)
	}

	ok, err := p.Click(ctx, "#nope")
	if ok || err != nil {
		t.Errorf("Click = %v, %v; want false, nil", ok, err)
	}
	_, found, err := p.GetText(ctx, ".nope")
	if found || err != nil {
		t.Errorf("GetText found=%v err=%v", found, err)
	}
}

func TestHTTP_FrameSearchedAfterPage(t *testing.T) {
	srv := newSite(t)
	p := NewHTTP(HTTPConfig{})
	ctx := context.Background()
	if err := p.OpenURL(ctx, srv.URL); err != nil {
		t.Fatal(err)
	}
	text, found, _ := p.GetText(ctx, ".price-tag")
	if !found || text != "in frame" {
		t.Errorf("frame text = %q found=%v", text, found)
	}
}

func TestHTTP_ClickFollowsLink(t *testing.T) {
	srv := newSite(t)
	p := NewHTTP(HTTPConfig{})
	ctx := context.Background()
	if err := p.OpenURL(ctx, srv.URL); err != nil {
		t.Fatal(err)
	}
	ok, err := p.Click(ctx, "#next")
	if !ok || err != nil {
		t.Fatalf("Click = %v, %v", ok, err)
	}
	if !strings.HasSuffix(p.CurrentURL(), "/detail") {
		t.Errorf("url = %q", p.CurrentURL())
	}
	text, _, _ := p.GetText(ctx, ".price-tag")
	if text != "$12.50" {
		t.Errorf("text = %q, page element must win over frames", text)
	}
}

func TestHTTP_InputAndSubmit(t *testing.T) {
	srv := newSite(t)
	p := NewHTTP(HTTPConfig{})
	ctx := context.Background()
	if err := p.OpenURL(ctx, srv.URL); err != nil {
		t.Fatal(err)
	}
	if ok, _ := p.InputText(ctx, "#q", "lamp"); !ok {
		t.Fatal("input not found")
	}
	if ok, _ := p.SetDatetime(ctx, "#date_picker", "2025-01-18"); !ok {
		t.Fatal("date field not found")
	}
	v, _, _ := p.GetText(ctx, "#q")
	if v != "lamp" {
		t.Errorf("field value = %q", v)
	}
	if ok, err := p.Click(ctx, "#go"); !ok || err != nil {
		t.Fatalf("submit = %v, %v", ok, err)
	}
	echo, _, _ := p.GetText(ctx, "#echo")
	if echo != "lamp|2025-01-18||yes" {
		t.Errorf("echo = %q", echo)
	}
}

func TestHTTP_Errors(t *testing.T) {
	srv := newSite(t)
	p := NewHTTP(HTTPConfig{})
	ctx := context.Background()

	if err := p.OpenURL(ctx, "not a url"); err == nil {
		t.Error("expected invalid url error")
	}
	if err := p.OpenURL(ctx, srv.URL+"/broken"); err == nil {
		t.Error("expected status error")
	}
	if _, err := p.Evaluate(ctx, "1+1"); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Evaluate err = %v, want ErrUnsupported", err)
	}
	if ok, _ := p.Click(ctx, "a"); ok {
		t.Error("click before navigation must report not found")
	}
}

func TestHTTP_StopClearsPage(t *testing.T) {
	srv := newSite(t)
	p := NewHTTP(HTTPConfig{})
	ctx := context.Background()
	if err := p.OpenURL(ctx, srv.URL); err != nil {
		t.Fatal(err)
	}
	if err := p.Stop(); err != nil {
		t.Fatal(err)
	}
	if p.CurrentURL() != "" {
		t.Errorf("url after stop = %q", p.CurrentURL())
	}
}

func TestDryRun_RecordsCalls(t *testing.T) {
	d := NewDryRun(nil)
	ctx := context.Background()
	_ = d.OpenURL(ctx, "https://example.com")
	_, _ = d.InputText(ctx, "#q", "x")
	text, found, _ := d.GetText(ctx, ".p")
	if !found || text != "" {
		t.Errorf("GetText = %q, %v", text, found)
	}
	calls := d.Calls()
	if len(calls) != 3 || calls[0].Op != "open_url" || calls[1].Value != "x" {
		t.Errorf("calls = %+v", calls)
	}
}

var (
	_ Provider       = (*HTTP)(nil)
	_ DatetimeSetter = (*HTTP)(nil)
	_ Provider       = (*DryRun)(nil)
	_ DatetimeSetter = (*DryRun)(nil)
)
