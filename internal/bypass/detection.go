// Package bypass recognises pages where a search engine or CDN challenged the
// request instead of serving results.
package bypass

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/FranksOps/websearch/pkg/httpclient"
)

// Page is a fetched response under inspection. Its body is parsed as HTML on
// first use.
type Page struct {
	*httpclient.Response

	doc    *goquery.Document
	parsed bool
}

// NewPage wraps res for the detectors.
func NewPage(res *httpclient.Response) *Page {
	return &Page{Response: res}
}

// Has reports whether the body contains an element matching selector.
// Engines echo the query back into result pages, so challenge markers are
// matched as elements rather than as text.
func (p *Page) Has(selector string) bool {
	if !p.parsed {
		p.parsed = true
		p.doc, _ = goquery.NewDocumentFromReader(bytes.NewReader(p.Body))
	}
	if p.doc == nil {
		return false
	}
	return p.doc.Find(selector).Length() > 0
}

// Detector reports whether p is a challenge page and names its source.
type Detector func(p *Page) (detected bool, source string)

// DefaultDetectors returns the detectors applied to every search page fetch.
func DefaultDetectors() []Detector {
	return []Detector{
		detectGoogleSorry,
		detectGoogleConsent,
		detectRecaptcha,
		detectDuckDuckGoAnomaly,
		detectCloudflare,
		detectAkamai,
		detectDataDome,
		detectPerimeterX,
	}
}

// Analyze runs res through detectors and returns the first hit.
func Analyze(res *httpclient.Response, detectors []Detector) (bool, string) {
	if res == nil {
		return false, ""
	}
	p := NewPage(res)
	for _, d := range detectors {
		if detected, source := d(p); detected {
			return true, source
		}
	}
	return false, ""
}

func containsAny(body []byte, needles ...string) bool {
	for _, n := range needles {
		if bytes.Contains(body, []byte(n)) {
			return true
		}
	}
	return false
}

func serverHeader(p *Page) string {
	return strings.ToLower(p.Header.Get("Server"))
}

// detectGoogleSorry catches the "unusual traffic" interstitial Google serves
// from /sorry/ once it rate limits a client. The phrase alone only counts on
// a 429, since a 200 result page may carry it in the echoed query.
func detectGoogleSorry(p *Page) (bool, string) {
	if strings.Contains(p.URL, "/sorry/") {
		return true, "GoogleSorry"
	}
	if p.StatusCode == http.StatusTooManyRequests && containsAny(p.Body, "Our systems have detected unusual traffic") {
		return true, "GoogleSorry"
	}
	if p.Has(`form[action*="/sorry/"], form#captcha-form`) {
		return true, "GoogleSorry"
	}
	return false, ""
}

// detectGoogleConsent catches the EU cookie consent wall that replaces results.
func detectGoogleConsent(p *Page) (bool, string) {
	if strings.Contains(p.URL, "consent.google.") {
		return true, "GoogleConsent"
	}
	if p.Has(`form[action*="consent.google."]`) {
		return true, "GoogleConsent"
	}
	return false, ""
}

func detectRecaptcha(p *Page) (bool, string) {
	if p.Has(`.g-recaptcha, script[src*="recaptcha/api.js"]`) {
		return true, "reCAPTCHA"
	}
	return false, ""
}

// detectDuckDuckGoAnomaly catches DuckDuckGo's bot check, served with a 200.
func detectDuckDuckGoAnomaly(p *Page) (bool, string) {
	if p.Has(`[class*="anomaly-modal"], #challenge-form, form[action*="anomaly"]`) {
		return true, "DuckDuckGoAnomaly"
	}
	return false, ""
}
func detectCloudflare(p *Page) (bool, string) {
	if p.StatusCode != http.StatusForbidden && p.StatusCode != http.StatusServiceUnavailable {
		return false, ""
	}
	if strings.Contains(serverHeader(p), "cloudflare") ||
		containsAny(p.Body, "cf-browser-verification", "cf-turnstile", "Attention Required! | Cloudflare") {
		return true, "Cloudflare"
	}
	return false, ""
}

func detectAkamai(p *Page) (bool, string) {
	if p.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if strings.Contains(serverHeader(p), "akamai") ||
		(containsAny(p.Body, "Reference #") && containsAny(p.Body, "Access Denied")) {
		return true, "Akamai"
	}
	return false, ""
}

func detectDataDome(p *Page) (bool, string) {
	if p.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if strings.Contains(serverHeader(p), "datadome") ||
		p.Header.Get("X-DataDome") != "" ||
		containsAny(p.Body, "geo.captcha-delivery.com") {
		return true, "DataDome"
	}
	return false, ""
}

func detectPerimeterX(p *Page) (bool, string) {
	if p.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if p.Header.Get("X-Px-Captcha") != "" ||
		containsAny(p.Body, "client.perimeterx.net", "px-captcha", "_pxBlock") {
		return true, "PerimeterX"
	}
	return false, ""
}
