// Package browser holds helpers for the plain browser pseudo-target: turning
// a broadcast message into a search on the current engine and normalizing
// addresses typed by the user.
package browser

import (
	"fmt"
	"net/url"
	"strings"
)

// Engine is a supported search engine.
type Engine struct {
	Name string
	// Match is a substring of the hostname that selects the engine.
	Match string
	// Base is the search endpoint; the query is appended URL-encoded.
	Base string
	// Param is the query parameter name.
	Param string
}

// Engines in match order. Google is also the fallback.
var Engines = []Engine{
	{Name: "google", Match: "google", Base: "https://www.google.com/search", Param: "q"},
	{Name: "naver", Match: "naver", Base: "https://search.naver.com/search.naver", Param: "query"},
	{Name: "daum", Match: "daum", Base: "https://search.daum.net/search", Param: "q"},
	{Name: "bing", Match: "bing", Base: "https://www.bing.com/search", Param: "q"},
}

// EngineFor picks the engine whose marker appears in currentURL's hostname,
// falling back to google.
func EngineFor(currentURL string) Engine {
	host := ""
	if u, err := url.Parse(currentURL); err == nil {
		host = strings.ToLower(u.Hostname())
	}
	for _, e := range Engines {
		if host != "" && strings.Contains(host, e.Match) {
			return e
		}
	}
	return Engines[0]
}

// SearchURL builds the search address for query on the engine the browser is
// currently showing.
func SearchURL(currentURL, query string) string {
	e := EngineFor(currentURL)
	return e.Base + "?" + e.Param + "=" + url.QueryEscape(query)
}

// NormalizeURL prefixes https:// when raw has no http(s) scheme and checks
// that the result has a host.
func NormalizeURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("empty url")
	}

	lower := strings.ToLower(s)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", raw, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", raw)
	}
	return u.String(), nil
}
