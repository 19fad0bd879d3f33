package meetsync

import (
	"net/url"
	"regexp"
	"strings"
)

var urlPattern = regexp.MustCompile(`https?://[^\s<>"']+`)

// ResolveMeetingURL picks the meeting link for an event. The order is
// significant and shared by every provider mapper:
//
//  1. structured conference-data URL, when present and well-formed
//  2. the provider-native meeting link field
//  3. a URL embedded in the free-text location
//  4. a URL scanned out of the free-text description
//
// The first match wins; no match yields "".
func ResolveMeetingURL(conferenceURL, nativeLink, location, description string) string {
	if u := validURL(conferenceURL); u != "" {
		return u
	}
	if u := validURL(nativeLink); u != "" {
		return u
	}
	if u := ExtractURL(location); u != "" {
		return u
	}
	return ExtractURL(description)
}

// ExtractURL scans free text for the first http(s) URL, strips trailing
// punctuation and validates the result. Returns "" when nothing usable is
// found.
func ExtractURL(text string) string {
	match := urlPattern.FindString(text)
	if match == "" {
		return ""
	}
	match = strings.TrimRight(match, ".,;:!?)]}")
	return validURL(match)
}

func validURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ""
	}
	return raw
}
