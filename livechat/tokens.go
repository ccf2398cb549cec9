package livechat

import (
	"fmt"
	"regexp"
	"sort"
)

// Session token names produced by the default extractor.
const (
	TokenAPIKey        = "apiKey"
	TokenContinuation  = "continuation"
	TokenClientName    = "clientName"
	TokenClientVersion = "clientVersion"
)

// DefaultMarkers maps each session token to the prefix that precedes it in the watch page.
var DefaultMarkers = map[string]string{
	TokenAPIKey:        `"INNERTUBE_API_KEY":"`,
	TokenContinuation:  `"continuation":"`,
	TokenClientName:    `"clientName":"`,
	TokenClientVersion: `"clientVersion":"`,
}

var liveStreamabilityPattern = regexp.MustCompile(`"liveStreamabilityRenderer":\{"videoId":"(\S*?)",`)

// TokenExtractor pulls named tokens out of a watch page. A missing token is
// reported as a *MissingTokenError.
type TokenExtractor interface {
	Extract(page string) (map[string]string, error)
}

// MarkerExtractor finds each token as the text between a known prefix and the next double quote.
type MarkerExtractor struct {
	names    []string
	markers  map[string]string
	patterns map[string]*regexp.Regexp
}

// NewMarkerExtractor compiles one pattern per marker. A nil map uses DefaultMarkers.
func NewMarkerExtractor(markers map[string]string) *MarkerExtractor {
	if markers == nil {
		markers = DefaultMarkers
	}
	e := &MarkerExtractor{
		markers:  make(map[string]string, len(markers)),
		patterns: make(map[string]*regexp.Regexp, len(markers)),
	}
	for name, prefix := range markers {
		e.names = append(e.names, name)
		e.markers[name] = prefix
		e.patterns[name] = regexp.MustCompile(regexp.QuoteMeta(prefix) + `(\S*?)"`)
	}
	sort.Strings(e.names)
	return e
}

// Extract returns every token or the first missing one in name order.
func (e *MarkerExtractor) Extract(page string) (map[string]string, error) {
	out := make(map[string]string, len(e.names))
	for _, name := range e.names {
		m := e.patterns[name].FindStringSubmatch(page)
		if m == nil {
			return nil, &MissingTokenError{Name: name, Marker: e.markers[name]}
		}
		out[name] = m[1]
	}
	return out, nil
}

// Session holds the ephemeral tokens needed to query the continuation endpoint.
type Session struct {
	BroadcastID   string
	APIKey        string
	Continuation  string
	ClientName    string
	ClientVersion string
}

// extractSession builds a Session from a watch page.
func extractSession(ex TokenExtractor, broadcastID, page string) (Session, error) {
	tokens, err := ex.Extract(page)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %w", ErrSessionExtraction, err)
	}
	s := Session{
		BroadcastID:   broadcastID,
		APIKey:        tokens[TokenAPIKey],
		Continuation:  tokens[TokenContinuation],
		ClientName:    tokens[TokenClientName],
		ClientVersion: tokens[TokenClientVersion],
	}
	for name, v := range map[string]string{
		TokenAPIKey:        s.APIKey,
		TokenContinuation:  s.Continuation,
		TokenClientName:    s.ClientName,
		TokenClientVersion: s.ClientVersion,
	} {
		if v == "" {
			return Session{}, fmt.Errorf("%w: %w", ErrSessionExtraction, &MissingTokenError{Name: name})
		}
	}
	return s, nil
}

// broadcastIDFromChannelPage extracts the live video id embedded in a channel's /live page.
func broadcastIDFromChannelPage(page string) string {
	m := liveStreamabilityPattern.FindStringSubmatch(page)
	if m == nil {
		return ""
	}
	return m[1]
}
