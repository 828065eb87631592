package layerz

import (
	"net/http"
	"net/url"
	"strings"
)

// Filtered replaces the value of a sensitive query parameter.
const Filtered = "[FILTERED]"

// DefaultFilterParameters are redacted when filter_parameters is unset.
var DefaultFilterParameters = []string{
	"password", "passwd", "secret", "token", "api_key", "auth", "credit_card",
}

// ParamFilter redacts query parameters whose name contains one of its
// (case-insensitive) fragments.
type ParamFilter struct {
	fragments []string
}

// NewParamFilter builds a filter from name fragments.
func NewParamFilter(fragments ...string) *ParamFilter {
	f := &ParamFilter{}
	for _, frag := range fragments {
		frag = strings.ToLower(strings.TrimSpace(frag))
		if frag != "" {
			f.fragments = append(f.fragments, frag)
		}
	}
	return f
}

// FilterFromConfig reads filter_parameters as a comma list, falling back to
// DefaultFilterParameters.
func FilterFromConfig(cfg Config) *ParamFilter {
	if cfg != nil {
		if list := cfg.Value(ConfigFilterParameters); strings.TrimSpace(list) != "" {
			return NewParamFilter(strings.Split(list, ",")...)
		}
	}
	return NewParamFilter(DefaultFilterParameters...)
}

// Sensitive reports whether the parameter name must be redacted.
func (f *ParamFilter) Sensitive(name string) bool {
	name = strings.ToLower(name)
	for _, frag := range f.fragments {
		if strings.Contains(name, frag) {
			return true
		}
	}
	return false
}

// FilteredPath returns the path and query of u with sensitive values
// replaced by Filtered. Parameter order and encoding are preserved.
func (f *ParamFilter) FilteredPath(u *url.URL) string {
	path := u.EscapedPath()
	if u.RawQuery == "" {
		return path
	}

	pairs := strings.Split(u.RawQuery, "&")
	for i, pair := range pairs {
		rawName, _, hasValue := strings.Cut(pair, "=")
		name, err := url.QueryUnescape(rawName)
		if err != nil {
			name = rawName
		}
		if hasValue && f.Sensitive(name) {
			pairs[i] = rawName + "=" + Filtered
		}
	}
	return path + "?" + strings.Join(pairs, "&")
}

// TransactionURI formats the URI recorded for r according to uri_reporting:
// "path" drops the query string, anything else records the filtered path.
func TransactionURI(r *http.Request, cfg Config) string {
	if cfg != nil && cfg.Value(ConfigURIReporting) == URIReportingPath {
		return r.URL.EscapedPath()
	}
	return FilterFromConfig(cfg).FilteredPath(r.URL)
}
