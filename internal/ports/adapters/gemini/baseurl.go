package gemini

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

var defaultAllowedHosts = map[string]struct{}{
	"generativelanguage.googleapis.com": {},
}

func normalizeBaseURL(baseURL string) string {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return strings.TrimRight(baseURL, "/")
}

// apiVersionRE matches the leading path segment of a Generative Language API
// base URL, e.g. v1, v1beta, v1alpha.
var apiVersionRE = regexp.MustCompile(`^v[0-9]+(?:alpha|beta)?[0-9]*$`)

// ValidateBaseURL guards against sending the API key anywhere but an allowed
// https host, and requires the API version segment the endpoints hang off.
func ValidateBaseURL(baseURL string, allowedHosts []string) error {
	baseURL = normalizeBaseURL(baseURL)

	u, err := url.Parse(baseURL)
	switch {
	case err != nil:
		return fmt.Errorf("invalid GEMINI_BASE_URL: %w", err)
	case !u.IsAbs() || u.Hostname() == "":
		return fmt.Errorf("invalid GEMINI_BASE_URL %q: absolute URL with host is required", baseURL)
	case !strings.EqualFold(u.Scheme, "https"):
		return fmt.Errorf("invalid GEMINI_BASE_URL %q: https is required", baseURL)
	case u.User != nil:
		return fmt.Errorf("invalid GEMINI_BASE_URL %q: userinfo is not allowed", baseURL)
	case u.RawQuery != "" || u.Fragment != "":
		return fmt.Errorf("invalid GEMINI_BASE_URL %q: query and fragment are not allowed", baseURL)
	}

	host := strings.ToLower(u.Hostname())
	if _, ok := normalizeAllowedHosts(allowedHosts)[host]; !ok {
		return fmt.Errorf("invalid GEMINI_BASE_URL %q: host %q is not in GEMINI_ALLOWED_HOSTS", baseURL, host)
	}

	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	if !apiVersionRE.MatchString(segs[len(segs)-1]) {
		return fmt.Errorf("invalid GEMINI_BASE_URL %q: path must end in an API version such as /v1beta", baseURL)
	}
	return nil
}

func normalizeAllowedHosts(allowedHosts []string) map[string]struct{} {
	if len(allowedHosts) == 0 {
		return defaultAllowedHosts
	}

	out := make(map[string]struct{}, len(allowedHosts))
	for _, h := range allowedHosts {
		v := strings.ToLower(strings.TrimSpace(h))
		v = strings.TrimPrefix(v, "http://")
		v = strings.TrimPrefix(v, "https://")
		v = strings.Trim(v, "/")
		if v == "" {
			continue
		}
		if i := strings.Index(v, ":"); i >= 0 {
			v = v[:i]
		}
		out[v] = struct{}{}
	}
	if len(out) == 0 {
		return defaultAllowedHosts
	}
	return out
}
