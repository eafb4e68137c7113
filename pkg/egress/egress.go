// Package egress validates provider-supplied URLs before they are stored or fetched.
package egress

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	pkgerrors "github.com/angelmondragon/lessongate-backend/pkg/errors"
)

var errNoAllowedSuffixes = errors.New("no allowed download domains configured")

// ValidateDownloadURL accepts only https URLs whose host equals one of the
// allowed suffixes or is a subdomain of one. Userinfo and IP-literal hosts
// are always rejected.
func ValidateDownloadURL(raw string, allowedSuffixes []string) (*url.URL, error) {
	if len(normalizeSuffixes(allowedSuffixes)) == 0 {
		return nil, pkgerrors.Wrap(pkgerrors.CodeMisconfigured, errNoAllowedSuffixes, "egress allow-list is empty")
	}
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, rejected("download url is not parseable")
	}
	if err := checkURL(parsed, allowedSuffixes); err != nil {
		return nil, err
	}
	return parsed, nil
}

func checkURL(u *url.URL, allowedSuffixes []string) error {
	if !strings.EqualFold(u.Scheme, "https") {
		return rejected("download url must use https")
	}
	if u.User != nil {
		return rejected("download url must not carry credentials")
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return rejected("download url host is required")
	}
	if net.ParseIP(host) != nil {
		return rejected("download url host must be a domain name")
	}
	if port := u.Port(); port != "" && port != "443" {
		return rejected("download url must use the default https port")
	}
	for _, suffix := range normalizeSuffixes(allowedSuffixes) {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return nil
		}
	}
	return rejected(fmt.Sprintf("download host %q is not allow-listed", host))
}

func normalizeSuffixes(suffixes []string) []string {
	out := make([]string, 0, len(suffixes))
	for _, s := range suffixes {
		s = strings.Trim(strings.ToLower(strings.TrimSpace(s)), ".")
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func rejected(msg string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, msg)
}
