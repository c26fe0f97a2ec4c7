package state

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/miekg/dns"
)

var labelPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// NormalizeDomain validates a server name and returns it lower cased
// without a trailing dot. A leading "*." wildcard label is allowed
func NormalizeDomain(name string) (string, error) {
	trimmed := strings.TrimSpace(name)

	if trimmed == "" {
		return "", fmt.Errorf("empty domain name")
	}

	if _, ok := dns.IsDomainName(trimmed); !ok {
		return "", fmt.Errorf("invalid domain name %q", name)
	}

	canonical := strings.TrimSuffix(dns.CanonicalName(trimmed), ".")
	host := strings.TrimPrefix(canonical, "*.")

	if host == "" {
		return "", fmt.Errorf("invalid domain name %q", name)
	}

	for _, label := range dns.SplitDomainName(host) {
		if !labelPattern.MatchString(label) {
			return "", fmt.Errorf("invalid domain name %q: bad label %q", name, label)
		}
	}

	return canonical, nil
}

// NormalizeDomains validates every name and drops duplicates
func NormalizeDomains(names []string) ([]string, error) {
	result := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))

	for _, name := range names {
		domain, err := NormalizeDomain(name)

		if err != nil {
			return nil, err
		}

		if _, ok := seen[domain]; ok {
			continue
		}

		seen[domain] = struct{}{}
		result = append(result, domain)
	}

	return result, nil
}
