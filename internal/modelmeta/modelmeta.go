package modelmeta

import (
	"strings"

	"github.com/danshapiro/gamecrew/internal/providerspec"
)

func NormalizeProvider(p string) string {
	return providerspec.CanonicalProviderKey(p)
}

// ModelIDFromResourceName turns "models/gemini-1.5-pro" into "gemini-1.5-pro".
// Bare ids pass through trimmed.
func ModelIDFromResourceName(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}

func ContainsFold(values []string, target string) bool {
	target = strings.ToLower(strings.TrimSpace(target))
	for _, v := range values {
		if strings.ToLower(strings.TrimSpace(v)) == target {
			return true
		}
	}
	return false
}
