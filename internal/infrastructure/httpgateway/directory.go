package httpgateway

import (
	"fmt"
	"strings"

	"github.com/fleetshift/fleetshift-pipeline/internal/domain"
)

// ComponentConfig is the endpoint configuration of one provider kind.
type ComponentConfig struct {
	ProviderKind domain.ProviderKind
	URL          string
}

// Directory resolves provider kinds to endpoint configuration. Kinds
// without an explicit entry use https://ci.<kind>.com.
type Directory struct {
	URLs map[domain.ProviderKind]string
}

func (d Directory) Lookup(kind domain.ProviderKind) ComponentConfig {
	url, ok := d.URLs[kind]
	if !ok || strings.TrimSpace(url) == "" {
		url = fmt.Sprintf("https://ci.%s.com", kind)
	}
	return ComponentConfig{ProviderKind: kind, URL: strings.TrimRight(url, "/")}
}
