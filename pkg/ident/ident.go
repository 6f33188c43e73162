// Package ident derives deterministic message identifiers from the
// natural keys observed by collectors. The mapping is pure: equal inputs
// produce equal ids across processes and restarts.
package ident

import (
	"strings"

	"github.com/google/uuid"
)

// rootNamespace anchors every module namespace. It never changes; doing
// so would re-key every message in the fleet.
var rootNamespace = uuid.MustParse("9aa22c14-61cc-4e34-8f5e-2f1d6ba10b7d")

// SourceID joins the parts of a natural key into the canonical source id,
// e.g. SourceID("bitfinex", "tBTCUSD", "trade", "12345").
func SourceID(module string, parts ...string) string {
	if len(parts) == 0 {
		return module
	}
	return module + ":" + strings.Join(parts, ":")
}

// ModuleNamespace returns the UUID namespace under which a module's
// identifiers are derived.
func ModuleNamespace(module string) uuid.UUID {
	return uuid.NewSHA1(rootNamespace, []byte(module))
}

// MessageID derives the canonical message id for a source id under the
// module's namespace.
func MessageID(module, sourceID string) string {
	return uuid.NewSHA1(ModuleNamespace(module), []byte(sourceID)).String()
}
