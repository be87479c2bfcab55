package randutil

import (
	"strings"

	"github.com/google/uuid"
)

// RandomSuffix returns a short random hex string suitable for unique naming.
func RandomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// ConsumerTag returns a broker consumer tag of the form "<prefix>-<suffix>".
func ConsumerTag(prefix string) string {
	return prefix + "-" + RandomSuffix()
}
