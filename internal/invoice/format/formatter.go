package format

import (
	"fmt"
)

// DefaultPrefix is used when a company has no invoice prefix.
const DefaultPrefix = "INV-"

// InvoiceNumber renders prefix + counter padded to five digits, e.g.
// "INV-00042". An empty prefix falls back to DefaultPrefix.
func InvoiceNumber(prefix string, seq int64) (string, error) {
	if seq <= 0 {
		return "", fmt.Errorf("invalid invoice sequence: %d", seq)
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return fmt.Sprintf("%s%05d", prefix, seq), nil
}
