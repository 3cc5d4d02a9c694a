package service

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
)

// maxIdentifierLength is the PostgreSQL NAMEDATALEN limit minus the terminator
const maxIdentifierLength = 63

var (
	identifierHints = []string{"id", "key", "code"}
	temporalHints   = []string{"date", "time"}
)

// IndexHintFor reports whether column looks like a join or filter column
func IndexHintFor(column string) bool {
	name := strings.ToLower(column)
	for _, hint := range identifierHints {
		if strings.Contains(name, hint) {
			return true
		}
	}
	for _, hint := range temporalHints {
		if strings.Contains(name, hint) {
			return true
		}
	}
	return false
}

// IndexName returns idx_<dataset>_<table>_<column>.
// Names over 63 bytes keep a prefix and end in a hash of the full name.
func IndexName(datasetID, tableID, column string) string {
	name := fmt.Sprintf("idx_%s_%s_%s", datasetID, tableID, column)
	if len(name) <= maxIdentifierLength {
		return name
	}

	suffix := fmt.Sprintf("_%016x", xxhash.Sum64String(name))
	cut := maxIdentifierLength - len(suffix)
	for cut > 0 && !utf8.RuneStart(name[cut]) {
		cut--
	}
	return name[:cut] + suffix
}
