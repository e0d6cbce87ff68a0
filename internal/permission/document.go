package permission

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"golang.org/x/crypto/blake2b"
)

// Document is the nested key-value form of a matrix: role -> module -> capability.
// It is the shape persisted to storage and exchanged over HTTP.
type Document map[string]map[string]Capability

// Document returns the serialisable form of m.
func (m *Matrix) Document() Document {
	doc := make(Document)
	if m == nil {
		return doc
	}
	for role, row := range m.cells {
		out := make(map[string]Capability, len(row))
		for mod, c := range row {
			out[string(mod)] = c
		}
		doc[string(role)] = out
	}
	return doc
}

// FromDocument builds a matrix from doc. Role keys may use display names such as
// "Farm Manager"; keys that do not resolve are kept verbatim so Validate can report
// them. Two keys resolving to the same role, or to the same module within a role,
// are recorded as conflicts and the first key in sorted order fills the cell. The
// result is not validated.
func FromDocument(doc Document) *Matrix {
	cells := make(map[Role]map[Module]Capability, len(doc))
	seen := make(map[Module]struct{})
	roleKeys := make(map[Role]string, len(doc))
	var conflicts []string

	for _, rawRole := range slices.Sorted(maps.Keys(doc)) {
		role, ok := ParseRole(rawRole)
		if !ok {
			role = Role(rawRole)
		}
		if first, dup := roleKeys[role]; dup {
			conflicts = append(conflicts, fmt.Sprintf("duplicate role %s (%q and %q)", role, first, rawRole))
			continue
		}
		roleKeys[role] = rawRole

		row := doc[rawRole]
		dst := make(map[Module]Capability, len(row))
		moduleKeys := make(map[Module]string, len(row))
		for _, rawModule := range slices.Sorted(maps.Keys(row)) {
			mod, ok := ParseModule(rawModule)
			if !ok {
				mod = Module(rawModule)
			}
			if first, dup := moduleKeys[mod]; dup {
				conflicts = append(conflicts, fmt.Sprintf("duplicate module %s for role %s (%q and %q)", mod, role, first, rawModule))
				continue
			}
			moduleKeys[mod] = rawModule
			dst[mod] = row[rawModule]
			seen[mod] = struct{}{}
		}
		cells[role] = dst
	}

	present := make(map[Module]Capability, len(seen))
	for mod := range seen {
		present[mod] = NoAccess
	}
	return &Matrix{modules: sortedModules(present), cells: cells, conflicts: conflicts}
}

// MarshalJSON encodes the matrix as its Document.
func (m *Matrix) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Document())
}

// UnmarshalJSON decodes a Document into m without validating it.
func (m *Matrix) UnmarshalJSON(data []byte) error {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*m = *FromDocument(doc)
	return nil
}

// Fingerprint returns a stable hex digest of the matrix contents.
func Fingerprint(m *Matrix) string {
	// encoding/json sorts map keys, so equal matrices encode identically.
	raw, err := json.Marshal(m.Document())
	if err != nil {
		return ""
	}
	sum := blake2b.Sum256(raw)
	return hex.EncodeToString(sum[:16])
}
