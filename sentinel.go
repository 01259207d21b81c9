package mapkit

import "time"

// Identifiers reserved for the built-in empty map and catalog entry.
const (
	EmptyMapID    = "0"
	EmptyMapLabel = "empty"
)

const (
	emptyMapTitle       = "Empty map"
	emptyMapDescription = "This is an empty map for testing."

	// EmptyMapJSON is the content served for the empty map.
	EmptyMapJSON = `{"title": "Empty map", "description": "This is an empty map for testing."}`

	emptyMapVersionID = "00000000-0000-0000-0000-000000000000"
)

// EmptyMap returns the read-only stand-in map reserved under ID "0".
// It is world readable so there is always something to display during
// development. All mutating operations on it fail with ErrReadOnly.
func EmptyMap() *Map {
	return &Map{
		ID:               EmptyMapID,
		Title:            emptyMapTitle,
		Description:      emptyMapDescription,
		WorldReadable:    true,
		CurrentVersionID: emptyMapVersionID,
		readOnly:         true,
	}
}

// emptyMapVersion is the single canned version the empty map exposes.
func emptyMapVersion() *MapVersion {
	return &MapVersion{
		ID:          emptyMapVersionID,
		MapID:       EmptyMapID,
		ContentJSON: EmptyMapJSON,
		Created:     time.Time{},
	}
}

// EmptyCatalogEntry returns the read-only stand-in entry reserved under
// the label "empty" in every domain. It points at the empty map.
func EmptyCatalogEntry(domain string) *CatalogEntry {
	return &CatalogEntry{
		Domain:       domain,
		Label:        EmptyMapLabel,
		Title:        emptyMapTitle,
		MapID:        EmptyMapID,
		MapVersionID: emptyMapVersionID,
		IsListed:     true,
		readOnly:     true,
	}
}
