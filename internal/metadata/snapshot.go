package metadata

import (
	"strconv"
	"strings"
)

// EnumConstant identifies one constant of an enum type.
type EnumConstant struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func (e EnumConstant) String() string {
	return e.Type + "." + e.Value
}

// Snapshot is the persisted part of a registry: every id and table name that
// must survive a rebuild. A zero Snapshot describes a fresh database.
type Snapshot struct {
	TypeIDs    map[string]int
	ClassIDs   map[string]int
	EnumIDs    map[EnumConstant]int
	TableNames map[QualifiedName]string
}

// IsEmpty returns true if nothing has been persisted yet.
func (s Snapshot) IsEmpty() bool {
	return len(s.TypeIDs) == 0 && len(s.ClassIDs) == 0 && len(s.EnumIDs) == 0 && len(s.TableNames) == 0
}

func maxID[K comparable](ids map[K]int) int {
	m := 0
	for _, id := range ids {
		if id > m {
			m = id
		}
	}
	return m
}

// nextTableSeq returns the first sequence number past every persisted table
// name that uses the prefix.
func nextTableSeq(names map[QualifiedName]string, prefix string) int {
	next := 0
	for _, name := range names {
		suffix, ok := strings.CutPrefix(name, prefix)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(suffix)
		if err != nil {
			continue
		}
		if n+1 > next {
			next = n + 1
		}
	}
	return next
}
