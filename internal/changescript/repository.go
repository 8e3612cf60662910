package changescript

import "slices"

// Repository owns the full set of available change scripts, keyed by id.
type Repository struct {
	ordered []*ChangeScript
}

// NewRepository builds a Repository from an unordered slice of scripts.
// It fails with a *DuplicateChangeScriptError when two scripts share an id.
func NewRepository(scripts []*ChangeScript) (*Repository, error) {
	byID := make(map[int64]*ChangeScript, len(scripts))

	for _, s := range scripts {
		if _, exists := byID[s.ID()]; exists {
			return nil, &DuplicateChangeScriptError{ID: s.ID()}
		}

		byID[s.ID()] = s
	}

	ordered := make([]*ChangeScript, 0, len(byID))
	for _, s := range byID {
		ordered = append(ordered, s)
	}

	slices.SortFunc(ordered, Compare)

	return &Repository{ordered: ordered}, nil
}

// Ordered returns every script ascending by id. The returned slice is a copy.
func (r *Repository) Ordered() []*ChangeScript {
	return slices.Clone(r.ordered)
}

// Len returns the number of scripts in the repository.
func (r *Repository) Len() int {
	return len(r.ordered)
}
