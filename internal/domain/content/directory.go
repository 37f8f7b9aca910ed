// Package content defines the content directory collaborator: which tribes,
// artifacts and VR experiences exist, their category, and how many tribes
// the application knows.
package content

import (
	"context"

	"github.com/heritage-hub/heritage-engine/internal/domain/shared"
)

// Item is a directory entry.
type Item struct {
	ID       string             `json:"id" yaml:"id"`
	Kind     shared.ContentKind `json:"kind" yaml:"kind"`
	Title    string             `json:"title" yaml:"title"`
	Category string             `json:"category,omitempty" yaml:"category,omitempty"`
}

// Directory looks up content. Content ids are unique across kinds.
type Directory interface {
	// Lookup returns the item. Returns shared.ErrContentNotFound if unknown.
	Lookup(ctx context.Context, id string) (Item, error)

	// TotalTribes returns the number of known tribes.
	TotalTribes(ctx context.Context) (int, error)
}

// Require looks up id and checks its kind. A kind mismatch is reported as
// not found, since the id does not name content of that kind.
func Require(ctx context.Context, dir Directory, kind shared.ContentKind, id string) (Item, error) {
	item, err := dir.Lookup(ctx, id)
	if err != nil {
		return Item{}, err
	}
	if item.Kind != kind {
		return Item{}, shared.WrapError("content", "Require", shared.ErrNotFound,
			"no "+kind.String()+" with id "+id, shared.ErrContentNotFound)
	}
	return item, nil
}

// Exists reports whether id names content of the given kind.
func Exists(ctx context.Context, dir Directory, kind shared.ContentKind, id string) (bool, error) {
	_, err := Require(ctx, dir, kind, id)
	if err == nil {
		return true, nil
	}
	if shared.IsNotFound(err) {
		return false, nil
	}
	return false, err
}

// Category returns the category of id.
func Category(ctx context.Context, dir Directory, kind shared.ContentKind, id string) (string, error) {
	item, err := Require(ctx, dir, kind, id)
	if err != nil {
		return "", err
	}
	return item.Category, nil
}
