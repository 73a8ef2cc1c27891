// Package category groups catalog products under named categories.
package category

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound is returned when a category does not exist.
	ErrNotFound = errors.New("category not found")
	// ErrInvalid is returned when a category fails validation.
	ErrInvalid = errors.New("invalid category")
	// ErrAlreadyExists is returned by Create for a taken category ID.
	ErrAlreadyExists = errors.New("category already exists")
	// ErrInUse is returned when deleting a category that products still
	// reference.
	ErrInUse = errors.New("category in use")
)

// Category is a named product grouping.
type Category struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
}

// Validate checks a new category record.
func (c *Category) Validate() error {
	if err := validateName(c.Name); err != nil {
		return err
	}
	return validateDescription(c.Description)
}

// Fields is a partial update. Nil fields are left unchanged.
type Fields struct {
	Name        *string
	Description *string
}

// Validate checks the fields that are set.
func (f Fields) Validate() error {
	if f.Name != nil {
		if err := validateName(*f.Name); err != nil {
			return err
		}
	}
	if f.Description != nil {
		return validateDescription(*f.Description)
	}
	return nil
}

// Apply copies the set fields onto c.
func (f Fields) Apply(c *Category) {
	if f.Name != nil {
		c.Name = *f.Name
	}
	if f.Description != nil {
		c.Description = *f.Description
	}
}

func validateName(s string) error {
	if n := utf8.RuneCountInString(s); n < 2 || n > 20 {
		return errors.Wrap(ErrInvalid, "name has to contain 2 to 20 characters")
	}
	return nil
}

func validateDescription(s string) error {
	if n := utf8.RuneCountInString(s); n < 2 || n > 50 {
		return errors.Wrap(ErrInvalid, "description has to contain 2 to 50 characters")
	}
	return nil
}

// Repository is the category store.
type Repository interface {
	Get(ctx context.Context, id string) (*Category, error)
	// List returns every category ordered by name.
	List(ctx context.Context) ([]Category, error)
	Create(ctx context.Context, c *Category) error
	Update(ctx context.Context, id string, f Fields) (*Category, error)
	Delete(ctx context.Context, id string) error
}
