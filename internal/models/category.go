package models

import "time"

// Category (a "stream" in early builds) organizes entries into a tree.
// Categories carry no version fields: the server always wins on pull.
type Category struct {
	ID      string
	OwnerID string

	Name string

	// Path is the materialized full path ("Work/Projects/Go").
	Path     string
	ParentID string
	Depth    int

	// EntryCount is a cached count of child entries.
	EntryCount int

	Color string
	Icon  string

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time

	Marks
}

// ContentEquals reports whether the user-visible fields of two categories
// match. Pull uses it to skip writes on timestamp-only churn.
func (c *Category) ContentEquals(o *Category) bool {
	return c.Name == o.Name &&
		c.Path == o.Path &&
		c.ParentID == o.ParentID &&
		c.Depth == o.Depth &&
		c.EntryCount == o.EntryCount &&
		c.Color == o.Color &&
		c.Icon == o.Icon
}
