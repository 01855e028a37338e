package syncer

import (
	"encoding/json"
	"time"

	"github.com/tracehq/tracesync/internal/models"
	"github.com/tracehq/tracesync/internal/remote"
)

// Remote table names.
const (
	tableEntries     = "entries"
	tableCategories  = "categories"
	tableLocations   = "locations"
	tableAttachments = "attachments"
)

// Row readers. The remote driver decodes columns into Go values whose
// concrete types vary by backend (time.Time vs RFC3339 string, decoded JSON
// vs raw bytes), so every reader tolerates the shapes we have seen.

func rowString(r remote.Row, key string) string {
	switch v := r[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	}
	return ""
}

func rowBool(r remote.Row, key string) bool {
	b, _ := r[key].(bool)
	return b
}

func rowInt(r remote.Row, key string) int {
	switch v := r[key].(type) {
	case int64:
		return int(v)
	case int32:
		return int(v)
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func rowInt64(r remote.Row, key string) int64 {
	switch v := r[key].(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

func rowInt64Ptr(r remote.Row, key string) *int64 {
	if r[key] == nil {
		return nil
	}
	n := rowInt64(r, key)
	return &n
}

func rowFloatPtr(r remote.Row, key string) *float64 {
	switch v := r[key].(type) {
	case float64:
		return &v
	case float32:
		f := float64(v)
		return &f
	}
	return nil
}

func rowTime(r remote.Row, key string) time.Time {
	switch v := r[key].(type) {
	case time.Time:
		return v.UTC()
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func rowTimePtr(r remote.Row, key string) *time.Time {
	if r[key] == nil {
		return nil
	}
	t := rowTime(r, key)
	if t.IsZero() {
		return nil
	}
	return &t
}

func rowStrings(r remote.Row, key string) []string {
	switch v := r[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		var out []string
		if json.Unmarshal([]byte(v), &out) == nil {
			return out
		}
	case []byte:
		var out []string
		if json.Unmarshal(v, &out) == nil {
			return out
		}
	}
	return nil
}

func jsonStrings(xs []string) string {
	if len(xs) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(xs)
	return string(b)
}

func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableTime(p *time.Time) any {
	if p == nil {
		return nil
	}
	return p.UTC()
}

// entryRow renders an entry for the remote API. Tags and mentions travel as
// JSON; local-only bookkeeping never leaves the device.
func entryRow(e *models.Entry) remote.Row {
	return remote.Row{
		"id":           e.ID,
		"owner_id":     e.OwnerID,
		"title":        e.Title,
		"body":         e.Body,
		"tags":         jsonStrings(e.Tags),
		"mentions":     jsonStrings(e.Mentions),
		"category_id":  emptyToNil(e.CategoryID),
		"location_id":  emptyToNil(e.LocationID),
		"latitude":     nullable(e.Latitude),
		"longitude":    nullable(e.Longitude),
		"status":       string(e.Status),
		"due_at":       nullableTime(e.DueAt),
		"completed_at": nullableTime(e.CompletedAt),
		"created_at":   e.CreatedAt.UTC(),
		"updated_at":   e.UpdatedAt.UTC(),
		"deleted_at":   nullableTime(e.DeletedAt),
		"version":      e.Version,
	}
}

func entryFromRow(r remote.Row) *models.Entry {
	e := &models.Entry{
		ID:          rowString(r, "id"),
		OwnerID:     rowString(r, "owner_id"),
		Title:       rowString(r, "title"),
		Body:        rowString(r, "body"),
		Tags:        rowStrings(r, "tags"),
		Mentions:    rowStrings(r, "mentions"),
		CategoryID:  rowString(r, "category_id"),
		LocationID:  rowString(r, "location_id"),
		Latitude:    rowFloatPtr(r, "latitude"),
		Longitude:   rowFloatPtr(r, "longitude"),
		Status:      models.EntryStatus(rowString(r, "status")),
		DueAt:       rowTimePtr(r, "due_at"),
		CompletedAt: rowTimePtr(r, "completed_at"),
		CreatedAt:   rowTime(r, "created_at"),
		UpdatedAt:   rowTime(r, "updated_at"),
		DeletedAt:   rowTimePtr(r, "deleted_at"),
	}
	e.Version = rowInt64(r, "version")
	return e
}

func categoryRow(c *models.Category) remote.Row {
	return remote.Row{
		"id":          c.ID,
		"owner_id":    c.OwnerID,
		"name":        c.Name,
		"path":        c.Path,
		"parent_id":   emptyToNil(c.ParentID),
		"depth":       c.Depth,
		"entry_count": c.EntryCount,
		"color":       c.Color,
		"icon":        c.Icon,
		"created_at":  c.CreatedAt.UTC(),
		"updated_at":  c.UpdatedAt.UTC(),
		"deleted_at":  nullableTime(c.DeletedAt),
	}
}

func categoryFromRow(r remote.Row) *models.Category {
	return &models.Category{
		ID:         rowString(r, "id"),
		OwnerID:    rowString(r, "owner_id"),
		Name:       rowString(r, "name"),
		Path:       rowString(r, "path"),
		ParentID:   rowString(r, "parent_id"),
		Depth:      rowInt(r, "depth"),
		EntryCount: rowInt(r, "entry_count"),
		Color:      rowString(r, "color"),
		Icon:       rowString(r, "icon"),
		CreatedAt:  rowTime(r, "created_at"),
		UpdatedAt:  rowTime(r, "updated_at"),
		DeletedAt:  rowTimePtr(r, "deleted_at"),
	}
}

func locationRow(l *models.Location) remote.Row {
	return remote.Row{
		"id":                    l.ID,
		"owner_id":              l.OwnerID,
		"name":                  l.Name,
		"latitude":              nullable(l.Latitude),
		"longitude":             nullable(l.Longitude),
		"geocoded_address":      l.Geocoded.Address,
		"geocoded_neighborhood": l.Geocoded.Neighborhood,
		"geocoded_postal_code":  l.Geocoded.PostalCode,
		"geocoded_city":         l.Geocoded.City,
		"geocoded_subdivision":  l.Geocoded.Subdivision,
		"geocoded_region":       l.Geocoded.Region,
		"geocoded_country":      l.Geocoded.Country,
		"current_address":       l.Current.Address,
		"current_neighborhood":  l.Current.Neighborhood,
		"current_postal_code":   l.Current.PostalCode,
		"current_city":          l.Current.City,
		"current_subdivision":   l.Current.Subdivision,
		"current_region":        l.Current.Region,
		"current_country":       l.Current.Country,
		"place_id":              l.PlaceID,
		"created_at":            l.CreatedAt.UTC(),
		"updated_at":            l.UpdatedAt.UTC(),
		"deleted_at":            nullableTime(l.DeletedAt),
	}
}

func locationFromRow(r remote.Row) *models.Location {
	return &models.Location{
		ID:        rowString(r, "id"),
		OwnerID:   rowString(r, "owner_id"),
		Name:      rowString(r, "name"),
		Latitude:  rowFloatPtr(r, "latitude"),
		Longitude: rowFloatPtr(r, "longitude"),
		Geocoded: models.Address{
			Address:      rowString(r, "geocoded_address"),
			Neighborhood: rowString(r, "geocoded_neighborhood"),
			PostalCode:   rowString(r, "geocoded_postal_code"),
			City:         rowString(r, "geocoded_city"),
			Subdivision:  rowString(r, "geocoded_subdivision"),
			Region:       rowString(r, "geocoded_region"),
			Country:      rowString(r, "geocoded_country"),
		},
		Current: models.Address{
			Address:      rowString(r, "current_address"),
			Neighborhood: rowString(r, "current_neighborhood"),
			PostalCode:   rowString(r, "current_postal_code"),
			City:         rowString(r, "current_city"),
			Subdivision:  rowString(r, "current_subdivision"),
			Region:       rowString(r, "current_region"),
			Country:      rowString(r, "current_country"),
		},
		PlaceID:   rowString(r, "place_id"),
		CreatedAt: rowTime(r, "created_at"),
		UpdatedAt: rowTime(r, "updated_at"),
		DeletedAt: rowTimePtr(r, "deleted_at"),
	}
}

func attachmentRow(a *models.Attachment) remote.Row {
	return remote.Row{
		"id":          a.ID,
		"owner_id":    a.OwnerID,
		"entry_id":    a.EntryID,
		"remote_path": a.RemotePath,
		"mime_type":   a.MimeType,
		"size_bytes":  nullable(a.SizeBytes),
		"width":       nullable(a.Width),
		"height":      nullable(a.Height),
		"position":    a.Position,
		"created_at":  a.CreatedAt.UTC(),
		"updated_at":  a.UpdatedAt.UTC(),
		"deleted_at":  nullableTime(a.DeletedAt),
		"version":     a.Version,
	}
}

func attachmentFromRow(r remote.Row) *models.Attachment {
	a := &models.Attachment{
		ID:         rowString(r, "id"),
		OwnerID:    rowString(r, "owner_id"),
		EntryID:    rowString(r, "entry_id"),
		RemotePath: rowString(r, "remote_path"),
		MimeType:   rowString(r, "mime_type"),
		SizeBytes:  rowInt64Ptr(r, "size_bytes"),
		Width:      rowInt64Ptr(r, "width"),
		Height:     rowInt64Ptr(r, "height"),
		Position:   rowInt(r, "position"),
		CreatedAt:  rowTime(r, "created_at"),
		UpdatedAt:  rowTime(r, "updated_at"),
		DeletedAt:  rowTimePtr(r, "deleted_at"),
	}
	a.Version = rowInt64(r, "version")
	return a
}

func emptyToNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}
