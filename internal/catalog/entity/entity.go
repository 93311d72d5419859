// Package entity holds the generic catalog document. Resource-specific
// models embed or replace it; the core services only ever see the Entry
// capability.
package entity

// Document is a versioned, study-scoped catalog entity.
type Document struct {
	ID          string         `json:"id"`
	UUID        string         `json:"uuid"`
	Version     int            `json:"version"`
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty"`
}

func (d Document) EntryID() string   { return d.ID }
func (d Document) EntryUUID() string { return d.UUID }
func (d Document) EntryVersion() int { return d.Version }
