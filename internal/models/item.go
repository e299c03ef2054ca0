// Package models defines the review data types shared by the store,
// navigation, and linkage packages.
package models

import "time"

// LocationRef is a Mushroom Observer location candidate.
type LocationRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// NameRef is a Mushroom Observer taxon name candidate.
type NameRef struct {
	ID       int64  `json:"id"`
	TextName string `json:"text_name"`
	Author   string `json:"author,omitempty"`
}

// ExistingObservation points at an observation already uploaded for the
// same field slip code.
type ExistingObservation struct {
	ObservationID string `json:"observation_id"`
	URL           string `json:"url,omitempty"`
	Owner         string `json:"owner,omitempty"`
	InatID        string `json:"inat_id,omitempty"`
}

// SourceRecord holds the facts extracted from the photographed field slip.
// It is written once at ingestion and never mutated by review.
type SourceRecord struct {
	Filename             string                `json:"filename"`
	FieldCode            string                `json:"field_code,omitempty"`
	Date                 string                `json:"date,omitempty"`
	Location             string                `json:"location,omitempty"`
	LocationID           *int64                `json:"location_id,omitempty"`
	LocationMatch        string                `json:"location_match,omitempty"`
	LocationCandidates   []LocationRef         `json:"location_candidates,omitempty"`
	Name                 string                `json:"name,omitempty"`
	NameID               *int64                `json:"name_id,omitempty"`
	NameMatch            string                `json:"name_match,omitempty"`
	NameCandidates       []NameRef             `json:"name_candidates,omitempty"`
	Confidence           map[string]string     `json:"confidence,omitempty"`
	Notes                string                `json:"notes,omitempty"`
	ExistingObservations []ExistingObservation `json:"existing_observations,omitempty"`
}

// ReviewRecord holds the reviewer-entered outcome for an image.
type ReviewRecord struct {
	Status           ReviewStatus    `json:"status"`
	FieldCode        string          `json:"field_code,omitempty"`
	Date             string          `json:"date,omitempty"`
	Location         string          `json:"location,omitempty"`
	LocationID       *int64          `json:"location_id,omitempty"`
	Name             string          `json:"name,omitempty"`
	NameID           *int64          `json:"name_id,omitempty"`
	Notes            string          `json:"notes,omitempty"`
	LinkedImages     []string        `json:"linked_images,omitempty"`
	MOIDType         string          `json:"mo_id_type,omitempty"`
	MOIDValue        string          `json:"mo_id_value,omitempty"`
	MOObservationID  *int64          `json:"mo_observation_id,omitempty"`
	MOImageID        *int64          `json:"mo_image_id,omitempty"`
	MOObservationURL string          `json:"mo_observation_url,omitempty"`
	FieldLocks       map[string]bool `json:"field_locks,omitempty"`
	ReviewedAt       *time.Time      `json:"reviewed_at,omitempty"`
	Reviewer         string          `json:"reviewer,omitempty"`
	UploadedAt       *time.Time      `json:"uploaded_at,omitempty"`
	UploadedBy       string          `json:"uploaded_by,omitempty"`
}

// Resolved reports whether the image needs no further review attention.
// A terminal status resolves it, and so does an upstream observation
// reference regardless of status (an upload may have happened without the
// status being set, and there is nothing left to decide either way).
func (r *ReviewRecord) Resolved() bool {
	return r.Status.Terminal() || r.MOObservationID != nil
}

// HasLink reports whether key is in the linked image set.
func (r *ReviewRecord) HasLink(key string) bool {
	for _, k := range r.LinkedImages {
		if k == key {
			return true
		}
	}
	return false
}

// AddLink inserts key into the linked image set if absent.
func (r *ReviewRecord) AddLink(key string) {
	if !r.HasLink(key) {
		r.LinkedImages = append(r.LinkedImages, key)
	}
}

// RemoveLink deletes key from the linked image set if present.
func (r *ReviewRecord) RemoveLink(key string) {
	for i, k := range r.LinkedImages {
		if k == key {
			r.LinkedImages = append(r.LinkedImages[:i], r.LinkedImages[i+1:]...)
			return
		}
	}
}

// Item is one photographed field record under review.
type Item struct {
	Source   SourceRecord `json:"source"`
	Review   ReviewRecord `json:"review"`
	Priority Priority     `json:"priority"`
}

// Resolved reports whether the item is excluded from "next unreviewed"
// traversal.
func (i *Item) Resolved() bool {
	return i.Review.Resolved()
}
