package models

// ReviewUpdate carries the fields of a review submission. Nil pointers
// leave the stored value untouched, mirroring partial updates from the
// review form.
type ReviewUpdate struct {
	Status           *ReviewStatus    `json:"status,omitempty"`
	FieldCode        *string          `json:"field_code,omitempty"`
	Date             *string          `json:"date,omitempty"`
	Location         *string          `json:"location,omitempty"`
	LocationID       *int64           `json:"location_id,omitempty"`
	Name             *string          `json:"name,omitempty"`
	NameID           *int64           `json:"name_id,omitempty"`
	Notes            *string          `json:"notes,omitempty"`
	LinkedImages     *[]string        `json:"linked_images,omitempty"`
	MOIDType         *string          `json:"mo_id_type,omitempty"`
	MOIDValue        *string          `json:"mo_id_value,omitempty"`
	MOObservationID  *int64           `json:"mo_observation_id,omitempty"`
	MOImageID        *int64           `json:"mo_image_id,omitempty"`
	MOObservationURL *string          `json:"mo_observation_url,omitempty"`
	FieldLocks       *map[string]bool `json:"field_locks,omitempty"`
}

// Apply copies the set fields onto r.
func (u *ReviewUpdate) Apply(r *ReviewRecord) {
	if u.Status != nil {
		r.Status = *u.Status
	}
	if u.FieldCode != nil {
		r.FieldCode = *u.FieldCode
	}
	if u.Date != nil {
		r.Date = *u.Date
	}
	if u.Location != nil {
		r.Location = *u.Location
	}
	if u.LocationID != nil {
		r.LocationID = u.LocationID
	}
	if u.Name != nil {
		r.Name = *u.Name
	}
	if u.NameID != nil {
		r.NameID = u.NameID
	}
	if u.Notes != nil {
		r.Notes = *u.Notes
	}
	if u.LinkedImages != nil {
		r.LinkedImages = append([]string(nil), (*u.LinkedImages)...)
	}
	if u.MOIDType != nil {
		r.MOIDType = *u.MOIDType
	}
	if u.MOIDValue != nil {
		r.MOIDValue = *u.MOIDValue
	}
	if u.MOObservationID != nil {
		r.MOObservationID = u.MOObservationID
	}
	if u.MOImageID != nil {
		r.MOImageID = u.MOImageID
	}
	if u.MOObservationURL != nil {
		r.MOObservationURL = *u.MOObservationURL
	}
	if u.FieldLocks != nil {
		r.FieldLocks = *u.FieldLocks
	}
}
