package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReviewUpdate_Apply_PartialUpdate(t *testing.T) {
	rec := ReviewRecord{
		Status:    StatusApproved,
		FieldCode: "NEMF-001",
		Notes:     "original",
	}

	notes := "amended"
	u := ReviewUpdate{Notes: &notes}
	u.Apply(&rec)

	assert.Equal(t, "amended", rec.Notes)
	assert.Equal(t, StatusApproved, rec.Status, "nil fields untouched")
	assert.Equal(t, "NEMF-001", rec.FieldCode)
}

func TestReviewUpdate_Apply_AllFields(t *testing.T) {
	status := StatusCorrected
	fieldCode := "NEMF-042"
	date := "2026-09-12"
	location := "Stratton Brook State Park, Connecticut, USA"
	locationID := int64(7)
	name := "Amanita muscaria"
	nameID := int64(9)
	notes := "cap faded"
	linked := []string{"b.jpg"}
	locks := map[string]bool{"location": true}

	var rec ReviewRecord
	u := ReviewUpdate{
		Status:       &status,
		FieldCode:    &fieldCode,
		Date:         &date,
		Location:     &location,
		LocationID:   &locationID,
		Name:         &name,
		NameID:       &nameID,
		Notes:        &notes,
		LinkedImages: &linked,
		FieldLocks:   &locks,
	}
	u.Apply(&rec)

	assert.Equal(t, StatusCorrected, rec.Status)
	assert.Equal(t, "NEMF-042", rec.FieldCode)
	assert.Equal(t, "2026-09-12", rec.Date)
	assert.Equal(t, location, rec.Location)
	assert.Equal(t, int64(7), *rec.LocationID)
	assert.Equal(t, "Amanita muscaria", rec.Name)
	assert.Equal(t, int64(9), *rec.NameID)
	assert.Equal(t, []string{"b.jpg"}, rec.LinkedImages)
	assert.True(t, rec.FieldLocks["location"])

	// The linked slice is copied, not aliased.
	linked[0] = "mutated.jpg"
	assert.Equal(t, []string{"b.jpg"}, rec.LinkedImages)
}
