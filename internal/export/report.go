// Package export renders a review snapshot as an Excel workbook for
// sharing progress outside the tool.
package export

import (
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/nemf/photo-review/internal/store"
)

const (
	imagesSheet  = "Images"
	summarySheet = "Summary"
)

var imageHeaders = []string{
	"filename", "field_code", "date", "location", "name",
	"status", "reviewer", "reviewed_at", "linked_images",
	"mo_observation_id", "uploaded_by",
}

// WriteReport renders snap into an xlsx file at path: one row per image
// in key order plus a summary sheet with the status breakdown.
func WriteReport(snap *store.Snapshot, path string) error {
	f := excelize.NewFile()

	if err := f.SetSheetName("Sheet1", imagesSheet); err != nil {
		return err
	}
	for i, h := range imageHeaders {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(imagesSheet, cell, h); err != nil {
			return err
		}
	}

	keys := make([]string, 0, len(snap.Images))
	for k := range snap.Images {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for rowIdx, key := range keys {
		img := snap.Images[key]
		review := img.Review

		reviewedAt := ""
		if review.ReviewedAt != nil {
			reviewedAt = review.ReviewedAt.Format("2006-01-02 15:04:05")
		}
		obsID := ""
		if review.MOObservationID != nil {
			obsID = fmt.Sprintf("%d", *review.MOObservationID)
		}

		date := review.Date
		if date == "" {
			date = img.Source.Date
		}
		location := review.Location
		if location == "" {
			location = img.Source.Location
		}
		name := review.Name
		if name == "" {
			name = img.Source.Name
		}
		fieldCode := review.FieldCode
		if fieldCode == "" {
			fieldCode = img.Source.FieldCode
		}

		values := []any{
			key, fieldCode, date, location, name,
			string(review.Status), review.Reviewer, reviewedAt,
			joinLinks(review.LinkedImages), obsID, review.UploadedBy,
		}
		for colIdx, v := range values {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(imagesSheet, cell, v); err != nil {
				return err
			}
		}
	}

	if err := writeSummary(f, snap); err != nil {
		return err
	}

	return f.SaveAs(path)
}

func writeSummary(f *excelize.File, snap *store.Snapshot) error {
	if _, err := f.NewSheet(summarySheet); err != nil {
		return err
	}

	snap.RecomputeSummary()
	sum := snap.Summary

	rows := [][]any{
		{"total", sum.Total},
		{"reviewed", sum.Reviewed},
		{"approved", sum.Approved},
		{"corrected", sum.Corrected},
		{"excluded", sum.Excluded},
		{"already_on_mo", sum.AlreadyOnMO},
		{"created", snap.Metadata.Created},
		{"source", snap.Metadata.Source},
	}
	for rowIdx, row := range rows {
		for colIdx, v := range row {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+1)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(summarySheet, cell, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func joinLinks(links []string) string {
	out := ""
	for i, l := range links {
		if i > 0 {
			out += ", "
		}
		out += l
	}
	return out
}
