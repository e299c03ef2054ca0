package handlers

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nemf/photo-review/internal/events"
	"github.com/nemf/photo-review/internal/logger"
	"github.com/nemf/photo-review/internal/mo"
)

type addToExistingRequest struct {
	Filename      string `json:"filename"`
	ObservationID int64  `json:"observation_id"`
	FieldCode     string `json:"field_code"`
}

type createNewRequest struct {
	Filename   string `json:"filename"`
	FieldCode  string `json:"field_code"`
	Date       string `json:"date"`
	LocationID *int64 `json:"location_id"`
	NameID     *int64 `json:"name_id"`
	Notes      string `json:"notes"`
}

type uploadedImage struct {
	Filename string `json:"filename"`
	ImageID  int64  `json:"image_id"`
}

// MOAddToExisting uploads an image and its linked group to an existing
// observation: verify the observation, upload and attach each image,
// append the field slip code to the observation notes, and create or
// link the field slip.
func (h *Handler) MOAddToExisting(c *gin.Context) {
	username := currentUser(c)

	var req addToExistingRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Filename == "" || req.ObservationID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "filename and observation_id required"})
		return
	}

	client, group, ok := h.prepareUpload(c, req.Filename, username)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	exists, err := client.VerifyObservationExists(ctx, req.ObservationID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Observation not found on MO",
		})
		return
	}

	uploaded, err := h.uploadGroup(ctx, client, group, username, req.FieldCode, req.ObservationID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	var fieldSlip any
	if req.FieldCode != "" {
		if err := client.AppendObservationNotes(ctx, req.ObservationID, "Field slip: "+req.FieldCode); err != nil {
			h.log.Warn("Observation notes update failed",
				logger.Int64("observation_id", req.ObservationID),
				logger.Error(err),
			)
		}
		fieldSlip = h.ensureFieldSlip(ctx, client, req.FieldCode, req.ObservationID)
	}

	h.claims.Release(req.Filename, username)

	h.events.PublishAsync(events.ReviewEvent{
		EventType: events.EventUploadCompleted,
		Image:     req.Filename,
		User:      username,
		Related:   group[1:],
	})

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"image_id":        uploaded[0].ImageID,
		"observation_id":  req.ObservationID,
		"observation_url": client.ObservationURL(req.ObservationID),
		"uploaded_images": uploaded,
		"field_slip":      fieldSlip,
	})
}

// MOCreateNew uploads the main image, creates a fresh observation with
// it, attaches the linked group, and creates the field slip. A field
// slip code collision is a hard error here since the observation is new.
func (h *Handler) MOCreateNew(c *gin.Context) {
	username := currentUser(c)

	var req createNewRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Filename == "" || req.Date == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "filename and date required"})
		return
	}

	client, group, ok := h.prepareUpload(c, req.Filename, username)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	notes := req.Notes
	if req.FieldCode != "" {
		slipNote := "Field slip: " + req.FieldCode
		if notes != "" {
			notes = slipNote + "\n\n" + notes
		} else {
			notes = slipNote
		}
	}

	mainImage, err := client.UploadImage(ctx, filepath.Join(h.imagesDir, req.Filename), username, slipNoteFor(req.FieldCode))
	if err != nil {
		h.respondError(c, err)
		return
	}
	uploaded := []uploadedImage{{Filename: req.Filename, ImageID: mainImage.ID}}

	locationID, locationName := h.resolveLocation(ctx, req.Filename, req.LocationID)

	obs, err := client.CreateObservation(ctx, mo.CreateObservationParams{
		Date:         req.Date,
		LocationID:   locationID,
		LocationName: locationName,
		NameID:       req.NameID,
		Notes:        notes,
		ImageIDs:     []int64{mainImage.ID},
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	if err := h.linkage.MarkUploaded(req.Filename, username, obs.ID, mainImage.ID, client.ObservationURL(obs.ID)); err != nil {
		h.respondError(c, err)
		return
	}

	linkedUploaded, err := h.uploadGroup(ctx, client, group[1:], username, req.FieldCode, obs.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	uploaded = append(uploaded, linkedUploaded...)

	var fieldSlip any
	if req.FieldCode != "" {
		slip, err := client.CreateFieldSlip(ctx, req.FieldCode, &obs.ID)
		if mo.IsConflict(err) {
			c.JSON(http.StatusConflict, gin.H{
				"error": "Field slip code " + req.FieldCode + " already exists. " +
					"Please use a different code or add to existing observation.",
			})
			return
		}
		if err != nil {
			h.log.Warn("Field slip creation failed",
				logger.String("code", req.FieldCode),
				logger.Error(err),
			)
			fieldSlip = gin.H{"warning": "Field slip API unavailable: " + err.Error()}
		} else {
			fieldSlip = slip
			h.lookup.InvalidateFieldSlip(req.FieldCode)
		}
	}

	h.claims.Release(req.Filename, username)

	h.events.PublishAsync(events.ReviewEvent{
		EventType: events.EventUploadCompleted,
		Image:     req.Filename,
		User:      username,
		Related:   group[1:],
	})

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"image_id":        mainImage.ID,
		"observation_id":  obs.ID,
		"observation_url": client.ObservationURL(obs.ID),
		"uploaded_images": uploaded,
		"field_slip":      fieldSlip,
	})
}

// prepareUpload runs the shared preconditions for both upload endpoints:
// the image must exist, must not be claimed by someone else, and the
// caller needs an API key. Returns the client and the full link group
// with the main image first.
func (h *Handler) prepareUpload(c *gin.Context, filename, username string) (*mo.Client, []string, bool) {
	img, ok := h.store.Get(filename)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Image not found"})
		return nil, nil, false
	}
	if holder := h.claims.Holder(filename); holder != "" && holder != username {
		c.JSON(http.StatusConflict, gin.H{"error": "Image is claimed by " + holder})
		return nil, nil, false
	}

	client, err := h.clientFor(c)
	if err != nil {
		h.respondError(c, err)
		return nil, nil, false
	}

	group := append([]string{filename}, img.Review.LinkedImages...)
	return client, group, true
}

// uploadGroup uploads each image in keys, attaches it to the observation
// and records the upload in the store.
func (h *Handler) uploadGroup(ctx context.Context, client *mo.Client, keys []string, username, fieldCode string, observationID int64) ([]uploadedImage, error) {
	var uploaded []uploadedImage
	for _, key := range keys {
		if !h.store.Has(key) {
			continue
		}

		img, err := client.UploadImage(ctx, filepath.Join(h.imagesDir, key), username, slipNoteFor(fieldCode))
		if err != nil {
			return nil, err
		}
		if err := client.AddImageToObservation(ctx, observationID, img.ID); err != nil {
			return nil, err
		}
		if err := h.linkage.MarkUploaded(key, username, observationID, img.ID, client.ObservationURL(observationID)); err != nil {
			return nil, err
		}
		uploaded = append(uploaded, uploadedImage{Filename: key, ImageID: img.ID})
	}
	return uploaded, nil
}

// ensureFieldSlip creates or links the field slip, downgrading failures
// to a warning: the images are already attached at this point.
func (h *Handler) ensureFieldSlip(ctx context.Context, client *mo.Client, code string, observationID int64) any {
	slip, err := client.CreateOrLinkFieldSlip(ctx, code, observationID)
	if err != nil {
		h.log.Warn("Field slip create-or-link failed",
			logger.String("code", code),
			logger.Error(err),
		)
		return gin.H{"warning": err.Error()}
	}
	h.lookup.InvalidateFieldSlip(code)
	return slip
}

// resolveLocation picks the observation location: an explicit ID wins,
// then an exact name match from the lookup tables, then the raw text as
// a place name.
func (h *Handler) resolveLocation(ctx context.Context, filename string, locationID *int64) (*int64, string) {
	if locationID != nil {
		return locationID, ""
	}

	img, ok := h.store.Get(filename)
	if !ok {
		return nil, ""
	}
	text := img.Review.Location
	if text == "" {
		text = img.Source.Location
	}
	if text == "" {
		return nil, ""
	}

	candidates, err := h.lookup.Locations(ctx, text, lookupLimit)
	if err == nil {
		for _, cand := range candidates {
			if strings.EqualFold(strings.TrimSpace(cand.Name), strings.TrimSpace(text)) {
				id := cand.ID
				return &id, ""
			}
		}
	}
	return nil, text
}

func slipNoteFor(fieldCode string) string {
	if fieldCode == "" {
		return ""
	}
	return "Field slip: " + fieldCode
}
