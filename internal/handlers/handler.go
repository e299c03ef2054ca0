// Package handlers implements the review API endpoints.
package handlers

import (
	"errors"
	"net/http"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nemf/photo-review/internal/claims"
	"github.com/nemf/photo-review/internal/events"
	"github.com/nemf/photo-review/internal/history"
	"github.com/nemf/photo-review/internal/linkage"
	"github.com/nemf/photo-review/internal/logger"
	"github.com/nemf/photo-review/internal/lookup"
	"github.com/nemf/photo-review/internal/mo"
	"github.com/nemf/photo-review/internal/models"
	"github.com/nemf/photo-review/internal/navigation"
	"github.com/nemf/photo-review/internal/store"
	"github.com/nemf/photo-review/internal/users"
)

// Handler carries the service collaborators for all endpoints.
type Handler struct {
	store     *store.Store
	claims    *claims.Manager
	history   *history.Tracker
	nav       *navigation.Engine
	linkage   *linkage.Engine
	users     *users.Registry
	lookup    *lookup.Service
	events    *events.Publisher
	mo        *mo.Factory
	imagesDir string
	log       logger.Logger
}

// Deps bundles the Handler's collaborators.
type Deps struct {
	Store     *store.Store
	Claims    *claims.Manager
	History   *history.Tracker
	Nav       *navigation.Engine
	Linkage   *linkage.Engine
	Users     *users.Registry
	Lookup    *lookup.Service
	Events    *events.Publisher
	MO        *mo.Factory
	ImagesDir string
	Log       logger.Logger
}

// New creates the handler set.
func New(d Deps) *Handler {
	return &Handler{
		store:     d.Store,
		claims:    d.Claims,
		history:   d.History,
		nav:       d.Nav,
		linkage:   d.Linkage,
		users:     d.Users,
		lookup:    d.Lookup,
		events:    d.Events,
		mo:        d.MO,
		imagesDir: d.ImagesDir,
		log:       d.Log,
	}
}

// currentUser reads the username the auth middleware stored.
func currentUser(c *gin.Context) string {
	return c.GetString("user")
}

// respondError maps service errors to HTTP statuses.
func (h *Handler) respondError(c *gin.Context, err error) {
	switch {
	case models.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case models.IsClaimDenied(err), errors.Is(err, models.ErrConflictingState), mo.IsConflict(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case mo.IsAuth(err):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case mo.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case mo.IsTransient(err):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		h.log.Error("Request failed", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// Whoami reports the authenticated user and whether an API key is set.
func (h *Handler) Whoami(c *gin.Context) {
	username := currentUser(c)
	c.JSON(http.StatusOK, gin.H{
		"username":    username,
		"has_api_key": h.users.HasAPIKey(username),
	})
}

// Status returns the snapshot metadata and status summary.
func (h *Handler) Status(c *gin.Context) {
	var resp gin.H
	h.store.View(func(s *store.Snapshot) {
		s.RecomputeSummary()
		resp = gin.H{
			"metadata": s.Metadata,
			"summary":  s.Summary,
			"reference": gin.H{
				"nemf_dates": s.Reference.EventDates,
			},
		}
	})
	c.JSON(http.StatusOK, resp)
}

type imageListEntry struct {
	Filename      string              `json:"filename"`
	FieldCode     string              `json:"field_code,omitempty"`
	Location      string              `json:"location,omitempty"`
	PriorityClass int                 `json:"priority_class"`
	Priority      models.Priority     `json:"priority"`
	Status        models.ReviewStatus `json:"status"`
	ClaimedBy     string              `json:"claimed_by,omitempty"`
	IsMine        bool                `json:"is_mine"`
}

// ListImages returns the full queue in canonical order with claim info.
func (h *Handler) ListImages(c *gin.Context) {
	username := currentUser(c)

	keys := h.nav.SortedKeys()
	result := make([]imageListEntry, 0, len(keys))
	for _, key := range keys {
		img, ok := h.store.Get(key)
		if !ok {
			continue
		}
		holder := h.claims.Holder(key)
		result = append(result, imageListEntry{
			Filename:      key,
			FieldCode:     img.Source.FieldCode,
			Location:      img.Source.Location,
			PriorityClass: img.Priority.Class,
			Priority:      img.Priority,
			Status:        img.Review.Status,
			ClaimedBy:     holder,
			IsMine:        holder != "" && holder == username,
		})
	}
	c.JSON(http.StatusOK, result)
}

// GetImage returns full data for one image. With add_to_history=true it
// also records the view and claims the image for review; without it the
// request is a peek and only reports the current claim.
func (h *Handler) GetImage(c *gin.Context) {
	username := currentUser(c)
	filename := c.Param("filename")

	img, ok := h.store.Get(filename)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Image not found"})
		return
	}

	addToHistory := c.Query("add_to_history") == "true"

	var success bool
	var message, claimedBy string
	if addToHistory {
		h.history.Record(username, filename)
		res := h.claims.Acquire(filename, username, false)
		success = res.Granted
		claimedBy = res.Holder
		if !res.Granted {
			message = "Image is claimed by " + res.Holder
		}
	} else {
		success = true
		claimedBy = h.claims.Holder(filename)
	}

	c.JSON(http.StatusOK, gin.H{
		"filename": filename,
		"source":   img.Source,
		"review":   img.Review,
		"priority": img.Priority,
		"nav":      h.nav.Adjacent(filename),
		"claim": gin.H{
			"success":    success,
			"message":    message,
			"claimed_by": claimedBy,
			"is_mine":    claimedBy == username,
		},
	})
}

// Navigation reports the user's back/forward position in their own view
// history plus the combined next-unreviewed suggestion.
func (h *Handler) Navigation(c *gin.Context) {
	username := currentUser(c)
	filename := c.Param("filename")

	entries := h.history.Get(username)
	currentIndex := -1
	for i, k := range entries {
		if k == filename {
			currentIndex = i
			break
		}
	}

	canGoBack := currentIndex >= 0 && currentIndex < len(entries)-1
	canGoForward := currentIndex > 0

	var backTarget, forwardTarget string
	if canGoBack {
		backTarget = entries[currentIndex+1]
	}
	if canGoForward {
		forwardTarget = entries[currentIndex-1]
	}

	nextInHistory := h.nav.NextUnresolvedViaHistory(username, filename)
	next := nextInHistory
	mode := navigation.ModeHistory
	if next == "" {
		next = h.nav.NextUnresolved(username, filename, nil)
		mode = navigation.ModePriority
	}

	var allResolved bool
	h.store.View(func(s *store.Snapshot) {
		allResolved = s.AllResolved()
	})

	c.JSON(http.StatusOK, gin.H{
		"current_index":        currentIndex,
		"history_length":       len(entries),
		"can_go_back":          canGoBack,
		"can_go_forward":       canGoForward,
		"back_target":          orNil(backTarget),
		"forward_target":       orNil(forwardTarget),
		"next_unreviewed":      orNil(next),
		"next_unreviewed_mode": mode,
		"all_resolved":         allResolved,
	})
}

// Heartbeat refreshes the caller's claim on an image.
func (h *Handler) Heartbeat(c *gin.Context) {
	username := currentUser(c)
	filename := c.Param("filename")

	res := h.claims.Acquire(filename, username, false)
	message := ""
	if !res.Granted {
		message = "Image is claimed by " + res.Holder
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    res.Granted,
		"message":    message,
		"claimed_by": res.Holder,
	})
}

// Release drops the caller's claim on an image.
func (h *Handler) Release(c *gin.Context) {
	username := currentUser(c)
	filename := c.Param("filename")
	c.JSON(http.StatusOK, gin.H{
		"released": h.claims.Release(filename, username),
	})
}

// Review records a review submission, propagates it across the link
// group, and releases the claims it settles.
func (h *Handler) Review(c *gin.Context) {
	username := currentUser(c)
	filename := c.Param("filename")

	if !h.store.Has(filename) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Image not found"})
		return
	}
	if holder := h.claims.Holder(filename); holder != "" && holder != username {
		c.JSON(http.StatusConflict, gin.H{
			"error":      "Image is claimed by " + holder,
			"claimed_by": holder,
		})
		return
	}

	var update models.ReviewUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	out, err := h.linkage.Finalize(filename, username, update)
	if err != nil {
		h.respondError(c, err)
		return
	}

	// A settled group needs no claims held on any of its members.
	h.claims.Release(filename, username)
	img, _ := h.store.Get(filename)
	for _, linked := range img.Review.LinkedImages {
		h.claims.Release(linked, username)
	}

	h.events.PublishAsync(events.ReviewEvent{
		EventType: events.EventReviewFinalized,
		Image:     filename,
		User:      username,
		Status:    string(out.Status),
		Related:   out.Propagated,
	})

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"review":  img.Review,
		"nav":     h.nav.Adjacent(filename),
		"summary": h.store.Summary(),
	})
}

type linkRequest struct {
	Target string `json:"target"`
}

// Link joins the image and the target into one link group, claiming both
// first so nobody else is mid-review on either.
func (h *Handler) Link(c *gin.Context) {
	username := currentUser(c)
	filename := c.Param("filename")

	var req linkRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Target == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Target filename required"})
		return
	}
	if !h.store.Has(filename) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Source image not found"})
		return
	}
	if !h.store.Has(req.Target) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Target image not found"})
		return
	}

	if denied := h.claims.AcquireMany([]string{filename, req.Target}, username); denied != nil {
		c.JSON(http.StatusConflict, gin.H{
			"error":         "Could not claim all images",
			"failed_claims": denied,
		})
		return
	}

	group, err := h.linkage.Link(filename, req.Target)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.events.PublishAsync(events.ReviewEvent{
		EventType: events.EventImagesLinked,
		Image:     filename,
		User:      username,
		Related:   []string{req.Target},
	})

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"message":       "Claimed both " + filename + " and " + req.Target,
		"linked_images": group,
	})
}

// Unlink removes the edge between the image and the target. The caller
// must hold the claim on the image.
func (h *Handler) Unlink(c *gin.Context) {
	username := currentUser(c)
	filename := c.Param("filename")

	var req linkRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Target == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Target filename required"})
		return
	}
	if !h.store.Has(filename) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Source image not found"})
		return
	}
	if !h.store.Has(req.Target) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Target image not found"})
		return
	}
	if h.claims.Holder(filename) != username {
		c.JSON(http.StatusForbidden, gin.H{"error": "You must have claimed this image to unlink"})
		return
	}

	if err := h.linkage.Unlink(filename, req.Target); err != nil {
		h.respondError(c, err)
		return
	}

	h.events.PublishAsync(events.ReviewEvent{
		EventType: events.EventImagesUnlinked,
		Image:     filename,
		User:      username,
		Related:   []string{req.Target},
	})

	img, _ := h.store.Get(filename)
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"message":       "Unlinked " + filename + " from " + req.Target,
		"linked_images": img.Review.LinkedImages,
	})
}

// NextUnreviewed suggests the next image to review in priority order.
func (h *Handler) NextUnreviewed(c *gin.Context) {
	username := currentUser(c)

	filename := h.nav.NextUnresolved(username, "", nil)
	if filename == "" {
		c.JSON(http.StatusOK, gin.H{"filename": nil, "message": "All images reviewed!"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"filename": filename})
}

const adjacentRadius = 5

// Adjacent returns the alphabetical neighborhood of an image, used to
// spot closeups shot around the same field slip.
func (h *Handler) Adjacent(c *gin.Context) {
	username := currentUser(c)
	filename := c.Param("filename")

	var keys []string
	h.store.View(func(s *store.Snapshot) {
		keys = make([]string, 0, len(s.Images))
		for k := range s.Images {
			keys = append(keys, k)
		}
	})
	sort.Strings(keys)

	idx := -1
	for i, k := range keys {
		if k == filename {
			idx = i
			break
		}
	}
	if idx < 0 {
		c.JSON(http.StatusOK, []gin.H{})
		return
	}

	start := max(0, idx-adjacentRadius)
	end := min(len(keys), idx+adjacentRadius+1)

	result := make([]gin.H, 0, end-start)
	for _, k := range keys[start:end] {
		img, ok := h.store.Get(k)
		if !ok {
			continue
		}
		holder := h.claims.Holder(k)
		result = append(result, gin.H{
			"filename":   k,
			"field_code": img.Source.FieldCode,
			"is_current": k == filename,
			"claimed_by": orNil(holder),
			"is_mine":    holder != "" && holder == username,
		})
	}
	c.JSON(http.StatusOK, result)
}

// ServeImage streams an image file from the images directory.
func (h *Handler) ServeImage(c *gin.Context) {
	filename := c.Param("filename")
	if strings.Contains(filename, "..") || strings.ContainsRune(filename, filepath.Separator) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid filename"})
		return
	}
	c.File(filepath.Join(h.imagesDir, filename))
}

// GetSettings returns the caller's stored settings.
func (h *Handler) GetSettings(c *gin.Context) {
	username := currentUser(c)
	c.JSON(http.StatusOK, gin.H{
		"username": username,
		"api_key":  h.users.APIKey(username),
	})
}

type settingsRequest struct {
	APIKey   *string `json:"api_key"`
	Password *string `json:"password"`
}

// UpdateSettings changes the caller's API key and/or password. An empty
// api_key clears it.
func (h *Handler) UpdateSettings(c *gin.Context) {
	username := currentUser(c)

	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	var apiKey, password string
	clearKey := false
	if req.APIKey != nil {
		apiKey = *req.APIKey
		clearKey = apiKey == ""
	}
	if req.Password != nil {
		password = *req.Password
	}

	if err := h.users.Update(username, apiKey, clearKey, password); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// orNil maps "" to JSON null for optional filename fields.
func orNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}
