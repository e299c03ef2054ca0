package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nemf/photo-review/internal/logger"
	"github.com/nemf/photo-review/internal/mo"
	"github.com/nemf/photo-review/internal/models"
	"github.com/nemf/photo-review/internal/store"
)

// minQueryLen is the shortest autocomplete query served.
const minQueryLen = 2

const lookupLimit = 10

// LookupLocation searches for location candidates matching ?q=.
func (h *Handler) LookupLocation(c *gin.Context) {
	q := c.Query("q")
	if len(q) < minQueryLen {
		c.JSON(http.StatusOK, []gin.H{})
		return
	}

	locations, err := h.lookup.Locations(c.Request.Context(), q, lookupLimit)
	if err != nil {
		h.respondError(c, err)
		return
	}

	results := make([]gin.H, 0, len(locations))
	for _, loc := range locations {
		results = append(results, gin.H{
			"name":  loc.Name,
			"id":    loc.ID,
			"match": "exact",
		})
	}
	if len(results) == 0 {
		results = h.referenceLocations(q)
	}
	c.JSON(http.StatusOK, results)
}

// referenceLocations falls back to the lookup table bundled into the
// snapshot at ingestion time.
func (h *Handler) referenceLocations(q string) []gin.H {
	results := []gin.H{}
	h.store.View(func(s *store.Snapshot) {
		for name, info := range s.Reference.LocationLookup {
			if !containsFold(name, q) {
				continue
			}
			if info.ID != nil {
				results = append(results, gin.H{"name": name, "id": *info.ID, "match": info.Match})
				continue
			}
			for _, cand := range info.Candidates {
				results = append(results, gin.H{"name": cand.Name, "id": cand.ID, "match": "candidate"})
			}
		}
	})
	if len(results) > lookupLimit {
		results = results[:lookupLimit]
	}
	return results
}

// LookupName searches for taxon name candidates matching ?q=.
func (h *Handler) LookupName(c *gin.Context) {
	q := c.Query("q")
	if len(q) < minQueryLen {
		c.JSON(http.StatusOK, []gin.H{})
		return
	}

	names, err := h.lookup.Names(c.Request.Context(), q, lookupLimit)
	if err != nil {
		h.respondError(c, err)
		return
	}

	results := make([]gin.H, 0, len(names))
	for _, n := range names {
		results = append(results, gin.H{
			"text_name": n.TextName,
			"id":        n.ID,
			"author":    n.Author,
			"match":     "exact",
		})
	}
	if len(results) == 0 {
		results = h.referenceNames(q)
	}
	c.JSON(http.StatusOK, results)
}

func (h *Handler) referenceNames(q string) []gin.H {
	results := []gin.H{}
	h.store.View(func(s *store.Snapshot) {
		for name, info := range s.Reference.NameLookup {
			if !containsFold(name, q) {
				continue
			}
			if info.ID != nil {
				textName := info.TextName
				if textName == "" {
					textName = name
				}
				results = append(results, gin.H{
					"text_name": textName,
					"id":        *info.ID,
					"author":    info.Author,
					"match":     info.Match,
				})
				continue
			}
			for _, cand := range info.Candidates {
				results = append(results, gin.H{
					"text_name": cand.TextName,
					"id":        cand.ID,
					"author":    cand.Author,
					"match":     "candidate",
				})
			}
		}
	})
	if len(results) > lookupLimit {
		results = results[:lookupLimit]
	}
	return results
}

// LookupForayDate returns the event date for ?location=.
func (h *Handler) LookupForayDate(c *gin.Context) {
	location := c.Query("location")
	if location == "" {
		c.JSON(http.StatusOK, gin.H{"date": nil})
		return
	}
	if date, ok := h.lookup.ForayDate(location); ok {
		c.JSON(http.StatusOK, gin.H{"date": date})
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": nil})
}

// LookupExistingObservations lists the known upstream observations for a
// field slip code, deduplicated across images.
func (h *Handler) LookupExistingObservations(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusOK, []models.ExistingObservation{})
		return
	}

	seen := make(map[string]bool)
	results := []models.ExistingObservation{}
	h.store.View(func(s *store.Snapshot) {
		for _, img := range s.Images {
			if img.Source.FieldCode != code {
				continue
			}
			for _, obs := range img.Source.ExistingObservations {
				if obs.ObservationID == "" || seen[obs.ObservationID] {
					continue
				}
				seen[obs.ObservationID] = true
				results = append(results, obs)
			}
		}
	})
	c.JSON(http.StatusOK, results)
}

// LookupFieldSlipObservation resolves a field slip code to its linked
// observation via the upstream API. Results are cached briefly.
func (h *Handler) LookupFieldSlipObservation(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing code parameter"})
		return
	}

	var slip *mo.FieldSlip
	if cached, ok := h.lookup.CachedFieldSlip(code); ok {
		slip, _ = cached.(*mo.FieldSlip)
	} else {
		client, err := h.clientFor(c)
		if err != nil {
			h.respondError(c, err)
			return
		}
		slip, err = client.GetFieldSlipByCode(c.Request.Context(), code)
		if err != nil {
			h.respondError(c, err)
			return
		}
		h.lookup.StoreFieldSlip(code, slip)
	}

	if slip == nil || slip.ObservationID == 0 {
		c.JSON(http.StatusOK, gin.H{
			"observation_id": nil,
			"message":        "Field slip not linked to an observation",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"observation_id":  slip.ObservationID,
		"field_slip_code": code,
	})
}

// VerifyMOID checks that an observation or field slip exists upstream.
func (h *Handler) VerifyMOID(c *gin.Context) {
	idType := c.Query("type")
	idValue := c.Query("id")

	if idType == "" || idValue == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing type or id"})
		return
	}

	client, err := h.clientFor(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	switch idType {
	case "observation":
		id, err := strconv.ParseInt(idValue, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid observation id"})
			return
		}
		exists, err := client.VerifyObservationExists(c.Request.Context(), id)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"exists": exists, "id": idValue, "type": idType})

	case "field_slip":
		slip, err := client.GetFieldSlipByCode(c.Request.Context(), idValue)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"exists": slip != nil, "id": idValue, "type": idType})

	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid type"})
	}
}

// clientFor builds an MO client for the caller's API key.
func (h *Handler) clientFor(c *gin.Context) (*mo.Client, error) {
	username := currentUser(c)
	apiKey := h.users.APIKey(username)
	if apiKey == "" {
		h.log.Debug("MO call without API key", logger.String("user", username))
		return nil, fmt.Errorf("%w: no API key configured, set one in Settings", models.ErrInvalidInput)
	}
	return h.mo.Client(apiKey), nil
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
