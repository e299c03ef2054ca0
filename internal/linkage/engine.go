// Package linkage maintains the bidirectional linked-image sets and
// propagates review outcomes across them.
package linkage

import (
	"fmt"
	"time"

	"github.com/nemf/photo-review/internal/logger"
	"github.com/nemf/photo-review/internal/models"
	"github.com/nemf/photo-review/internal/store"
)

// Engine runs link and finalize mutations against the store. It holds no
// state of its own; the store's Mutate lock makes each operation atomic
// with respect to persistence.
type Engine struct {
	store *store.Store
	log   logger.Logger
	now   func() time.Time
}

// NewEngine creates a linkage engine over st.
func NewEngine(st *store.Store, log logger.Logger) *Engine {
	return &Engine{store: st, log: log, now: time.Now}
}

// Outcome reports what a Finalize call changed.
type Outcome struct {
	// Key is the finalized image.
	Key string
	// Status is the status recorded on it.
	Status models.ReviewStatus
	// Propagated lists the linked images that inherited the outcome.
	Propagated []string
}

// Link joins a and b into one link group. Every member of either image's
// existing group ends up linked to every member of the other's, so the
// groups stay symmetric and transitive. Returns the resulting group of a.
func (e *Engine) Link(a, b string) ([]string, error) {
	if a == b {
		return nil, fmt.Errorf("%w: cannot link %s to itself", models.ErrInvalidInput, a)
	}

	var group []string
	err := e.store.Mutate(func(s *store.Snapshot) error {
		ia, ok := s.Images[a]
		if !ok {
			return &models.NotFoundError{Key: a}
		}
		ib, ok := s.Images[b]
		if !ok {
			return &models.NotFoundError{Key: b}
		}

		members := map[string]bool{a: true, b: true}
		for _, k := range ia.Review.LinkedImages {
			members[k] = true
		}
		for _, k := range ib.Review.LinkedImages {
			members[k] = true
		}

		// Members that no longer exist in the store drop out silently.
		for k := range members {
			if _, ok := s.Images[k]; !ok {
				delete(members, k)
			}
		}

		// Rewrite each member's set as the union minus itself.
		for k := range members {
			img := s.Images[k]
			img.Review.LinkedImages = nil
			for other := range members {
				if other != k {
					img.Review.AddLink(other)
				}
			}
		}

		group = append([]string(nil), s.Images[a].Review.LinkedImages...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("Images linked",
		logger.String("image", a),
		logger.String("linked_to", b),
		logger.Int("group_size", len(group)+1),
	)
	return group, nil
}

// Unlink removes the a-b edge from both sides. The rest of each image's
// group is left alone.
func (e *Engine) Unlink(a, b string) error {
	err := e.store.Mutate(func(s *store.Snapshot) error {
		ia, ok := s.Images[a]
		if !ok {
			return &models.NotFoundError{Key: a}
		}
		ib, ok := s.Images[b]
		if !ok {
			return &models.NotFoundError{Key: b}
		}
		ia.Review.RemoveLink(b)
		ib.Review.RemoveLink(a)
		return nil
	})
	if err != nil {
		return err
	}

	e.log.Info("Images unlinked",
		logger.String("image", a),
		logger.String("unlinked_from", b),
	)
	return nil
}

// Finalize records user's review of key and propagates the outcome to the
// unresolved members of its link group. Self-sufficient statuses carry
// over verbatim; anything else propagates as approved, since the linked
// copies need no upload of their own once the primary is handled. Linked
// images already resolved are skipped, which makes Finalize idempotent
// across the group.
func (e *Engine) Finalize(key, user string, update models.ReviewUpdate) (Outcome, error) {
	if update.Status != nil && !update.Status.Valid() {
		return Outcome{}, fmt.Errorf("%w: unknown status %q", models.ErrInvalidInput, *update.Status)
	}

	out := Outcome{Key: key}
	err := e.store.Mutate(func(s *store.Snapshot) error {
		img, ok := s.Images[key]
		if !ok {
			return &models.NotFoundError{Key: key}
		}

		update.Apply(&img.Review)
		now := e.now().UTC()
		img.Review.ReviewedAt = &now
		img.Review.Reviewer = user
		out.Status = img.Review.Status

		// A submitted link list may be one-sided; repair the back edges.
		for _, linked := range img.Review.LinkedImages {
			if other, ok := s.Images[linked]; ok {
				other.Review.AddLink(key)
			}
		}

		if !img.Review.Status.Terminal() {
			return nil
		}

		inherited := img.Review.Status
		if !inherited.SelfSufficient() {
			inherited = models.StatusApproved
		}

		for _, linked := range img.Review.LinkedImages {
			other, ok := s.Images[linked]
			if !ok || other.Resolved() {
				continue
			}
			other.Review.Status = inherited
			other.Review.FieldCode = img.Review.FieldCode
			other.Review.Date = img.Review.Date
			other.Review.Location = img.Review.Location
			other.Review.LocationID = img.Review.LocationID
			other.Review.Name = img.Review.Name
			other.Review.NameID = img.Review.NameID
			other.Review.MOIDType = img.Review.MOIDType
			other.Review.MOIDValue = img.Review.MOIDValue
			other.Review.MOObservationID = img.Review.MOObservationID
			other.Review.ReviewedAt = &now
			other.Review.Reviewer = fmt.Sprintf("%s:propagated_from:%s", user, key)
			out.Propagated = append(out.Propagated, linked)
		}
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}

	e.log.Info("Review finalized",
		logger.String("image", key),
		logger.String("reviewer", user),
		logger.String("status", string(out.Status)),
		logger.Int("propagated", len(out.Propagated)),
	)
	return out, nil
}

// MarkUploaded records a successful upstream upload for key.
func (e *Engine) MarkUploaded(key, user string, obsID, imageID int64, obsURL string) error {
	err := e.store.Mutate(func(s *store.Snapshot) error {
		img, ok := s.Images[key]
		if !ok {
			return &models.NotFoundError{Key: key}
		}
		now := e.now().UTC()
		img.Review.MOObservationID = &obsID
		if imageID != 0 {
			img.Review.MOImageID = &imageID
		}
		img.Review.MOObservationURL = obsURL
		img.Review.UploadedAt = &now
		img.Review.UploadedBy = user
		return nil
	})
	if err != nil {
		return err
	}

	e.log.Info("Upload recorded",
		logger.String("image", key),
		logger.Int64("observation_id", obsID),
	)
	return nil
}
