package models

// ReviewStatus is the closed set of review outcomes for an image.
type ReviewStatus string

const (
	// StatusUnset means the image has not been reviewed yet.
	StatusUnset ReviewStatus = ""
	// StatusApproved means the extracted data was accepted as-is.
	StatusApproved ReviewStatus = "approved"
	// StatusCorrected means the reviewer fixed one or more fields.
	StatusCorrected ReviewStatus = "corrected"
	// StatusExcluded means the image should not be uploaded at all.
	StatusExcluded ReviewStatus = "excluded"
	// StatusAlreadyOnMO means an observation already exists upstream.
	StatusAlreadyOnMO ReviewStatus = "already_on_mo"
)

// Terminal reports whether the status ends review for queue purposes.
// All four non-empty statuses are terminal.
func (s ReviewStatus) Terminal() bool {
	switch s {
	case StatusApproved, StatusCorrected, StatusExcluded, StatusAlreadyOnMO:
		return true
	default:
		return false
	}
}

// SelfSufficient reports whether the status requires no further upstream
// action and may be propagated to linked images verbatim. Approved and
// corrected images still need an upload, so their linked images receive
// StatusApproved instead.
func (s ReviewStatus) SelfSufficient() bool {
	return s == StatusExcluded || s == StatusAlreadyOnMO
}

// Valid reports whether s is unset or one of the known statuses.
func (s ReviewStatus) Valid() bool {
	return s == StatusUnset || s.Terminal()
}
