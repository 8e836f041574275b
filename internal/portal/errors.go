package portal

import "errors"

// Sentinel errors shared by the browser, enrollment and scheduling layers.
var (
	ErrNotAuthenticated  = errors.New("portal: not authenticated")
	ErrNoSelectionRound  = errors.New("portal: no open selection round")
	ErrCourseNotFound    = errors.New("portal: course not found")
	ErrNoSeats           = errors.New("portal: no seats remaining")
	ErrCaptchaUnsolved   = errors.New("portal: captcha could not be solved")
	ErrCaptchaRejected   = errors.New("portal: captcha rejected")
	ErrSelectLinkMissing = errors.New("portal: selection link not found")
	ErrTaskNotFound      = errors.New("portal: task not found")
	ErrNoAvailability    = errors.New("portal: no availability recorded")
)
