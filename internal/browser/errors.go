package browser

import "errors"

// Sentinel errors for portal interaction failures. Workers classify these to
// decide between retrying a reference and recovering the whole session.
var (
	// ErrLoginFailed indicates credentials were rejected or the login page
	// never yielded the inventory.
	ErrLoginFailed = errors.New("portal login failed")

	// ErrExportFailed indicates the inventory CSV export did not produce a
	// file.
	ErrExportFailed = errors.New("inventory export failed")

	// ErrReferenceNotFound indicates filtering the grid by a reference
	// matched no rows.
	ErrReferenceNotFound = errors.New("reference not found in inventory grid")

	// ErrNoPopup indicates the PDF button was clicked but no popup tab
	// appeared within the deadline.
	ErrNoPopup = errors.New("pdf popup did not open")

	// ErrSessionLost indicates the shared login session has expired; every
	// tab is affected and the session must be re-established.
	ErrSessionLost = errors.New("portal session lost")

	// ErrEmptyDownload indicates the PDF endpoint returned no usable bytes.
	ErrEmptyDownload = errors.New("pdf download returned no data")
)
