package store

import "errors"

var (
	ErrNotAuthenticated   = errors.New("you must be signed in to save")
	ErrEmptyAddress       = errors.New("enter a valid property address before saving")
	ErrSnapshotLimit      = errors.New("saved valuation limit reached")
	ErrNotConfirmed       = errors.New("operation not confirmed")
	ErrComparableNotFound = errors.New("comparable not found")
	ErrValuationNotFound  = errors.New("saved valuation not found")
	ErrEmptySheetURL      = errors.New("enter the link of a public spreadsheet")
	ErrImportUnavailable  = errors.New("spreadsheet import is not configured")
)
