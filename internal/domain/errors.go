package domain

import "errors"

// ErrScanNotFound is returned by history stores when no scan matches.
var ErrScanNotFound = errors.New("scan not found")
