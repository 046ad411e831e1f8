package mwgc

import "errors"

// ErrTooSmall is raised at construction when the supplied region cannot
// hold the colormap plus at least one usable block.
var ErrTooSmall = errors.New("mwgc.regiontoosmall")
