package video

import "errors"

// ErrNoSupportedRendition indicates every rendition in a catalog's video
// section failed the configured SupportProbe.
var ErrNoSupportedRendition = errors.New("video: no supported rendition")
