package enums

import "fmt"

// VideoSource records where a video came from.
type VideoSource string

const (
	VideoSourceZoom   VideoSource = "zoom"
	VideoSourceManual VideoSource = "manual"
	VideoSourceUpload VideoSource = "upload"
)

var validVideoSources = []VideoSource{
	VideoSourceZoom,
	VideoSourceManual,
	VideoSourceUpload,
}

func (v VideoSource) String() string {
	return string(v)
}

func (v VideoSource) IsValid() bool {
	for _, candidate := range validVideoSources {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseVideoSource converts raw input into a VideoSource.
func ParseVideoSource(value string) (VideoSource, error) {
	for _, candidate := range validVideoSources {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid video source %q", value)
}
