package relay

import "strings"

// InputFormat identifies the container format of the chunks a capture
// client pushes on its ingress channel. The value doubles as the demuxer
// token handed to the pipeline's input stage.
type InputFormat string

const (
	// FormatWebM is the fragmented WebM/Matroska stream produced by most
	// capture clients. It is the default when the hint is unrecognized.
	FormatWebM InputFormat = "webm"
	// FormatMP4 is a fragmented MP4 stream.
	FormatMP4 InputFormat = "mp4"
)

// ParseFormatHint resolves a caller-supplied content-type hint to the
// container format of incoming chunks. Parameters after a ";" are ignored,
// and unrecognized hints fall back to WebM.
func ParseFormatHint(hint string) InputFormat {
	normalized := strings.ToLower(strings.TrimSpace(hint))
	if idx := strings.IndexByte(normalized, ';'); idx >= 0 {
		normalized = strings.TrimSpace(normalized[:idx])
	}
	switch normalized {
	case "video/mp4", "audio/mp4", "application/mp4", "mp4":
		return FormatMP4
	default:
		return FormatWebM
	}
}
