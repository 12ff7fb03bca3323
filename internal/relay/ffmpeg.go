package relay

import "strings"

// pipelineArgs builds the ffmpeg argument list for one pipeline activation.
// The argument set varies on two independent axes: the demuxer token for
// the incoming container, and whether the incoming stream already carries
// an audio track.
//
// When the client sends video only, a synthetic silent audio source is
// generated in parallel and mapped alongside the real video stream, because
// RTMP ingest targets expect an audio track to be present. The combined
// output is truncated to the shorter input via -shortest, which in practice
// is always the real video stream since the silent source is unbounded.
func pipelineArgs(cfg StreamConfig, destination string) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "warning",
		"-f", string(cfg.Format),
		"-i", "pipe:0",
	}
	if !cfg.HasAudio {
		args = append(args,
			"-f", "lavfi",
			"-i", "anullsrc=channel_layout=stereo:sample_rate=44100",
			"-map", "0:v:0",
			"-map", "1:a:0",
		)
	}
	args = append(args,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-tune", "zerolatency",
		"-pix_fmt", "yuv420p",
		"-g", "60",
		"-c:a", "aac",
		"-ar", "44100",
		"-b:a", "128k",
	)
	if !cfg.HasAudio {
		args = append(args, "-shortest")
	}
	return append(args, "-f", "flv", destination)
}

// destinationURL joins the fixed ingest base address with a session's
// destination key.
func destinationURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}
