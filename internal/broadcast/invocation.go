package broadcast

import "os"

// ffmpegBin resolves the ffmpeg binary path, honoring FFMPEG_BIN the
// same way ingest's invocation builder does, so tests can substitute a
// stand-in binary.
func ffmpegBin() string {
	if v := os.Getenv("FFMPEG_BIN"); v != "" {
		return v
	}
	return "ffmpeg"
}

// buildInvocation constructs the ffmpeg argv for one fan-out start, per
// spec §4.3: read the local HLS playlist starting at the live edge, copy
// video unchanged, re-transcode audio with the same drift-correcting
// filter as ingest (spec §4.2), write FLV/RTMP to remoteURL+streamKey.
func buildInvocation(playlistPath, remoteURL, streamKey string) []string {
	output := remoteURL + streamKey
	return []string{
		ffmpegBin(),
		"-hide_banner",
		"-loglevel", "warning",
		"-live_start_index", "-1",
		"-i", playlistPath,
		"-c:v", "copy",
		"-c:a", "aac",
		"-ar", "44100",
		"-af", "aresample=async=1:first_pts=0",
		"-f", "flv",
		output,
	}
}
