package ingest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/beachvar/stream-supervisor/internal/credentials"
	"github.com/google/uuid"
)

// ffmpegBin resolves the ffmpeg binary path, honoring FFMPEG_BIN the
// same way the teacher's ffmpeg-wrapping services do, so tests can point
// it at a stand-in binary without touching PATH.
func ffmpegBin() string {
	if v := os.Getenv("FFMPEG_BIN"); v != "" {
		return v
	}
	return "ffmpeg"
}

// buildInvocation constructs the ffmpeg argv for one ingest start, per
// spec §4.2's invocation shape: TCP transport, lenient timestamp
// regeneration, one video + optional audio stream mapped, video copied
// unchanged, audio transcoded to AAC 44.1kHz with a drift-correcting
// resample filter, a sliding-window HLS playlist of segmentSeconds-long
// segments (2s by default) keeping
// ~windowSegments visible, deleted on rollout, filenames salted with a
// per-start random token (security-through-obscurity per spec).
//
// Grounded on the teacher's services/rtsp_service.go ffmpeg argv
// (RTSP->HLS via -hls_flags delete_segments, tcp transport, libx264) and
// on original_source/src/streaming/manager.py's _start_ffmpeg (RTSP
// input flags, aac audio, low-delay/wallclock timestamp options), merged
// to the exact mapping/filter spec §4.2 calls for.
func buildInvocation(sourceURL, segmentDir string, segmentSeconds, windowSegments int) (argv []string, token string, playlistPath string) {
	token = uuid.NewString()[:8]
	playlistPath = filepath.Join(segmentDir, "playlist.m3u8")
	segmentPattern := filepath.Join(segmentDir, fmt.Sprintf("%s_%%03d.ts", token))

	argv = []string{
		ffmpegBin(),
		"-hide_banner",
		"-loglevel", "warning",
		"-rtsp_transport", "tcp",
		"-fflags", "+genpts+discardcorrupt",
		"-use_wallclock_as_timestamps", "1",
		"-i", sourceURL,
		"-map", "0:v:0",
		"-map", "0:a:0?",
		"-c:v", "copy",
		"-c:a", "aac",
		"-ar", "44100",
		"-af", "aresample=async=1:first_pts=0",
		"-f", "hls",
		"-hls_time", fmt.Sprintf("%d", segmentSeconds),
		"-hls_list_size", fmt.Sprintf("%d", windowSegments),
		"-hls_flags", "delete_segments+independent_segments+omit_endlist",
		"-hls_segment_filename", segmentPattern,
		"-start_number", "0",
		playlistPath,
	}
	return argv, token, playlistPath
}

// normalizedSourceURL wraps credentials.NormalizeSourceURL for callers
// in this package.
func normalizedSourceURL(raw string) (string, error) {
	return credentials.NormalizeSourceURL(raw)
}
