// Package fetcher acquires source material for a task. The Stage decides,
// from a metadata probe, whether a platform caption track can be used and
// fetches it, falling back to downloading audio for speech recognition. The
// YTDLP type implements the Fetcher contract on top of the yt-dlp binary.
package fetcher
