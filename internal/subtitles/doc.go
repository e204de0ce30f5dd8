// Package subtitles converts timed text between its wire formats and the
// segment sequence the pipeline works on.
//
// Decode accepts SRT and WebVTT bytes in the encodings video platforms serve
// (UTF-8 with or without BOM, UTF-16, GB18030/GBK, Big5), cleans cue text, and
// returns segments that are sorted, non-overlapping, and free of consecutive
// duplicates. Encode renders segments as SRT, WebVTT, or timestamped plain
// text. For any sequence S accepted by Validate whose texts are already
// normalized, Decode(Encode(S, f)) reproduces S to the millisecond.
package subtitles
