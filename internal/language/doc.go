// Package language normalizes language codes and caption track tags.
//
// ASR engines want ISO 639-1 codes while video platforms label caption tracks
// with BCP 47 tags ("zh-Hans", "en-US") or private labels. This package maps
// between the two, decides whether a track satisfies a requested language, and
// owns the per-platform caption priority lists used when the caller does not
// name a language.
package language
