package fetcher

import (
	"regexp"
	"strings"

	"vidscribe/internal/services"
)

// Classification rules, checked in order against lowercased yt-dlp stderr.
var classRules = []struct {
	class    error
	patterns []string
}{
	{services.ErrAuth, []string{
		"sign in to confirm",
		"login required",
		"use --cookies",
		"cookies-from-browser",
		"members-only",
		"join this channel",
		"private video",
		"http error 401",
		"http error 403",
		"cookie database",
	}},
	{services.ErrNotFound, []string{
		"video unavailable",
		"has been removed",
		"does not exist",
		"http error 404",
		"unsupported url",
		"not available in your country",
		"requested format is not available",
		"no video formats found",
		"there is no video in this post",
	}},
	{services.ErrTimeout, []string{
		"timed out",
		"timeout",
	}},
	{services.ErrTransient, []string{
		"connection reset",
		"connection refused",
		"connection aborted",
		"remote end closed",
		"temporary failure in name resolution",
		"name or service not known",
		"network is unreachable",
		"incompleteread",
		"unable to download",
		"http error 429",
		"too many requests",
		"[ssl:",
	}},
}

var serverError = regexp.MustCompile(`http error 5\d\d`)

// Classify maps yt-dlp diagnostic output to a transport class. Unrecognized
// output is services.ErrExternalTool.
func Classify(output string) error {
	lower := strings.ToLower(output)
	for _, rule := range classRules {
		for _, p := range rule.patterns {
			if strings.Contains(lower, p) {
				return rule.class
			}
		}
	}
	if serverError.MatchString(lower) {
		return services.ErrTransient
	}
	return services.ErrExternalTool
}
