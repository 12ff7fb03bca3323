package relay

import "testing"

func TestParseFormatHint(t *testing.T) {
	testCases := []struct {
		name     string
		hint     string
		expected InputFormat
	}{
		{name: "webm", hint: "video/webm", expected: FormatWebM},
		{name: "webm with codecs", hint: "video/webm;codecs=vp8,opus", expected: FormatWebM},
		{name: "mp4", hint: "video/mp4", expected: FormatMP4},
		{name: "mp4 with codecs", hint: "video/mp4; codecs=avc1.42E01E", expected: FormatMP4},
		{name: "bare token", hint: "mp4", expected: FormatMP4},
		{name: "mixed case", hint: " Video/MP4 ", expected: FormatMP4},
		{name: "empty defaults to webm", hint: "", expected: FormatWebM},
		{name: "unknown defaults to webm", hint: "application/octet-stream", expected: FormatWebM},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := ParseFormatHint(tc.hint); got != tc.expected {
				t.Fatalf("ParseFormatHint(%q) = %q, expected %q", tc.hint, got, tc.expected)
			}
		})
	}
}
