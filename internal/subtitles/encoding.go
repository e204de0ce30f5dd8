package subtitles

import (
	"bytes"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	xunicode "golang.org/x/text/encoding/unicode"
)

// Encoding names reported in Result.Encoding.
const (
	EncodingUTF8    = "utf-8"
	EncodingUTF16LE = "utf-16le"
	EncodingUTF16BE = "utf-16be"
	EncodingGB18030 = "gb18030"
	EncodingBig5    = "big5"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// legacyCandidates are tried in order when the bytes are not UTF-8. GB18030
// is a superset of GBK and GB2312.
var legacyCandidates = []struct {
	name string
	enc  encoding.Encoding
}{
	{EncodingGB18030, simplifiedchinese.GB18030},
	{EncodingBig5, traditionalchinese.Big5},
}

// decodeText returns data as a UTF-8 string together with the encoding name
// it was read with. A declared encoding is trusted; otherwise the encoding is
// inferred from a BOM, UTF-8 validity, and finally the legacy CJK candidates.
func decodeText(data []byte, declared string) (string, string, error) {
	if declared = strings.TrimSpace(declared); declared != "" {
		return decodeDeclared(data, declared)
	}

	switch {
	case bytes.HasPrefix(data, bomUTF8):
		return string(data[len(bomUTF8):]), EncodingUTF8, nil
	case bytes.HasPrefix(data, bomUTF16LE):
		return decodeWith(xunicode.UTF16(xunicode.LittleEndian, xunicode.ExpectBOM), data, EncodingUTF16LE)
	case bytes.HasPrefix(data, bomUTF16BE):
		return decodeWith(xunicode.UTF16(xunicode.BigEndian, xunicode.ExpectBOM), data, EncodingUTF16BE)
	}

	if utf8.Valid(data) {
		return string(data), EncodingUTF8, nil
	}

	for _, candidate := range legacyCandidates {
		if text, ok := tryLegacy(candidate.enc, data); ok {
			return text, candidate.name, nil
		}
	}
	return "", "", unsupportedEncoding("bytes are not UTF-8, UTF-16, GB18030, or Big5")
}

func decodeDeclared(data []byte, declared string) (string, string, error) {
	enc, err := htmlindex.Get(declared)
	if err != nil {
		return "", "", unsupportedEncoding("unknown declared encoding " + declared)
	}
	name, err := htmlindex.Name(enc)
	if err != nil {
		name = strings.ToLower(declared)
	}
	return decodeWith(enc, data, name)
}

func decodeWith(enc encoding.Encoding, data []byte, name string) (string, string, error) {
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", "", unsupportedEncoding("decode " + name + ": " + err.Error())
	}
	return string(out), name, nil
}

// tryLegacy accepts a candidate only when the decode is clean (no replacement
// or private-use runes), contains Han characters, and re-encodes to the exact
// input bytes.
func tryLegacy(enc encoding.Encoding, data []byte) (string, bool) {
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", false
	}
	text := string(out)
	han := false
	for _, r := range text {
		if r == utf8.RuneError || unicode.Is(unicode.Co, r) {
			return "", false
		}
		if unicode.Is(unicode.Han, r) {
			han = true
		}
	}
	if !han {
		return "", false
	}
	back, err := enc.NewEncoder().Bytes(out)
	if err != nil || !bytes.Equal(back, data) {
		return "", false
	}
	return text, true
}
