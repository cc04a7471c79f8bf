package dbf

import (
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// textDecoder turns raw field bytes into a Go string.
type textDecoder interface {
	decode(b []byte) string
}

// guessDecoder reads valid UTF-8 as is and anything else as ISO-8859-1.
type guessDecoder struct{}

func (guessDecoder) decode(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}

func decoderFor(enc encoding.Encoding) textDecoder {
	if enc == nil {
		return guessDecoder{}
	}
	return encodingDecoder{enc: enc}
}

type encodingDecoder struct {
	enc encoding.Encoding
}

// decode creates a decoder per call; encoding.Decoder is not safe for
// concurrent use.
func (d encodingDecoder) decode(b []byte) string {
	out, err := d.enc.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}

// codePages maps bare Windows/DOS code page numbers, as found in .cpg
// files, to encodings.
var codePages = map[string]encoding.Encoding{
	"437":   charmap.CodePage437,
	"850":   charmap.CodePage850,
	"852":   charmap.CodePage852,
	"866":   charmap.CodePage866,
	"1250":  charmap.Windows1250,
	"1251":  charmap.Windows1251,
	"1252":  charmap.Windows1252,
	"1253":  charmap.Windows1253,
	"1254":  charmap.Windows1254,
	"1257":  charmap.Windows1257,
	"65001": unicode.UTF8,
}

// LookupEncoding resolves an encoding name such as "UTF-8", "windows-1252",
// "ISO-8859-1" or a bare code page number.
func LookupEncoding(name string) (encoding.Encoding, error) {
	n := strings.TrimSpace(name)
	if n == "" {
		return nil, &UnknownEncodingError{Name: name}
	}
	key := strings.NewReplacer(" ", "", "_", "", "-", "").Replace(strings.ToLower(n))
	key = strings.TrimPrefix(strings.TrimPrefix(key, "cp"), "windows")
	if enc, ok := codePages[key]; ok {
		return enc, nil
	}
	switch key {
	case "utf8":
		return unicode.UTF8, nil
	case "latin1", "iso88591":
		// htmlindex folds ISO-8859-1 into windows-1252; keep them apart.
		return charmap.ISO8859_1, nil
	}
	enc, err := htmlindex.Get(n)
	if err != nil {
		return nil, &UnknownEncodingError{Name: name}
	}
	return enc, nil
}

// languageDrivers maps the language driver byte of the header to an
// encoding. Only unambiguous, commonly written values are listed.
var languageDrivers = map[byte]encoding.Encoding{
	0x01: charmap.CodePage437,
	0x02: charmap.CodePage850,
	0x03: charmap.Windows1252,
	0x57: charmap.Windows1252,
	0x64: charmap.CodePage852,
	0x65: charmap.CodePage866,
	0x26: charmap.CodePage866,
	0xC8: charmap.Windows1250,
	0xC9: charmap.Windows1251,
	0xCA: charmap.Windows1254,
	0xCB: charmap.Windows1253,
}

// ReadCPG reads the encoding named in a .cpg side file.
func ReadCPG(path string) (encoding.Encoding, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return LookupEncoding(string(b))
}
