package editor

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"

	"md-translator/internal/logger"
	"md-translator/internal/types"
)

// Encoding names reported by DetectEncoding.
const (
	EncodingUTF8    = "UTF-8"
	EncodingUTF8BOM = "UTF-8-BOM"
	EncodingUTF16LE = "UTF-16LE"
	EncodingUTF16BE = "UTF-16BE"
	EncodingGBK     = "GBK"
	EncodingUnknown = "UNKNOWN"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DetectEncoding guesses the encoding of raw file content: BOM first,
// then UTF-8 validity, then GBK.
func DetectEncoding(data []byte) string {
	switch {
	case bytes.HasPrefix(data, utf8BOM):
		return EncodingUTF8BOM
	case bytes.HasPrefix(data, []byte{0xFF, 0xFE}):
		return EncodingUTF16LE
	case bytes.HasPrefix(data, []byte{0xFE, 0xFF}):
		return EncodingUTF16BE
	case utf8.Valid(data):
		return EncodingUTF8
	case isValidGBK(data):
		return EncodingGBK
	}
	return EncodingUnknown
}

func isValidGBK(data []byte) bool {
	decoded, err := simplifiedchinese.GBK.NewDecoder().Bytes(data)
	if err != nil {
		return false
	}
	return utf8.Valid(decoded) && !bytes.ContainsRune(decoded, utf8.RuneError)
}

// codec returns the x/text encoding for name. UTF-8 variants return nil.
func codec(name string) (encoding.Encoding, error) {
	switch name {
	case EncodingUTF8, EncodingUTF8BOM:
		return nil, nil
	case EncodingUTF16LE:
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM), nil
	case EncodingUTF16BE:
		return unicode.UTF16(unicode.BigEndian, unicode.UseBOM), nil
	case EncodingGBK:
		return simplifiedchinese.GBK, nil
	}
	return nil, types.NewAppErrorWithDetails(types.ErrInvalidInput, "unsupported encoding", name, nil)
}

// Decode converts data in the named encoding to a UTF-8 string.
// A UTF-8 BOM is dropped.
func Decode(data []byte, name string) (string, error) {
	enc, err := codec(name)
	if err != nil {
		return "", err
	}
	if enc == nil {
		return string(bytes.TrimPrefix(data, utf8BOM)), nil
	}
	decoded, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		logger.Error("failed to decode file content", err, logger.String("encoding", name))
		return "", types.NewAppErrorWithDetails(types.ErrInvalidInput, "failed to decode file content", name, err)
	}
	return string(decoded), nil
}

// Encode converts content back to the named encoding. UTF-8-BOM and
// UTF-16 output carry a BOM.
func Encode(content string, name string) ([]byte, error) {
	enc, err := codec(name)
	if err != nil {
		return nil, err
	}
	switch {
	case name == EncodingUTF8BOM:
		return append(append([]byte{}, utf8BOM...), content...), nil
	case enc == nil:
		return []byte(content), nil
	}
	encoded, err := enc.NewEncoder().Bytes([]byte(content))
	if err != nil {
		logger.Error("failed to encode file content", err, logger.String("encoding", name))
		return nil, types.NewAppErrorWithDetails(types.ErrInvalidInput, "text cannot be written in the file's encoding", name, err)
	}
	return encoded, nil
}
