package security

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// FileValidationResult describes why a resume upload was accepted or not.
type FileValidationResult struct {
	Valid        bool
	Extension    string
	DetectedMIME string
	Error        string
}

// resumeFormat is one accepted resume encoding. The sniffed MIME type must
// equal mime, and content must satisfy check.
type resumeFormat struct {
	mime  string
	check func([]byte) string
}

var resumeFormats = map[string]resumeFormat{
	".pdf": {mime: "application/pdf", check: hasPDFHeader},
	".txt": {mime: "text/plain", check: isUTF8Text},
}

func hasPDFHeader(data []byte) string {
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		return "file content does not match extension (potential file spoofing detected)"
	}
	return ""
}

func isUTF8Text(data []byte) string {
	if !utf8.Valid(data) {
		return "text resume must be UTF-8"
	}
	return ""
}

func formatOf(filename string) (string, resumeFormat, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return "", resumeFormat{}, errors.New("file has no extension")
	}
	f, ok := resumeFormats[ext]
	if !ok {
		return ext, resumeFormat{}, fmt.Errorf("file extension not allowed: %s", ext)
	}
	return ext, f, nil
}

// sniff returns the bare MIME type http.DetectContentType reports.
func sniff(data []byte) string {
	mime, _, _ := strings.Cut(http.DetectContentType(data), ";")
	return strings.TrimSpace(mime)
}

// ValidateResume accepts a file only when its extension is a known resume
// format and the bytes really are that format.
func ValidateResume(filename string, data []byte) FileValidationResult {
	res := FileValidationResult{DetectedMIME: sniff(data)}

	ext, format, err := formatOf(filename)
	res.Extension = ext
	switch {
	case err != nil:
		res.Error = err.Error()
	case len(data) == 0:
		res.Error = "file is empty"
	default:
		if msg := format.check(data); msg != "" {
			res.Error = msg
		} else if res.DetectedMIME != format.mime {
			res.Error = fmt.Sprintf("file content does not match extension (%s sniffed as %s)", ext, res.DetectedMIME)
		}
	}
	res.Valid = res.Error == ""
	return res
}

// ValidateFileExtension is the check available before the bytes are seen,
// i.e. when a presigned upload is issued or registered.
func ValidateFileExtension(filename string) error {
	_, _, err := formatOf(filename)
	return err
}

// ContentTypeFor returns the MIME type stored for an accepted file name.
func ContentTypeFor(filename string) string {
	if _, f, err := formatOf(filename); err == nil {
		return f.mime
	}
	return "text/plain"
}
