package domain

import (
	"encoding/base64"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// ImageDataURL encodes raw image bytes as a data URL embedding input.
func ImageDataURL(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// ImageMIME guesses the media type from the file name, then from the content.
// Empty when neither looks like an image.
func ImageMIME(name string, data []byte) string {
	if ext := filepath.Ext(name); ext != "" {
		if t := mime.TypeByExtension(strings.ToLower(ext)); strings.HasPrefix(t, "image/") {
			return t
		}
	}
	if t := http.DetectContentType(data); strings.HasPrefix(t, "image/") {
		return t
	}
	return ""
}
