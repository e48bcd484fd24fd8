package payload

import (
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

var audioExtensions = map[string]string{
	".wav":  "audio/wav",
	".wave": "audio/wav",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".opus": "audio/ogg",
	".webm": "audio/webm",
	".aif":  "audio/aiff",
	".aiff": "audio/aiff",
}

var mimeExtensions = map[string]string{
	"audio/wav":  ".wav",
	"audio/mpeg": ".mp3",
	"audio/mp4":  ".m4a",
	"audio/aac":  ".aac",
	"audio/flac": ".flac",
	"audio/ogg":  ".ogg",
	"audio/webm": ".webm",
	"audio/aiff": ".aiff",
}

// IsAudioMIME reports whether a media type belongs to the audio category.
func IsAudioMIME(mimeType string) bool {
	return strings.HasPrefix(normalizeMIME(mimeType), "audio/")
}

// ResolveMIME picks the declared type when usable, then the extension table, then sniffing.
func ResolveMIME(name string, declared string, data []byte) string {
	declared = normalizeMIME(declared)
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}

	ext := strings.ToLower(filepath.Ext(name))
	if mt, ok := audioExtensions[ext]; ok {
		return mt
	}
	if mt := normalizeMIME(mime.TypeByExtension(ext)); mt != "" {
		return mt
	}
	if len(data) == 0 {
		return "application/octet-stream"
	}
	return normalizeMIME(http.DetectContentType(data))
}

// normalizeMIME lowercases and strips parameters such as "; codecs=opus".
func normalizeMIME(mimeType string) string {
	mimeType = strings.TrimSpace(strings.ToLower(mimeType))
	if idx := strings.Index(mimeType, ";"); idx >= 0 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}
	switch mimeType {
	case "audio/x-wav", "audio/wave", "audio/vnd.wave":
		return "audio/wav"
	case "audio/mp3":
		return "audio/mpeg"
	case "audio/x-flac":
		return "audio/flac"
	}
	return mimeType
}

func extensionFor(mimeType string) string {
	if ext, ok := mimeExtensions[normalizeMIME(mimeType)]; ok {
		return ext
	}
	return ".audio"
}
