package extractor

import (
	"net/http"
	"path/filepath"
	"strings"
)

// sniffBytes is how much of a file's head is sampled for MIME sniffing
// (spec.md §4.2: "first 8 KiB").
const sniffBytes = 8 * 1024

// extByMIME is the extension fallback table used when there is no content
// to sniff or content sniffing alone doesn't resolve to something other
// than the generic application/octet-stream bucket. Grounded on the extension-based
// classification idiom from the teacher/pack's scanner packages.
var extByMIME = map[string]string{
	".txt":  "text/plain",
	".md":   "text/markdown",
	".json": "application/json",
	".yaml": "application/x-yaml",
	".yml":  "application/x-yaml",
	".csv":  "text/csv",
	".log":  "text/plain",
	".pdf":  "application/pdf",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".doc":  "application/msword",
	".xls":  "application/vnd.ms-excel",
	".ppt":  "application/vnd.ms-powerpoint",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".heic": "image/heic",
}

// detectMIME sniffs the first sniffBytes of content via the stdlib content
// detector (net/http.DetectContentType — the one MIME-sniffing idiom that
// appears consistently across the example pack, with no third-party
// sniffing library anywhere in it), falling back to an extension lookup
// when the head is empty or the sniff result is the generic octet-stream
// bucket.
func detectMIME(head []byte, path string) string {
	n := len(head)
	if n > sniffBytes {
		n = sniffBytes
	}
	sniffed := http.DetectContentType(head[:n])

	base := strings.SplitN(sniffed, ";", 2)[0]
	if n > 0 && base != "application/octet-stream" {
		return base
	}
	if m, ok := extByMIME[strings.ToLower(filepath.Ext(path))]; ok {
		return m
	}
	return base
}

// familyOf classifies a MIME type into the parser capability that handles
// it (spec.md §4.2).
func familyOf(mime string) Family {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return FamilyImage
	case mime == "application/pdf":
		return FamilyPDF
	case strings.Contains(mime, "officedocument") || mime == "application/msword" ||
		mime == "application/vnd.ms-excel" || mime == "application/vnd.ms-powerpoint":
		return FamilyOffice
	case strings.HasPrefix(mime, "text/") || mime == "application/json" || strings.Contains(mime, "yaml"):
		return FamilyTexty
	default:
		return FamilyUnknown
	}
}
