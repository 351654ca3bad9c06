package classifier

import "strings"

// heuristicLabel applies the fixed MIME/extension/path rules of spec.md
// §4.4. An empty label means no heuristic matched and the caller should
// fall through to kNN/LLM.
func heuristicLabel(path, mime, ext string) string {
	mime = strings.ToLower(mime)
	ext = strings.ToLower(ext)
	lowerPath := strings.ToLower(path)

	if strings.Contains(lowerPath, "/download") || strings.Contains(lowerPath, "/downloads") {
		if isDocExt(ext) || isArchiveExt(ext) {
			return "inbox/download"
		}
	}

	switch {
	case mime == "application/pdf":
		return "document/pdf"
	case strings.Contains(mime, "officedocument") || mime == "application/msword" ||
		mime == "application/vnd.ms-excel" || mime == "application/vnd.ms-powerpoint":
		return "document/office"
	case strings.HasPrefix(mime, "image/"):
		return "image"
	case strings.HasPrefix(mime, "text/") || mime == "application/json" || strings.Contains(mime, "yaml"):
		return "text"
	case isArchiveExt(ext) || isArchiveMIME(mime):
		return "archive"
	}

	return ""
}

func isArchiveExt(ext string) bool {
	switch ext {
	case ".zip", ".tar", ".gz", ".tgz", ".bz2", ".xz", ".7z", ".rar":
		return true
	default:
		return false
	}
}

func isArchiveMIME(mime string) bool {
	switch mime {
	case "application/zip", "application/x-tar", "application/gzip",
		"application/x-gzip", "application/x-bzip2", "application/x-xz",
		"application/x-7z-compressed", "application/x-rar-compressed":
		return true
	default:
		return false
	}
}

func isDocExt(ext string) bool {
	switch ext {
	case ".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx":
		return true
	default:
		return false
	}
}
