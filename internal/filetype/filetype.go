// Package filetype derives a MIME-like type string from a file extension.
package filetype

import (
	"mime"
	"path/filepath"
	"strings"
)

// DefaultType is returned for unrecognized extensions.
const DefaultType = "application/octet-stream"

// typeMap is the fixed extension-to-type table. Entries here take precedence
// over the platform MIME database so results are stable across hosts.
var typeMap = map[string]string{
	// Documents
	".txt":  "text/plain",
	".md":   "text/markdown",
	".rst":  "text/x-rst",
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".ppt":  "application/vnd.ms-powerpoint",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".odt":  "application/vnd.oasis.opendocument.text",
	".csv":  "text/csv",

	// Source code
	".go":   "text/x-go",
	".py":   "text/x-python",
	".js":   "text/javascript",
	".ts":   "text/typescript",
	".jsx":  "text/javascript",
	".tsx":  "text/typescript",
	".c":    "text/x-c",
	".h":    "text/x-c",
	".cpp":  "text/x-c++",
	".hpp":  "text/x-c++",
	".rs":   "text/x-rust",
	".java": "text/x-java",
	".rb":   "text/x-ruby",
	".php":  "text/x-php",
	".sh":   "text/x-shellscript",
	".sql":  "text/x-sql",

	// Config / data
	".json": "application/json",
	".yaml": "application/yaml",
	".yml":  "application/yaml",
	".toml": "application/toml",
	".xml":  "application/xml",
	".ini":  "text/plain",
	".html": "text/html",
	".htm":  "text/html",
	".css":  "text/css",

	// Images
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
	".bmp":  "image/bmp",
	".ico":  "image/x-icon",
	".tiff": "image/tiff",

	// Audio / video
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".mp4":  "video/mp4",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",

	// Archives
	".zip": "application/zip",
	".tar": "application/x-tar",
	".gz":  "application/gzip",
	".bz2": "application/x-bzip2",
	".xz":  "application/x-xz",
	".7z":  "application/x-7z-compressed",
	".rar": "application/vnd.rar",
	".deb": "application/vnd.debian.binary-package",
	".rpm": "application/x-rpm",
	".iso": "application/x-iso9660-image",

	// Binaries
	".exe": "application/x-msdownload",
	".dll": "application/x-msdownload",
	".bin": "application/octet-stream",
}

// Detect returns the MIME-like type for path based on its extension.
// Unknown extensions fall back to the platform MIME database, then to
// DefaultType.
func Detect(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return DefaultType
	}
	if t, ok := typeMap[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		// Strip charset parameters for a stable bare type.
		if i := strings.IndexByte(t, ';'); i >= 0 {
			t = strings.TrimSpace(t[:i])
		}
		return t
	}
	return DefaultType
}
