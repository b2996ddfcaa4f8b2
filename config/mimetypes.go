package config

// defaultMimeTypes seeds a new Store. Extensions are lower case, without dot.
var defaultMimeTypes = map[string]string{
	"7z":   "application/x-7z-compressed",
	"atom": "application/atom+xml",
	"bin":  "application/octet-stream",
	"bmp":  "image/x-ms-bmp",
	"cgi":  "application/x-cgi",
	"css":  "text/css",
	"csv":  "text/csv",
	"doc":  "application/msword",
	"flv":  "video/x-flv",
	"gif":  "image/gif",
	"gz":   "application/gzip",
	"htm":  "text/html",
	"html": "text/html",
	"ico":  "image/x-icon",
	"jar":  "application/java-archive",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"js":   "application/javascript",
	"json": "application/json",
	"m4a":  "audio/x-m4a",
	"md":   "text/markdown",
	"mov":  "video/quicktime",
	"mp3":  "audio/mpeg",
	"mp4":  "video/mp4",
	"mpeg": "video/mpeg",
	"mpg":  "video/mpeg",
	"ogg":  "audio/ogg",
	"pdf":  "application/pdf",
	"php":  "application/x-php",
	"pl":   "application/x-perl",
	"png":  "image/png",
	"ppt":  "application/vnd.ms-powerpoint",
	"ps":   "application/postscript",
	"py":   "text/x-python",
	"rar":  "application/x-rar-compressed",
	"rss":  "application/rss+xml",
	"rtf":  "application/rtf",
	"sh":   "application/x-sh",
	"svg":  "image/svg+xml",
	"tar":  "application/x-tar",
	"txt":  "text/plain",
	"wav":  "audio/wav",
	"webm": "video/webm",
	"webp": "image/webp",
	"xls":  "application/vnd.ms-excel",
	"xml":  "text/xml",
	"zip":  "application/zip",
}
