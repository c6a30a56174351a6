package common

// Shared constants to enforce DRY and avoid magic strings/numbers.

// HTTP headers and content types
const (
	HeaderAPIKey    = "X-API-Key" // #nosec G101 - header name constant, not a credential
	ContentTypeJSON = "application/json"
	ContentTypeMP4  = "video/mp4"
)

// API paths
const (
	PathHealthz = "/healthz"
	PathVideos  = "/v1/videos"
	PathAssets  = "/v1/assets"
	PathFiles   = "/files"
)

// Defaults and limits
const (
	DefaultQueueCapacity = 128
	DefaultWorkerCount   = 2
	SQLiteBusyTimeoutMS  = 5000
)

// Output geometry of every generated clip and of the final video.
const (
	OutputWidth  = 1080
	OutputHeight = 1920
	OutputFPS    = 30
)

// Per-clip duration rules in seconds. A degenerate start/end pair falls back
// to DefaultClipSeconds; anything shorter than MinClipSeconds is raised to it.
const (
	MinClipSeconds     = 0.2
	DefaultClipSeconds = 1.0
)

// MIME types accepted for image uploads.
const (
	MimeImagePNG  = "image/png"
	MimeImageJPEG = "image/jpeg"
	MimeImageJPG  = "image/jpg"
)

// Subdirectory names under the storage dir.
const (
	UploadsDirName = "uploads"
	ScratchDirName = "scratch"
	VideosDirName  = "videos"
)
