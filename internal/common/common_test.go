package common

import "testing"

func TestConstantsValues(t *testing.T) {
	if ContentTypeJSON != "application/json" {
		t.Fatalf("ContentTypeJSON = %q", ContentTypeJSON)
	}
	if HeaderAPIKey != "X-API-Key" {
		t.Fatalf("HeaderAPIKey = %q", HeaderAPIKey)
	}
	if PathHealthz != "/healthz" || PathVideos != "/v1/videos" || PathAssets != "/v1/assets" {
		t.Fatalf("paths mismatch: %q, %q, %q", PathHealthz, PathVideos, PathAssets)
	}
	if DefaultQueueCapacity <= 0 || DefaultWorkerCount <= 0 {
		t.Fatalf("defaults should be positive")
	}
	if OutputWidth != 1080 || OutputHeight != 1920 || OutputFPS != 30 {
		t.Fatalf("output geometry mismatch: %dx%d@%d", OutputWidth, OutputHeight, OutputFPS)
	}
	if MinClipSeconds >= DefaultClipSeconds {
		t.Fatalf("clip duration bounds inverted")
	}
	if MimeImagePNG != "image/png" || MimeImageJPEG != "image/jpeg" || MimeImageJPG != "image/jpg" {
		t.Fatalf("mime constants mismatch")
	}
	if UploadsDirName == "" || ScratchDirName == "" || VideosDirName == "" {
		t.Fatalf("dir names should be non-empty")
	}
}
