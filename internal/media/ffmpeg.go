package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jo-hoe/reelsmith/internal/common"
)

// FFmpeg implements Pipeline by shelling out to an ffmpeg binary.
type FFmpeg struct {
	log *slog.Logger
	bin string
}

var _ Pipeline = (*FFmpeg)(nil)

func NewFFmpeg(log *slog.Logger, bin string) *FFmpeg {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &FFmpeg{log: log, bin: bin}
}

// MakeClip renders one silent 1080x1920@30 clip of the given duration from a
// still image. Aspect ratio is preserved by scaling into the frame and
// padding the rest black.
func (f *FFmpeg) MakeClip(ctx context.Context, imagePath string, seconds float64, outPath string) error {
	return f.run(ctx, buildClipArgs(imagePath, seconds, outPath))
}

// Mux concatenates the clips in order and muxes in the audio track. With a
// positive transition the clips are cross-faded, otherwise the concat is a
// plain cut. `-shortest` truncates the result to the shorter stream.
func (f *FFmpeg) Mux(ctx context.Context, clips []Clip, audioPath, outPath string, transitionSeconds float64) error {
	if len(clips) == 0 {
		return errors.New("no clips to mux")
	}
	if transitionSeconds > 0 && len(clips) > 1 {
		return f.run(ctx, buildXfadeMuxArgs(clips, audioPath, outPath, transitionSeconds))
	}

	listPath := outPath + ".txt"
	if err := writeConcatList(listPath, clips); err != nil {
		return err
	}
	defer func() {
		if err := os.Remove(listPath); err != nil {
			f.log.Warn("concat list cleanup failed", "path", listPath, "err", err)
		}
	}()
	return f.run(ctx, buildConcatMuxArgs(listPath, audioPath, outPath))
}

func (f *FFmpeg) run(ctx context.Context, args []string) error {
	f.log.Debug("running ffmpeg", "args", strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, f.bin, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg: %w", ctx.Err())
		}
		return fmt.Errorf("ffmpeg: %v: %s", err, tail(string(out), 512))
	}
	return nil
}

func buildClipArgs(imagePath string, seconds float64, outPath string) []string {
	vf := fmt.Sprintf(
		"scale=%[1]d:%[2]d:force_original_aspect_ratio=decrease,pad=%[1]d:%[2]d:(ow-iw)/2:(oh-ih)/2:color=black,fps=%[3]d,format=yuv420p",
		common.OutputWidth, common.OutputHeight, common.OutputFPS,
	)
	return []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-loop", "1", "-i", imagePath,
		"-f", "lavfi", "-i", "anullsrc=channel_layout=stereo:sample_rate=44100",
		"-t", formatSeconds(seconds),
		"-vf", vf,
		"-c:v", "libx264", "-preset", "veryfast",
		"-c:a", "aac",
		"-shortest",
		outPath,
	}
}

func buildConcatMuxArgs(listPath, audioPath, outPath string) []string {
	return []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-f", "concat", "-safe", "0", "-i", listPath,
		"-i", audioPath,
		"-map", "0:v:0", "-map", "1:a:0",
		"-c:v", "copy", "-c:a", "aac",
		"-shortest",
		outPath,
	}
}

// buildXfadeMuxArgs chains xfade filters between consecutive clips. Each
// fade overlaps the end of the running chain with the next clip, so the
// offset of fade i is the chain duration so far minus the transition.
func buildXfadeMuxArgs(clips []Clip, audioPath, outPath string, transition float64) []string {
	args := []string{"-y", "-hide_banner", "-loglevel", "error"}
	for _, c := range clips {
		args = append(args, "-i", c.Path)
	}
	args = append(args, "-i", audioPath)

	var filter strings.Builder
	cur := "[0:v]"
	offset := clips[0].Seconds - transition
	for i := 1; i < len(clips); i++ {
		out := fmt.Sprintf("[v%d]", i)
		if i > 1 {
			filter.WriteString(";")
		}
		fmt.Fprintf(&filter, "%s[%d:v]xfade=transition=fade:duration=%s:offset=%s%s",
			cur, i, formatSeconds(transition), formatSeconds(offset), out)
		cur = out
		offset += clips[i].Seconds - transition
	}

	args = append(args,
		"-filter_complex", filter.String(),
		"-map", cur, "-map", fmt.Sprintf("%d:a:0", len(clips)),
		"-c:v", "libx264", "-preset", "veryfast", "-pix_fmt", "yuv420p",
		"-r", strconv.Itoa(common.OutputFPS),
		"-c:a", "aac",
		"-shortest",
		outPath,
	)
	return args
}

func writeConcatList(listPath string, clips []Clip) error {
	var b strings.Builder
	for _, c := range clips {
		abs, err := filepath.Abs(c.Path)
		if err != nil {
			abs = c.Path
		}
		// Single quotes per the concat demuxer escaping rules.
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	if err := os.WriteFile(listPath, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	return nil
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', -1, 64)
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
