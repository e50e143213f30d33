package video

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"
	"os/exec"
)

var ErrNoFrames = errors.New("no frames to encode")

// Params describes the output stream.
type Params struct {
	FPS     int
	Encoder string // ffmpeg codec name, e.g. libx264
	Quality int
}

type VideoEncoder interface {
	EncodeFrames(ctx context.Context, frames []image.Image, videoPath string, params Params) error
}

// FFmpegEncoder pipes raw RGBA frames into the system ffmpeg.
type FFmpegEncoder struct{}

// EncodeFrames writes frames, all of the first frame's size, to videoPath.
func (e *FFmpegEncoder) EncodeFrames(ctx context.Context, frames []image.Image, videoPath string, params Params) error {
	if len(frames) == 0 {
		return ErrNoFrames
	}
	b := frames[0].Bounds()
	args := e.buildFFmpegArgs(b.Dx(), b.Dy(), videoPath, params)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe error: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg start error: %w", err)
	}

	w := bufio.NewWriterSize(stdin, b.Dx()*b.Dy()*4)
	for i, frame := range frames {
		if frame.Bounds().Size() != b.Size() {
			stdin.Close()
			cmd.Wait()
			return fmt.Errorf("frame %d is %v, expected %v", i, frame.Bounds().Size(), b.Size())
		}
		if err := e.writeRawRGBA(w, frame); err != nil {
			stdin.Close()
			cmd.Wait()
			return fmt.Errorf("write raw error: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		stdin.Close()
		cmd.Wait()
		return fmt.Errorf("write raw error: %w", err)
	}
	stdin.Close()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg wait error: %w", err)
	}
	return nil
}

func (e *FFmpegEncoder) buildFFmpegArgs(inputW, inputH int, videoPath string, params Params) []string {
	encoderName := params.Encoder
	if encoderName == "" {
		encoderName = "libx264"
	}
	args := []string{
		"-y",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", inputW, inputH),
		"-framerate", fmt.Sprintf("%d", params.FPS),
		"-i", "-",
		"-pix_fmt", "yuv420p",
		"-c:v", encoderName,
	}

	switch encoderName {
	case "h264_videotoolbox":
		bitrate := params.Quality * 100
		args = append(args, "-b:v", fmt.Sprintf("%dk", bitrate))
	case "h264_nvenc":
		args = append(args, "-cq", fmt.Sprintf("%d", params.Quality))
	default: // libx264
		args = append(args, "-crf", fmt.Sprintf("%d", params.Quality), "-preset", "medium")
	}

	args = append(args, videoPath)
	return args
}

func (e *FFmpegEncoder) writeRawRGBA(w io.Writer, img image.Image) error {
	bounds := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != bounds.Dx()*4 || rgba.Rect.Min.X != 0 || rgba.Rect.Min.Y != 0 {
		rgba = image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	}
	_, err := w.Write(rgba.Pix)
	return err
}

// DefaultQuality returns the quality setting used when none is given.
func DefaultQuality(encoderName string) int {
	switch encoderName {
	case "h264_videotoolbox":
		return 75
	case "h264_nvenc":
		return 28
	default:
		return 23
	}
}
