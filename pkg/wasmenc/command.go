package wasmenc

import (
	"path/filepath"
	"strconv"
	"strings"
)

// Command builds an encoder argument list. Options are composable and
// order-independent; the encoder receives args in a fixed layout
// regardless of the order options were applied.
type Command struct {
	input     string
	output    string
	postInput []string
	filters   []string
}

// Option modifies a Command.
type Option interface {
	Apply(cmd *Command)
}

// OptionFunc is a function that implements Option.
type OptionFunc func(cmd *Command)

// Apply implements Option.
func (f OptionFunc) Apply(cmd *Command) { f(cmd) }

// NewCommand creates a command with input/output and applies options.
func NewCommand(input, output string, opts ...Option) *Command {
	cmd := &Command{input: input, output: output}
	for _, opt := range opts {
		opt.Apply(cmd)
	}
	return cmd
}

// Build returns the complete argument list.
func (c *Command) Build() []string {
	args := []string{"-hide_banner", "-y", "-i", c.input}
	args = append(args, c.postInput...)
	if len(c.filters) > 0 {
		args = append(args, "-vf", strings.Join(c.filters, ","))
	}
	// Progressive-start layout for MP4-family outputs so playback can
	// begin before the full file arrives.
	ext := strings.ToLower(filepath.Ext(c.output))
	if ext == ".mp4" || ext == ".m4a" || ext == ".mov" {
		args = append(args, "-movflags", "+faststart")
	}
	args = append(args, c.output)
	return args
}

// VideoCodec sets the video codec (-c:v).
func VideoCodec(codec string) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.postInput = append(cmd.postInput, "-c:v", codec)
	})
}

// CRF sets the constant rate factor (lower is higher quality).
func CRF(value int) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.postInput = append(cmd.postInput, "-crf", strconv.Itoa(value))
	})
}

// Preset sets the encoding preset.
func Preset(name string) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.postInput = append(cmd.postInput, "-preset", name)
	})
}

// PixelFormat sets the pixel format (-pix_fmt).
func PixelFormat(fmt string) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.postInput = append(cmd.postInput, "-pix_fmt", fmt)
	})
}

// AudioCodec sets the audio codec (-c:a).
func AudioCodec(codec string) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.postInput = append(cmd.postInput, "-c:a", codec)
	})
}

// AudioBitrate sets the audio bitrate (-b:a).
func AudioBitrate(bitrate string) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.postInput = append(cmd.postInput, "-b:a", bitrate)
	})
}

// ScaleWidth constrains the frame width to w pixels with auto-computed
// height. The -2 keeps dimensions even, which h264 requires.
func ScaleWidth(w int) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.filters = append(cmd.filters, "scale="+strconv.Itoa(w)+":-2")
	})
}

// Recipe holds the fixed normalization knobs. These are product
// defaults applied to every input for predictability, not per-file
// adaptive choices.
type Recipe struct {
	CRF          int
	MaxWidth     int
	AudioBitrate string
}

// DefaultRecipe is the canonical normalization target: H.264 at CRF 23
// (high quality, moderate size), width capped at 1280, AAC at 128k.
var DefaultRecipe = Recipe{
	CRF:          23,
	MaxWidth:     1280,
	AudioBitrate: "128k",
}

// Options expands the recipe into the fixed encode option set.
func (r Recipe) Options() []Option {
	return []Option{
		VideoCodec("libx264"),
		CRF(r.CRF),
		Preset("fast"),
		PixelFormat("yuv420p"),
		ScaleWidth(r.MaxWidth),
		AudioCodec("aac"),
		AudioBitrate(r.AudioBitrate),
	}
}
