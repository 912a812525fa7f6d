package wasmenc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCommandBuild(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		output   string
		opts     []Option
		wantArgs []string
	}{
		{
			name:   "fixed normalization recipe",
			input:  "input.mov",
			output: "output.mp4",
			opts:   DefaultRecipe.Options(),
			wantArgs: []string{
				"-hide_banner", "-y",
				"-i", "input.mov",
				"-c:v", "libx264",
				"-crf", "23",
				"-preset", "fast",
				"-pix_fmt", "yuv420p",
				"-c:a", "aac",
				"-b:a", "128k",
				"-vf", "scale=1280:-2",
				"-movflags", "+faststart",
				"output.mp4",
			},
		},
		{
			name:   "faststart only for mp4 family",
			input:  "input.mp4",
			output: "output.webm",
			opts:   []Option{VideoCodec("libvpx-vp9")},
			wantArgs: []string{
				"-hide_banner", "-y",
				"-i", "input.mp4",
				"-c:v", "libvpx-vp9",
				"output.webm",
			},
		},
		{
			name:   "scale keeps even dimensions",
			input:  "in.mov",
			output: "out.mp4",
			opts:   []Option{ScaleWidth(720)},
			wantArgs: []string{
				"-hide_banner", "-y",
				"-i", "in.mov",
				"-vf", "scale=720:-2",
				"-movflags", "+faststart",
				"out.mp4",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewCommand(tt.input, tt.output, tt.opts...)
			require.Equal(t, tt.wantArgs, cmd.Build())
		})
	}
}

func TestRecipeIsFixed(t *testing.T) {
	// Same recipe, same args, for any input extension. The recipe is a
	// product constant, not a per-file adaptive choice.
	a := NewCommand("a.mov", "output.mp4", DefaultRecipe.Options()...).Build()
	b := NewCommand("a.mov", "output.mp4", DefaultRecipe.Options()...).Build()
	require.Equal(t, a, b)
}
