package sniff

import (
	"testing"

	"github.com/stretchr/testify/require"
	"greenside.systems/swinglab/pkg/media"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		mime    string
		verdict Verdict
	}{
		{"mov extension", "swing.mov", "video/mp4", LikelyIncompatible},
		{"qt extension", "clip.QT", "video/mp4", LikelyIncompatible},
		{"quicktime mime", "swing.bin", "video/quicktime", LikelyIncompatible},
		{"quicktime mime with params", "swing.bin", "video/quicktime; codecs=hvc1", LikelyIncompatible},
		{"mislabelled mobile capture", "IMG_0042.MOV", "video/mp4", LikelyIncompatible},
		{"standard mp4", "swing.mp4", "video/mp4", CompatibleContainer},
		{"webm", "swing.webm", "video/webm", CompatibleContainer},
		{"no signals", "swing", "", CompatibleContainer},
		{"contradictory signals default optimistic", "swing.mp4", "application/octet-stream", CompatibleContainer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			asset := media.NewAsset(tt.file, tt.mime, nil)
			require.Equal(t, tt.verdict, Classify(asset))
		})
	}
}

func TestClassifyNeverCaches(t *testing.T) {
	a := media.NewAsset("a.mov", "video/quicktime", nil)
	b := media.NewAsset("b.mp4", "video/mp4", nil)
	require.Equal(t, LikelyIncompatible, Classify(a))
	require.Equal(t, CompatibleContainer, Classify(b))
	require.Equal(t, LikelyIncompatible, Classify(a))
}

func ftypPrefix(brand string) []byte {
	p := []byte{0, 0, 0, 0x18}
	p = append(p, []byte("ftyp")...)
	p = append(p, []byte(brand)...)
	p = append(p, make([]byte, 8)...)
	return p
}

func TestMajorBrand(t *testing.T) {
	require.Equal(t, "qt  ", MajorBrand(ftypPrefix("qt  ")))
	require.Equal(t, "isom", MajorBrand(ftypPrefix("isom")))
	require.Equal(t, "", MajorBrand([]byte("not a container")))
	require.Equal(t, "", MajorBrand(nil))
}

func TestNonStandardContainer(t *testing.T) {
	require.True(t, NonStandardContainer(ftypPrefix("qt  ")))
	require.True(t, NonStandardContainer(ftypPrefix("hvc1")))
	require.True(t, NonStandardContainer(ftypPrefix("hev1")))
	require.False(t, NonStandardContainer(ftypPrefix("isom")))
	require.False(t, NonStandardContainer(ftypPrefix("avc1")))
	// Non-BMFF data is not the gate's problem.
	require.False(t, NonStandardContainer([]byte{0x1a, 0x45, 0xdf, 0xa3, 1, 2, 3, 4, 5, 6, 7, 8}))

	// Whole downloaded payloads work too; only the header is read.
	full := append(ftypPrefix("qt  "), make([]byte, 4096)...)
	require.True(t, NonStandardContainer(full))
	require.False(t, NonStandardContainer(append(ftypPrefix("isom"), make([]byte, 4096)...)))
}
