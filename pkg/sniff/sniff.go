// Package sniff classifies uploaded clips as needing normalization or
// already compatible with the canonical MP4 encoding.
//
// The heuristics are deliberately shallow: declared extension, declared
// MIME type, and (for the server-side gate) the leading container
// bytes. The classifier never deep-parses codec boxes; treating an
// incompatible file as compatible is recoverable by the server-side
// transcode fallback, while the reverse only costs extra client time.
package sniff

import (
	"bytes"
	"strings"

	"greenside.systems/swinglab/pkg/media"
)

// Verdict is the outcome of classifying one asset.
type Verdict int

const (
	// CompatibleContainer means the asset can be handed on as-is.
	CompatibleContainer Verdict = iota
	// LikelyIncompatible means the asset should be re-encoded first.
	LikelyIncompatible
	// Unknown is the optimistic branch for absent or contradictory
	// signals. Callers treat it like CompatibleContainer.
	Unknown
)

func (v Verdict) String() string {
	switch v {
	case CompatibleContainer:
		return "compatible"
	case LikelyIncompatible:
		return "likely-incompatible"
	default:
		return "unknown"
	}
}

// NeedsNormalization reports whether the verdict calls for a re-encode.
func (v Verdict) NeedsNormalization() bool {
	return v == LikelyIncompatible
}

// quickTimeExtensions are container extensions that commonly carry
// HEVC or other streams many decoders reject.
var quickTimeExtensions = map[string]struct{}{
	".mov": {},
	".qt":  {},
}

// Classify applies the decision table to the asset's declared name and
// MIME type. It always returns a verdict and never errors.
//
//  1. QuickTime-family extension -> LikelyIncompatible
//     (covers mobile captures mislabelled video/mp4: the .mov
//     extension wins over the declared MIME)
//  2. QuickTime-family MIME      -> LikelyIncompatible
//  3. anything else              -> CompatibleContainer
func Classify(asset media.Asset) Verdict {
	if _, ok := quickTimeExtensions[asset.Ext()]; ok {
		return LikelyIncompatible
	}
	if normalizeMIME(asset.MIME) == "video/quicktime" {
		return LikelyIncompatible
	}
	return CompatibleContainer
}

// normalizeMIME strips parameters such as "; codecs=..." and lowercases
// the media type.
func normalizeMIME(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	return mime
}

// ISO-BMFF major brands observed in ftyp boxes. Brands outside the
// standard set flag the file for the server-side transcode fallback.
var standardBrands = map[string]struct{}{
	"isom": {},
	"iso2": {},
	"iso4": {},
	"iso5": {},
	"iso6": {},
	"mp41": {},
	"mp42": {},
	"avc1": {},
	"dash": {},
	"m4v ": {},
}

// MajorBrand extracts the ftyp major brand from the leading bytes of an
// ISO-BMFF file, or "" when the prefix is not an ftyp box.
func MajorBrand(prefix []byte) string {
	// ftyp layout: 4-byte size, "ftyp", 4-byte major brand.
	if len(prefix) < 12 {
		return ""
	}
	if !bytes.Equal(prefix[4:8], []byte("ftyp")) {
		return ""
	}
	return string(prefix[8:12])
}

// NonStandardContainer reports whether the leading bytes identify an
// ISO-BMFF file whose major brand is outside the widely decodable set.
// QuickTime captures ("qt  ") and raw HEVC brands ("hvc1", "hev1")
// land here. Non-BMFF prefixes return false; the gate is a signature
// check, not a container parser.
func NonStandardContainer(prefix []byte) bool {
	brand := MajorBrand(prefix)
	if brand == "" {
		return false
	}
	_, ok := standardBrands[brand]
	return !ok
}
