package ecoguard

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/bep/imagemeta"
)

// CaptureMetadata holds the EXIF/XMP fields describing how a photo was taken
// and last saved.
type CaptureMetadata struct {
	Make             string `json:"make,omitempty"`
	Model            string `json:"model,omitempty"`
	Software         string `json:"software,omitempty"`
	DateTimeOriginal string `json:"dateTimeOriginal,omitempty"`
	CreatorTool      string `json:"creatorTool,omitempty"` // xmp:CreatorTool
}

// editingSoftwareKeywords are substrings (lower-case) of tools that re-save or
// composite photos.
var editingSoftwareKeywords = []string{
	"photoshop",
	"lightroom",
	"gimp",
	"snapseed",
	"picsart",
	"canva",
	"affinity photo",
	"pixelmator",
	"paint.net",
	"facetune",
}

// EditedBySoftware returns the editing tool recorded in meta, or "" when the
// photo shows no sign of having been re-saved by an editor.
func EditedBySoftware(meta *CaptureMetadata) string {
	if meta == nil {
		return ""
	}
	for _, f := range []string{meta.Software, meta.CreatorTool} {
		if f == "" {
			continue
		}
		lower := strings.ToLower(f)
		for _, kw := range editingSoftwareKeywords {
			if strings.Contains(lower, kw) {
				return f
			}
		}
	}
	return ""
}

// wantedTags maps (source, tag-name) → true for every tag we care about.
var wantedTags = map[imagemeta.Source]map[string]bool{
	imagemeta.EXIF: {
		"Make":             true,
		"Model":            true,
		"Software":         true,
		"DateTimeOriginal": true,
	},
	imagemeta.XMP: {
		"CreatorTool": true,
	},
}

// ExtractCaptureMetadata parses EXIF/XMP capture fields from raw image bytes.
// Returns nil if the data is empty, carries none of the fields, or cannot be
// parsed. Graceful degradation: never returns an error.
func ExtractCaptureMetadata(data []byte) *CaptureMetadata {
	if len(data) == 0 {
		return nil
	}

	meta := &CaptureMetadata{}
	found := false

	_, err := imagemeta.Decode(imagemeta.Options{
		R:       bytes.NewReader(data),
		Sources: imagemeta.EXIF | imagemeta.XMP,
		ShouldHandleTag: func(ti imagemeta.TagInfo) bool {
			if tags, ok := wantedTags[ti.Source]; ok {
				return tags[ti.Tag]
			}
			return false
		},
		HandleTag: func(ti imagemeta.TagInfo) error {
			if s := tagValueString(ti.Value); s != "" {
				setCaptureField(meta, ti.Tag, s)
				found = true
			}
			return nil
		},
	})

	if err != nil || !found {
		return nil
	}
	return meta
}

func setCaptureField(meta *CaptureMetadata, tag, value string) {
	switch tag {
	case "Make":
		meta.Make = value
	case "Model":
		meta.Model = value
	case "Software":
		meta.Software = value
	case "DateTimeOriginal":
		meta.DateTimeOriginal = value
	case "CreatorTool":
		meta.CreatorTool = value
	}
}

// tagValueString extracts a string from a tag value.
// XMP values may be string or []string (from altList/seqList); EXIF dates
// may arrive as time values.
func tagValueString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case []string:
		if len(val) > 0 {
			return strings.TrimSpace(val[0])
		}
		return ""
	case []any:
		if len(val) > 0 {
			if s, ok := val[0].(string); ok {
				return strings.TrimSpace(s)
			}
		}
		return ""
	case fmt.Stringer:
		return val.String()
	default:
		return ""
	}
}
