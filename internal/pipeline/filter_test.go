package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mahirjain10/image-optimizer/internal/types"
)

func TestEligible(t *testing.T) {
	tests := []struct {
		path        string
		contentType string
		want        bool
	}{
		{"original/cat.png", "image/png", true},
		{"cat.jpg", "image/jpeg", true},
		{"original/cat.PNG", "IMAGE/PNG", true},
		{"nested/optimized/cat.png", "image/png", true},
		{"optimized/cat.jpeg", "image/jpeg", false},
		{"/optimized/cat.jpeg", "image/jpeg", true},
		{"doc.pdf", "application/pdf", false},
		{"original/cat.png", "", false},
		{"original/imagefile", "imagex/png", false},
	}
	for _, tt := range tests {
		t.Run(tt.path+"|"+tt.contentType, func(t *testing.T) {
			ev := types.UploadEvent{Bucket: "b", Path: tt.path, ContentType: tt.contentType}
			assert.Equal(t, tt.want, Eligible(ev))
		})
	}
}

func TestDestinationPath(t *testing.T) {
	tests := map[string]string{
		"original/cat.png":        "optimized/cat.jpeg",
		"cat.png":                 "optimized/cat.jpeg",
		"a/b/c/holiday.photo.JPG": "optimized/holiday.photo.jpeg",
		"original/noext":          "optimized/noext.jpeg",
		"original/.png":           "optimized/.png.jpeg",
	}
	for source, want := range tests {
		t.Run(source, func(t *testing.T) {
			got := DestinationPath(source)
			assert.Equal(t, want, got)
			assert.Equal(t, got, DestinationPath(source))
			assert.True(t, IsDerivedPath(got), "published objects must be recognized as derived")
		})
	}
}

func TestOriginalName(t *testing.T) {
	assert.Equal(t, "cat.png", OriginalName("original/cat.png"))
	assert.Equal(t, "cat.png", OriginalName("cat.png"))
	assert.Equal(t, "dir", OriginalName("a/dir/"))
}

func TestIsDerivedPath(t *testing.T) {
	assert.True(t, IsDerivedPath("optimized/cat.jpeg"))
	assert.False(t, IsDerivedPath("/optimized/cat.jpeg"))
	assert.False(t, IsDerivedPath("original/optimized/cat.jpeg"))
	assert.False(t, IsDerivedPath("optimizedcat.jpeg"))
}
