package pipeline

import (
	"path"
	"strings"

	"github.com/mahirjain10/image-optimizer/internal/transformation"
	"github.com/mahirjain10/image-optimizer/internal/types"
)

// DestinationRoot is the key prefix every derived object is published under.
const DestinationRoot = "optimized/"

const imageFamily = "image/"

// Eligible decides whether ev enters the pipeline. It has no side effects.
func Eligible(ev types.UploadEvent) bool {
	if !strings.HasPrefix(strings.ToLower(ev.ContentType), imageFamily) {
		return false
	}
	// Our own output lands under DestinationRoot; reacting to it would loop.
	return !IsDerivedPath(ev.Path)
}

// IsDerivedPath reports whether key is one the pipeline publishes to. Keys are
// compared verbatim; "/optimized/x" is a different S3 key.
func IsDerivedPath(key string) bool {
	return strings.HasPrefix(key, DestinationRoot)
}

// DestinationPath maps a source key to its derived key. It depends on the source
// key alone, so reprocessing the same source overwrites rather than duplicates.
//
//	original/cat.png -> optimized/cat.jpeg
func DestinationPath(source string) string {
	base := OriginalName(source)
	stem := strings.TrimSuffix(base, path.Ext(base))
	if stem == "" {
		stem = base
	}
	return DestinationRoot + stem + transformation.Extension
}

// OriginalName is the source's base file name, recorded on the derived object.
func OriginalName(source string) string {
	return path.Base(strings.TrimRight(source, "/"))
}
