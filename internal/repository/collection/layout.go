package collection

import (
	"path/filepath"

	"github.com/kailas-cloud/crossret/internal/domain/split"
)

// Collection directories under the output root.
const (
	TextDir  = "text-collection"
	ImageDir = "image-collection"
)

// TextPath is the text collection file of a split.
func TextPath(outDir string, sp split.Split) string {
	return filepath.Join(outDir, TextDir, sp.String()+".text.jsonl")
}

// ImagePath is the image caption collection file of a split.
func ImagePath(outDir string, sp split.Split) string {
	return filepath.Join(outDir, ImageDir, sp.String()+".image-caption.jsonl")
}

// SettingDir is the directory gathering the files of one index setting,
// e.g. text-collection.small.validation.
func SettingDir(outDir, base string, st split.Setting, sp split.Split) string {
	return filepath.Join(outDir, base+"."+string(st)+st.Postfix(sp))
}
