package index

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kailas-cloud/crossret/internal/domain/split"
)

// Dir is the directory of lexical index handles under the output root.
const Dir = "indexes"

// Modalities of lexical indexes.
const (
	ModalityText  = "text"
	ModalityImage = "image"
)

// LexicalName is the engine index name of a setting, e.g.
// atomic.text.flat.small.validation.
func LexicalName(modality string, st split.Setting, sp split.Split) string {
	return fmt.Sprintf("atomic.%s.flat.%s%s", modality, st, st.Postfix(sp))
}

// LexicalHandleDir is the handle directory of a lexical index:
// <out>/indexes/<backend>-index.<name>.
func LexicalHandleDir(outDir, backend, name string) string {
	return filepath.Join(outDir, Dir, backend+"-index."+name)
}

// DenseHandleDir is the handle directory of a dense index: <index>.<backend>.<type>.
func DenseHandleDir(index, backend, typ string) string {
	return fmt.Sprintf("%s.%s.%s", index, backend, typ)
}

// EngineName derives an engine-safe index name from a handle path: the base
// name with characters outside [a-zA-Z0-9_:.-] replaced by '_'.
func EngineName(path string) string {
	base := filepath.Base(filepath.Clean(path))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '_' || r == ':' || r == '.' || r == '-':
			return r
		default:
			return '_'
		}
	}, base)
}
