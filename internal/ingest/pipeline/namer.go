package pipeline

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Namer derives collision-resistant storage keys for accepted files.
// Keys combine a millisecond timestamp with a random token, so concurrent
// uploads need no coordination and no server round-trip to stay unique.
// The original filename never flows into the key: filenames are
// user-controlled and may collide or carry unsafe characters. Only the
// extension is carried through, and even that is advisory: the pipeline
// rewrites it to the transcoder's canonical extension before storage.
type Namer struct {
	now   func() time.Time
	token func() string
}

// NewNamer creates a namer backed by the wall clock and random tokens.
func NewNamer() *Namer {
	return &Namer{
		now:   time.Now,
		token: func() string { return uuid.New().String()[:8] },
	}
}

// NewNamerWith creates a namer with injected clock and token source.
func NewNamerWith(now func() time.Time, token func() string) *Namer {
	return &Namer{now: now, token: token}
}

// DeriveKey returns a storage key of the form "<unix-millis>-<token><ext>".
func (n *Namer) DeriveKey(originalName string) string {
	return fmt.Sprintf("%d-%s%s", n.now().UnixMilli(), n.token(), safeExt(originalName))
}

// safeExt extracts a normalized extension from a user-supplied filename.
// Anything that isn't a plain alphanumeric extension is dropped.
func safeExt(name string) string {
	ext := strings.ToLower(path.Ext(path.Base(name)))
	if len(ext) < 2 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}

// ReplaceExt rewrites the key's extension, appending when the key has none.
// The stored key's final extension always matches the transcoder's output
// format, regardless of what the namer guessed from the original name.
func ReplaceExt(key, newExt string) string {
	ext := path.Ext(key)
	return strings.TrimSuffix(key, ext) + newExt
}
