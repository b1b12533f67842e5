// Package audiocache provides the content-addressed cache for rendered TTS
// audio. Keys are derived from the normalised text, language, and voice model,
// so identical synthesis inputs resolve to the same blob regardless of which
// request produced it.
package audiocache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// keyHashLen is the number of hex digits of the content hash kept in the key.
const keyHashLen = 16

// Entry is a cached audio blob with its media type.
type Entry struct {
	Audio     []byte
	MediaType string
}

// Store is the object-cache contract. Implementations must be safe for
// concurrent use. Put is last-writer-wins; since keys are content derived,
// concurrent writers store identical content.
type Store interface {
	// Get returns the entry for key and whether it was present.
	Get(ctx context.Context, key string) (Entry, bool, error)

	// Put stores the entry under key.
	Put(ctx context.Context, key string, e Entry) error
}

// Key derives the cache key for a synthesis input. The layout is
// {language}/{model}/{hash}.{ext} with the hash taken over
// "normalised_text|language|model".
func Key(text, language, model, ext string) string {
	sum := sha256.Sum256([]byte(Normalize(text) + "|" + language + "|" + model))
	h := hex.EncodeToString(sum[:])[:keyHashLen]

	var b strings.Builder
	b.WriteString(language)
	b.WriteByte('/')
	b.WriteString(safeModelName(model))
	b.WriteByte('/')
	b.WriteString(h)
	b.WriteByte('.')
	b.WriteString(ext)
	return b.String()
}

// Normalize canonicalises text for cache keying: trims surrounding whitespace
// and collapses internal runs to single spaces. Case is preserved; the vendor
// voices are case sensitive.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// safeModelName flattens a voice model name into a single path segment.
func safeModelName(model string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ' ':
			return '-'
		}
		return r
	}, model)
}
