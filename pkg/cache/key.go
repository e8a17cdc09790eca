// Package cache derives the keys under which decision results are memoized.
package cache

import (
	"crypto/sha256"
	"fmt"
	"strconv"
	"strings"

	"github.com/agroguard/agroguard/pkg/models"
)

// Key builds the cache key of a normalized request. Every answer-affecting
// field contributes, including the target language. Values are lower-cased
// and whitespace-folded so formatting differences do not split the cache.
func Key(req models.Request, schema models.Schema) string {
	var b strings.Builder
	b.WriteString(string(req.UseCase()))
	b.WriteByte('|')
	b.WriteString(schema.Version)
	for _, f := range req.Fields() {
		writePair(&b, f.Name, f.Value)
	}
	writePair(&b, "language", req.Lang())
	return b.String()
}

// writePair folds case and inner whitespace of every value, free text such as
// a chat message included. The prompt still carries the original text.
func writePair(b *strings.Builder, name, value string) {
	b.WriteByte('|')
	b.WriteString(name)
	b.WriteByte('=')
	b.WriteString(strconv.Quote(strings.ToLower(strings.Join(strings.Fields(value), " "))))
}

// Hash computes a SHA-256 digest of a key, safe to log and store.
func Hash(key string) string {
	h := sha256.New()
	h.Write([]byte(key))
	return fmt.Sprintf("%x", h.Sum(nil))
}
