package state

import (
	"math/rand/v2"
	"strings"
)

const (
	idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	idLength   = 7
)

// NewID returns "<prefix>-" followed by 7 random base-36 characters.
//
// 36^7 is about 78 billion, so two ids collide with probability ~1/78e9 and a
// document of 10k ids stays well under a one-in-a-thousand chance of any
// collision. No collision detection is performed; the generator is meant for
// a single user's board, not as a general unique-id service.
func NewID(prefix string) string {
	if prefix == "" {
		prefix = "item"
	}
	var b strings.Builder
	b.Grow(len(prefix) + 1 + idLength)
	b.WriteString(prefix)
	b.WriteByte('-')
	for range idLength {
		//nolint:gosec // ids are not security sensitive
		b.WriteByte(idAlphabet[rand.IntN(len(idAlphabet))])
	}
	return b.String()
}

var accentPalette = []string{
	"#2563eb",
	"#6366f1",
	"#f97316",
	"#10b981",
	"#a855f7",
	"#0ea5e9",
	"#dc2626",
	"#f59e0b",
	"#14b8a6",
	"#ec4899",
}

// RandomAccent picks a space accent color from the fixed palette.
func RandomAccent() string {
	//nolint:gosec // cosmetic choice
	return accentPalette[rand.IntN(len(accentPalette))]
}
