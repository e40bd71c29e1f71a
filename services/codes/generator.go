package codes

import (
	"context"
	"fmt"
	"math/rand"

	"Greenroom/services/store"
)

// Alphabet for room codes. Uppercase alphanumerics with the visually
// confusable characters removed (0/O, 1/I/L, 5/S, 8/B, 2/Z).
const charset = "ACDEFGHJKMNPQRTUVWXY34679"

const CodeLength = 6

// Generator mints room join codes and guarantees they are unique among
// currently-live rooms. Collisions are rare (25^6 ≈ 2.4e8 codes) but the
// check is still mandatory: a generated code races against concurrent
// room creation, so the store's unique index stays the final arbiter.
type Generator struct {
	store       store.RoomStore
	maxAttempts int
}

func NewGenerator(s store.RoomStore, maxAttempts int) *Generator {
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	return &Generator{store: s, maxAttempts: maxAttempts}
}

func randomCode() string {
	b := make([]byte, CodeLength)
	for i := range b {
		b[i] = charset[rand.Intn(len(charset))]
	}
	return string(b)
}

// Generate returns a code no live room currently holds. Exhausting the
// attempt budget means something is wrong with the backing store, not bad
// luck, so it fails instead of looping forever.
func (g *Generator) Generate(ctx context.Context) (string, error) {
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		code := randomCode()
		taken, err := g.store.CodeInUse(ctx, code)
		if err != nil {
			return "", fmt.Errorf("checking room code: %w", err)
		}
		if !taken {
			return code, nil
		}
	}
	return "", fmt.Errorf("no unique room code after %d attempts", g.maxAttempts)
}
