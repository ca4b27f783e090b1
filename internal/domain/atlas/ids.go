package atlas

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	idSuffixLen   = 13
	idAlphabet    = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	maxIDAttempts = 64
)

// ExistsFunc reports whether any node in the graph already carries id.
type ExistsFunc func(ctx context.Context, id string) (bool, error)

// IDGenerator mints type-prefixed ids such as tsk_4a2bC9dE0fGhI.
type IDGenerator struct {
	reg    *Registry
	exists ExistsFunc
	suffix func(n int) (string, error)
}

func NewIDGenerator(reg *Registry, exists ExistsFunc) *IDGenerator {
	return &IDGenerator{reg: reg, exists: exists, suffix: randomString}
}

// Generate returns an id for label that no node currently uses. It keeps
// drawing suffixes until the existence check comes back negative.
func (g *IDGenerator) Generate(ctx context.Context, label string) (string, error) {
	t, err := g.reg.Type(label)
	if err != nil {
		return "", err
	}
	if t.Prefix == "" {
		return "", &UnknownEntityTypeError{Label: label, Reason: "no id prefix registered"}
	}
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		suffix, err := g.suffix(idSuffixLen)
		if err != nil {
			return "", fmt.Errorf("generate id suffix: %w", err)
		}
		id := t.Prefix + "_" + suffix
		if g.exists == nil {
			return id, nil
		}
		taken, err := g.exists(ctx, id)
		if err != nil {
			return "", fmt.Errorf("check id %s: %w", id, err)
		}
		if !taken {
			return id, nil
		}
	}
	return "", fmt.Errorf("generate id for %s: %d consecutive collisions", label, maxIDAttempts)
}

func randomString(n int) (string, error) {
	limit := big.NewInt(int64(len(idAlphabet)))
	buf := make([]byte, n)
	for i := range buf {
		v, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		buf[i] = idAlphabet[v.Int64()]
	}
	return string(buf), nil
}
