package reference

import (
	"fmt"
	"strings"

	hashids "github.com/speps/go-hashids/v2"
)

// Generator produces the short merchant references that ride on STK pushes
// as AccountReference and on receipts. The encoding is reversible, so a
// reference seen on a bank statement maps back to its context and queued
// payment without a lookup table.
type Generator struct {
	h      *hashids.HashID
	prefix string
}

func NewGenerator(salt, prefix string) (*Generator, error) {
	data := hashids.NewData()
	data.Salt = salt
	data.MinLength = 6
	data.Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	h, err := hashids.NewWithData(data)
	if err != nil {
		return nil, fmt.Errorf("init reference generator: %w", err)
	}
	return &Generator{h: h, prefix: prefix}, nil
}

func (g *Generator) Encode(contextID, queuedPaymentID int64) (string, error) {
	code, err := g.h.EncodeInt64([]int64{contextID, queuedPaymentID})
	if err != nil {
		return "", fmt.Errorf("encode reference: %w", err)
	}
	return g.prefix + "-" + code, nil
}

func (g *Generator) Decode(ref string) (contextID, queuedPaymentID int64, err error) {
	code := strings.TrimPrefix(ref, g.prefix+"-")
	ids, err := g.h.DecodeInt64WithError(code)
	if err != nil {
		return 0, 0, fmt.Errorf("decode reference %q: %w", ref, err)
	}
	if len(ids) != 2 {
		return 0, 0, fmt.Errorf("decode reference %q: unexpected shape", ref)
	}
	return ids[0], ids[1], nil
}
