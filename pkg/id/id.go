package id

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
)

const refAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Generator produces order numbers and payment references. The clock and
// random source are injected so tests can produce deterministic values.
type Generator struct {
	Now  func() time.Time
	Rand *rand.Rand
}

func NewGenerator() *Generator {
	return &Generator{
		Now:  time.Now,
		Rand: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func Generate() string {
	return uuid.New().String()
}

func IsValidUUID(id string) (uuid.UUID, error) {
	return uuid.Parse(id)
}

// OrderNumber returns a human-shareable order number, e.g. ORD-20260901-K4T9KX2A.
func (g *Generator) OrderNumber() string {
	return fmt.Sprintf("ORD-%s-%s", g.Now().UTC().Format("20060102"), g.randomToken(8))
}

// PaymentReference returns the gateway correlation reference for an order payment.
func (g *Generator) PaymentReference(orderNumber string) string {
	return fmt.Sprintf("GRV-%s-%s", orderNumber, g.randomToken(6))
}

// WalletReference returns a reference for a standalone wallet payment.
// Deposits use prefix WDP, withdrawals WWD.
func (g *Generator) WalletReference(prefix string) string {
	return fmt.Sprintf("%s-%s-%s", prefix, g.Now().UTC().Format("20060102150405"), g.randomToken(8))
}

// ReferralCode returns a short shareable invite code.
func (g *Generator) ReferralCode() string {
	return g.randomToken(8)
}

func (g *Generator) randomToken(n int) string {
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(refAlphabet[g.Rand.Intn(len(refAlphabet))])
	}
	return b.String()
}
