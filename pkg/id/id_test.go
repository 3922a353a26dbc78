package id

import (
	"math/rand"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fixedGenerator() *Generator {
	return &Generator{
		Now:  func() time.Time { return time.Date(2026, 9, 1, 12, 30, 45, 0, time.UTC) },
		Rand: rand.New(rand.NewSource(1)),
	}
}

func TestOrderNumber(t *testing.T) {
	g := fixedGenerator()
	number := g.OrderNumber()

	assert.Regexp(t, regexp.MustCompile(`^ORD-20260901-[A-Z0-9]{8}$`), number)
	assert.NotEqual(t, number, g.OrderNumber(), "consecutive numbers differ")
}

func TestPaymentReference(t *testing.T) {
	g := fixedGenerator()
	ref := g.PaymentReference("ORD-20260901-AAAA1111")

	assert.Regexp(t, regexp.MustCompile(`^GRV-ORD-20260901-AAAA1111-[A-Z0-9]{6}$`), ref)
}

func TestWalletReference(t *testing.T) {
	g := fixedGenerator()

	assert.Regexp(t, regexp.MustCompile(`^WDP-20260901123045-[A-Z0-9]{8}$`), g.WalletReference("WDP"))
	assert.Regexp(t, regexp.MustCompile(`^WWD-20260901123045-[A-Z0-9]{8}$`), g.WalletReference("WWD"))
}

func TestReferralCode(t *testing.T) {
	g := fixedGenerator()
	code := g.ReferralCode()

	assert.Regexp(t, regexp.MustCompile(`^[A-Z0-9]{8}$`), code)
}

func TestIsValidUUID(t *testing.T) {
	_, err := IsValidUUID(Generate())
	assert.NoError(t, err)

	_, err = IsValidUUID("not-a-uuid")
	assert.Error(t, err)
}
