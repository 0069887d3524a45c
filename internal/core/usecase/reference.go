package usecase

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	PrefixDeposit      = "DEP"
	PrefixWithdraw     = "WDR"
	PrefixSend         = "SND"
	PrefixExchange     = "EXC"
	PrefixGoal         = "GOL"
	PrefixVillageBank  = "VBC"
	PrefixCardPurchase = "CRD"
)

const referenceRandLen = 6

// ReferenceGenerator builds PREFIX-<unix millis>-<6 chars> reference numbers.
// The random part is the tail of a monotonic ULID, so two references issued
// by one generator in the same millisecond still differ.
type ReferenceGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

func NewReferenceGenerator() *ReferenceGenerator {
	return &ReferenceGenerator{
		entropy: ulid.Monotonic(rand.Reader, 1),
		now:     time.Now,
	}
}

func (g *ReferenceGenerator) Next(prefix string) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	t := g.now().UTC()
	id, err := ulid.New(ulid.Timestamp(t), g.entropy)
	if err != nil {
		// monotonic overflow within one millisecond; start a fresh sequence
		g.entropy = ulid.Monotonic(rand.Reader, 1)
		id = ulid.MustNew(ulid.Timestamp(t), g.entropy)
	}
	s := id.String()
	return fmt.Sprintf("%s-%d-%s", prefix, t.UnixMilli(), s[len(s)-referenceRandLen:])
}
