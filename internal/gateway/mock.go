package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// MockGateway simulates the payment processor for development and tests.
// Upstream balances are held in memory per currency and decremented by
// successful transfers.
type MockGateway struct {
	mu       sync.Mutex
	balances map[string]int64

	// Latency is slept before answering, to exercise bounded timeouts.
	Latency time.Duration
	// TransferErr, when set, fails every CreateTransfer with that error.
	TransferErr error
	// BalanceErr, when set, fails every GetAvailableBalance.
	BalanceErr error
}

// NewMockGateway creates a mock with no upstream funds.
func NewMockGateway() *MockGateway {
	return &MockGateway{balances: make(map[string]int64)}
}

// SetBalance sets the upstream balance for a currency, in minor units.
func (g *MockGateway) SetBalance(currency string, minorUnits int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.balances[currency] = minorUnits
}

func (g *MockGateway) GetAvailableBalance(ctx context.Context, currency string) (int64, error) {
	if err := g.sleep(ctx); err != nil {
		return 0, err
	}
	if g.BalanceErr != nil {
		return 0, g.BalanceErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.balances[currency], nil
}

func (g *MockGateway) CreateTransfer(ctx context.Context, amountMinorUnits int64, currency, destinationRef string) (string, error) {
	if err := g.sleep(ctx); err != nil {
		return "", err
	}
	if g.TransferErr != nil {
		return "", g.TransferErr
	}
	if destinationRef == "" {
		return "", &Error{Code: CodeInvalidDestination, Message: "empty destination reference"}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.balances[currency] < amountMinorUnits {
		return "", &Error{Code: CodeInsufficientFunds, Message: fmt.Sprintf("upstream balance %d below %d", g.balances[currency], amountMinorUnits)}
	}
	g.balances[currency] -= amountMinorUnits

	ref := fmt.Sprintf("MOCK-%s-%05d", time.Now().Format("20060102-150405"), rand.Intn(100000))
	return ref, nil
}

func (g *MockGateway) sleep(ctx context.Context) error {
	if g.Latency <= 0 {
		return nil
	}
	select {
	case <-time.After(g.Latency):
		return nil
	case <-ctx.Done():
		return fmt.Errorf("gateway call canceled: %w", ctx.Err())
	}
}
