package wallet

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"nftcred/internal/domain"
	"nftcred/internal/ethereum"
	"nftcred/internal/loan"
)

// ErrNotConnected is returned when a session operation runs before
// Connect or after Disconnect.
var ErrNotConnected = errors.New("wallet not connected")

// Session is the explicit connection state of one wallet. Balance is a
// cached reading, refreshed on demand and after every completed borrow;
// nothing else about the wallet is held implicitly.
type Session struct {
	erc20        *ethereum.ERC20
	usdcContract string

	mu        sync.RWMutex
	address   string
	connected bool
	balance   decimal.Decimal
}

// NewSession creates a disconnected session.
func NewSession(client ethereum.RPCClient, usdcContract string) *Session {
	return &Session{
		erc20:        ethereum.NewERC20(client),
		usdcContract: domain.NormalizeAddress(usdcContract),
	}
}

// Connect binds the session to an address and loads its balance.
func (s *Session) Connect(ctx context.Context, address string) error {
	address = domain.NormalizeAddress(address)

	balance, err := s.readBalance(ctx, address)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.address = address
	s.connected = true
	s.balance = balance
	s.mu.Unlock()
	return nil
}

// Disconnect clears the session.
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.address = ""
	s.connected = false
	s.balance = decimal.Zero
	s.mu.Unlock()
}

// Address returns the connected address, empty when disconnected.
func (s *Session) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.address
}

// Connected reports whether the session is bound to an address.
func (s *Session) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Balance returns the cached stablecoin balance.
func (s *Session) Balance() (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected {
		return decimal.Zero, ErrNotConnected
	}
	return s.balance, nil
}

// BalanceOf reads the stablecoin balance of an arbitrary address. It
// is a plain chain read and never touches the session binding, so it is
// safe to call concurrently with Connect.
func (s *Session) BalanceOf(ctx context.Context, address string) (decimal.Decimal, error) {
	return s.readBalance(ctx, domain.NormalizeAddress(address))
}

// RefreshBalance re-reads the stablecoin balance from chain.
func (s *Session) RefreshBalance(ctx context.Context) (decimal.Decimal, error) {
	s.mu.RLock()
	address := s.address
	connected := s.connected
	s.mu.RUnlock()

	if !connected {
		return decimal.Zero, ErrNotConnected
	}

	balance, err := s.readBalance(ctx, address)
	if err != nil {
		return decimal.Zero, err
	}

	s.mu.Lock()
	// Session may have been rebound while the read was in flight
	if s.connected && s.address == address {
		s.balance = balance
	}
	s.mu.Unlock()
	return balance, nil
}

func (s *Session) readBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	units, err := s.erc20.BalanceOf(ctx, s.usdcContract, address)
	if err != nil {
		return decimal.Zero, err
	}
	return loan.FromUnits(units, loan.USDCDecimals), nil
}
