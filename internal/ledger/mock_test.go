package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mtvlabs/marketledger/internal/domain"
)

// eth scales a whole-number amount to the 18-decimal smallest unit.
func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

// milliEth scales a fractional amount expressed in thousandths.
func milliEth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(15), nil))
}

func addr(b byte) common.Address {
	var a common.Address
	a[19] = b
	return a
}

type custodyMove struct {
	from, to common.Address
	tokenID  *big.Int
	quantity uint64
}

type payment struct {
	to     common.Address
	amount *big.Int
}

// mockRegistry is an in-memory asset registry with an optional ERC-2981
// style royalty capability.
type mockRegistry struct {
	mu       sync.Mutex
	balances map[common.Address]map[string]uint64

	royaltySupported bool
	royaltyRecipient common.Address
	royaltyBps       int64

	custodyErr error
	moves      []custodyMove
	creator    common.Address
}

func newMockRegistry() *mockRegistry {
	return &mockRegistry{balances: make(map[common.Address]map[string]uint64)}
}

func (m *mockRegistry) mint(holder common.Address, tokenID *big.Int, quantity uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balances[holder] == nil {
		m.balances[holder] = make(map[string]uint64)
	}
	m.balances[holder][tokenID.String()] += quantity
}

func (m *mockRegistry) BalanceOf(_ context.Context, holder common.Address, tokenID *big.Int) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return new(big.Int).SetUint64(m.balances[holder][tokenID.String()]), nil
}

func (m *mockRegistry) CustodyTransfer(_ context.Context, from, to common.Address, tokenID *big.Int, quantity uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.custodyErr != nil {
		return m.custodyErr
	}
	key := tokenID.String()
	if m.balances[from][key] < quantity {
		return fmt.Errorf("mock registry: %s holds %d of %s", from.Hex(), m.balances[from][key], key)
	}
	m.balances[from][key] -= quantity
	if m.balances[to] == nil {
		m.balances[to] = make(map[string]uint64)
	}
	m.balances[to][key] += quantity
	m.moves = append(m.moves, custodyMove{from: from, to: to, tokenID: new(big.Int).Set(tokenID), quantity: quantity})
	return nil
}

func (m *mockRegistry) RoyaltyInfo(_ context.Context, _ *big.Int, salePrice *big.Int) (common.Address, *big.Int, bool, error) {
	if !m.royaltySupported {
		return common.Address{}, nil, false, nil
	}
	amount := new(big.Int).Mul(salePrice, big.NewInt(m.royaltyBps))
	amount.Div(amount, big.NewInt(domain.BpsDenominator))
	return m.royaltyRecipient, amount, true, nil
}

func (m *mockRegistry) Creator(_ context.Context, _ *big.Int) (common.Address, error) {
	return m.creator, nil
}

type mockResolver struct {
	registries map[common.Address]*mockRegistry
}

func (m *mockResolver) Registry(ref common.Address) (domain.AssetRegistry, error) {
	reg, ok := m.registries[ref]
	if !ok {
		return nil, fmt.Errorf("mock resolver: unknown registry %s", ref.Hex())
	}
	return reg, nil
}

// mockCurrency is an in-memory ERC-20 ledger. The market ledger's own
// principal must be passed as self so Transfer spends from it.
type mockCurrency struct {
	mu       sync.Mutex
	self     common.Address
	balances map[common.Address]*big.Int

	transferErr     error
	transferFromErr error
	payments        []payment
}

func newMockCurrency(self common.Address) *mockCurrency {
	return &mockCurrency{self: self, balances: make(map[common.Address]*big.Int)}
}

func (m *mockCurrency) fund(holder common.Address, amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balances[holder] == nil {
		m.balances[holder] = new(big.Int)
	}
	m.balances[holder].Add(m.balances[holder], amount)
}

func (m *mockCurrency) balanceOf(holder common.Address) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balances[holder] == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(m.balances[holder])
}

func (m *mockCurrency) BalanceOf(_ context.Context, holder common.Address) (*big.Int, error) {
	return m.balanceOf(holder), nil
}

func (m *mockCurrency) move(from, to common.Address, amount *big.Int) error {
	if m.balances[from] == nil || m.balances[from].Cmp(amount) < 0 {
		return fmt.Errorf("mock currency: %s underfunded", from.Hex())
	}
	m.balances[from].Sub(m.balances[from], amount)
	if m.balances[to] == nil {
		m.balances[to] = new(big.Int)
	}
	m.balances[to].Add(m.balances[to], amount)
	return nil
}

func (m *mockCurrency) Transfer(_ context.Context, to common.Address, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.transferErr != nil {
		return m.transferErr
	}
	if err := m.move(m.self, to, amount); err != nil {
		return err
	}
	m.payments = append(m.payments, payment{to: to, amount: new(big.Int).Set(amount)})
	return nil
}

func (m *mockCurrency) TransferFrom(_ context.Context, from, to common.Address, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.transferFromErr != nil {
		return m.transferFromErr
	}
	return m.move(from, to, amount)
}

// mockTreasury records outbound native payments.
type mockTreasury struct {
	mu       sync.Mutex
	payErr   error
	payments []payment
}

func (m *mockTreasury) Pay(_ context.Context, to common.Address, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.payErr != nil {
		return m.payErr
	}
	m.payments = append(m.payments, payment{to: to, amount: new(big.Int).Set(amount)})
	return nil
}

// paidTo sums every recorded payment to one recipient.
func (m *mockTreasury) paidTo(to common.Address) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := new(big.Int)
	for _, p := range m.payments {
		if p.to == to {
			sum.Add(sum, p.amount)
		}
	}
	return sum
}

// fakeItemStore and fakeConfigStore are in-memory persistence fakes used by
// the restore tests.
type fakeItemStore struct {
	mu    sync.Mutex
	items map[uint64]domain.MarketItem
}

func newFakeItemStore() *fakeItemStore {
	return &fakeItemStore{items: make(map[uint64]domain.MarketItem)}
}

func (s *fakeItemStore) Upsert(_ context.Context, item domain.MarketItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ItemID] = item.Clone()
	return nil
}

func (s *fakeItemStore) Get(_ context.Context, itemID uint64) (domain.MarketItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[itemID]
	if !ok {
		return domain.MarketItem{}, domain.ErrItemNotFound
	}
	return it.Clone(), nil
}

func (s *fakeItemStore) List(_ context.Context) ([]domain.MarketItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.MarketItem, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, it.Clone())
	}
	return out, nil
}

func (s *fakeItemStore) CurrentID(_ context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var max uint64
	for id := range s.items {
		if id > max {
			max = id
		}
	}
	return max, nil
}

type fakeConfigStore struct {
	mu        sync.Mutex
	fees      *domain.FeeConfig
	whitelist []common.Address
	native    *big.Int
	token     *big.Int
}

func (s *fakeConfigStore) SaveFees(_ context.Context, cfg domain.FeeConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := cfg.Clone()
	s.fees = &c
	return nil
}

func (s *fakeConfigStore) LoadFees(_ context.Context) (domain.FeeConfig, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fees == nil {
		return domain.FeeConfig{}, false, nil
	}
	return s.fees.Clone(), true, nil
}

func (s *fakeConfigStore) SaveWhitelist(_ context.Context, refs []common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.whitelist = append([]common.Address(nil), refs...)
	return nil
}

func (s *fakeConfigStore) LoadWhitelist(_ context.Context) ([]common.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]common.Address(nil), s.whitelist...), nil
}

func (s *fakeConfigStore) SaveBalances(_ context.Context, native, token *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.native = new(big.Int).Set(native)
	s.token = new(big.Int).Set(token)
	return nil
}

func (s *fakeConfigStore) LoadBalances(_ context.Context) (*big.Int, *big.Int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.native == nil {
		return nil, nil, false, nil
	}
	return new(big.Int).Set(s.native), new(big.Int).Set(s.token), true, nil
}

type fakeEventStore struct {
	mu     sync.Mutex
	events []domain.Event
}

func (s *fakeEventStore) Append(_ context.Context, ev domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *fakeEventStore) ListSince(_ context.Context, since time.Time, limit int) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Event, 0, len(s.events))
	for _, ev := range s.events {
		if !ev.At.Before(since) {
			out = append(out, ev)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// fixture wires a ledger with mocks, one whitelisted registry, and default
// fees matching the production deployment: deposit 100 units at 1e18 scale,
// service fee 250 bps.
type fixture struct {
	ledger   *Ledger
	registry *mockRegistry
	resolver *mockResolver
	currency *mockCurrency
	treasury *mockTreasury

	self        common.Address
	admin       common.Address
	seller      common.Address
	buyer       common.Address
	creator     common.Address
	registryRef common.Address
}

func newFixture() *fixture {
	f := &fixture{
		self:        addr(0xEE),
		admin:       addr(0x01),
		seller:      addr(0x02),
		buyer:       addr(0x03),
		creator:     addr(0x04),
		registryRef: addr(0xA1),
	}
	f.registry = newMockRegistry()
	f.resolver = &mockResolver{registries: map[common.Address]*mockRegistry{f.registryRef: f.registry}}
	f.currency = newMockCurrency(f.self)
	f.treasury = &mockTreasury{}

	f.ledger = New(
		Collaborators{
			Assets:   f.resolver,
			Currency: f.currency,
			Treasury: f.treasury,
			Roles:    NewStaticRoles([]common.Address{f.admin}),
			Self:     f.self,
		},
		Persistence{},
		domain.FeeConfig{DepositFee: eth(100), ServiceFeeBps: 250},
		nil,
	)

	if err := f.ledger.WhitelistRegistries(context.Background(), []common.Address{f.registryRef}, f.admin); err != nil {
		panic(err)
	}
	return f
}
