package fhe

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

var (
	contractA = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	contractB = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	contractC = common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
	userAddr  = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

func handle(b byte) common.Hash {
	var h common.Hash
	h[31] = b
	return h
}

type fakeBuilder struct {
	engine   *fakeEngine
	contract common.Address
	user     common.Address
	values   [][]byte
}

func (b *fakeBuilder) add(data []byte) EncryptedInputBuilder {
	b.values = append(b.values, data)
	return b
}

func (b *fakeBuilder) AddBool(v bool) EncryptedInputBuilder {
	if v {
		return b.add([]byte{1})
	}
	return b.add([]byte{0})
}
func (b *fakeBuilder) Add8(v uint8) EncryptedInputBuilder   { return b.add([]byte{v}) }
func (b *fakeBuilder) Add16(v uint16) EncryptedInputBuilder { return b.add(uint256.NewInt(uint64(v)).Bytes()) }
func (b *fakeBuilder) Add32(v uint32) EncryptedInputBuilder { return b.add(uint256.NewInt(uint64(v)).Bytes()) }
func (b *fakeBuilder) Add64(v uint64) EncryptedInputBuilder { return b.add(uint256.NewInt(v).Bytes()) }
func (b *fakeBuilder) Add128(v *uint256.Int) EncryptedInputBuilder { return b.add(v.Bytes()) }
func (b *fakeBuilder) Add256(v *uint256.Int) EncryptedInputBuilder { return b.add(v.Bytes()) }
func (b *fakeBuilder) AddAddress(v common.Address) EncryptedInputBuilder {
	return b.add(v.Bytes())
}

func (b *fakeBuilder) Encrypt(_ context.Context) (*EncryptResult, error) {
	if b.engine.encryptErr != nil {
		return nil, b.engine.encryptErr
	}
	b.engine.mu.Lock()
	b.engine.builds = append(b.engine.builds, b)
	b.engine.mu.Unlock()
	return &EncryptResult{Handles: b.values, InputProof: []byte("proof")}, nil
}

type fakeEngine struct {
	mu               sync.Mutex
	keypairs         atomic.Int64
	userDecryptCalls atomic.Int64
	lastUserDecrypt  UserDecryptRequest
	builds           []*fakeBuilder
	encryptErr       error
	userDecryptErr   error
}

func (e *fakeEngine) CreateEncryptedInput(contract, user common.Address) EncryptedInputBuilder {
	return &fakeBuilder{engine: e, contract: contract, user: user}
}

func (e *fakeEngine) GenerateKeypair() (string, string, error) {
	n := e.keypairs.Add(1)
	return fmt.Sprintf("pub-%d", n), fmt.Sprintf("priv-%d", n), nil
}

func (e *fakeEngine) UserDecrypt(_ context.Context, req UserDecryptRequest) (map[common.Hash]*big.Int, error) {
	e.userDecryptCalls.Add(1)
	e.mu.Lock()
	e.lastUserDecrypt = req
	e.mu.Unlock()
	if e.userDecryptErr != nil {
		return nil, e.userDecryptErr
	}

	values := make(map[common.Hash]*big.Int, len(req.Requests))
	for _, r := range req.Requests {
		values[r.Handle] = big.NewInt(int64(r.Handle[31]))
	}
	return values, nil
}

// publicFakeEngine adds the optional public decryption capability.
type publicFakeEngine struct {
	fakeEngine
	publicCalls atomic.Int64
}

func (e *publicFakeEngine) PublicDecrypt(_ context.Context, requests []DecryptRequest) (map[common.Hash]*big.Int, error) {
	e.publicCalls.Add(1)
	values := make(map[common.Hash]*big.Int, len(requests))
	for _, r := range requests {
		values[r.Handle] = big.NewInt(int64(r.Handle[31]))
	}
	return values, nil
}

type fakeSigner struct {
	addr      common.Address
	signCalls atomic.Int64
	signErr   error
	block     chan struct{}

	mu        sync.Mutex
	lastTyped apitypes.TypedData
}

func newFakeSigner() *fakeSigner {
	return &fakeSigner{addr: userAddr}
}

func (s *fakeSigner) Address() common.Address {
	return s.addr
}

func (s *fakeSigner) SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	n := s.signCalls.Add(1)
	if s.signErr != nil {
		return nil, s.signErr
	}
	s.mu.Lock()
	s.lastTyped = data
	s.mu.Unlock()
	return []byte(fmt.Sprintf("sig-%d", n)), nil
}

type fakeTransport struct{}

func (fakeTransport) Request(context.Context, string, ...any) (json.RawMessage, error) {
	return nil, nil
}

type testEnv struct {
	client  *Client
	engine  *fakeEngine
	signer  *fakeSigner
	creates *atomic.Int64
}

func newTestEnv(t *testing.T, mutate func(*ClientConfig)) *testEnv {
	t.Helper()

	engine := &fakeEngine{}
	signer := newFakeSigner()
	creates := &atomic.Int64{}

	cfg := ClientConfig{
		Network: NetworkVia(fakeTransport{}),
		ChainID: 31337,
		Signer:  signer,
		EngineFactory: func(ctx context.Context, _ EngineConfig) (Engine, error) {
			creates.Add(1)
			return engine, nil
		},
	}
	if mutate != nil {
		mutate(&cfg)
	}

	client, err := NewClient(cfg)
	require.NoError(t, err)
	return &testEnv{client: client, engine: engine, signer: signer, creates: creates}
}
