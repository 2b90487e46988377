package fhe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/fhe/worker"
)

func TestEncryptValueValidate(t *testing.T) {
	tests := []struct {
		name    string
		value   EncryptValue
		wantErr bool
	}{
		{name: "bool", value: Bool(true)},
		{name: "uint8 max", value: Uint8(255)},
		{name: "uint64", value: Uint64(1 << 40)},
		{name: "address", value: AddressValue(contractA)},
		{name: "uint256 max", value: Uint256(new(uint256.Int).Not(uint256.NewInt(0)))},
		{name: "nil uint", value: EncryptValue{Type: ValueTypeUint32}, wantErr: true},
		{
			name:    "overflows 8 bits",
			value:   EncryptValue{Type: ValueTypeUint8, Uint: uint256.NewInt(300)},
			wantErr: true,
		},
		{
			name:    "overflows 128 bits",
			value:   EncryptValue{Type: ValueTypeUint128, Uint: new(uint256.Int).Lsh(uint256.NewInt(1), 128)},
			wantErr: true,
		},
		{name: "unknown type", value: EncryptValue{Type: ValueType(99)}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.value.validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestEncryptValidatesRequest(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.client.Encrypt(ctx, EncryptRequest{
		UserAddress: userAddr,
		Values:      []EncryptValue{Bool(true)},
	})
	require.True(t, IsKind(err, KindConfig))

	_, err = env.client.Encrypt(ctx, EncryptRequest{
		ContractAddress: contractA,
		UserAddress:     userAddr,
	})
	require.True(t, IsKind(err, KindConfig))

	// Validation failures are synchronous; no instance is created for them.
	require.Equal(t, int64(0), env.creates.Load())
}

func TestEncryptViaBuilder(t *testing.T) {
	env := newTestEnv(t, nil)

	result, err := env.client.Encrypt(context.Background(), EncryptRequest{
		ContractAddress: contractA,
		UserAddress:     userAddr,
		Values: []EncryptValue{
			Bool(true),
			Uint8(7),
			Uint64(1_000_000),
			AddressValue(contractB),
		},
	})
	require.NoError(t, err)
	require.Len(t, result.Handles, 4)
	require.Equal(t, []byte("proof"), result.InputProof)

	require.Len(t, env.engine.builds, 1)
	build := env.engine.builds[0]
	require.Equal(t, contractA, build.contract)
	require.Equal(t, userAddr, build.user)
	require.Equal(t, []byte{1}, build.values[0])
	require.Equal(t, []byte{7}, build.values[1])
	require.Equal(t, contractB.Bytes(), build.values[3])
}

func TestEncryptClassifiesEngineFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.engine.encryptErr = errors.New("proving key missing")

	_, err := env.client.Encrypt(context.Background(), EncryptRequest{
		ContractAddress: contractA,
		UserAddress:     userAddr,
		Values:          []EncryptValue{Bool(true)},
	})
	require.True(t, IsKind(err, KindEncryption))
	require.ErrorIs(t, err, env.engine.encryptErr)
}

func TestBatchEncryptPreservesOrder(t *testing.T) {
	env := newTestEnv(t, nil)

	reqs := make([]EncryptRequest, 5)
	for i := range reqs {
		reqs[i] = EncryptRequest{
			ContractAddress: contractA,
			UserAddress:     userAddr,
			Values:          []EncryptValue{Uint8(uint8(i + 1))},
		}
	}

	results, err := env.client.BatchEncrypt(context.Background(), reqs)
	require.NoError(t, err)
	require.Len(t, results, 5)
	for i, result := range results {
		require.Equal(t, [][]byte{{byte(i + 1)}}, result.Handles)
	}
	require.Equal(t, int64(1), env.creates.Load())
}

func TestBatchEncryptRejectsInvalidRequestUpfront(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.client.BatchEncrypt(context.Background(), []EncryptRequest{
		{ContractAddress: contractA, UserAddress: userAddr, Values: []EncryptValue{Bool(true)}},
		{ContractAddress: contractA, UserAddress: userAddr},
	})
	require.True(t, IsKind(err, KindConfig))
	require.Equal(t, int64(0), env.creates.Load())
}

func TestBatchEncryptFailsFast(t *testing.T) {
	env := newTestEnv(t, nil)
	env.engine.encryptErr = errors.New("ciphertext rejected")

	_, err := env.client.BatchEncrypt(context.Background(), []EncryptRequest{
		{ContractAddress: contractA, UserAddress: userAddr, Values: []EncryptValue{Bool(true)}},
		{ContractAddress: contractB, UserAddress: userAddr, Values: []EncryptValue{Bool(false)}},
	})
	require.True(t, IsKind(err, KindEncryption))
}

// echoCipher hands back each value's encoded bytes as its handle.
type echoCipher struct{}

func (echoCipher) Encrypt(_ context.Context, job worker.EncryptJob) (*worker.EncryptResult, error) {
	handles := make([][]byte, len(job.Values))
	for i, v := range job.Values {
		handles[i] = v.Data
	}
	return &worker.EncryptResult{Handles: handles, InputProof: []byte("worker-proof")}, nil
}

func (echoCipher) Decrypt(_ context.Context, job worker.DecryptJob) (*worker.DecryptResult, error) {
	return &worker.DecryptResult{Plaintext: job.Ciphertext}, nil
}

func TestEncryptOffloadsToWorker(t *testing.T) {
	env := newTestEnv(t, nil)

	host, remote := worker.NewThreadPair(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = worker.Serve(ctx, remote, echoCipher{}, nil)
	}()

	bridge := worker.NewBridge(worker.BridgeConfig{Transport: host})
	env.client.SetWorker(bridge)
	defer bridge.Terminate()

	result, err := env.client.Encrypt(ctx, EncryptRequest{
		ContractAddress: contractA,
		UserAddress:     userAddr,
		Values:          []EncryptValue{Uint8(42), AddressValue(contractB)},
	})
	require.NoError(t, err)
	require.Equal(t, [][]byte{{42}, contractB.Bytes()}, result.Handles)
	require.Equal(t, []byte("worker-proof"), result.InputProof)

	// Worker offload never touches the engine path.
	require.Equal(t, int64(0), env.creates.Load())
}

type stallCipher struct{ delay time.Duration }

func (c stallCipher) Encrypt(ctx context.Context, _ worker.EncryptJob) (*worker.EncryptResult, error) {
	select {
	case <-time.After(c.delay):
		return &worker.EncryptResult{}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c stallCipher) Decrypt(context.Context, worker.DecryptJob) (*worker.DecryptResult, error) {
	return nil, errors.New("unused")
}

func TestEncryptWorkerTimeoutClassified(t *testing.T) {
	env := newTestEnv(t, nil)

	host, remote := worker.NewThreadPair(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = worker.Serve(ctx, remote, stallCipher{delay: time.Second}, nil)
	}()

	bridge := worker.NewBridge(worker.BridgeConfig{
		Transport:      host,
		RequestTimeout: 20 * time.Millisecond,
	})
	env.client.SetWorker(bridge)
	defer bridge.Terminate()

	_, err := env.client.Encrypt(ctx, EncryptRequest{
		ContractAddress: contractA,
		UserAddress:     userAddr,
		Values:          []EncryptValue{Bool(true)},
	})
	require.True(t, IsKind(err, KindWorkerTimeout))
	require.True(t, ShouldRetry(err))
}

func TestEncodeValueKinds(t *testing.T) {
	big128 := new(uint256.Int).Lsh(uint256.NewInt(1), 100)
	big256 := new(uint256.Int).Lsh(uint256.NewInt(1), 200)

	tests := []struct {
		name     string
		value    EncryptValue
		wantKind worker.ValueKind
		wantData []byte
	}{
		{name: "bool false", value: Bool(false), wantKind: worker.ValueBool, wantData: []byte{0}},
		{name: "bool true", value: Bool(true), wantKind: worker.ValueBool, wantData: []byte{1}},
		{name: "uint8", value: Uint8(7), wantKind: worker.ValueUint8, wantData: []byte{7}},
		{name: "uint16", value: Uint16(0x0102), wantKind: worker.ValueUint16, wantData: []byte{0x01, 0x02}},
		{name: "uint32", value: Uint32(0x0a0b0c), wantKind: worker.ValueUint32, wantData: []byte{0x0a, 0x0b, 0x0c}},
		{name: "uint64", value: Uint64(1 << 40), wantKind: worker.ValueUint64, wantData: uint256.NewInt(1 << 40).Bytes()},
		{name: "uint128", value: Uint128(big128), wantKind: worker.ValueUint128, wantData: big128.Bytes()},
		{name: "uint256", value: Uint256(big256), wantKind: worker.ValueUint256, wantData: big256.Bytes()},
		{name: "address", value: AddressValue(contractA), wantKind: worker.ValueAddress, wantData: contractA.Bytes()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := encodeValue(tt.value)
			require.Equal(t, tt.wantKind, encoded.Kind)
			require.Equal(t, tt.wantData, encoded.Data)
		})
	}
}
