package normalise

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hashgraph/hedera-sdk-go/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hedera-agent-kit/pkg/kit"
	"hedera-agent-kit/pkg/mirror"
)

type stubMirror struct {
	mirror.Service
	accounts map[string]*mirror.Account
	tokens   map[string]*mirror.TokenInfo
	// lookupErr fails every account and contract lookup.
	lookupErr error
}

func (s *stubMirror) GetAccount(_ context.Context, id string) (*mirror.Account, error) {
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	if a, ok := s.accounts[id]; ok {
		return a, nil
	}
	return nil, mirror.ErrNotFound
}

func (s *stubMirror) GetTokenInfo(_ context.Context, id string) (*mirror.TokenInfo, error) {
	if t, ok := s.tokens[id]; ok {
		return t, nil
	}
	return nil, mirror.ErrNotFound
}

func (s *stubMirror) GetContractInfo(_ context.Context, id string) (*mirror.ContractInfo, error) {
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	return nil, mirror.ErrNotFound
}

func resolver(mode kit.Mode, account string, svc mirror.Service) *Resolver {
	return NewResolver(&kit.Runtime{Context: kit.Context{Mode: mode, AccountID: account}, Mirror: svc})
}

func amount(s string) kit.Amount { return kit.MustAmount(s) }

func TestToBaseUnits(t *testing.T) {
	got, err := ToBaseUnits(decimal.RequireFromString("1.5"), 2)
	require.NoError(t, err)
	assert.EqualValues(t, 150, got)

	got, err = HbarToTinybars(decimal.RequireFromString("0.00000001"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, got)

	_, err = ToBaseUnits(decimal.RequireFromString("1.234"), 2)
	assert.Error(t, err)

	_, err = ToBaseUnits(decimal.RequireFromString("-1"), 0)
	assert.Error(t, err)

	assert.Equal(t, "1.25", ToDisplayUnits(125, 2).String())
	assert.Equal(t, "2.5 HBAR", HbarString(250_000_000))
}

func TestNormaliseTransferHbarAddsSourceDebit(t *testing.T) {
	r := resolver(kit.ModeAutonomous, "0.0.1001", nil)
	out, err := NormaliseTransferHbar(context.Background(), TransferHbarParams{
		Transfers: []HbarTransfer{
			{AccountID: "0.0.2001", Amount: amount("1.5")},
			{AccountID: "0.0.2002", Amount: amount("0.5")},
		},
		TransactionMemo: "rent",
	}, r)
	require.NoError(t, err)
	require.Len(t, out.Transfers, 3)
	assert.EqualValues(t, 150_000_000, out.Transfers[0].Tinybars)
	assert.Equal(t, "0.0.1001", out.Transfers[2].AccountID.String())
	assert.EqualValues(t, -200_000_000, out.Transfers[2].Tinybars)
	assert.Nil(t, out.Schedule)
}

func TestNormaliseTransferHbarRejectsBadAmounts(t *testing.T) {
	r := resolver(kit.ModeAutonomous, "0.0.1001", nil)
	_, err := NormaliseTransferHbar(context.Background(), TransferHbarParams{
		Transfers: []HbarTransfer{{AccountID: "0.0.2001", Amount: amount("0")}},
	}, r)
	var invalidErr *kit.InvalidParameters
	require.ErrorAs(t, err, &invalidErr)

	_, err = NormaliseTransferHbar(context.Background(), TransferHbarParams{
		Transfers: []HbarTransfer{{AccountID: "0.0.2001", Amount: amount("0.000000001")}},
	}, r)
	require.ErrorAs(t, err, &invalidErr)
}

func TestReturnBytesRequiresContextAccount(t *testing.T) {
	r := resolver(kit.ModeReturnBytes, "", nil)
	_, err := r.DefaultAccountID()
	assert.True(t, errors.Is(err, ErrAccountRequired))

	_, err = NormaliseTransferHbar(context.Background(), TransferHbarParams{
		Transfers: []HbarTransfer{{AccountID: "0.0.2001", Amount: amount("1")}},
	}, r)
	assert.True(t, errors.Is(err, ErrAccountRequired))
}

func TestDefaultPublicKeyFromMirror(t *testing.T) {
	key, err := hedera.PrivateKeyGenerateEd25519()
	require.NoError(t, err)
	pub := key.PublicKey()
	svc := &stubMirror{accounts: map[string]*mirror.Account{
		"0.0.1001": {Account: "0.0.1001", Key: &mirror.Key{Type: "ED25519", Key: pub.StringRaw()}},
	}}

	got, err := resolver(kit.ModeReturnBytes, "0.0.1001", svc).DefaultPublicKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pub.String(), got.String())

	ctxKey, err := NewResolver(&kit.Runtime{Context: kit.Context{
		Mode: kit.ModeReturnBytes, AccountID: "0.0.1001", AccountPublicKey: pub.String(),
	}}).DefaultPublicKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pub.String(), ctxKey.String())

	_, err = resolver(kit.ModeReturnBytes, "0.0.1001", nil).DefaultPublicKey(context.Background())
	assert.True(t, errors.Is(err, ErrMirrorUnavailable))
}

func TestNormaliseCreateFungibleTokenDefaults(t *testing.T) {
	r := resolver(kit.ModeAutonomous, "0.0.1001", nil)
	out, err := NormaliseCreateFungibleToken(context.Background(), CreateFungibleTokenParams{
		TokenName:   "Gold",
		TokenSymbol: "GLD",
	}, r)
	require.NoError(t, err)
	assert.EqualValues(t, 0, out.Decimals)
	assert.Equal(t, hedera.TokenSupplyTypeFinite, out.SupplyType)
	assert.EqualValues(t, 1_000_000, out.MaxSupply)
	assert.Equal(t, "0.0.1001", out.Treasury.String())
	assert.Nil(t, out.SupplyKey)

	decimals := int32(2)
	initial := amount("10.5")
	out, err = NormaliseCreateFungibleToken(context.Background(), CreateFungibleTokenParams{
		TokenName: "Gold", TokenSymbol: "GLD", Decimals: &decimals, InitialSupply: &initial,
	}, r)
	require.NoError(t, err)
	assert.EqualValues(t, 1050, out.InitialSupply)
	assert.EqualValues(t, 100_000_000, out.MaxSupply)
}

func TestNormaliseCreateFungibleTokenInitialAboveMax(t *testing.T) {
	r := resolver(kit.ModeAutonomous, "0.0.1001", nil)
	initial, maxSupply := amount("200"), amount("100")
	_, err := NormaliseCreateFungibleToken(context.Background(), CreateFungibleTokenParams{
		TokenName: "Gold", TokenSymbol: "GLD", InitialSupply: &initial, MaxSupply: &maxSupply,
	}, r)
	var invalidErr *kit.InvalidParameters
	require.ErrorAs(t, err, &invalidErr)
	assert.Contains(t, err.Error(), "exceeds maxSupply")

	_, err = NormaliseCreateFungibleToken(context.Background(), CreateFungibleTokenParams{
		TokenName: "Gold", TokenSymbol: "GLD", SupplyType: "infinite", MaxSupply: &maxSupply,
	}, r)
	require.ErrorAs(t, err, &invalidErr)
}

func TestNormaliseAirdropUsesMirrorDecimals(t *testing.T) {
	svc := &stubMirror{tokens: map[string]*mirror.TokenInfo{
		"0.0.500": {TokenID: "0.0.500", Decimals: "3"},
	}}
	r := resolver(kit.ModeAutonomous, "0.0.1001", svc)

	out, err := NormaliseAirdropFungibleToken(context.Background(), AirdropFungibleTokenParams{
		TokenID: "0.0.500",
		Recipients: []TokenRecipient{
			{AccountID: "0.0.2001", Amount: amount("1.25")},
			{AccountID: "0.0.2002", Amount: amount("2")},
		},
	}, r)
	require.NoError(t, err)
	assert.EqualValues(t, 3, out.Decimals)
	require.Len(t, out.Transfers, 3)
	assert.EqualValues(t, 1250, out.Transfers[0].Amount)
	assert.EqualValues(t, 2000, out.Transfers[1].Amount)
	assert.EqualValues(t, -3250, out.Transfers[2].Amount)

	_, err = NormaliseAirdropFungibleToken(context.Background(), AirdropFungibleTokenParams{
		TokenID:    "0.0.999",
		Recipients: []TokenRecipient{{AccountID: "0.0.2001", Amount: amount("1")}},
	}, r)
	assert.True(t, errors.Is(err, mirror.ErrNotFound))
}

func TestNormaliseTotalsRejectOverflow(t *testing.T) {
	r := resolver(kit.ModeAutonomous, "0.0.1001", &stubMirror{tokens: map[string]*mirror.TokenInfo{
		"0.0.600": {TokenID: "0.0.600", Decimals: "18"},
	}})

	_, err := NormaliseTransferHbar(context.Background(), TransferHbarParams{
		Transfers: []HbarTransfer{
			{AccountID: "0.0.2001", Amount: amount("50000000000")},
			{AccountID: "0.0.2002", Amount: amount("50000000000")},
		},
	}, r)
	var invalid *kit.InvalidParameters
	require.True(t, errors.As(err, &invalid), "got %v", err)
	assert.Contains(t, err.Error(), "total amount overflows base units")

	_, err = NormaliseAirdropFungibleToken(context.Background(), AirdropFungibleTokenParams{
		TokenID: "0.0.600",
		Recipients: []TokenRecipient{
			{AccountID: "0.0.2001", Amount: amount("5")},
			{AccountID: "0.0.2002", Amount: amount("5")},
		},
	}, r)
	require.True(t, errors.As(err, &invalid), "got %v", err)
	assert.Contains(t, err.Error(), "total amount overflows base units")

	out, err := NormaliseTransferHbar(context.Background(), TransferHbarParams{
		Transfers: []HbarTransfer{{AccountID: "0.0.2001", Amount: amount("50000000000")}},
	}, r)
	require.NoError(t, err)
	assert.EqualValues(t, -5_000_000_000_000_000_000, out.Transfers[1].Tinybars)
}

func TestNormaliseMintFungibleToken(t *testing.T) {
	svc := &stubMirror{tokens: map[string]*mirror.TokenInfo{"0.0.500": {TokenID: "0.0.500", Decimals: "2"}}}
	out, err := NormaliseMintFungibleToken(context.Background(), MintFungibleTokenParams{
		TokenID: "0.0.500", Amount: amount("3.5"),
	}, resolver(kit.ModeAutonomous, "0.0.1001", svc))
	require.NoError(t, err)
	assert.EqualValues(t, 350, out.Amount)
}

func TestNormaliseCreateNFTAlwaysHasSupplyKey(t *testing.T) {
	key, err := hedera.PrivateKeyGenerateEd25519()
	require.NoError(t, err)
	rt := &kit.Runtime{Context: kit.Context{
		Mode: kit.ModeReturnBytes, AccountID: "0.0.1001", AccountPublicKey: key.PublicKey().String(),
	}}
	out, err := NormaliseCreateNonFungibleToken(context.Background(), CreateNonFungibleTokenParams{
		TokenName: "Art", TokenSymbol: "ART",
	}, NewResolver(rt))
	require.NoError(t, err)
	assert.NotNil(t, out.SupplyKey)
	assert.EqualValues(t, 100, out.MaxSupply)
}

func TestNormaliseCreateTopicKeys(t *testing.T) {
	key, err := hedera.PrivateKeyGenerateEd25519()
	require.NoError(t, err)
	rt := &kit.Runtime{Context: kit.Context{AccountID: "0.0.1001", AccountPublicKey: key.PublicKey().String()}}

	var p CreateTopicParams
	require.NoError(t, json.Unmarshal([]byte(`{"topicMemo":"news"}`), &p))
	out, err := NormaliseCreateTopic(context.Background(), p, NewResolver(rt))
	require.NoError(t, err)
	assert.NotNil(t, out.AdminKey)
	assert.Nil(t, out.SubmitKey)

	p = CreateTopicParams{}
	require.NoError(t, json.Unmarshal([]byte(`{"adminKey":false,"submitKey":true}`), &p))
	out, err = NormaliseCreateTopic(context.Background(), p, NewResolver(rt))
	require.NoError(t, err)
	assert.Nil(t, out.AdminKey)
	assert.NotNil(t, out.SubmitKey)
}

func TestKeyOptionJSON(t *testing.T) {
	var k KeyOption
	require.NoError(t, json.Unmarshal([]byte(`"302a300506032b6570032100aa"`), &k))
	assert.True(t, k.Provided)
	assert.True(t, k.Enabled)
	assert.Equal(t, "302a300506032b6570032100aa", k.PublicKey)

	require.NoError(t, json.Unmarshal([]byte(`false`), &k))
	assert.True(t, k.Provided)
	assert.False(t, k.Enabled)

	assert.Error(t, json.Unmarshal([]byte(`12`), &k))
}

func TestNormaliseTopicMessagesQuery(t *testing.T) {
	q, err := NormaliseTopicMessagesQuery(TopicMessagesParams{
		TopicID:   "0.0.77",
		StartTime: "2025-01-01T00:00:00Z",
		EndTime:   "2025-01-02T00:00:00Z",
	})
	require.NoError(t, err)
	assert.Equal(t, "1735689600.000000000", q.Lower)
	assert.Equal(t, "1735776000.000000000", q.Upper)
	assert.Equal(t, 100, q.Limit)

	_, err = NormaliseTopicMessagesQuery(TopicMessagesParams{
		TopicID:   "0.0.77",
		StartTime: "2025-01-02T00:00:00Z",
		EndTime:   "2025-01-01T00:00:00Z",
	})
	assert.Error(t, err)

	_, err = NormaliseTopicMessagesQuery(TopicMessagesParams{TopicID: "0.0.77", StartTime: "yesterday"})
	assert.Error(t, err)
}

func TestScheduleParams(t *testing.T) {
	r := resolver(kit.ModeAutonomous, "0.0.1001", nil)

	opts, err := Schedule(context.Background(), &SchedulingParams{IsScheduled: false}, r)
	require.NoError(t, err)
	assert.Nil(t, opts)

	expiry := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	opts, err = Schedule(context.Background(), &SchedulingParams{
		IsScheduled: true, PayerAccountID: "0.0.3003", ExpirationTime: expiry, WaitForExpiry: true,
	}, r)
	require.NoError(t, err)
	require.NotNil(t, opts.PayerAccountID)
	assert.Equal(t, "0.0.3003", opts.PayerAccountID.String())
	assert.True(t, opts.WaitForExpiry)

	_, err = Schedule(context.Background(), &SchedulingParams{
		IsScheduled: true, ExpirationTime: "2000-01-01T00:00:00Z",
	}, r)
	assert.Error(t, err)

	_, err = Schedule(context.Background(), &SchedulingParams{IsScheduled: true, WaitForExpiry: true}, r)
	assert.Error(t, err)
}

func TestEVMAddressResolution(t *testing.T) {
	svc := &stubMirror{accounts: map[string]*mirror.Account{
		"0.0.2001": {Account: "0.0.2001", EVMAddress: "0x1111111111111111111111111111111111111111"},
	}}
	r := resolver(kit.ModeAutonomous, "0.0.1001", svc)

	addr, err := r.EVMAddress(context.Background(), "0.0.2001")
	require.NoError(t, err)
	assert.Equal(t, "0x1111111111111111111111111111111111111111", addr.Hex())

	addr, err = r.EVMAddress(context.Background(), "0.0.1234")
	require.NoError(t, err)
	assert.Equal(t, byte(0xd2), addr[19])

	_, err = r.EVMAddress(context.Background(), "alice")
	assert.Error(t, err)

	out, err := NormaliseTransferERC20(context.Background(), TransferERC20Params{
		ContractID: "0.0.5005", RecipientAddress: "0.0.2001", Amount: amount("1000"),
	}, r)
	require.NoError(t, err)
	assert.Equal(t, "1000", out.Amount.String())

	_, err = NormaliseTransferERC20(context.Background(), TransferERC20Params{
		ContractID: "0.0.5005", RecipientAddress: "0.0.2001", Amount: amount("1.5"),
	}, r)
	assert.Error(t, err)
}

func TestEVMAddressReturnsMirrorFailures(t *testing.T) {
	outage := errors.New("mirror node returned 503")
	r := resolver(kit.ModeAutonomous, "0.0.1001", &stubMirror{lookupErr: outage})

	_, err := r.EVMAddress(context.Background(), "0.0.2001")
	require.Error(t, err)
	assert.True(t, errors.Is(err, outage))

	_, err = r.ContractID(context.Background(), "0x1111111111111111111111111111111111111111")
	assert.True(t, errors.Is(err, outage))

	// Without a mirror node the long-zero address is used.
	addr, err := resolver(kit.ModeAutonomous, "0.0.1001", nil).EVMAddress(context.Background(), "0.0.1234")
	require.NoError(t, err)
	assert.Equal(t, byte(0xd2), addr[19])
}
