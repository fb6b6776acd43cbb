package endless

import (
	"bytes"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"questvault/core/events"
	"questvault/core/state"
	"questvault/native/access"
	"questvault/native/assets"
	"questvault/storage"
)

type fixture struct {
	mgr        *state.Manager
	gate       *access.Gate
	collection *assets.Collectible
	auth       *Authorizer
	recorder   *events.Recorder
	adminKey   *ecdsa.PrivateKey
	admin      [20]byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	f := &fixture{
		mgr:      state.NewManager(storage.NewMemDB()),
		gate:     access.NewGate(addr(0xE1)),
		recorder: &events.Recorder{},
		adminKey: key,
		admin:    ethcrypto.PubkeyToAddress(key.PublicKey),
	}
	f.collection = assets.NewCollectible(addr(0xB1), "endless", assets.NewRegistry())
	f.auth = NewAuthorizer(DefaultDomain(addr(0xE1)), f.mgr, f.gate, CollectibleMinter{Collectible: f.collection})
	f.auth.SetEmitter(f.recorder)
	if err := f.mgr.Update(func(tx *state.Tx) error {
		return f.gate.Init(tx, addr(0x01), f.admin)
	}); err != nil {
		t.Fatalf("init gate: %v", err)
	}
	return f
}

func addr(fill byte) [20]byte {
	var out [20]byte
	copy(out[:], bytes.Repeat([]byte{fill}, 20))
	return out
}

func (f *fixture) sign(t *testing.T, key *ecdsa.PrivateKey, quest uint64, participant [20]byte) []byte {
	t.Helper()
	sig, err := Sign(key, f.auth.Domain(), quest, participant)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return sig
}

func (f *fixture) owner(t *testing.T, id int64) [20]byte {
	t.Helper()
	var out [20]byte
	if err := f.mgr.View(func(tx *state.Tx) error {
		var err error
		out, _, err = f.collection.OwnerOf(tx, big.NewInt(id))
		return err
	}); err != nil {
		t.Fatalf("owner of: %v", err)
	}
	return out
}

func TestRedeemMintsOnce(t *testing.T) {
	f := newFixture(t)
	participant := addr(0x11)
	req := Request{QuestID: 111, Participant: participant, Signature: f.sign(t, f.adminKey, 111, participant)}

	if err := f.auth.Redeem(participant, req); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if f.owner(t, 1) != participant {
		t.Fatalf("expected token 1 to be minted to the participant")
	}
	minted, err := f.auth.Minted(111, participant)
	if err != nil || !minted {
		t.Fatalf("expected guard to be set, got %v %v", minted, err)
	}
	if err := f.auth.Redeem(participant, req); !errors.Is(err, ErrAlreadyMinted) {
		t.Fatalf("expected ErrAlreadyMinted, got %v", err)
	}
	types := f.recorder.Types()
	if len(types) != 1 || types[0] != events.TypeEndlessMinted {
		t.Fatalf("unexpected events %v", types)
	}

	other := addr(0x12)
	if err := f.auth.Redeem(other, Request{QuestID: 111, Participant: other, Signature: f.sign(t, f.adminKey, 111, other)}); err != nil {
		t.Fatalf("second participant: %v", err)
	}
	if f.owner(t, 2) != other {
		t.Fatalf("expected sequential token ids")
	}
}

func TestRedeemRejections(t *testing.T) {
	f := newFixture(t)
	participant := addr(0x11)
	valid := f.sign(t, f.adminKey, 7, participant)

	if err := f.auth.Redeem(addr(0x12), Request{QuestID: 7, Participant: participant, Signature: valid}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := f.auth.Redeem(participant, Request{QuestID: 8, Participant: participant, Signature: valid}); !errors.Is(err, ErrSignerMismatch) {
		t.Fatalf("signature over another quest must not verify, got %v", err)
	}
	stranger, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	forged := f.sign(t, stranger, 7, participant)
	if err := f.auth.Redeem(participant, Request{QuestID: 7, Participant: participant, Signature: forged}); !errors.Is(err, ErrSignerMismatch) {
		t.Fatalf("expected ErrSignerMismatch, got %v", err)
	}
	if err := f.auth.Redeem(participant, Request{QuestID: 7, Participant: participant, Signature: valid[:10]}); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	minted, err := f.auth.Minted(7, participant)
	if err != nil || minted {
		t.Fatalf("rejected redeems must not set the guard")
	}
	if len(f.recorder.Events()) != 0 {
		t.Fatalf("rejected redeems must not emit")
	}
}

func TestRecoverAcceptsLegacyRecoveryID(t *testing.T) {
	f := newFixture(t)
	participant := addr(0x11)
	sig := f.sign(t, f.adminKey, 3, participant)
	sig[64] += 27
	signer, err := Recover(f.auth.Domain(), 3, participant, sig)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if signer != f.admin {
		t.Fatalf("recovered wrong signer")
	}
	if err := f.auth.Redeem(participant, Request{QuestID: 3, Participant: participant, Signature: sig}); err != nil {
		t.Fatalf("redeem with 27/28 id: %v", err)
	}
}

func TestAdminRotationInvalidatesOldSignatures(t *testing.T) {
	f := newFixture(t)
	participant := addr(0x11)
	sig := f.sign(t, f.adminKey, 5, participant)
	if err := f.mgr.Update(func(tx *state.Tx) error {
		_, err := f.gate.SetAdmin(tx, addr(0x01), addr(0x22))
		return err
	}); err != nil {
		t.Fatalf("rotate admin: %v", err)
	}
	if err := f.auth.Redeem(participant, Request{QuestID: 5, Participant: participant, Signature: sig}); !errors.Is(err, ErrSignerMismatch) {
		t.Fatalf("expected ErrSignerMismatch after rotation, got %v", err)
	}
}

func TestDigestDependsOnDomain(t *testing.T) {
	participant := addr(0x11)
	a := Digest(DefaultDomain(addr(0xE1)), 1, participant)
	b := Digest(DefaultDomain(addr(0xE2)), 1, participant)
	if bytes.Equal(a, b) {
		t.Fatalf("digests for different verifying contracts must differ")
	}
	if len(a) != 32 {
		t.Fatalf("expected 32 byte digest, got %d", len(a))
	}
}
