package endless

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	domainTypeHash  = ethcrypto.Keccak256([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	requestTypeHash = ethcrypto.Keccak256([]byte("MintRequest(address participant,uint256 questId)"))
)

// Domain separates signatures of one deployment from every other.
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract [20]byte
}

// DefaultDomain returns the domain used when the node config does not
// override it.
func DefaultDomain(verifying [20]byte) Domain {
	return Domain{Name: "QuestVault Endless Mint", Version: "1", ChainID: big.NewInt(1), VerifyingContract: verifying}
}

func word(v []byte) []byte { return common.LeftPadBytes(v, 32) }

// Separator returns the typed-data hash of the domain.
func (d Domain) Separator() []byte {
	chainID := d.ChainID
	if chainID == nil {
		chainID = new(big.Int)
	}
	return ethcrypto.Keccak256(
		domainTypeHash,
		ethcrypto.Keccak256([]byte(d.Name)),
		ethcrypto.Keccak256([]byte(d.Version)),
		word(chainID.Bytes()),
		word(d.VerifyingContract[:]),
	)
}

// Digest is the hash the admin signs to authorise an endless mint of questID
// for participant.
func Digest(domain Domain, questID uint64, participant [20]byte) []byte {
	structHash := ethcrypto.Keccak256(
		requestTypeHash,
		word(participant[:]),
		word(new(big.Int).SetUint64(questID).Bytes()),
	)
	return ethcrypto.Keccak256([]byte{0x19, 0x01}, domain.Separator(), structHash)
}

// Sign produces a 65 byte [R || S || V] signature over Digest.
func Sign(key *ecdsa.PrivateKey, domain Domain, questID uint64, participant [20]byte) ([]byte, error) {
	if key == nil {
		return nil, fmt.Errorf("endless: signing key required")
	}
	return ethcrypto.Sign(Digest(domain, questID, participant), key)
}

// Recover returns the address that produced sig over the mint digest. Both
// 0/1 and 27/28 recovery ids are accepted.
func Recover(domain Domain, questID uint64, participant [20]byte, sig []byte) ([20]byte, error) {
	if len(sig) != 65 {
		return [20]byte{}, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(sig))
	}
	normalized := append([]byte(nil), sig...)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(Digest(domain, questID, participant), normalized)
	if err != nil {
		return [20]byte{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}
