package quest

import (
	"encoding/binary"
	"math/big"

	"github.com/holiman/uint256"
)

const keyPrefix = "quest/"

func (e *Engine) key(kind string, id uint64, parts ...[]byte) []byte {
	key := make([]byte, 0, 96)
	key = append(key, keyPrefix...)
	key = append(key, e.address[:]...)
	key = append(key, '/')
	key = append(key, kind...)
	key = append(key, '/')
	key = binary.BigEndian.AppendUint64(key, id)
	for _, part := range parts {
		key = append(key, part...)
	}
	return key
}

func (e *Engine) questKey(id uint64) []byte { return e.key("record", id) }

func (e *Engine) poolKey(id uint64, asset [20]byte) []byte {
	return e.key("pool", id, asset[:])
}

func (e *Engine) allocationKey(id uint64, participant [20]byte) []byte {
	return e.key("alloc", id, participant[:])
}

func (e *Engine) winnersKey(id uint64) []byte { return e.key("winners", id) }

func (e *Engine) reservationKey(id uint64, asset [20]byte, tokenID *big.Int) []byte {
	value, _ := uint256.FromBig(tokenID)
	buf := value.Bytes32()
	return e.key("reserve", id, asset[:], buf[:])
}

func (e *Engine) questIndexKey() []byte {
	key := append([]byte(keyPrefix), e.address[:]...)
	return append(key, "/index"...)
}

func encodeQuestID(id uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, id)
}

func binaryID(raw []byte) uint64 {
	return binary.BigEndian.Uint64(raw)
}
