package events

import (
	"math/big"
	"strconv"

	"questvault/core/types"
)

const (
	TypeQuestCreated         = "quest.created"
	TypeQuestClaimableSet    = "quest.claimable_set"
	TypePoolFunded           = "quest.pool_funded"
	TypePoolOverwritten      = "quest.pool_overwritten"
	TypeWinnerSet            = "quest.winner_set"
	TypeWinnerRemoved        = "quest.winner_removed"
	TypeRewardClaimed        = "quest.reward_claimed"
	TypeEndlessMinted        = "quest.endless_minted"
	TypeAdminChanged         = "access.admin_changed"
	TypeOwnershipTransferred = "access.ownership_transferred"
	TypeEngineApprovalSet    = "custody.engine_approval_set"
)

type QuestCreated struct {
	Engine   [20]byte
	QuestID  uint64
	Fungible int
	Unique   int
	Hybrid   int
}

func (QuestCreated) EventType() string { return TypeQuestCreated }

func (e QuestCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeQuestCreated,
		Attributes: map[string]string{
			"engine":   formatAddress(e.Engine),
			"questId":  formatUint(e.QuestID),
			"fungible": formatInt(e.Fungible),
			"unique":   formatInt(e.Unique),
			"hybrid":   formatInt(e.Hybrid),
		},
	}
}

type QuestClaimableSet struct {
	Engine    [20]byte
	QuestID   uint64
	Claimable bool
}

func (QuestClaimableSet) EventType() string { return TypeQuestClaimableSet }

func (e QuestClaimableSet) Event() *types.Event {
	return &types.Event{
		Type: TypeQuestClaimableSet,
		Attributes: map[string]string{
			"engine":    formatAddress(e.Engine),
			"questId":   formatUint(e.QuestID),
			"claimable": strconv.FormatBool(e.Claimable),
		},
	}
}

type PoolFunded struct {
	Engine    [20]byte
	QuestID   uint64
	Asset     [20]byte
	Amount    *big.Int
	Remaining *big.Int
}

func (PoolFunded) EventType() string { return TypePoolFunded }

func (e PoolFunded) Event() *types.Event {
	return &types.Event{
		Type: TypePoolFunded,
		Attributes: map[string]string{
			"engine":    formatAddress(e.Engine),
			"questId":   formatUint(e.QuestID),
			"asset":     formatAddress(e.Asset),
			"amount":    formatAmount(e.Amount),
			"remaining": formatAmount(e.Remaining),
		},
	}
}

type PoolOverwritten struct {
	Engine    [20]byte
	QuestID   uint64
	Asset     [20]byte
	Previous  *big.Int
	Remaining *big.Int
}

func (PoolOverwritten) EventType() string { return TypePoolOverwritten }

func (e PoolOverwritten) Event() *types.Event {
	return &types.Event{
		Type: TypePoolOverwritten,
		Attributes: map[string]string{
			"engine":    formatAddress(e.Engine),
			"questId":   formatUint(e.QuestID),
			"asset":     formatAddress(e.Asset),
			"previous":  formatAmount(e.Previous),
			"remaining": formatAmount(e.Remaining),
		},
	}
}

type WinnerSet struct {
	Engine      [20]byte
	QuestID     uint64
	Participant [20]byte
	Fungible    int
	Unique      int
	Hybrid      int
	Replaced    bool
}

func (WinnerSet) EventType() string { return TypeWinnerSet }

func (e WinnerSet) Event() *types.Event {
	return &types.Event{
		Type: TypeWinnerSet,
		Attributes: map[string]string{
			"engine":      formatAddress(e.Engine),
			"questId":     formatUint(e.QuestID),
			"participant": formatAddress(e.Participant),
			"fungible":    formatInt(e.Fungible),
			"unique":      formatInt(e.Unique),
			"hybrid":      formatInt(e.Hybrid),
			"replaced":    strconv.FormatBool(e.Replaced),
		},
	}
}

type WinnerRemoved struct {
	Engine      [20]byte
	QuestID     uint64
	Participant [20]byte
}

func (WinnerRemoved) EventType() string { return TypeWinnerRemoved }

func (e WinnerRemoved) Event() *types.Event {
	return &types.Event{
		Type: TypeWinnerRemoved,
		Attributes: map[string]string{
			"engine":      formatAddress(e.Engine),
			"questId":     formatUint(e.QuestID),
			"participant": formatAddress(e.Participant),
		},
	}
}

type RewardClaimed struct {
	Engine      [20]byte
	QuestID     uint64
	Participant [20]byte
	Transfers   int
}

func (RewardClaimed) EventType() string { return TypeRewardClaimed }

func (e RewardClaimed) Event() *types.Event {
	return &types.Event{
		Type: TypeRewardClaimed,
		Attributes: map[string]string{
			"engine":      formatAddress(e.Engine),
			"questId":     formatUint(e.QuestID),
			"participant": formatAddress(e.Participant),
			"transfers":   formatInt(e.Transfers),
		},
	}
}

type EndlessMinted struct {
	Engine      [20]byte
	QuestID     uint64
	Participant [20]byte
}

func (EndlessMinted) EventType() string { return TypeEndlessMinted }

func (e EndlessMinted) Event() *types.Event {
	return &types.Event{
		Type: TypeEndlessMinted,
		Attributes: map[string]string{
			"engine":      formatAddress(e.Engine),
			"questId":     formatUint(e.QuestID),
			"participant": formatAddress(e.Participant),
		},
	}
}

type AdminChanged struct {
	Namespace [20]byte
	Previous  [20]byte
	Admin     [20]byte
}

func (AdminChanged) EventType() string { return TypeAdminChanged }

func (e AdminChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeAdminChanged,
		Attributes: map[string]string{
			"namespace": formatAddress(e.Namespace),
			"previous":  formatAddress(e.Previous),
			"admin":     formatAddress(e.Admin),
		},
	}
}

type OwnershipTransferred struct {
	Namespace [20]byte
	Previous  [20]byte
	Owner     [20]byte
}

func (OwnershipTransferred) EventType() string { return TypeOwnershipTransferred }

func (e OwnershipTransferred) Event() *types.Event {
	return &types.Event{
		Type: TypeOwnershipTransferred,
		Attributes: map[string]string{
			"namespace": formatAddress(e.Namespace),
			"previous":  formatAddress(e.Previous),
			"owner":     formatAddress(e.Owner),
		},
	}
}

type EngineApprovalSet struct {
	Custodian [20]byte
	Engine    [20]byte
	Approved  bool
}

func (EngineApprovalSet) EventType() string { return TypeEngineApprovalSet }

func (e EngineApprovalSet) Event() *types.Event {
	return &types.Event{
		Type: TypeEngineApprovalSet,
		Attributes: map[string]string{
			"custodian": formatAddress(e.Custodian),
			"engine":    formatAddress(e.Engine),
			"approved":  strconv.FormatBool(e.Approved),
		},
	}
}
