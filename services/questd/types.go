package questd

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"questvault/crypto"
	"questvault/native/quest"
)

type createQuestRequest struct {
	ID       uint64   `json:"id"`
	Fungible []string `json:"fungible"`
	Unique   []string `json:"unique"`
	Hybrid   []string `json:"hybrid"`
}

type claimableRequest struct {
	Claimable bool `json:"claimable"`
}

type poolRequest struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type fungibleJSON struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type uniqueJSON struct {
	Asset   string `json:"asset"`
	TokenID string `json:"tokenId"`
}

type hybridJSON struct {
	Asset   string `json:"asset"`
	TokenID string `json:"tokenId"`
	Amount  string `json:"amount"`
}

// winnersRequest is the parallel-array form of a winner batch: entry i of
// every reward list belongs to participant i.
type winnersRequest struct {
	Participants []string         `json:"participants"`
	Fungible     [][]fungibleJSON `json:"fungible"`
	Unique       [][]uniqueJSON   `json:"unique"`
	Hybrid       [][]hybridJSON   `json:"hybrid"`
}

type removeWinnersRequest struct {
	Participants []string `json:"participants"`
}

type redeemRequest struct {
	Signature string `json:"signature"`
}

type approvalRequest struct {
	Engine   string `json:"engine"`
	Approved bool   `json:"approved"`
}

type questResponse struct {
	ID        uint64         `json:"id"`
	Fungible  []string       `json:"fungible"`
	Unique    []string       `json:"unique"`
	Hybrid    []string       `json:"hybrid"`
	Claimable bool           `json:"claimable"`
	CreatedAt uint64         `json:"createdAt"`
	Pools     []fungibleJSON `json:"pools"`
}

type poolResponse struct {
	Asset     string `json:"asset"`
	Remaining string `json:"remaining"`
	Funded    string `json:"funded"`
	Allocated string `json:"allocated"`
	Claimed   string `json:"claimed"`
	Stranded  string `json:"stranded"`
}

type winnerResponse struct {
	Participant string         `json:"participant"`
	Fungible    []fungibleJSON `json:"fungible"`
	Unique      []uniqueJSON   `json:"unique"`
	Hybrid      []hybridJSON   `json:"hybrid"`
}

type approvalResponse struct {
	Engine   string `json:"engine"`
	Approved bool   `json:"approved"`
}

type rolesResponse struct {
	Engine string `json:"engine"`
	Owner  string `json:"owner,omitempty"`
	Admin  string `json:"admin,omitempty"`
}

func parseAddress(field, value string) ([20]byte, error) {
	addr, err := crypto.ParseAddress(value)
	if err != nil {
		return addr, fmt.Errorf("%w: %s: %v", errBadRequest, field, err)
	}
	return addr, nil
}

func parseAddresses(field string, values []string) ([][20]byte, error) {
	out := make([][20]byte, 0, len(values))
	for i, value := range values {
		addr, err := parseAddress(fmt.Sprintf("%s[%d]", field, i), value)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

func parseInteger(field, value string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok {
		return nil, fmt.Errorf("%w: %s: invalid integer %q", errBadRequest, field, value)
	}
	return v, nil
}

func formatAddresses(list [][20]byte) []string {
	out := make([]string, len(list))
	for i, addr := range list {
		out[i] = crypto.Format(addr)
	}
	return out
}

func (req winnersRequest) batch() ([]quest.WinnerRewards, error) {
	participants, err := parseAddresses("participants", req.Participants)
	if err != nil {
		return nil, err
	}
	fungible := make([][]quest.FungibleReward, len(req.Fungible))
	for i, entries := range req.Fungible {
		for j, entry := range entries {
			field := fmt.Sprintf("fungible[%d][%d]", i, j)
			asset, err := parseAddress(field+".asset", entry.Asset)
			if err != nil {
				return nil, err
			}
			amount, err := parseInteger(field+".amount", entry.Amount)
			if err != nil {
				return nil, err
			}
			fungible[i] = append(fungible[i], quest.FungibleReward{Asset: asset, Amount: amount})
		}
	}
	unique := make([][]quest.UniqueReward, len(req.Unique))
	for i, entries := range req.Unique {
		for j, entry := range entries {
			field := fmt.Sprintf("unique[%d][%d]", i, j)
			asset, err := parseAddress(field+".asset", entry.Asset)
			if err != nil {
				return nil, err
			}
			id, err := parseInteger(field+".tokenId", entry.TokenID)
			if err != nil {
				return nil, err
			}
			unique[i] = append(unique[i], quest.UniqueReward{Asset: asset, TokenID: id})
		}
	}
	hybrid := make([][]quest.HybridReward, len(req.Hybrid))
	for i, entries := range req.Hybrid {
		for j, entry := range entries {
			field := fmt.Sprintf("hybrid[%d][%d]", i, j)
			asset, err := parseAddress(field+".asset", entry.Asset)
			if err != nil {
				return nil, err
			}
			id, err := parseInteger(field+".tokenId", entry.TokenID)
			if err != nil {
				return nil, err
			}
			amount, err := parseInteger(field+".amount", entry.Amount)
			if err != nil {
				return nil, err
			}
			hybrid[i] = append(hybrid[i], quest.HybridReward{Asset: asset, TokenID: id, Amount: amount})
		}
	}
	return quest.ZipWinnerRewards(participants, fungible, unique, hybrid)
}

func newWinnerResponse(alloc *quest.Allocation) winnerResponse {
	resp := winnerResponse{
		Participant: crypto.Format(alloc.Participant),
		Fungible:    make([]fungibleJSON, 0, len(alloc.Fungible)),
		Unique:      make([]uniqueJSON, 0, len(alloc.Unique)),
		Hybrid:      make([]hybridJSON, 0, len(alloc.Hybrid)),
	}
	for _, r := range alloc.Fungible {
		resp.Fungible = append(resp.Fungible, fungibleJSON{Asset: crypto.Format(r.Asset), Amount: r.Amount.String()})
	}
	for _, r := range alloc.Unique {
		resp.Unique = append(resp.Unique, uniqueJSON{Asset: crypto.Format(r.Asset), TokenID: r.TokenID.String()})
	}
	for _, r := range alloc.Hybrid {
		resp.Hybrid = append(resp.Hybrid, hybridJSON{Asset: crypto.Format(r.Asset), TokenID: r.TokenID.String(), Amount: r.Amount.String()})
	}
	return resp
}

type auditResponse struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	Digest     string            `json:"digest"`
	CreatedAt  time.Time         `json:"createdAt"`
}
