package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// PolicyRule allows one call selector on one target contract.
type PolicyRule struct {
	Target   common.Address
	Selector [4]byte
}

// SessionKeyPolicy is the ordered allow-list a session key is scoped to.
type SessionKeyPolicy struct {
	Rules []PolicyRule
}

// Allows reports whether the policy permits calling target with calldata
// starting with the given selector.
func (p SessionKeyPolicy) Allows(target common.Address, selector [4]byte) bool {
	for _, r := range p.Rules {
		if r.Target == target && r.Selector == selector {
			return true
		}
	}
	return false
}

type policyRuleJSON struct {
	Target   string `json:"target"`
	Selector string `json:"selector"`
}

// ParseSessionKeyPolicy parses and validates a policy received from external
// input. Validation happens here, at the boundary; everything downstream
// works with the structured type.
func ParseSessionKeyPolicy(raw []byte) (SessionKeyPolicy, error) {
	var rules []policyRuleJSON
	if err := json.Unmarshal(raw, &rules); err != nil {
		return SessionKeyPolicy{}, fmt.Errorf("parse session key policy: %w", err)
	}
	if len(rules) == 0 {
		return SessionKeyPolicy{}, fmt.Errorf("session key policy must contain at least one rule")
	}

	policy := SessionKeyPolicy{Rules: make([]PolicyRule, 0, len(rules))}
	for i, r := range rules {
		if !common.IsHexAddress(r.Target) {
			return SessionKeyPolicy{}, fmt.Errorf("policy rule %d: invalid target address %q", i, r.Target)
		}
		sel, err := hexutil.Decode(r.Selector)
		if err != nil {
			return SessionKeyPolicy{}, fmt.Errorf("policy rule %d: invalid selector %q: %w", i, r.Selector, err)
		}
		if len(sel) != 4 {
			return SessionKeyPolicy{}, fmt.Errorf("policy rule %d: selector must be 4 bytes, got %d", i, len(sel))
		}
		rule := PolicyRule{Target: common.HexToAddress(r.Target)}
		copy(rule.Selector[:], sel)
		policy.Rules = append(policy.Rules, rule)
	}
	return policy, nil
}

// MarshalJSON serializes the policy back to its wire form.
func (p SessionKeyPolicy) MarshalJSON() ([]byte, error) {
	rules := make([]policyRuleJSON, 0, len(p.Rules))
	for _, r := range p.Rules {
		rules = append(rules, policyRuleJSON{
			Target:   r.Target.Hex(),
			Selector: hexutil.Encode(r.Selector[:]),
		})
	}
	return json.Marshal(rules)
}

// SessionKey is an ephemeral credential scoped to one smart account.
// Private key material is stored encrypted and never logged.
type SessionKey struct {
	ID                  string          `db:"id" json:"id"`
	AccountAddress      string          `db:"account_address" json:"accountAddress"`
	PublicKey           string          `db:"public_key" json:"publicKey"`
	EncryptedPrivateKey string          `db:"encrypted_private_key" json:"-"`
	Policy              json.RawMessage `db:"policy" json:"policy"`
	ExpiresAt           time.Time       `db:"expires_at" json:"expiresAt"`
	RevokedAt           *time.Time      `db:"revoked_at" json:"revokedAt,omitempty"`
	CreatedAt           time.Time       `db:"created_at" json:"createdAt"`
}

// Usable reports whether the key may sign at the given instant.
func (k *SessionKey) Usable(now time.Time) bool {
	return k.RevokedAt == nil && now.Before(k.ExpiresAt)
}

type CreateSessionKeyParams struct {
	ID                  string
	AccountAddress      string
	PublicKey           string
	EncryptedPrivateKey string
	Policy              json.RawMessage
	ExpiresAt           time.Time
}
