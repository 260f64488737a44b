package engine

import (
	"encoding/json"
	"sort"

	"gorm.io/gorm"

	"tilerunner/internal/db"
)

// Rule triggers. The engine fires TriggerEnterTile and TriggerAfterMove
// around tile arrival; the rest are reserved lifecycle hooks that rules may
// already be authored against.
const (
	TriggerTurnStart    = "turn.start"
	TriggerAfterRoll    = "turn.afterRoll"
	TriggerAfterMove    = "turn.afterMove"
	TriggerTurnEnd      = "turn.end"
	TriggerEnterTile    = "on.enterTile"
	TriggerLeaveTile    = "on.leaveTile"
	TriggerLandOn       = "on.landOn"
	TriggerVictoryCheck = "on.victoryCheck"
)

// Rule scopes.
const (
	ScopeGeneric = "generic"
	ScopePlayer  = "player"
	ScopeTile    = "tile"
)

// RuleDSL is a user-authored rule decoded from storage.
type RuleDSL struct {
	ID          string    `json:"id"`
	Scope       string    `json:"scope"`
	Trigger     string    `json:"trigger"`
	Conditions  *CondNode `json:"conditions,omitempty"`
	Effects     []Effect  `json:"effects"`
	Priority    int       `json:"priority"`
	Specificity int       `json:"specificity"`
	Enabled     bool      `json:"enabled"`
}

func decodeRule(record db.Rule) (RuleDSL, error) {
	conditions, err := DecodeCondition([]byte(record.Conditions))
	if err != nil {
		return RuleDSL{}, err
	}
	var effects []Effect
	if len(record.Effects) > 0 {
		if err := json.Unmarshal([]byte(record.Effects), &effects); err != nil {
			// A single-effect object instead of a list is accepted on input.
			var single Effect
			if err2 := json.Unmarshal([]byte(record.Effects), &single); err2 != nil {
				return RuleDSL{}, err
			}
			effects = []Effect{single}
		}
	}
	return RuleDSL{
		ID:          record.ID,
		Scope:       record.Scope,
		Trigger:     record.Trigger,
		Conditions:  conditions,
		Effects:     effects,
		Priority:    record.Priority,
		Specificity: record.Specificity,
		Enabled:     record.Enabled,
	}, nil
}

// ApplicableRules returns the enabled rules for a trigger whose conditions
// pass against a freshly built context, ordered by specificity desc, then
// priority desc, then creation order asc. The ordering is a total order:
// the same rule set and context always yield the same sequence.
func ApplicableRules(tx *gorm.DB, gameID, trigger, playerID, tileID string) ([]RuleDSL, error) {
	var records []db.Rule
	if err := tx.Where(`game_id = ? AND enabled = ? AND "trigger" = ?`, gameID, true, trigger).
		Order("created_at asc, id asc").
		Find(&records).Error; err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	ctx, err := buildEvalContext(tx, gameID, playerID, tileID)
	if err != nil {
		return nil, err
	}

	passing := make([]RuleDSL, 0, len(records))
	for _, record := range records {
		rule, err := decodeRule(record)
		if err != nil {
			return nil, err
		}
		if EvalCondition(rule.Conditions, ctx) {
			passing = append(passing, rule)
		}
	}

	// Stable sort keeps creation order as the final tie-break.
	sort.SliceStable(passing, func(i, j int) bool {
		if passing[i].Specificity != passing[j].Specificity {
			return passing[i].Specificity > passing[j].Specificity
		}
		return passing[i].Priority > passing[j].Priority
	})
	return passing, nil
}

// Effect kinds that may not coexist at the same priority/specificity tier
// within one trigger+scope bucket.
var exclusiveEffects = map[string]struct{}{
	EffectDiceSet:        {},
	EffectMoveSet:        {},
	EffectVictoryDeclare: {},
}

func hasExclusiveEffect(effects []Effect) bool {
	for _, effect := range effects {
		if _, ok := exclusiveEffects[effect.Type]; ok {
			return true
		}
	}
	return false
}

// lintRule rejects an incoming rule that would create a silently ambiguous
// resolution order: two enabled rules in the same trigger+scope bucket, both
// carrying an exclusive effect, at the same priority and specificity.
// Differing priority or specificity makes precedence explicit and is fine.
func lintRule(tx *gorm.DB, gameID string, incoming RuleInput, ignoreRuleID string) error {
	if !hasExclusiveEffect(incoming.Effects) {
		return nil
	}
	var siblings []db.Rule
	if err := tx.Where(`game_id = ? AND "trigger" = ? AND scope = ? AND enabled = ?`,
		gameID, incoming.Trigger, incoming.Scope, true).Find(&siblings).Error; err != nil {
		return err
	}
	for _, sibling := range siblings {
		if sibling.ID == ignoreRuleID {
			continue
		}
		rule, err := decodeRule(sibling)
		if err != nil {
			return err
		}
		if !hasExclusiveEffect(rule.Effects) {
			continue
		}
		if rule.Priority == incoming.Priority && rule.Specificity == incoming.Specificity {
			return conflict("rule %s already holds an exclusive effect at priority=%d specificity=%d",
				sibling.ID, rule.Priority, rule.Specificity)
		}
	}
	return nil
}
