package erasure

import (
	"context"
	"fmt"

	"github.com/amirhosseinghanipour/erasure/internal/domain"
)

// residueScanLimit caps how many documents one residue query reads per collection.
const residueScanLimit = 1000

// Residue is what is left of a user after erasure.
type Residue struct {
	UserID          domain.UserID  `json:"user_id"`
	UserExists      bool           `json:"user_exists"`
	RiskScoreExists bool           `json:"risk_score_exists"`
	Remaining       map[string]int `json:"remaining"`  // records that should have been deleted
	Unscrubbed      map[string]int `json:"unscrubbed"` // owned records still carrying PII
}

// Clean is true when nothing owned by the user survives in identifiable form.
func (r Residue) Clean() bool {
	if r.UserExists || r.RiskScoreExists {
		return false
	}
	for _, n := range r.Remaining {
		if n > 0 {
			return false
		}
	}
	for _, n := range r.Unscrubbed {
		if n > 0 {
			return false
		}
	}
	return true
}

// Residue inspects every collection the workflow touches. Unlike Delete it returns store errors.
// Counts are capped at 1000 per collection.
func (o *Orchestrator) Residue(ctx context.Context, userID domain.UserID) (*Residue, error) {
	res := &Residue{
		UserID:     userID,
		Remaining:  make(map[string]int),
		Unscrubbed: make(map[string]int),
	}
	var err error
	if res.UserExists, err = o.exists(ctx, o.catalog.UserRef(userID)); err != nil {
		return nil, err
	}
	if res.RiskScoreExists, err = o.exists(ctx, o.catalog.RiskScoreRef(userID)); err != nil {
		return nil, err
	}
	for _, t := range o.catalog.Delete {
		for _, field := range t.OwnerFields {
			docs, err := o.store.Query(ctx, t.Collection, field, userID.String(), residueScanLimit)
			if err != nil {
				return nil, fmt.Errorf("query %s by %s: %w", t.Collection, field, err)
			}
			res.Remaining[t.Name] += len(docs)
		}
	}
	for _, sub := range o.catalog.UserSubcollections {
		docs, err := o.store.List(ctx, o.catalog.UserRef(userID).Sub(sub), residueScanLimit)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", sub, err)
		}
		res.Remaining["user_"+sub] = len(docs)
	}
	for _, t := range o.catalog.Anonymize {
		docs, err := o.store.Query(ctx, t.Collection, t.OwnerField, userID.String(), residueScanLimit)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", t.Collection, err)
		}
		for _, doc := range docs {
			if !scrubbed(doc, t.Scrub) {
				res.Unscrubbed[t.Name]++
			}
		}
	}
	return res, nil
}

func (o *Orchestrator) exists(ctx context.Context, ref domain.DocumentRef) (bool, error) {
	doc, err := o.store.Get(ctx, ref)
	if err != nil {
		return false, fmt.Errorf("get %s: %w", ref.Path(), err)
	}
	return doc != nil, nil
}

// scrubbed reports whether every PII field already holds its placeholder. Absent fields count as scrubbed.
func scrubbed(doc domain.Document, scrub map[string]interface{}) bool {
	for field, placeholder := range scrub {
		v, ok := doc.Data[field]
		if !ok {
			continue
		}
		if s, isStr := v.(string); !isStr || s != placeholder {
			return false
		}
	}
	return true
}
