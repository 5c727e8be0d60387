package reconciliation

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MatchProposal is a candidate group of debits and credits found by a rule
type MatchProposal struct {
	RuleID         uuid.UUID
	RuleName       string
	Key            string
	Debits         []ClearingEntry
	Credits        []ClearingEntry
	DebitTotal     decimal.Decimal
	CreditTotal    decimal.Decimal
	Difference     decimal.Decimal
	DateSpreadDays int
	// Reason is set on rejected proposals
	Reason string
}

// Sources returns the debit side, which becomes the match source
func (p MatchProposal) Sources() []ClearingEntry {
	return p.Debits
}

// Targets returns the credit side, which becomes the match target
func (p MatchProposal) Targets() []ClearingEntry {
	return p.Credits
}

// EntryIDs returns every entry in the proposal
func (p MatchProposal) EntryIDs() []uuid.UUID {
	ids := EntryIDs(p.Debits)
	return append(ids, EntryIDs(p.Credits)...)
}

// GroupKey identifies the proposal across runs of the same rule
func (p MatchProposal) GroupKey() string {
	return p.RuleID.String() + ":" + p.Key
}

// MatchPlan is the outcome of applying one rule to a pool of entries
type MatchPlan struct {
	Accepted []MatchProposal
	Rejected []MatchProposal
}

// PassResult summarises a full auto-match pass
type PassResult struct {
	Accepted   int
	NearMisses []MatchProposal
}

// AcceptFunc is called for every accepted proposal in order.
// Returning an error aborts the pass.
type AcceptFunc func(p MatchProposal) error

// Matcher groups pending entries by rule keys and checks tolerances
type Matcher struct{}

// NewMatcher creates a matcher
func NewMatcher() *Matcher {
	return &Matcher{}
}

// Run applies the rules in priority order. Entries of accepted proposals leave
// the pool before the next group is considered, so no entry is proposed twice.
// Rejected proposals whose entries are all still in the pool at the end are
// returned as near misses.
func (m *Matcher) Run(rules []ReconciliationRule, entries []ClearingEntry, accept AcceptFunc) (PassResult, error) {
	ordered := make([]ReconciliationRule, len(rules))
	copy(ordered, rules)
	SortRules(ordered)

	consumed := make(map[uuid.UUID]struct{})
	var result PassResult
	var rejected []MatchProposal

	for i := range ordered {
		rule := &ordered[i]
		pending := make([]ClearingEntry, 0, len(entries))
		for _, e := range entries {
			if _, used := consumed[e.ID]; !used {
				pending = append(pending, e)
			}
		}

		plan, err := m.Propose(rule, pending)
		if err != nil {
			return result, err
		}
		for _, p := range plan.Accepted {
			if err := accept(p); err != nil {
				return result, err
			}
			for _, id := range p.EntryIDs() {
				consumed[id] = struct{}{}
			}
			result.Accepted++
		}
		rejected = append(rejected, plan.Rejected...)
	}

	for _, p := range rejected {
		intact := true
		for _, id := range p.EntryIDs() {
			if _, used := consumed[id]; used {
				intact = false
				break
			}
		}
		if intact {
			result.NearMisses = append(result.NearMisses, p)
		}
	}
	return result, nil
}

// Propose groups the pending entries by the rule key and splits the groups
// into accepted and rejected proposals. Groups need at least one debit and
// one credit. Zero amounts never match. With a date window, each key group is
// cut into date clusters no wider than the window before it is evaluated.
func (m *Matcher) Propose(rule *ReconciliationRule, entries []ClearingEntry) (MatchPlan, error) {
	key, err := NewCompositeKey(rule)
	if err != nil {
		return MatchPlan{}, err
	}

	pool := make([]ClearingEntry, 0, len(entries))
	for _, e := range entries {
		if e.IsPending() && !e.Amount.IsZero() {
			pool = append(pool, e)
		}
	}
	sort.SliceStable(pool, func(i, j int) bool {
		if !pool[i].EntryDate.Equal(pool[j].EntryDate) {
			return pool[i].EntryDate.Before(pool[j].EntryDate)
		}
		return pool[i].ID.String() < pool[j].ID.String()
	})

	groups := make(map[string][]ClearingEntry)
	order := make([]string, 0)
	for _, e := range pool {
		k, ok := key.Build(e)
		if !ok {
			continue
		}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], e)
	}

	plan := MatchPlan{}
	tolerance := rule.Tolerance.AmountOrZero()
	for _, k := range order {
		group := groups[k]
		if !rule.UsesDateWindow() {
			if p, ok := evaluateGroup(rule, k, group, tolerance); ok {
				plan.add(p)
			}
			continue
		}
		for _, cluster := range dateClusters(group, rule.Tolerance.DateWindow()) {
			plan.addWindow(rule, k, cluster, tolerance)
		}
	}
	return plan, nil
}

func (p *MatchPlan) add(proposal MatchProposal) {
	if proposal.Reason == "" {
		p.Accepted = append(p.Accepted, proposal)
	} else {
		p.Rejected = append(p.Rejected, proposal)
	}
}

// addWindow evaluates one date cluster. A cluster that does not balance is
// retried day by day, so a wider window never accepts fewer entries than
// exact-day grouping would.
func (p *MatchPlan) addWindow(rule *ReconciliationRule, key string, cluster []ClearingEntry, tolerance decimal.Decimal) {
	whole, ok := evaluateGroup(rule, joinKey(key, string(MatchFieldDate)+"~"+DateKey{}.Key(cluster[0])), cluster, tolerance)
	if !ok {
		return
	}
	days := splitByDay(cluster)
	if whole.Reason == "" || len(days) == 1 {
		p.add(whole)
		return
	}

	var accepted, rejected []MatchProposal
	for _, day := range days {
		dp, ok := evaluateGroup(rule, joinKey(key, string(MatchFieldDate)+"="+DateKey{}.Key(day[0])), day, tolerance)
		switch {
		case !ok:
		case dp.Reason == "":
			accepted = append(accepted, dp)
		default:
			rejected = append(rejected, dp)
		}
	}
	if len(accepted) == 0 {
		p.Rejected = append(p.Rejected, whole)
		return
	}
	p.Accepted = append(p.Accepted, accepted...)
	p.Rejected = append(p.Rejected, rejected...)
}

// evaluateGroup builds the proposal for group. It reports false when the
// group lacks a debit or a credit. Proposals outside the amount tolerance
// carry a Reason.
func evaluateGroup(rule *ReconciliationRule, key string, group []ClearingEntry, tolerance decimal.Decimal) (MatchProposal, bool) {
	if len(group) < 2 {
		return MatchProposal{}, false
	}
	p := MatchProposal{
		RuleID:      rule.ID,
		RuleName:    rule.Name,
		Key:         key,
		DebitTotal:  decimal.Zero,
		CreditTotal: decimal.Zero,
	}
	for _, e := range group {
		if e.IsDebit() {
			p.Debits = append(p.Debits, e)
			p.DebitTotal = p.DebitTotal.Add(e.Amount)
		} else {
			p.Credits = append(p.Credits, e)
			p.CreditTotal = p.CreditTotal.Add(e.AbsAmount())
		}
	}
	if len(p.Debits) == 0 || len(p.Credits) == 0 {
		return MatchProposal{}, false
	}
	p.Difference = p.DebitTotal.Sub(p.CreditTotal).Abs()
	p.DateSpreadDays = dateSpreadDays(group)
	if p.Difference.GreaterThan(tolerance) {
		p.Reason = fmt.Sprintf("amount difference %s exceeds tolerance %s",
			p.Difference.StringFixed(2), tolerance.StringFixed(2))
	}
	return p, true
}

// dateClusters splits date-ordered entries into runs that start a new
// cluster once an entry is more than window days after the cluster's first entry.
func dateClusters(entries []ClearingEntry, window int) [][]ClearingEntry {
	var clusters [][]ClearingEntry
	var start time.Time
	for _, e := range entries {
		day := calendarDay(e.EntryDate)
		if len(clusters) == 0 || daysBetween(start, day) > window {
			clusters = append(clusters, nil)
			start = day
		}
		clusters[len(clusters)-1] = append(clusters[len(clusters)-1], e)
	}
	return clusters
}

func splitByDay(entries []ClearingEntry) [][]ClearingEntry {
	return dateClusters(entries, 0)
}

func joinKey(key, part string) string {
	if key == "" {
		return part
	}
	return key + keySeparator + part
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

func dateSpreadDays(entries []ClearingEntry) int {
	if len(entries) == 0 {
		return 0
	}
	minDay, maxDay := calendarDay(entries[0].EntryDate), calendarDay(entries[0].EntryDate)
	for _, e := range entries[1:] {
		d := calendarDay(e.EntryDate)
		if d.Before(minDay) {
			minDay = d
		}
		if d.After(maxDay) {
			maxDay = d
		}
	}
	return daysBetween(minDay, maxDay)
}

func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
