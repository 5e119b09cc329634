package rules

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/desertthunder/smartsync/internal/models"
)

// Selection is the ordered, size-capped result of a smart list computation.
type Selection struct {
	Entries      []models.MediaEntry
	TotalRuntime time.Duration
	// MissingRuntime counts selected entries without runtime metadata; they count as zero.
	MissingRuntime int
}

// IDs returns the selected entry ids in order.
func (s Selection) IDs() []string {
	ids := make([]string, len(s.Entries))
	for i, e := range s.Entries {
		ids[i] = e.ID
	}
	return ids
}

// Without returns s minus the entries whose id is in ids, with the runtime totals recomputed.
func (s Selection) Without(ids map[string]struct{}) Selection {
	if len(ids) == 0 {
		return s
	}
	var out Selection
	out.Entries = make([]models.MediaEntry, 0, len(s.Entries))
	for _, e := range s.Entries {
		if _, skip := ids[e.ID]; skip {
			continue
		}
		d, ok := e.Runtime()
		if !ok {
			out.MissingRuntime++
		}
		out.TotalRuntime += d
		out.Entries = append(out.Entries, e)
	}
	return out
}

// Filter returns the entries matching p, preserving input order.
func (p *Program) Filter(entries []models.MediaEntry) []models.MediaEntry {
	out := make([]models.MediaEntry, 0, len(entries))
	for _, e := range entries {
		if p.Match(e) {
			out = append(out, e)
		}
	}
	return out
}

// Sort stable-sorts entries in place by order. Entries missing the field sort last in either
// direction. An empty order field leaves entries untouched.
func Sort(entries []models.MediaEntry, order models.OrderSpec) {
	if !order.Enabled() {
		return
	}
	desc := order.Direction == models.Descending
	slices.SortStableFunc(entries, func(a, b models.MediaEntry) int {
		va, okA := a.Get(order.Field)
		vb, okB := b.Get(order.Field)
		switch {
		case !okA && !okB:
			return 0
		case !okA:
			return 1
		case !okB:
			return -1
		}
		c := compareValues(va, vb)
		if desc {
			return -c
		}
		return c
	})
}

func compareValues(a, b models.Value) int {
	if a.Kind != b.Kind {
		return cmp.Compare(a.Kind, b.Kind)
	}
	switch a.Kind {
	case models.ValueNumber:
		return cmp.Compare(a.Num, b.Num)
	case models.ValueDuration:
		return cmp.Compare(a.Dur, b.Dur)
	case models.ValueDate:
		return a.Time.Compare(b.Time)
	case models.ValueBool:
		switch {
		case a.Bool == b.Bool:
			return 0
		case b.Bool:
			return -1
		}
		return 1
	case models.ValueSet:
		return strings.Compare(setKey(a.Set), setKey(b.Set))
	}
	return strings.Compare(strings.ToLower(a.Str), strings.ToLower(b.Str))
}

func setKey(items []string) string {
	sorted := make([]string, len(items))
	for i, item := range items {
		sorted[i] = strings.ToLower(item)
	}
	slices.Sort(sorted)
	return strings.Join(sorted, "\x00")
}

// Limit applies the item cap, then cuts at the first entry whose runtime would push the
// cumulative total past maxPlayTime. Later entries are not considered even if they would fit.
// Zero disables either cap.
func Limit(entries []models.MediaEntry, maxItems int, maxPlayTime time.Duration) Selection {
	if maxItems > 0 && len(entries) > maxItems {
		entries = entries[:maxItems]
	}

	var sel Selection
	sel.Entries = make([]models.MediaEntry, 0, len(entries))
	for _, e := range entries {
		d, ok := e.Runtime()
		if maxPlayTime > 0 && sel.TotalRuntime+d > maxPlayTime {
			break
		}
		if !ok {
			sel.MissingRuntime++
		}
		sel.TotalRuntime += d
		sel.Entries = append(sel.Entries, e)
	}
	return sel
}

// OrderAndLimit sorts a copy of entries by cfg.Order and applies cfg's item and runtime caps.
func OrderAndLimit(entries []models.MediaEntry, cfg *models.SmartListConfig) Selection {
	sorted := slices.Clone(entries)
	Sort(sorted, cfg.Order)
	return Limit(sorted, cfg.MaxItems, cfg.MaxPlayTime())
}

// FilterAndOrder evaluates cfg's rules over entries, then orders and truncates the matches.
// Callers filter entries by media type beforehand.
func FilterAndOrder(entries []models.MediaEntry, cfg *models.SmartListConfig) ([]string, error) {
	p, err := Compile(cfg.Rules)
	if err != nil {
		return nil, err
	}
	return OrderAndLimit(p.Filter(entries), cfg).IDs(), nil
}
