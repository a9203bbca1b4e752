package resolve

import (
	"strings"

	"distline/internal/domain"
)

// Directives indexes replacement directives by item.
type Directives map[domain.ItemRef]domain.ReplacementDirective

func NewDirectives(list []domain.ReplacementDirective) Directives {
	d := make(Directives, len(list))
	for _, dir := range list {
		d[dir.Ref()] = dir
	}
	return d
}

func (d Directives) Lookup(ref domain.ItemRef) (domain.ReplacementDirective, bool) {
	dir, ok := d[ref]
	return dir, ok
}

// Identity is a customer as shown on a line.
type Identity struct {
	Name string `json:"name"`
	City string `json:"city"`
}

// Key is the grouping key: trimmed and case-folded.
func (id Identity) Key() string {
	return strings.ToLower(strings.TrimSpace(id.Name)) + "\x00" + strings.ToLower(strings.TrimSpace(id.City))
}

// Customer is the resolved identity of one item.
type Customer struct {
	Identity
	Original       Identity `json:"original"`
	Substituted    bool     `json:"substituted"`
	ExistsInSystem bool     `json:"exists_in_system"`
}

func ResolveCustomer(it domain.Item, directives Directives) Customer {
	orig := Identity{Name: it.CustomerName, City: it.City}
	dir, ok := directives.Lookup(it.Ref())
	if !ok {
		return Customer{Identity: orig, Original: orig, ExistsInSystem: true}
	}
	return Customer{
		Identity:       Identity{Name: dir.CustomerName, City: dir.City},
		Original:       orig,
		Substituted:    true,
		ExistsInSystem: dir.ExistsInSystem,
	}
}

// CompletelyTransferred returns the original identities whose every item in
// the list carries a directive pointing at another identity, in first-seen
// order.
func CompletelyTransferred(items []domain.Item, directives Directives) []Identity {
	type tally struct {
		id          Identity
		total, subs int
	}
	var order []string
	seen := map[string]*tally{}
	for _, it := range items {
		c := ResolveCustomer(it, directives)
		k := c.Original.Key()
		t, ok := seen[k]
		if !ok {
			t = &tally{id: c.Original}
			seen[k] = t
			order = append(order, k)
		}
		t.total++
		if c.Substituted && c.Identity.Key() != k {
			t.subs++
		}
	}
	var out []Identity
	for _, k := range order {
		if t := seen[k]; t.total > 0 && t.total == t.subs {
			out = append(out, t.id)
		}
	}
	return out
}
