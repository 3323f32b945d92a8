package cart

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/avirag26/scholaro-api/internal/catalog"
)

// Mode selects where checkout line items come from.
type Mode string

const (
	// ModeCart prices the student's saved cart.
	ModeCart Mode = "cart"
	// ModeDirect prices a single course bought straight from its page.
	ModeDirect Mode = "direct"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool { return m == ModeCart || m == ModeDirect }

// LineItem is one purchasable row. For cart mode ID is the cart row id; for
// direct mode it is the course id.
type LineItem struct {
	ID     uuid.UUID      `json:"id"`
	Course catalog.Course `json:"course"`
}

// Price is the line's chargeable price after the course offer.
func (li LineItem) Price() decimal.Decimal { return li.Course.FinalPrice() }

// VendorGroup holds the available items of one tutor.
type VendorGroup struct {
	TutorID   uuid.UUID       `json:"tutorId"`
	TutorName string          `json:"tutorName"`
	Items     []LineItem      `json:"items"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// CourseIDs lists the course ids in the group.
func (g VendorGroup) CourseIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(g.Items))
	for _, it := range g.Items {
		ids = append(ids, it.Course.ID)
	}
	return ids
}

// Unavailable is an item excluded from totals, with every reason that applies.
type Unavailable struct {
	Item    LineItem `json:"item"`
	Reasons []string `json:"reasons"`
}

// Aggregate is the priced, vendor-grouped view of a set of line items.
type Aggregate struct {
	Mode        Mode            `json:"mode"`
	Groups      []VendorGroup   `json:"groups"`
	Unavailable []Unavailable   `json:"unavailable"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

// Build partitions items into vendor groups in first-seen order and
// excludes unavailable items from every subtotal. Items are never dropped:
// anything excluded is reported in Unavailable.
func Build(mode Mode, items []LineItem) Aggregate {
	agg := Aggregate{Mode: mode, Groups: []VendorGroup{}, Unavailable: []Unavailable{}, Subtotal: decimal.Zero}
	index := make(map[uuid.UUID]int)
	for _, it := range items {
		if !it.Course.Available() {
			agg.Unavailable = append(agg.Unavailable, Unavailable{Item: it, Reasons: it.Course.UnavailableReasons()})
			continue
		}
		i, ok := index[it.Course.TutorID]
		if !ok {
			i = len(agg.Groups)
			index[it.Course.TutorID] = i
			agg.Groups = append(agg.Groups, VendorGroup{
				TutorID:   it.Course.TutorID,
				TutorName: it.Course.TutorName,
				Subtotal:  decimal.Zero,
			})
		}
		price := it.Price()
		agg.Groups[i].Items = append(agg.Groups[i].Items, it)
		agg.Groups[i].Subtotal = agg.Groups[i].Subtotal.Add(price)
		agg.Subtotal = agg.Subtotal.Add(price)
	}
	return agg
}

// AvailableCount is the number of items contributing to the subtotal.
func (a Aggregate) AvailableCount() int {
	n := 0
	for _, g := range a.Groups {
		n += len(g.Items)
	}
	return n
}

// Group returns the vendor group for tutorID.
func (a Aggregate) Group(tutorID uuid.UUID) (VendorGroup, bool) {
	for _, g := range a.Groups {
		if g.TutorID == tutorID {
			return g, true
		}
	}
	return VendorGroup{}, false
}

// Items flattens the available items across groups.
func (a Aggregate) Items() []LineItem {
	out := make([]LineItem, 0, a.AvailableCount())
	for _, g := range a.Groups {
		out = append(out, g.Items...)
	}
	return out
}

// Empty reports whether nothing can be bought.
func (a Aggregate) Empty() bool { return len(a.Groups) == 0 }

// Banner is the notice shown when items were excluded, or "" when none were.
func (a Aggregate) Banner() string {
	switch n := len(a.Unavailable); n {
	case 0:
		return ""
	case 1:
		return "1 course removed"
	default:
		return fmt.Sprintf("%d courses removed", n)
	}
}
