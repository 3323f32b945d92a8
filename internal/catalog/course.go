package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/avirag26/scholaro-api/internal/pricing"
)

// Reasons a course cannot be purchased.
const (
	ReasonUnlisted = "unlisted"
	ReasonInactive = "inactive"
	ReasonBanned   = "banned"
)

// Course is the purchasable unit of the marketplace.
type Course struct {
	ID              uuid.UUID       `json:"id"`
	Title           string          `json:"title"`
	Price           decimal.Decimal `json:"price"`
	OfferPercentage decimal.Decimal `json:"offerPercentage"`
	TutorID         uuid.UUID       `json:"tutorId"`
	TutorName       string          `json:"tutorName"`
	IsListed        bool            `json:"isListed"`
	IsActive        bool            `json:"isActive"`
	IsBanned        bool            `json:"isBanned"`
	Thumbnail       *string         `json:"thumbnail,omitempty"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// Available reports whether the course can be bought right now.
func (c Course) Available() bool {
	return c.IsListed && c.IsActive && !c.IsBanned
}

// UnavailableReasons lists every reason the course cannot be bought.
func (c Course) UnavailableReasons() []string {
	var reasons []string
	if !c.IsListed {
		reasons = append(reasons, ReasonUnlisted)
	}
	if !c.IsActive {
		reasons = append(reasons, ReasonInactive)
	}
	if c.IsBanned {
		reasons = append(reasons, ReasonBanned)
	}
	return reasons
}

// FinalPrice is the list price after the course offer. An offer outside
// [0,100] is ignored and the list price is charged.
func (c Course) FinalPrice() decimal.Decimal {
	if !pricing.ValidOffer(c.OfferPercentage) {
		return c.Price
	}
	return pricing.DiscountedPrice(c.Price, c.OfferPercentage)
}

// CourseView is the public payload for a course.
type CourseView struct {
	Course
	FinalPrice decimal.Decimal `json:"finalPrice"`
	Available  bool            `json:"available"`
}

// View renders the course with derived fields.
func (c Course) View() CourseView {
	return CourseView{Course: c, FinalPrice: c.FinalPrice(), Available: c.Available()}
}
