package main

import (
	"strings"
)

// RoomTypeSharing is priced per person; every other room type is per room.
const RoomTypeSharing = "sharing"

type PaxCounts struct {
	Adults   int `json:"adults"`
	Children int `json:"children"`
	Infants  int `json:"infants"`
}

func (p PaxCounts) Total() int {
	return p.Adults + p.Children + p.Infants
}

// PaxPrices are unit prices per passenger class.
type PaxPrices struct {
	Adult  float64 `json:"adult"`
	Child  float64 `json:"child"`
	Infant float64 `json:"infant"`
}

func (p PaxPrices) NetFor(pax PaxCounts) float64 {
	return float64(pax.Adults)*p.Adult + float64(pax.Children)*p.Child + float64(pax.Infants)*p.Infant
}

// PriceOverride holds prices saved on a booking. Each present field replaces
// the catalog price for that passenger class only.
type PriceOverride struct {
	Adult  *float64 `json:"adult,omitempty"`
	Child  *float64 `json:"child,omitempty"`
	Infant *float64 `json:"infant,omitempty"`
}

func (o PriceOverride) Apply(base PaxPrices) PaxPrices {
	if o.Adult != nil {
		base.Adult = *o.Adult
	}
	if o.Child != nil {
		base.Child = *o.Child
	}
	if o.Infant != nil {
		base.Infant = *o.Infant
	}
	return base
}

type RoomPrice struct {
	RoomType string  `json:"room_type"`
	Price    float64 `json:"price"`
}

type Hotel struct {
	ID     string      `json:"id"`
	Name   string      `json:"name"`
	Prices []RoomPrice `json:"prices"`
}

// RateFor finds the nightly rate of a room type, ignoring case.
func (h Hotel) RateFor(roomType string) (float64, bool) {
	for _, p := range h.Prices {
		if strings.EqualFold(strings.TrimSpace(p.RoomType), strings.TrimSpace(roomType)) {
			return p.Price, true
		}
	}
	return 0, false
}

// Catalog is the priced data selections are matched against, keyed by id.
type Catalog struct {
	Hotels       map[string]Hotel     `json:"hotels"`
	FoodPrices   map[string]PaxPrices `json:"food_prices"`
	ZiaratPrices map[string]PaxPrices `json:"ziarat_prices"`
}

// CostLine is one priced service entry of an invoice.
type CostLine struct {
	Kind        ServiceKind `json:"kind"`
	Description string      `json:"description"`
	Rate        float64     `json:"rate"`
	Quantity    float64     `json:"quantity"`
	Multiplier  int         `json:"multiplier,omitempty"`
	Net         float64     `json:"net"`
	Currency    Currency    `json:"currency"`
	NetPKR      float64     `json:"net_pkr"`
	FamilyLabel string      `json:"family_label,omitempty"`
}

func newCostLine(kind ServiceKind, conv Converter) CostLine {
	return CostLine{Kind: kind, Currency: conv.CurrencyFor(kind)}
}

func (l *CostLine) settle(net float64, conv Converter) {
	l.Net = net
	l.NetPKR = conv.ToPKR(l.Kind, net)
}

type HotelStay struct {
	HotelID      string `json:"hotel_id"`
	HotelName    string `json:"hotel_name"`
	RoomType     string `json:"room_type"`
	Nights       int    `json:"nights"`
	SelfArranged bool   `json:"self_arranged"`
	// SavedRate is a nightly rate stored on the booking; it wins over the
	// catalog when positive.
	SavedRate   float64 `json:"saved_rate,omitempty"`
	FamilyLabel string  `json:"family_label,omitempty"`
}

// HotelLine prices one stay for a group of headcount passengers.
// Self-arranged stays cost nothing.
func HotelLine(stay HotelStay, catalog Catalog, headcount int, conv Converter) CostLine {
	line := newCostLine(KindHotel, conv)
	line.FamilyLabel = stay.FamilyLabel
	line.Multiplier = stay.Nights
	line.Description = stay.HotelName

	hotel, found := catalog.Hotels[stay.HotelID]
	if line.Description == "" && found {
		line.Description = hotel.Name
	}

	if stay.SelfArranged {
		line.Description = "Self arranged"
		line.settle(0, conv)
		return line
	}

	rate := stay.SavedRate
	if rate <= 0 && found {
		rate, _ = hotel.RateFor(stay.RoomType)
	}

	quantity := 1
	if strings.EqualFold(strings.TrimSpace(stay.RoomType), RoomTypeSharing) {
		quantity = headcount
	}

	nights := stay.Nights
	if nights < 0 {
		nights = 0
	}

	line.Rate = rate
	line.Quantity = float64(quantity)
	line.settle(rate*float64(quantity)*float64(nights), conv)
	return line
}

// MealSelection is a food or ziarat package chosen on a booking.
type MealSelection struct {
	PriceID  string        `json:"price_id"`
	Name     string        `json:"name"`
	Pax      PaxCounts     `json:"pax"`
	Override PriceOverride `json:"override"`
	// SavedNet is the net stored on the booking; non-positive means unsaved.
	SavedNet float64 `json:"saved_net,omitempty"`
}

// MealLine prices a food or ziarat selection against its price list.
func MealLine(kind ServiceKind, sel MealSelection, prices map[string]PaxPrices, conv Converter) CostLine {
	line := newCostLine(kind, conv)
	line.Description = sel.Name

	unit := sel.Override.Apply(prices[sel.PriceID])
	line.Rate = unit.Adult
	line.Quantity = float64(sel.Pax.Total())

	net := unit.NetFor(sel.Pax)
	if sel.SavedNet > 0 {
		net = sel.SavedNet
	}
	line.settle(net, conv)
	return line
}

type TransportSelection struct {
	Description string  `json:"description"`
	VehicleType string  `json:"vehicle_type"`
	Rate        float64 `json:"rate"`
	Quantity    int     `json:"quantity"`
	SavedNet    float64 `json:"saved_net,omitempty"`
}

// TransportCoster computes the rate and native net of a transport selection.
type TransportCoster interface {
	TransportCost(sel TransportSelection) (rate, net float64)
}

// SavedTransportCoster uses the saved net when positive, otherwise rate times
// quantity, with a missing quantity counting as one vehicle.
type SavedTransportCoster struct{}

func (SavedTransportCoster) TransportCost(sel TransportSelection) (float64, float64) {
	if sel.SavedNet > 0 {
		return sel.Rate, sel.SavedNet
	}
	quantity := sel.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	return sel.Rate, sel.Rate * float64(quantity)
}

func TransportLine(sel TransportSelection, coster TransportCoster, conv Converter) CostLine {
	if coster == nil {
		coster = SavedTransportCoster{}
	}
	line := newCostLine(KindTransport, conv)
	line.Description = sel.Description
	if line.Description == "" {
		line.Description = sel.VehicleType
	}

	rate, net := coster.TransportCost(sel)
	line.Rate = rate
	line.Quantity = float64(sel.Quantity)
	line.settle(net, conv)
	return line
}

// PaxPricedService is a visa or flight leg priced per passenger class.
type PaxPricedService struct {
	Description string    `json:"description"`
	Prices      PaxPrices `json:"prices"`
	Pax         PaxCounts `json:"pax"`
}

func PaxPricedLine(kind ServiceKind, svc PaxPricedService, conv Converter) CostLine {
	line := newCostLine(kind, conv)
	line.Description = svc.Description
	line.Rate = svc.Prices.Adult
	line.Quantity = float64(svc.Pax.Total())
	line.settle(svc.Prices.NetFor(svc.Pax), conv)
	return line
}
