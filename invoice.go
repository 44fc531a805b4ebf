package main

import (
	"fmt"
	"strings"
)

// FamilyGroup is a passenger subset billed on its own sub-invoice.
type FamilyGroup struct {
	Label string `json:"label"`
	Size  int    `json:"size"`
}

// FamilyGroupsFromSizes labels sizes "Family 1", "Family 2", ...
func FamilyGroupsFromSizes(sizes []int) []FamilyGroup {
	groups := make([]FamilyGroup, 0, len(sizes))
	for i, size := range sizes {
		groups = append(groups, FamilyGroup{Label: fmt.Sprintf("Family %d", i+1), Size: size})
	}
	return groups
}

// Allocate splits total across groups by each group's share of their
// combined size. With no passengers to split over it returns nil.
func Allocate(total float64, groups []FamilyGroup) []float64 {
	pax := 0
	for _, g := range groups {
		pax += g.Size
	}
	if pax <= 0 {
		return nil
	}
	shares := make([]float64, len(groups))
	for i, g := range groups {
		shares[i] = total * (float64(g.Size) / float64(pax))
	}
	return shares
}

type CategoryTotals struct {
	Hotel     float64 `json:"hotel"`
	Transport float64 `json:"transport"`
	Food      float64 `json:"food"`
	Ziarat    float64 `json:"ziarat"`
	Flight    float64 `json:"flight"`
	Visa      float64 `json:"visa"`
}

func (c *CategoryTotals) field(kind ServiceKind) *float64 {
	switch kind {
	case KindHotel:
		return &c.Hotel
	case KindTransport:
		return &c.Transport
	case KindFood:
		return &c.Food
	case KindZiarat:
		return &c.Ziarat
	case KindFlight:
		return &c.Flight
	case KindVisa:
		return &c.Visa
	}
	return nil
}

func (c *CategoryTotals) Add(kind ServiceKind, amount float64) {
	if f := c.field(kind); f != nil {
		*f += amount
	}
}

func (c CategoryTotals) Get(kind ServiceKind) float64 {
	if f := c.field(kind); f != nil {
		return *f
	}
	return 0
}

func (c CategoryTotals) Sum() float64 {
	return c.Hotel + c.Transport + c.Food + c.Ziarat + c.Flight + c.Visa
}

// Iteration is one sub-invoice: the whole booking, or one family.
type Iteration struct {
	Label      string         `json:"label"`
	Size       int            `json:"size"`
	Ratio      float64        `json:"ratio"`
	Totals     CategoryTotals `json:"totals"`
	HotelLines []CostLine     `json:"hotel_lines"`
	GrandTotal float64        `json:"grand_total"`
}

// ReportedTotals are totals the API already computed. They are shown when
// present but never replace the recomputed figures.
type ReportedTotals struct {
	TotalAmount      float64 `json:"total_amount,omitempty"`
	TotalHotelAmount float64 `json:"total_hotel_amount,omitempty"`
}

// Invoice amounts are all in PKR except CostLine.Net.
type Invoice struct {
	Currency   Currency       `json:"currency"`
	RiyalRate  float64        `json:"riyal_rate"`
	Lines      []CostLine     `json:"lines"`
	Totals     CategoryTotals `json:"totals"`
	Iterations []Iteration    `json:"iterations"`
	GrandTotal float64        `json:"grand_total"`
	Reported   ReportedTotals `json:"reported"`
}

type InvoiceInput struct {
	Pax        PaxCounts
	Families   []FamilyGroup
	Hotels     []HotelStay
	Transports []TransportSelection
	Foods      []MealSelection
	Ziarats    []MealSelection
	Flights    []PaxPricedService
	Visas      []PaxPricedService
	Catalog    Catalog
	// RiyalRate overrides the aggregator default when positive.
	RiyalRate float64
	Reported  ReportedTotals
}

// Aggregator turns booking selections into a PKR invoice. It is stateless;
// every call recomputes from its input.
type Aggregator struct {
	Policy           CurrencyPolicy
	DefaultRiyalRate float64
	Transport        TransportCoster
}

func NewAggregator(policy CurrencyPolicy, defaultRiyalRate float64) *Aggregator {
	return &Aggregator{
		Policy:           policy,
		DefaultRiyalRate: defaultRiyalRate,
		Transport:        SavedTransportCoster{},
	}
}

func (a *Aggregator) converter(in InvoiceInput) Converter {
	rate := in.RiyalRate
	if rate <= 0 {
		rate = a.DefaultRiyalRate
	}
	return Converter{Policy: a.Policy, RiyalRate: rate}
}

// activeFamilies drops empty groups; it returns nil when nothing is left to
// split over.
func activeFamilies(groups []FamilyGroup) []FamilyGroup {
	active := make([]FamilyGroup, 0, len(groups))
	for _, g := range groups {
		if g.Size > 0 {
			active = append(active, g)
		}
	}
	if len(active) == 0 {
		return nil
	}
	return active
}

func familyIndex(groups []FamilyGroup, label string) int {
	label = strings.TrimSpace(label)
	if label == "" {
		return -1
	}
	for i, g := range groups {
		if strings.EqualFold(g.Label, label) {
			return i
		}
	}
	return -1
}

// Compute prices every selection and splits the result across families.
//
// Hotel stays labelled with a family are charged to that family alone and
// priced with its headcount. Every other line, including hotel stays whose
// label matches no family, is shared by ratio.
func (a *Aggregator) Compute(in InvoiceInput) *Invoice {
	conv := a.converter(in)
	families := activeFamilies(in.Families)

	inv := &Invoice{
		Currency:  PKR,
		RiyalRate: conv.Rate(),
		Lines:     make([]CostLine, 0),
		Reported:  in.Reported,
	}

	// Hotel lines charged directly to a family, by family index.
	direct := make(map[int][]CostLine)
	var sharedHotel float64

	for _, stay := range in.Hotels {
		headcount := in.Pax.Total()
		idx := familyIndex(families, stay.FamilyLabel)
		if idx >= 0 {
			headcount = families[idx].Size
		}

		line := HotelLine(stay, in.Catalog, headcount, conv)
		inv.Lines = append(inv.Lines, line)
		if idx >= 0 {
			direct[idx] = append(direct[idx], line)
		} else {
			sharedHotel += line.NetPKR
		}
	}

	for _, sel := range in.Transports {
		inv.Lines = append(inv.Lines, TransportLine(sel, a.Transport, conv))
	}
	for _, sel := range in.Foods {
		inv.Lines = append(inv.Lines, MealLine(KindFood, sel, in.Catalog.FoodPrices, conv))
	}
	for _, sel := range in.Ziarats {
		inv.Lines = append(inv.Lines, MealLine(KindZiarat, sel, in.Catalog.ZiaratPrices, conv))
	}
	for _, svc := range in.Flights {
		inv.Lines = append(inv.Lines, PaxPricedLine(KindFlight, svc, conv))
	}
	for _, svc := range in.Visas {
		inv.Lines = append(inv.Lines, PaxPricedLine(KindVisa, svc, conv))
	}

	for _, line := range inv.Lines {
		inv.Totals.Add(line.Kind, line.NetPKR)
		inv.GrandTotal += line.NetPKR
	}

	if families == nil {
		inv.Iterations = []Iteration{{
			Label:      "All passengers",
			Size:       in.Pax.Total(),
			Ratio:      1,
			Totals:     inv.Totals,
			HotelLines: hotelLines(inv.Lines),
			GrandTotal: inv.Totals.Sum(),
		}}
		return inv
	}

	totalPax := 0
	for _, g := range families {
		totalPax += g.Size
	}

	shared := make(map[ServiceKind][]float64, len(ServiceKinds))
	for _, kind := range ServiceKinds {
		total := inv.Totals.Get(kind)
		if kind == KindHotel {
			total = sharedHotel
		}
		shared[kind] = Allocate(total, families)
	}

	inv.Iterations = make([]Iteration, 0, len(families))
	for i, g := range families {
		it := Iteration{
			Label:      g.Label,
			Size:       g.Size,
			Ratio:      float64(g.Size) / float64(totalPax),
			HotelLines: direct[i],
		}
		if it.HotelLines == nil {
			it.HotelLines = []CostLine{}
		}

		for _, line := range direct[i] {
			it.Totals.Hotel += line.NetPKR
		}
		for _, kind := range ServiceKinds {
			it.Totals.Add(kind, shared[kind][i])
		}

		it.GrandTotal = it.Totals.Sum()
		inv.Iterations = append(inv.Iterations, it)
	}
	return inv
}

func hotelLines(lines []CostLine) []CostLine {
	out := make([]CostLine, 0)
	for _, l := range lines {
		if l.Kind == KindHotel {
			out = append(out, l)
		}
	}
	return out
}
