package main

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocate(t *testing.T) {
	shares := Allocate(1000, FamilyGroupsFromSizes([]int{2, 3}))
	require.Len(t, shares, 2)
	require.InDelta(t, 400, shares[0], 1e-9)
	require.InDelta(t, 600, shares[1], 1e-9)
	require.InDelta(t, 1000, shares[0]+shares[1], 1e-9)

	require.Nil(t, Allocate(1000, nil))
	require.Nil(t, Allocate(1000, []FamilyGroup{{Label: "empty", Size: 0}}))
}

func TestFamilyGroupsFromSizes(t *testing.T) {
	require.Equal(t, []FamilyGroup{
		{Label: "Family 1", Size: 2},
		{Label: "Family 2", Size: 3},
	}, FamilyGroupsFromSizes([]int{2, 3}))
}

func sampleInput(pax PaxCounts) InvoiceInput {
	return InvoiceInput{
		Pax: pax,
		Catalog: Catalog{
			Hotels: map[string]Hotel{
				"1": {ID: "1", Name: "Swissotel", Prices: []RoomPrice{{RoomType: "sharing", Price: 100}, {RoomType: "double", Price: 500}}},
				"2": {ID: "2", Name: "Pullman", Prices: []RoomPrice{{RoomType: "sharing", Price: 80}}},
			},
			FoodPrices:   map[string]PaxPrices{"f": {Adult: 50, Child: 30}},
			ZiaratPrices: map[string]PaxPrices{"z": {Adult: 20, Child: 10, Infant: 5}},
		},
		Hotels: []HotelStay{
			{HotelID: "1", RoomType: "sharing", Nights: 3},
			{HotelID: "2", RoomType: "sharing", Nights: 4},
			{HotelID: "1", RoomType: "double", Nights: 2, SelfArranged: true},
		},
		Transports: []TransportSelection{{VehicleType: "Bus", Rate: 1000, Quantity: 1}},
		Foods:      []MealSelection{{PriceID: "f", Pax: pax}},
		Ziarats:    []MealSelection{{PriceID: "z", Pax: pax}},
		Flights:    []PaxPricedService{{Prices: PaxPrices{Adult: 1000, Child: 800, Infant: 100}, Pax: pax}},
		Visas:      []PaxPricedService{{Prices: PaxPrices{Adult: 300, Child: 200}, Pax: pax}},
	}
}

func TestComputeSingleIteration(t *testing.T) {
	pax := PaxCounts{Adults: 3, Children: 1}
	inv := NewAggregator(AlwaysPKR, 0).Compute(sampleInput(pax))

	require.Equal(t, PKR, inv.Currency)
	require.Len(t, inv.Lines, 8)
	require.InDelta(t, 100*4*3+80*4*4, inv.Totals.Hotel, 1e-9)
	require.InDelta(t, 1000, inv.Totals.Transport, 1e-9)
	require.InDelta(t, 3*50+30, inv.Totals.Food, 1e-9)
	require.InDelta(t, 3*20+10, inv.Totals.Ziarat, 1e-9)
	require.InDelta(t, 3*1000+800, inv.Totals.Flight, 1e-9)
	require.InDelta(t, 3*300+200, inv.Totals.Visa, 1e-9)

	require.Len(t, inv.Iterations, 1)
	it := inv.Iterations[0]
	require.Equal(t, 1.0, it.Ratio)
	require.Equal(t, 4, it.Size)
	require.Len(t, it.HotelLines, 3)
	require.InDelta(t, inv.GrandTotal, it.GrandTotal, 1e-9)
	require.InDelta(t, inv.Totals.Sum(), inv.GrandTotal, 1e-9)
}

func TestComputeFamilySplit(t *testing.T) {
	pax := PaxCounts{Adults: 4, Children: 1}
	in := sampleInput(pax)
	in.Families = []FamilyGroup{{Label: "Family 1", Size: 2}, {Label: "Family 2", Size: 3}}
	in.Hotels = []HotelStay{
		{HotelID: "1", RoomType: "sharing", Nights: 3, FamilyLabel: "Family 1"},
		{HotelID: "1", RoomType: "double", Nights: 3, FamilyLabel: "family 2"},
		{HotelID: "2", RoomType: "sharing", Nights: 1},
	}

	inv := NewAggregator(nil, 0).Compute(in)
	require.Len(t, inv.Iterations, 2)

	first, second := inv.Iterations[0], inv.Iterations[1]
	require.InDelta(t, 0.4, first.Ratio, 1e-12)
	require.InDelta(t, 0.6, second.Ratio, 1e-12)

	// Family 1 sharing room priced for its own two heads, family 2 double
	// room pinned to one, unlabelled stay priced for everyone and shared.
	unlabelled := 80.0 * 5 * 1
	require.InDelta(t, 100*2*3+unlabelled*0.4, first.Totals.Hotel, 1e-9)
	require.InDelta(t, 500*1*3+unlabelled*0.6, second.Totals.Hotel, 1e-9)
	require.Len(t, first.HotelLines, 1)
	require.Len(t, second.HotelLines, 1)

	require.InDelta(t, 400, first.Totals.Transport, 1e-9)
	require.InDelta(t, 600, second.Totals.Transport, 1e-9)
	require.InDelta(t, inv.Totals.Visa*0.4, first.Totals.Visa, 1e-9)

	require.InDelta(t, inv.GrandTotal, first.GrandTotal+second.GrandTotal, 1e-6)
}

func TestComputeIgnoresEmptyFamilies(t *testing.T) {
	in := sampleInput(PaxCounts{Adults: 2})
	in.Families = []FamilyGroup{{Label: "Family 1", Size: 0}}

	inv := NewAggregator(nil, 0).Compute(in)
	require.Len(t, inv.Iterations, 1)
	require.Equal(t, 1.0, inv.Iterations[0].Ratio)
}

func TestComputeCurrencyPolicy(t *testing.T) {
	pax := PaxCounts{Adults: 2}
	in := sampleInput(pax)

	pkr := NewAggregator(AlwaysPKR, 75).Compute(in)
	sar := NewAggregator(ServiceCurrencies{KindHotel: SAR, KindFood: SAR, KindFlight: SAR}, 75).Compute(in)

	require.InDelta(t, pkr.Totals.Hotel*75, sar.Totals.Hotel, 1e-6)
	require.InDelta(t, pkr.Totals.Food*75, sar.Totals.Food, 1e-6)
	require.InDelta(t, pkr.Totals.Flight, sar.Totals.Flight, 1e-9)
	require.InDelta(t, pkr.Totals.Visa, sar.Totals.Visa, 1e-9)
	require.Equal(t, 75.0, sar.RiyalRate)

	in.RiyalRate = 80
	override := NewAggregator(ServiceCurrencies{KindHotel: SAR}, 75).Compute(in)
	require.InDelta(t, pkr.Totals.Hotel*80, override.Totals.Hotel, 1e-6)
}

func TestGrandTotalConsistency(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for round := 0; round < 200; round++ {
		pax := PaxCounts{Adults: 1 + rng.Intn(10), Children: rng.Intn(4), Infants: rng.Intn(3)}
		total := pax.Total()

		// Random partition of total passengers into families.
		var sizes []int
		for remaining := total; remaining > 0; {
			size := 1 + rng.Intn(remaining)
			sizes = append(sizes, size)
			remaining -= size
		}
		groups := FamilyGroupsFromSizes(sizes)

		in := sampleInput(pax)
		in.Families = groups
		in.Transports[0].Rate = float64(rng.Intn(5000))
		in.Hotels = nil
		for i := 0; i < 4; i++ {
			stay := HotelStay{
				HotelID:  []string{"1", "2"}[rng.Intn(2)],
				RoomType: []string{"sharing", "double"}[rng.Intn(2)],
				Nights:   rng.Intn(6),
			}
			if rng.Intn(3) > 0 {
				stay.FamilyLabel = groups[rng.Intn(len(groups))].Label
			}
			in.Hotels = append(in.Hotels, stay)
		}

		policy := CurrencyPolicy(AlwaysPKR)
		if round%2 == 1 {
			policy = ServiceCurrencies{KindHotel: SAR, KindTransport: SAR}
		}
		inv := NewAggregator(policy, 74.25).Compute(in)

		flat := 0.0
		for _, line := range inv.Lines {
			flat += line.NetPKR
		}
		summed := 0.0
		ratios := 0.0
		for _, it := range inv.Iterations {
			summed += it.GrandTotal
			ratios += it.Ratio
		}

		require.InDelta(t, flat, inv.GrandTotal, 1e-6)
		require.InDelta(t, flat, summed, 1e-6, "round %d sizes %v", round, sizes)
		require.InDelta(t, 1.0, ratios, 1e-9)
	}
}
