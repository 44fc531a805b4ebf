package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func decodePayload(t *testing.T, raw string) map[string]interface{} {
	t.Helper()
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))
	return payload
}

const sampleBookingJSON = `{
	"id": 981,
	"riyal_rate": "74.5",
	"total_amount": "120000",
	"total_hotel_amount": 50000,
	"family_sizes": [2, "1"],
	"person_details": [
		{"first_name": "A", "age_group": "Adult"},
		{"first_name": "B", "age_group": "adult"},
		{"first_name": "C", "person_type": "child"},
		{"first_name": "D", "type": "INFANT"},
		{"first_name": "E"}
	],
	"hotel_details": [
		{"hotel": {"id": 12, "name": "Makkah Towers"}, "room_type": "Sharing", "number_of_nights": "3", "family_label": "Family 1"},
		{"hotel_id": "14", "hotel_name": "Pullman", "sharing_type": "double", "nights": 2.0, "price": "450"},
		{"hotel": "self", "room_type": "double", "nights": 5},
		{"hotel": 15, "room_type": "quad", "nights": "abc", "self_hotel": "true"}
	],
	"transport_details": [
		{"sector": {"name": "JED-MAK"}, "vehicle_type": {"name": "Bus"}, "price": 1000, "quantity": "2"},
		{"route": "MAK-MED", "vehicle": "Car", "rate": 300, "net_amount": "900"}
	],
	"food_details": [
		{"food_price": {"id": 5, "title": "Full board"}, "adult_price": 60, "total_adults": 2, "total_children": 1},
		{"food_price_id": 6, "net_amount": 0}
	],
	"ziarat_details": [
		{"ziarat_price": 9, "child_price": "", "total_price": "700"}
	],
	"ticket_details": [
		{"flight_number": "PK-741", "adult_fare": "90000", "child_price": 70000, "adults": 3}
	],
	"visa_details": [],
	"visa_adult_price": 30000
}`

func TestNormalizeBooking(t *testing.T) {
	b := NormalizeBooking(decodePayload(t, sampleBookingJSON))

	require.Equal(t, "981", b.ID)
	require.Equal(t, 74.5, b.RiyalRate)
	require.Equal(t, PaxCounts{Adults: 3, Children: 1, Infants: 1}, b.Pax)
	require.Equal(t, []FamilyGroup{{Label: "Family 1", Size: 2}, {Label: "Family 2", Size: 1}}, b.Families)
	require.Equal(t, ReportedTotals{TotalAmount: 120000, TotalHotelAmount: 50000}, b.Reported)

	t.Run("Hotels", func(t *testing.T) {
		require.Len(t, b.Hotels, 4)
		require.Equal(t, HotelStay{
			HotelID: "12", HotelName: "Makkah Towers", RoomType: "sharing", Nights: 3, FamilyLabel: "Family 1",
		}, b.Hotels[0])
		require.Equal(t, HotelStay{
			HotelID: "14", HotelName: "Pullman", RoomType: "double", Nights: 2, SavedRate: 450,
		}, b.Hotels[1])
		require.True(t, b.Hotels[2].SelfArranged)
		require.True(t, b.Hotels[3].SelfArranged)
		require.Zero(t, b.Hotels[3].Nights)
	})

	t.Run("Transports", func(t *testing.T) {
		require.Equal(t, []TransportSelection{
			{Description: "JED-MAK", VehicleType: "Bus", Rate: 1000, Quantity: 2},
			{Description: "MAK-MED", VehicleType: "Car", Rate: 300, SavedNet: 900},
		}, b.Transports)
	})

	t.Run("Meals", func(t *testing.T) {
		require.Len(t, b.Foods, 2)
		food := b.Foods[0]
		require.Equal(t, "5", food.PriceID)
		require.Equal(t, "Full board", food.Name)
		require.Equal(t, PaxCounts{Adults: 2, Children: 1}, food.Pax)
		require.NotNil(t, food.Override.Adult)
		require.Equal(t, 60.0, *food.Override.Adult)
		require.Nil(t, food.Override.Child)

		require.Equal(t, "6", b.Foods[1].PriceID)
		require.Equal(t, b.Pax, b.Foods[1].Pax)
		require.Zero(t, b.Foods[1].SavedNet)

		require.Len(t, b.Ziarats, 1)
		require.Equal(t, "9", b.Ziarats[0].PriceID)
		require.Nil(t, b.Ziarats[0].Override.Child, "empty string is not a saved price")
		require.Equal(t, 700.0, b.Ziarats[0].SavedNet)
	})

	t.Run("Flights and visas", func(t *testing.T) {
		require.Equal(t, []PaxPricedService{{
			Description: "PK-741",
			Prices:      PaxPrices{Adult: 90000, Child: 70000},
			Pax:         PaxCounts{Adults: 3},
		}}, b.Flights)

		require.Len(t, b.Visas, 1)
		require.Equal(t, 30000.0, b.Visas[0].Prices.Adult)
		require.Equal(t, b.Pax, b.Visas[0].Pax)
	})
}

func TestNormalizeBookingFallbacks(t *testing.T) {
	t.Run("Nil payload is an empty booking", func(t *testing.T) {
		b := NormalizeBooking(nil)
		require.NotNil(t, b)
		require.Zero(t, b.Pax.Total())
		require.Empty(t, b.Hotels)
	})

	t.Run("Stored totals when there are no passengers", func(t *testing.T) {
		b := NormalizeBooking(decodePayload(t, `{"total_adult": "4", "total_children": 2, "infants": 1}`))
		require.Equal(t, PaxCounts{Adults: 4, Children: 2, Infants: 1}, b.Pax)
	})

	t.Run("First present key wins", func(t *testing.T) {
		b := NormalizeBooking(decodePayload(t, `{
			"hotel_details": [{"hotel_name": "", "name": "Fallback", "number_of_nights": null, "nights": 4}]
		}`))
		require.Equal(t, "Fallback", b.Hotels[0].HotelName)
		require.Equal(t, 4, b.Hotels[0].Nights)
	})

	t.Run("Nights with trailing text", func(t *testing.T) {
		b := NormalizeBooking(decodePayload(t, `{
			"hotel_details": [
				{"hotel": 1, "nights": "3 nights"},
				{"hotel": 2, "number_of_nights": " 2.5 "},
				{"hotel": 3, "nights": "nights: 4"}
			]
		}`))
		require.Equal(t, 3, b.Hotels[0].Nights)
		require.Equal(t, 2, b.Hotels[1].Nights)
		require.Zero(t, b.Hotels[2].Nights)
	})

	t.Run("Labelled families", func(t *testing.T) {
		b := NormalizeBooking(decodePayload(t, `{"families": [{"name": "Khan", "size": 3}, {"count": "2"}]}`))
		require.Equal(t, []FamilyGroup{{Label: "Khan", Size: 3}, {Label: "Family 2", Size: 2}}, b.Families)
	})

	t.Run("Junk entries are skipped", func(t *testing.T) {
		b := NormalizeBooking(decodePayload(t, `{"hotel_details": ["x", 3, {"hotel": 1}]}`))
		require.Len(t, b.Hotels, 1)
	})
}

func TestNormalizeCatalog(t *testing.T) {
	var hotels, food, ziarat []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(`[
		{"id": 12, "name": "Makkah Towers", "prices": [{"room_type": "Sharing", "price": "100"}, {"type": "double", "selling_price": 500}]},
		{"name": "no id"}
	]`), &hotels))
	require.NoError(t, json.Unmarshal([]byte(`[{"id": 5, "adult_selling_price": 50, "child_price": "30"}]`), &food))
	require.NoError(t, json.Unmarshal([]byte(`[{"pk": "z1", "adult_price": 20}]`), &ziarat))

	catalog := NormalizeCatalog(hotels, food, ziarat)
	require.Len(t, catalog.Hotels, 1)

	rate, ok := catalog.Hotels["12"].RateFor("sharing")
	require.True(t, ok)
	require.Equal(t, 100.0, rate)
	rate, ok = catalog.Hotels["12"].RateFor("Double")
	require.True(t, ok)
	require.Equal(t, 500.0, rate)

	require.Equal(t, PaxPrices{Adult: 50, Child: 30}, catalog.FoodPrices["5"])
	require.Equal(t, PaxPrices{Adult: 20}, catalog.ZiaratPrices["z1"])
}

func TestBookingInvoiceEndToEnd(t *testing.T) {
	b := NormalizeBooking(decodePayload(t, sampleBookingJSON))
	catalog := Catalog{
		Hotels: map[string]Hotel{
			"12": {ID: "12", Prices: []RoomPrice{{RoomType: "sharing", Price: 100}}},
		},
		FoodPrices: map[string]PaxPrices{"5": {Adult: 50, Child: 30}},
	}

	inv := NewAggregator(AlwaysPKR, 0).Compute(b.InvoiceInput(catalog, nil))
	require.Len(t, inv.Iterations, 2)
	// Family 1 sharing room: 100 per head, 2 heads, 3 nights.
	require.Equal(t, 600.0, inv.Lines[0].NetPKR)
	require.Equal(t, 900.0, inv.Lines[1].NetPKR)
	require.Equal(t, 120000.0, inv.Reported.TotalAmount)

	summed := 0.0
	for _, it := range inv.Iterations {
		summed += it.GrandTotal
	}
	require.InDelta(t, inv.GrandTotal, summed, 1e-6)

	single := NewAggregator(AlwaysPKR, 0).Compute(b.InvoiceInput(catalog, []FamilyGroup{}))
	require.Len(t, single.Iterations, 1)
}
