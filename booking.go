package main

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/spf13/cast"
)

// Booking is a booking snapshot after normalization. Every fallback between
// the API's alternative field names is resolved here, once.
type Booking struct {
	ID         string               `json:"id"`
	Pax        PaxCounts            `json:"pax"`
	Families   []FamilyGroup        `json:"families"`
	RiyalRate  float64              `json:"riyal_rate"`
	Hotels     []HotelStay          `json:"hotels"`
	Transports []TransportSelection `json:"transports"`
	Foods      []MealSelection      `json:"foods"`
	Ziarats    []MealSelection      `json:"ziarats"`
	Flights    []PaxPricedService   `json:"flights"`
	Visas      []PaxPricedService   `json:"visas"`
	Reported   ReportedTotals       `json:"reported"`
}

// InvoiceInput pairs the booking with a catalog. Explicit families replace
// the ones stored on the booking.
func (b *Booking) InvoiceInput(catalog Catalog, families []FamilyGroup) InvoiceInput {
	if families == nil {
		families = b.Families
	}
	return InvoiceInput{
		Pax:        b.Pax,
		Families:   families,
		Hotels:     b.Hotels,
		Transports: b.Transports,
		Foods:      b.Foods,
		Ziarats:    b.Ziarats,
		Flights:    b.Flights,
		Visas:      b.Visas,
		Catalog:    catalog,
		RiyalRate:  b.RiyalRate,
		Reported:   b.Reported,
	}
}

// lookup returns the value of the first key that is present and not empty.
func lookup(m map[string]interface{}, keys ...string) (interface{}, bool) {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			continue
		}
		return v, true
	}
	return nil, false
}

func floatField(m map[string]interface{}, keys ...string) float64 {
	v, ok := lookup(m, keys...)
	if !ok {
		return 0
	}
	if s, isString := v.(string); isString {
		v = strings.TrimSpace(s)
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0
	}
	return f
}

// optionalFloat is like floatField but distinguishes "absent" from zero.
func optionalFloat(m map[string]interface{}, keys ...string) *float64 {
	v, ok := lookup(m, keys...)
	if !ok {
		return nil
	}
	if s, isString := v.(string); isString {
		v = strings.TrimSpace(s)
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return nil
	}
	return &f
}

var leadingNumber = regexp.MustCompile(`^[+-]?\d+(\.\d+)?`)

// intField truncates, so "3", 3.0, "3.5" and "3 nights" all give 3. A string
// is read up to the end of its leading number; without one the field is 0.
func intField(m map[string]interface{}, keys ...string) int {
	v, ok := lookup(m, keys...)
	if !ok {
		return 0
	}
	if s, isString := v.(string); isString {
		num := leadingNumber.FindString(strings.TrimSpace(s))
		if num == "" {
			return 0
		}
		v = num
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0
	}
	return int(f)
}

func stringField(m map[string]interface{}, keys ...string) string {
	v, ok := lookup(m, keys...)
	if !ok {
		return ""
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func boolField(m map[string]interface{}, keys ...string) bool {
	v, ok := lookup(m, keys...)
	if !ok {
		return false
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return false
	}
	return b
}

func objectField(m map[string]interface{}, key string) map[string]interface{} {
	obj, _ := m[key].(map[string]interface{})
	return obj
}

// refField reads a foreign key that may be a bare id or a nested object.
func refField(m map[string]interface{}, keys ...string) (id string, obj map[string]interface{}) {
	for _, k := range keys {
		if nested := objectField(m, k); nested != nil {
			return stringField(nested, "id", "pk"), nested
		}
		if id := stringField(m, k); id != "" {
			return id, nil
		}
	}
	return "", nil
}

// listField returns the object entries of the first non-empty list; entries
// that are not objects are skipped.
func listField(m map[string]interface{}, keys ...string) []map[string]interface{} {
	for _, k := range keys {
		raw, ok := m[k].([]interface{})
		if !ok || len(raw) == 0 {
			continue
		}
		out := make([]map[string]interface{}, 0, len(raw))
		for _, item := range raw {
			if obj, ok := item.(map[string]interface{}); ok {
				out = append(out, obj)
			}
		}
		return out
	}
	return nil
}

// NormalizeBooking maps a booking payload into a Booking. A nil payload is
// an empty booking. Missing fields default to zero.
func NormalizeBooking(payload map[string]interface{}) *Booking {
	b := &Booking{}
	if payload == nil {
		return b
	}

	b.ID = stringField(payload, "id", "booking_number", "booking_id")
	b.Pax = normalizePax(payload)
	b.Families = normalizeFamilies(payload)
	b.RiyalRate = floatField(payload, "riyal_rate", "exchange_rate", "sar_rate")
	b.Reported = ReportedTotals{
		TotalAmount:      floatField(payload, "total_amount", "grand_total"),
		TotalHotelAmount: floatField(payload, "total_hotel_amount"),
	}

	for _, h := range listField(payload, "hotel_details", "hotels") {
		b.Hotels = append(b.Hotels, normalizeHotelStay(h))
	}
	for _, t := range listField(payload, "transport_details", "transports") {
		b.Transports = append(b.Transports, normalizeTransport(t))
	}
	for _, f := range listField(payload, "food_details", "foods") {
		b.Foods = append(b.Foods, normalizeMeal(f, b.Pax, "food_price", "food_price_id", "food"))
	}
	for _, z := range listField(payload, "ziarat_details", "ziarats") {
		b.Ziarats = append(b.Ziarats, normalizeMeal(z, b.Pax, "ziarat_price", "ziarat_price_id", "ziarat"))
	}
	for _, t := range listField(payload, "ticket_details", "flight_details") {
		b.Flights = append(b.Flights, normalizePaxPriced(t, b.Pax, "flight_number", "pnr", "airline"))
	}
	for _, v := range listField(payload, "visa_details") {
		b.Visas = append(b.Visas, normalizePaxPriced(v, b.Pax, "visa_type", "title", "name"))
	}
	if len(b.Visas) == 0 {
		// Older bookings keep visa prices on the booking itself.
		prices := PaxPrices{
			Adult:  floatField(payload, "visa_adult_price", "adult_visa_price"),
			Child:  floatField(payload, "visa_child_price", "child_visa_price"),
			Infant: floatField(payload, "visa_infant_price", "infant_visa_price"),
		}
		if prices != (PaxPrices{}) {
			b.Visas = append(b.Visas, PaxPricedService{Description: "Visa", Prices: prices, Pax: b.Pax})
		}
	}
	return b
}

// normalizePax counts person_details by age group. Without passenger rows it
// falls back to the booking's stored totals.
func normalizePax(payload map[string]interface{}) PaxCounts {
	var pax PaxCounts
	persons := listField(payload, "person_details", "passengers")
	if len(persons) == 0 {
		return PaxCounts{
			Adults:   intField(payload, "total_adult", "total_adults", "adults"),
			Children: intField(payload, "total_child", "total_children", "children"),
			Infants:  intField(payload, "total_infant", "total_infants", "infants"),
		}
	}

	for _, p := range persons {
		switch strings.ToLower(stringField(p, "age_group", "person_type", "type")) {
		case "child", "children":
			pax.Children++
		case "infant", "infants":
			pax.Infants++
		default:
			pax.Adults++
		}
	}
	return pax
}

// normalizeFamilies reads family_sizes ([2, 3]) or families
// ([{label, size}]), in that order.
func normalizeFamilies(payload map[string]interface{}) []FamilyGroup {
	if raw, ok := payload["family_sizes"].([]interface{}); ok && len(raw) > 0 {
		sizes := make([]int, 0, len(raw))
		for _, v := range raw {
			size, err := cast.ToFloat64E(v)
			if err != nil {
				continue
			}
			sizes = append(sizes, int(size))
		}
		return FamilyGroupsFromSizes(sizes)
	}

	entries := listField(payload, "families")
	if len(entries) == 0 {
		return nil
	}
	groups := make([]FamilyGroup, 0, len(entries))
	for i, f := range entries {
		label := stringField(f, "label", "name", "family_label")
		if label == "" {
			label = fmt.Sprintf("Family %d", i+1)
		}
		groups = append(groups, FamilyGroup{Label: label, Size: intField(f, "size", "count", "members")})
	}
	return groups
}

// normalizeHotelStay chains, first match wins:
//
//	hotel id:  hotel (id or {id}), hotel_id
//	name:      hotel.name, hotel_name, name
//	room type: room_type, sharing_type, type
//	nights:    number_of_nights, nights, total_nights (leading integer, so "3 nights" is 3)
//	rate:      price, rate, per_night_price
//	family:    family_label, family
//
// A stay is self arranged when self_hotel / is_self_hotel / self_arranged is
// true or the hotel id is "self".
func normalizeHotelStay(h map[string]interface{}) HotelStay {
	id, hotel := refField(h, "hotel", "hotel_id")
	name := ""
	if hotel != nil {
		name = stringField(hotel, "name")
	}
	if name == "" {
		name = stringField(h, "hotel_name", "name")
	}

	return HotelStay{
		HotelID:      id,
		HotelName:    name,
		RoomType:     strings.ToLower(stringField(h, "room_type", "sharing_type", "type")),
		Nights:       intField(h, "number_of_nights", "nights", "total_nights"),
		SelfArranged: boolField(h, "self_hotel", "is_self_hotel", "self_arranged") || strings.EqualFold(id, "self"),
		SavedRate:    floatField(h, "price", "rate", "per_night_price"),
		FamilyLabel:  stringField(h, "family_label", "family"),
	}
}

// normalizeTransport chains:
//
//	description: sector, route, description
//	vehicle:     vehicle_type.name, vehicle_type, vehicle
//	rate:        price, rate
//	quantity:    quantity, number_of_vehicles, vehicles
//	saved net:   net_amount, total_price
func normalizeTransport(t map[string]interface{}) TransportSelection {
	vehicle := ""
	if obj := objectField(t, "vehicle_type"); obj != nil {
		vehicle = stringField(obj, "name", "vehicle_name")
	}
	if vehicle == "" {
		vehicle = stringField(t, "vehicle_type", "vehicle")
	}
	var description string
	if obj := objectField(t, "sector"); obj != nil {
		description = stringField(obj, "name", "title")
	} else {
		description = stringField(t, "sector", "route", "description")
	}

	return TransportSelection{
		Description: description,
		VehicleType: vehicle,
		Rate:        floatField(t, "price", "rate"),
		Quantity:    intField(t, "quantity", "number_of_vehicles", "vehicles"),
		SavedNet:    floatField(t, "net_amount", "total_price"),
	}
}

// normalizeMeal handles food and ziarat rows alike. Price ids come from the
// given keys; per-class saved prices are adult_price/adult_selling_price and
// the child/infant equivalents; the saved net is net_amount, total_price or
// total. Rows with no passenger counts of their own use the booking's.
func normalizeMeal(m map[string]interface{}, bookingPax PaxCounts, idKeys ...string) MealSelection {
	id, obj := refField(m, idKeys...)
	name := ""
	if obj != nil {
		name = stringField(obj, "title", "name")
	}
	if name == "" {
		name = stringField(m, "title", "name")
	}

	pax := PaxCounts{
		Adults:   intField(m, "total_adults", "adults"),
		Children: intField(m, "total_children", "children"),
		Infants:  intField(m, "total_infants", "infants"),
	}
	if pax.Total() == 0 {
		pax = bookingPax
	}

	return MealSelection{
		PriceID: id,
		Name:    name,
		Pax:     pax,
		Override: PriceOverride{
			Adult:  optionalFloat(m, "adult_price", "adult_selling_price"),
			Child:  optionalFloat(m, "child_price", "child_selling_price"),
			Infant: optionalFloat(m, "infant_price", "infant_selling_price"),
		},
		SavedNet: floatField(m, "net_amount", "total_price", "total"),
	}
}

// normalizePaxPriced handles flight legs and visas: per-class prices from
// <class>_price or <class>_fare, passenger counts from seats/adults/...
// or the booking.
func normalizePaxPriced(m map[string]interface{}, bookingPax PaxCounts, descriptionKeys ...string) PaxPricedService {
	pax := PaxCounts{
		Adults:   intField(m, "adults", "adult_seats", "total_adults"),
		Children: intField(m, "children", "child_seats", "total_children"),
		Infants:  intField(m, "infants", "infant_seats", "total_infants"),
	}
	if pax.Total() == 0 {
		pax = bookingPax
	}

	return PaxPricedService{
		Description: stringField(m, descriptionKeys...),
		Prices: PaxPrices{
			Adult:  floatField(m, "adult_price", "adult_fare"),
			Child:  floatField(m, "child_price", "child_fare"),
			Infant: floatField(m, "infant_price", "infant_fare"),
		},
		Pax: pax,
	}
}

// NormalizeCatalog builds a Catalog from the hotel, food price and ziarat
// price lists. Entries without an id are dropped.
func NormalizeCatalog(hotels, foodPrices, ziaratPrices []map[string]interface{}) Catalog {
	catalog := Catalog{
		Hotels:       make(map[string]Hotel, len(hotels)),
		FoodPrices:   normalizePriceList(foodPrices),
		ZiaratPrices: normalizePriceList(ziaratPrices),
	}

	for _, h := range hotels {
		id := stringField(h, "id", "pk")
		if id == "" {
			continue
		}
		hotel := Hotel{ID: id, Name: stringField(h, "name")}
		for _, p := range listField(h, "prices", "room_prices") {
			hotel.Prices = append(hotel.Prices, RoomPrice{
				RoomType: strings.ToLower(stringField(p, "room_type", "type")),
				Price:    floatField(p, "price", "selling_price"),
			})
		}
		catalog.Hotels[id] = hotel
	}
	return catalog
}

func normalizePriceList(entries []map[string]interface{}) map[string]PaxPrices {
	prices := make(map[string]PaxPrices, len(entries))
	for _, e := range entries {
		id := stringField(e, "id", "pk")
		if id == "" {
			continue
		}
		prices[id] = PaxPrices{
			Adult:  floatField(e, "adult_selling_price", "adult_price"),
			Child:  floatField(e, "child_selling_price", "child_price"),
			Infant: floatField(e, "infant_selling_price", "infant_price"),
		}
	}
	return prices
}
