package main

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ServiceKind tags a bookable service.
type ServiceKind string

const (
	KindHotel     ServiceKind = "hotel"
	KindTransport ServiceKind = "transport"
	KindFood      ServiceKind = "food"
	KindZiarat    ServiceKind = "ziarat"
	KindFlight    ServiceKind = "flight"
	KindVisa      ServiceKind = "visa"
)

// ServiceKinds lists every kind in invoice display order.
var ServiceKinds = []ServiceKind{KindHotel, KindTransport, KindFood, KindZiarat, KindFlight, KindVisa}

type Currency string

const (
	PKR Currency = "PKR"
	SAR Currency = "SAR"
)

// CurrencyPolicy decides which currency a service's amounts are quoted in.
type CurrencyPolicy interface {
	CurrencyFor(kind ServiceKind) Currency
}

type CurrencyPolicyFunc func(kind ServiceKind) Currency

func (f CurrencyPolicyFunc) CurrencyFor(kind ServiceKind) Currency { return f(kind) }

// AlwaysPKR treats every amount as already in PKR. This is the policy the
// portal runs with; the SAR path stays available through ServiceCurrencies.
var AlwaysPKR CurrencyPolicy = CurrencyPolicyFunc(func(ServiceKind) Currency { return PKR })

// ServiceCurrencies quotes each listed kind in the mapped currency and any
// unlisted kind in PKR.
type ServiceCurrencies map[ServiceKind]Currency

func (m ServiceCurrencies) CurrencyFor(kind ServiceKind) Currency {
	if c, ok := m[kind]; ok {
		return c
	}
	return PKR
}

// Converter normalizes native amounts into PKR.
type Converter struct {
	Policy    CurrencyPolicy
	RiyalRate float64
}

func (c Converter) policy() CurrencyPolicy {
	if c.Policy == nil {
		return AlwaysPKR
	}
	return c.Policy
}

// CurrencyFor reports the native currency of a kind. Flights are always PKR.
func (c Converter) CurrencyFor(kind ServiceKind) Currency {
	if kind == KindFlight {
		return PKR
	}
	return c.policy().CurrencyFor(kind)
}

// Rate is the SAR to PKR rate in effect; a missing or non-positive rate is 1.
func (c Converter) Rate() float64 {
	if c.RiyalRate <= 0 {
		return 1
	}
	return c.RiyalRate
}

func (c Converter) ToPKR(kind ServiceKind, amount float64) float64 {
	if c.CurrencyFor(kind) == PKR {
		return amount
	}
	return amount * c.Rate()
}

// CurrencyPolicyFile is the on-disk form of a currency policy.
//
//	riyal_rate: 75.5
//	currencies:
//	  hotel: SAR
//	  food: SAR
type CurrencyPolicyFile struct {
	RiyalRate  float64           `yaml:"riyal_rate"`
	Currencies map[string]string `yaml:"currencies"`
}

// LoadCurrencyPolicy reads a policy file. An empty path yields AlwaysPKR.
func LoadCurrencyPolicy(path string) (CurrencyPolicy, float64, error) {
	if path == "" {
		return AlwaysPKR, 0, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read currency policy: %w", err)
	}
	return ParseCurrencyPolicy(data)
}

func ParseCurrencyPolicy(data []byte) (CurrencyPolicy, float64, error) {
	var file CurrencyPolicyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, 0, fmt.Errorf("failed to parse currency policy: %w", err)
	}

	if file.RiyalRate < 0 {
		return nil, 0, &ValidationError{Field: "riyal_rate", Message: "must not be negative"}
	}

	policy := ServiceCurrencies{}
	for kind, currency := range file.Currencies {
		k := ServiceKind(strings.ToLower(strings.TrimSpace(kind)))
		if !validServiceKind(k) {
			return nil, 0, &ValidationError{Field: "currencies", Message: fmt.Sprintf("unknown service %q", kind)}
		}
		c := Currency(strings.ToUpper(strings.TrimSpace(currency)))
		if c != PKR && c != SAR {
			return nil, 0, &ValidationError{Field: "currencies", Message: fmt.Sprintf("unknown currency %q", currency)}
		}
		policy[k] = c
	}
	return policy, file.RiyalRate, nil
}

func validServiceKind(k ServiceKind) bool {
	for _, known := range ServiceKinds {
		if k == known {
			return true
		}
	}
	return false
}
