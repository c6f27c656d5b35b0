// Package config loads the market catalogue from YAML. Monetary fields
// are strings in the file and parse into decimals; a missing file falls
// back to the built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/agenttycoon/sim-engine/internal/market"
)

// Config mirrors the YAML document. Use Catalogue to obtain the parsed,
// decimal-typed form.
type Config struct {
	Market   MarketConfig    `yaml:"market"`
	Stocks   []StockConfig   `yaml:"stocks"`
	Bonds    []BondConfig    `yaml:"bonds"`
	Projects []ProjectConfig `yaml:"projects"`
}

type MarketConfig struct {
	BaseInterestRate string `yaml:"base_interest_rate"`
}

type StockConfig struct {
	Ticker string `yaml:"ticker"`
	Price  string `yaml:"price"`
}

type BondConfig struct {
	BondID        string `yaml:"bond_id"`
	Name          string `yaml:"name"`
	FaceValue     string `yaml:"face_value"`
	CouponRate    string `yaml:"coupon_rate"`
	MaturityYears int    `yaml:"maturity_years"`
	Price         string `yaml:"price"`
}

type ProjectConfig struct {
	ProjectID          string  `yaml:"project_id"`
	Name               string  `yaml:"name"`
	RequiredInvestment string  `yaml:"required_investment"`
	ExpectedReturnPct  string  `yaml:"expected_return_pct"`
	RiskLevel          string  `yaml:"risk_level"`
	WeeksToCompletion  int     `yaml:"weeks_to_completion"`
	SuccessProbability float64 `yaml:"success_probability"`
}

// Catalogue is the parsed form of a Config, typed for the market
// backends.
type Catalogue struct {
	BaseRate decimal.Decimal
	Stocks   map[string]decimal.Decimal
	Bonds    []market.Bond
	Projects []market.Project
}

// Load reads and validates a YAML config file. A missing path returns
// Default; an unreadable, malformed, or invalid file returns an error so
// the caller can decide how to degrade.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks the config without building anything.
func (c *Config) Validate() error {
	_, err := c.Catalogue()
	return err
}

// Catalogue parses the string-typed monetary fields and checks every
// business constraint: positive prices and face values, probabilities in
// [0, 1], positive weeks and maturities, unique non-empty ids.
func (c *Config) Catalogue() (*Catalogue, error) {
	baseRate, err := parsePositiveOrZero("market.base_interest_rate", c.Market.BaseInterestRate)
	if err != nil {
		return nil, err
	}

	stocks := make(map[string]decimal.Decimal, len(c.Stocks))
	for i, s := range c.Stocks {
		if s.Ticker == "" {
			return nil, fmt.Errorf("stock %d: empty ticker", i)
		}
		if _, dup := stocks[s.Ticker]; dup {
			return nil, fmt.Errorf("stock %q: duplicate ticker", s.Ticker)
		}
		price, err := parsePositive(fmt.Sprintf("stock %q price", s.Ticker), s.Price)
		if err != nil {
			return nil, err
		}
		stocks[s.Ticker] = price
	}

	bonds := make([]market.Bond, 0, len(c.Bonds))
	bondIDs := make(map[string]bool, len(c.Bonds))
	for i, b := range c.Bonds {
		if b.BondID == "" {
			return nil, fmt.Errorf("bond %d: empty bond_id", i)
		}
		if bondIDs[b.BondID] {
			return nil, fmt.Errorf("bond %q: duplicate bond_id", b.BondID)
		}
		bondIDs[b.BondID] = true
		face, err := parsePositive(fmt.Sprintf("bond %q face_value", b.BondID), b.FaceValue)
		if err != nil {
			return nil, err
		}
		coupon, err := parsePositiveOrZero(fmt.Sprintf("bond %q coupon_rate", b.BondID), b.CouponRate)
		if err != nil {
			return nil, err
		}
		price, err := parsePositive(fmt.Sprintf("bond %q price", b.BondID), b.Price)
		if err != nil {
			return nil, err
		}
		if b.MaturityYears <= 0 {
			return nil, fmt.Errorf("bond %q: maturity_years must be positive", b.BondID)
		}
		bonds = append(bonds, market.Bond{
			BondID:        b.BondID,
			Name:          b.Name,
			FaceValue:     face,
			CouponRate:    coupon,
			MaturityYears: b.MaturityYears,
			Price:         price,
		})
	}

	projects := make([]market.Project, 0, len(c.Projects))
	projectIDs := make(map[string]bool, len(c.Projects))
	for i, p := range c.Projects {
		if p.ProjectID == "" {
			return nil, fmt.Errorf("project %d: empty project_id", i)
		}
		if projectIDs[p.ProjectID] {
			return nil, fmt.Errorf("project %q: duplicate project_id", p.ProjectID)
		}
		projectIDs[p.ProjectID] = true
		required, err := parsePositive(fmt.Sprintf("project %q required_investment", p.ProjectID), p.RequiredInvestment)
		if err != nil {
			return nil, err
		}
		expected, err := parsePositiveOrZero(fmt.Sprintf("project %q expected_return_pct", p.ProjectID), p.ExpectedReturnPct)
		if err != nil {
			return nil, err
		}
		if p.WeeksToCompletion <= 0 {
			return nil, fmt.Errorf("project %q: weeks_to_completion must be positive", p.ProjectID)
		}
		if p.SuccessProbability < 0 || p.SuccessProbability > 1 {
			return nil, fmt.Errorf("project %q: success_probability %v outside [0, 1]", p.ProjectID, p.SuccessProbability)
		}
		projects = append(projects, market.Project{
			ProjectID:          p.ProjectID,
			Name:               p.Name,
			RequiredInvestment: required,
			ExpectedReturnPct:  expected,
			RiskLevel:          p.RiskLevel,
			WeeksToCompletion:  p.WeeksToCompletion,
			SuccessProbability: p.SuccessProbability,
		})
	}

	return &Catalogue{
		BaseRate: baseRate,
		Stocks:   stocks,
		Bonds:    bonds,
		Projects: projects,
	}, nil
}

func parsePositive(field, raw string) (decimal.Decimal, error) {
	v, err := parseDecimal(field, raw)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if !v.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("%s: %s is not positive", field, raw)
	}
	return v, nil
}

func parsePositiveOrZero(field, raw string) (decimal.Decimal, error) {
	v, err := parseDecimal(field, raw)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if v.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%s: %s is negative", field, raw)
	}
	return v, nil
}

func parseDecimal(field, raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Decimal{}, fmt.Errorf("%s: empty", field)
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%s: %w", field, err)
	}
	return v, nil
}
