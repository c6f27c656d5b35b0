package config

// Default returns the built-in market catalogue: five equities, five
// bonds, five projects, and a 3% base interest rate.
func Default() *Config {
	return &Config{
		Market: MarketConfig{BaseInterestRate: "0.03"},
		Stocks: []StockConfig{
			{Ticker: "AAPL", Price: "150.00"},
			{Ticker: "GOOGL", Price: "2500.00"},
			{Ticker: "MSFT", Price: "300.00"},
			{Ticker: "TSLA", Price: "800.00"},
			{Ticker: "AMZN", Price: "3200.00"},
		},
		Bonds: []BondConfig{
			{BondID: "BOND-001", Name: "US Treasury 10Y", FaceValue: "1000", CouponRate: "0.025", MaturityYears: 10, Price: "980.00"},
			{BondID: "BOND-002", Name: "Corporate AAA 5Y", FaceValue: "1000", CouponRate: "0.035", MaturityYears: 5, Price: "1020.00"},
			{BondID: "BOND-003", Name: "Municipal 7Y", FaceValue: "1000", CouponRate: "0.028", MaturityYears: 7, Price: "995.00"},
			{BondID: "BOND-004", Name: "High Yield 3Y", FaceValue: "1000", CouponRate: "0.065", MaturityYears: 3, Price: "950.00"},
			{BondID: "BOND-005", Name: "Treasury TIPS 15Y", FaceValue: "1000", CouponRate: "0.015", MaturityYears: 15, Price: "1050.00"},
		},
		Projects: []ProjectConfig{
			{ProjectID: "P-001", Name: "Tech Startup Alpha", RequiredInvestment: "50000", ExpectedReturnPct: "0.25", RiskLevel: "HIGH", WeeksToCompletion: 8, SuccessProbability: 0.6},
			{ProjectID: "P-002", Name: "Green Energy Initiative", RequiredInvestment: "75000", ExpectedReturnPct: "0.18", RiskLevel: "MEDIUM", WeeksToCompletion: 12, SuccessProbability: 0.75},
			{ProjectID: "P-003", Name: "Real Estate Development", RequiredInvestment: "100000", ExpectedReturnPct: "0.15", RiskLevel: "LOW", WeeksToCompletion: 16, SuccessProbability: 0.85},
			{ProjectID: "P-004", Name: "Biotech Research", RequiredInvestment: "30000", ExpectedReturnPct: "0.35", RiskLevel: "HIGH", WeeksToCompletion: 6, SuccessProbability: 0.5},
			{ProjectID: "P-005", Name: "Infrastructure Bond", RequiredInvestment: "25000", ExpectedReturnPct: "0.08", RiskLevel: "LOW", WeeksToCompletion: 4, SuccessProbability: 0.95},
		},
	}
}
