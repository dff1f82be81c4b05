package symbols

// Default returns the built-in NSE mapping table used when no graph-backed
// table is loaded.
func Default() *Table {
	return New(DefaultData())
}

// DefaultData returns the raw built-in mapping material, also used to seed
// the market hierarchy graph.
func DefaultData() Data {
	return Data{
		Companies: map[string]string{
			"HDFC Bank":                 "HDFCBANK",
			"HDFC":                      "HDFCBANK",
			"ICICI Bank":                "ICICIBANK",
			"ICICI":                     "ICICIBANK",
			"State Bank of India":       "SBIN",
			"SBI":                       "SBIN",
			"Reliance Industries":       "RELIANCE",
			"Reliance":                  "RELIANCE",
			"RIL":                       "RELIANCE",
			"Infosys":                   "INFY",
			"TCS":                       "TCS",
			"Tata Consultancy Services": "TCS",
			"Wipro":                     "WIPRO",
			"Bharti Airtel":             "BHARTIARTL",
			"Airtel":                    "BHARTIARTL",
			"ITC":                       "ITC",
			"Hindustan Unilever":        "HINDUNILVR",
			"HUL":                       "HINDUNILVR",
			"Axis Bank":                 "AXISBANK",
			"Kotak Mahindra Bank":       "KOTAKBANK",
			"Kotak Bank":                "KOTAKBANK",
			"Tata Motors":               "TATAMOTORS",
			"Maruti Suzuki":             "MARUTI",
			"Sun Pharma":                "SUNPHARMA",
		},
		Sectors: map[string][]string{
			"Banking": {
				"HDFCBANK", "ICICIBANK", "SBIN", "AXISBANK", "KOTAKBANK",
				"INDUSINDBK", "PNB", "BANKBARODA",
			},
			"IT":      {"TCS", "INFY", "WIPRO", "HCLTECH", "TECHM", "LTIM"},
			"Pharma":  {"SUNPHARMA", "DRREDDY", "CIPLA", "LUPIN", "AUROPHARMA"},
			"Auto":    {"MARUTI", "TATAMOTORS", "M&M", "BAJAJ-AUTO", "HEROMOTOCO"},
			"Oil":     {"RELIANCE", "ONGC", "IOC", "BPCL", "HPCL"},
			"Telecom": {"BHARTIARTL", "IDEA"},
			"Retail":  {"RELIANCE", "DMART"},
			"Steel":   {"TATASTEEL", "JSWSTEEL", "SAIL"},
			"Cement":  {"ULTRACEMCO", "SHREECEM", "ACC"},
			"Power":   {"NTPC", "POWERGRID", "TATAPOWER"},
		},
		Regulators: map[string][]string{
			"RBI":  {"Banking"},
			"SEBI": {AllSectors},
			"IRDA": {"Insurance"},
			"TRAI": {"Telecom"},
		},
	}
}
