package domain

// TokenInfo is the basic metadata of a token.
type TokenInfo struct {
	Address  string `json:"address"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// TokenPrice is the latest USD price of a token.
type TokenPrice struct {
	Price        float64 `json:"price"`
	PriceChain   float64 `json:"priceChain"`
	Variation24h float64 `json:"variation24h"`
}

// TokenExtendedInfo holds supply and market figures.
type TokenExtendedInfo struct {
	CirculatingSupply float64 `json:"circulatingSupply"`
	TotalSupply       float64 `json:"totalSupply"`
	MarketCap         float64 `json:"mcap"`
	FDV               float64 `json:"fdv"`
	Holders           int64   `json:"holders"`
}

// TokenReport is everything the portfolio command shows for one token.
type TokenReport struct {
	Info     TokenInfo         `json:"info"`
	Price    TokenPrice        `json:"price"`
	Extended TokenExtendedInfo `json:"extended"`
}
