package model

// AssetClass is the coarse instrument category that drives provider selection.
// The set is open: routing tables may name classes beyond the ones below.
type AssetClass string

const (
	Crypto     AssetClass = "crypto"
	USEquity   AssetClass = "us_equity"
	IntlEquity AssetClass = "intl_equity"
	Forex      AssetClass = "forex"
)

func (c AssetClass) String() string { return string(c) }
