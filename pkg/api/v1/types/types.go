package types

type AdapterType string

var AdapterTypeTuya = AdapterType("tuya")
var AdapterTypeFairland = AdapterType("fairland")
var AdapterTypeDummy = AdapterType("dummy")

type BiddingZone string

var (
	BiddingZoneSE1 = BiddingZone("SE1")
	BiddingZoneSE2 = BiddingZone("SE2")
	BiddingZoneSE3 = BiddingZone("SE3")
	BiddingZoneSE4 = BiddingZone("SE4")
)

type Currency string

var (
	CurrencySEK  = Currency("SEK")
	CurrencyOere = Currency("öre")
)
