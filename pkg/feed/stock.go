package feed

// Stock is one listed instrument as delivered by the listing API.
type Stock struct {
	// Symbol is the exchange ticker and the stable identity of the
	// instrument across pages and refresh cycles.
	Symbol string `json:"symbol"`

	// Name is the display name of the instrument.
	Name string `json:"name"`

	// Market is the exchange segment, e.g. "KOSPI" or "KOSDAQ".
	Market string `json:"market"`

	// Price is the last traded price.
	Price float64 `json:"price"`

	// ChangeRate is the daily change in percent.
	ChangeRate float64 `json:"change_rate"`

	// Volume is the accumulated traded volume.
	Volume int64 `json:"volume"`
}
