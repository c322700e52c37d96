package listing

// Listing is one marketplace catalog entry, deduplicated by listing id and
// enriched with resolved batch metadata.
type Listing struct {
	ListingID  int64   `json:"listingId"`
	Seller     string  `json:"seller"`
	SellerName string  `json:"sellerName"`
	PriceEth   float64 `json:"priceEth"`
	Active     bool    `json:"active"`
	TokenID    int64   `json:"tokenId"`
	Stock      int64   `json:"stock"`

	Name     string `json:"name"`
	Origin   string `json:"origin"`
	Process  string `json:"process"`
	ImageURL string `json:"imageUrl"`
}
