package domain

// Settings is the explicit application configuration carried in a backup's
// config/settings.json entry. Defaults are resolved once at load time by the
// settings store; readers never fall back field-by-field.
type Settings struct {
	StoreName     string  `json:"storeName"`
	Currency      string  `json:"currency"`
	Language      string  `json:"language"`
	TaxRate       float64 `json:"taxRate"`
	ReceiptFooter string  `json:"receiptFooter"`
	Theme         string  `json:"theme"`
	LowStockAlert int     `json:"lowStockAlert"`
}

// DefaultSettings returns the settings applied on first run and whenever a
// backup's config segment is absent or cannot be decrypted.
func DefaultSettings() Settings {
	return Settings{
		StoreName:     "CeroPOS",
		Currency:      "BRL",
		Language:      "pt-BR",
		TaxRate:       0,
		ReceiptFooter: "",
		Theme:         "light",
		LowStockAlert: 5,
	}
}
