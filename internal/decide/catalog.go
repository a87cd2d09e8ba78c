// internal/decide/catalog.go
package decide

import "strings"

// Product is one catalog entry: title fragments it matches plus the
// production defaults the deadline and single-piece templates need.
type Product struct {
	Match          []string `json:"match"`
	DefaultPieces  string   `json:"pecas_padrao,omitempty"`
	LargePieces    string   `json:"pecas_grandes,omitempty"`
	SinglePieceCM  string   `json:"limite_peca_unica_cm,omitempty"`
	ProductionDays string   `json:"producao_dias_uteis,omitempty"`
	ShippingDays   string   `json:"envio_dias_est,omitempty"`
	Region         string   `json:"uf,omitempty"`
}

// MatchCatalog finds the first product whose match fragments occur in the
// order title. Comparison is accent and case insensitive.
func MatchCatalog(catalog []Product, title string) *Product {
	t := normalize(title)
	if t == "" {
		return nil
	}
	for i := range catalog {
		for _, m := range catalog[i].Match {
			if m = normalize(m); m != "" && strings.Contains(t, m) {
				return &catalog[i]
			}
		}
	}
	return nil
}

// templateParams turns a product (possibly nil) into placeholder values.
// Unknown numbers render as "?" so a template never silently invents one.
func templateParams(p *Product) map[string]string {
	params := map[string]string{
		"PECAS":               "?",
		"PECAS_GRANDES":       "?",
		"LIMITE_CM":           "?",
		"PROD_DIAS":           "?",
		"ENVIO_DIAS_ESTIMADO": "?",
		"UF":                  "sua região",
	}
	if p == nil {
		return params
	}
	set := func(key, v string) {
		if v != "" {
			params[key] = v
		}
	}
	set("PECAS", p.DefaultPieces)
	set("PECAS_GRANDES", p.LargePieces)
	set("LIMITE_CM", p.SinglePieceCM)
	set("PROD_DIAS", p.ProductionDays)
	set("ENVIO_DIAS_ESTIMADO", p.ShippingDays)
	set("UF", p.Region)
	return params
}
