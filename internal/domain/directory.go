package domain

import "strings"

// Shop is an entry of the shop directory.
type Shop struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Platform string `json:"platform,omitempty"`
}

// SKU is an entry of the product directory.
type SKU struct {
	Code      string  `json:"code"`
	Name      string  `json:"name,omitempty"`
	ShopName  string  `json:"shopName,omitempty"`
	CostPrice float64 `json:"costPrice,omitempty"`
	SalePrice float64 `json:"salePrice,omitempty"`
}

// Agent is a customer-service account.
type Agent struct {
	Account  string `json:"account"`
	Name     string `json:"name,omitempty"`
	ShopName string `json:"shopName,omitempty"`
}

// Directory bundles the shop, SKU and agent directories.
type Directory struct {
	Shops  []Shop  `json:"shops"`
	SKUs   []SKU   `json:"skus"`
	Agents []Agent `json:"agents"`
}

// ShopByID resolves a shop by identifier, falling back to an exact name match.
func (d Directory) ShopByID(id string) (Shop, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Shop{}, false
	}
	for _, shop := range d.Shops {
		if shop.ID == id {
			return shop, true
		}
	}
	for _, shop := range d.Shops {
		if shop.Name == id {
			return shop, true
		}
	}
	return Shop{}, false
}

// AgentByAccount resolves an agent by account or display name.
func (d Directory) AgentByAccount(account string) (Agent, bool) {
	account = strings.TrimSpace(account)
	if account == "" {
		return Agent{}, false
	}
	for _, agent := range d.Agents {
		if agent.Account == account || agent.Name == account {
			return agent, true
		}
	}
	return Agent{}, false
}
