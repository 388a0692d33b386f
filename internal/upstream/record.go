package upstream

// ExternalClient mirrors one entry of the upstream `clientes` array. It is
// transient: records live only between fetch and processing and are never
// persisted in this shape.
type ExternalClient struct {
	ID             string `json:"id"`
	Name           string `json:"nome"`
	Email          string `json:"email"`
	NationalID     string `json:"cpf_cnpj"`
	Active         bool   `json:"ativo"`
	ContractActive bool   `json:"contrato_ativo"`
	RegisteredAt   string `json:"cadastro"`
	ChangedAt      string `json:"atualizado_em"`
}

// Label returns the best human-readable identifier for error reporting.
func (c ExternalClient) Label() string {
	if c.Email != "" {
		return c.Email
	}
	if c.NationalID != "" {
		return c.NationalID
	}
	return c.ID
}

// Filters narrows which upstream records a fetch returns.
type Filters struct {
	// ActiveOnly restricts the fetch to active records.
	ActiveOnly bool

	// ChangedWithinDays restricts the fetch to records changed within the
	// trailing window; 0 disables the filter (full fetch).
	ChangedWithinDays int

	// RegisteredFrom/RegisteredTo bound the registration date (YYYY-MM-DD).
	RegisteredFrom string
	RegisteredTo   string

	// ActiveContractsOnly restricts to records with an active contract,
	// used by the incremental sync path.
	ActiveContractsOnly bool

	// MaxRecords caps the total fetched record count; 0 means unlimited.
	MaxRecords int
}
