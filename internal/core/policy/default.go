package policy

var ownerToOrg = Hop{Column: "owner_id", RefTable: "users", RefColumn: "id"}

// Default returns the isolation model of the OKR schema.
func Default() Model {
	return Model{Rules: []Rule{
		{Table: "organizations", Kind: Direct, TenantColumn: "id"},
		{Table: "users", Kind: Direct, TenantColumn: "organization_id"},
		{Table: "subscriptions", Kind: Direct, TenantColumn: "organization_id"},
		{
			Table:        "objectives",
			Kind:         Chained,
			TenantColumn: "organization_id",
			Chain:        []Hop{ownerToOrg},
		},
		{
			Table:        "key_results",
			Kind:         Chained,
			TenantColumn: "organization_id",
			Chain: []Hop{
				{Column: "objective_id", RefTable: "objectives", RefColumn: "id"},
				ownerToOrg,
			},
		},
		{
			Table:        "check_ins",
			Kind:         Chained,
			TenantColumn: "organization_id",
			Chain: []Hop{
				{Column: "key_result_id", RefTable: "key_results", RefColumn: "id"},
				{Column: "objective_id", RefTable: "objectives", RefColumn: "id"},
				ownerToOrg,
			},
		},
		{Table: "plans", Kind: Exempt},
	}}
}
