package search

// DefaultRegistry returns a registry seeded with the search parameters the
// server supports out of the box. Deployments extend it at startup.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register("Patient", &SearchParameter{Name: "name", Type: TypeString, Path: []string{"name", "family"}})
	r.Register("Patient", &SearchParameter{Name: "birthdate", Type: TypeDate, Path: []string{"birthDate"}})
	r.Register("Patient", &SearchParameter{Name: "identifier", Type: TypeToken, Path: []string{"identifier"}})
	r.Register("Patient", &SearchParameter{
		Name: "organization", Type: TypeReference,
		TargetTypes: []string{"Organization"},
		Path:        []string{"managingOrganization"},
	})
	r.Register("Patient", &SearchParameter{
		Name: "general-practitioner", Type: TypeReference,
		TargetTypes: []string{"Organization", "Practitioner"},
		Path:        []string{"generalPractitioner"},
	})

	r.Register("Observation", &SearchParameter{Name: "code", Type: TypeToken, Path: []string{"code", "coding"}})
	r.Register("Observation", &SearchParameter{Name: "date", Type: TypeDate, Path: []string{"effectiveDateTime"}})
	r.Register("Observation", &SearchParameter{Name: "value-quantity", Type: TypeNumber, Path: []string{"valueQuantity", "value"}})
	r.Register("Observation", &SearchParameter{
		Name: "subject", Type: TypeReference,
		TargetTypes: []string{"Patient"},
		Path:        []string{"subject"},
	})
	r.Register("Observation", &SearchParameter{
		Name: "performer", Type: TypeReference,
		TargetTypes: []string{"Practitioner", "Organization"},
		Path:        []string{"performer"},
	})

	r.Register("Organization", &SearchParameter{Name: "name", Type: TypeString, Path: []string{"name"}})
	r.Register("Organization", &SearchParameter{Name: "identifier", Type: TypeToken, Path: []string{"identifier"}})

	r.Register("Practitioner", &SearchParameter{Name: "name", Type: TypeString, Path: []string{"name", "family"}})
	r.Register("Practitioner", &SearchParameter{Name: "identifier", Type: TypeToken, Path: []string{"identifier"}})

	return r
}
