package models

// RegistryStats aggregates the registry-wide counters. Both counts are
// monotonic: identities are never deleted and credentials are never removed
// from their sequences.
type RegistryStats struct {
	TotalIdentities  int `json:"total_identities"`
	TotalCredentials int `json:"total_credentials"`
}
