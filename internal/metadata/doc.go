// Package metadata defines the contract for external metadata providers that
// enrich reference catalog entries.
//
// Providers answer "not found" as a normal outcome. Chain composes providers
// in configured order and Cached memoizes answers, negative ones included, so
// repeated runs within the cache window never hit the network twice for the
// same title. Concrete clients live in the steamstore and wikipedia
// subpackages.
package metadata
