// ABOUTME: Package documentation for seed
// ABOUTME: Explains the fixture format and idempotent apply semantics

// Package seed loads roastery fixtures from TOML files and inserts them
// into the store.
//
// A fixture file holds a list of roasteries:
//
//	[[roasteries]]
//	name = "Sightglass"
//	city = "San Francisco"
//	website = "https://sightglasscoffee.com"
//	description = "Roastery and cafe on 7th Street"
//
// Apply is idempotent over names: entries whose name already exists in the
// store are counted as skipped, so the same fixture can be applied to a
// database any number of times.
package seed
