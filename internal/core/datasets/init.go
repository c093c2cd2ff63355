// Package datasets registers every importable dataset with the core
// registry. Import it for side effects:
//
//	import _ "github.com/JonMunkholm/graphload/internal/core/datasets"
//
// Each dataset file uses init() to register itself.
package datasets
