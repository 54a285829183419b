// Package views is the read-through cache in front of the chain reader.
// Cached views are tagged by project and wallet address so an explicit
// Invalidation drops exactly the entries a mutation or an account change
// made stale; invalidations are broadcast over a Bus so every gateway
// instance forgets them too.
package views
