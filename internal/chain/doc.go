// Package chain is the chain interaction layer of the gateway. It resolves
// the read backend and the injected wallet, binds the factory, project and
// passport contracts, decodes contract reads into typed records, encodes
// calls offline and submits mutations either directly through the wallet or
// through the meta-transaction relayer.
//
// Every exported operation returns a tagged *errors.Error from the closed
// taxonomy registered in this package, so callers branch on errors.CodeOf
// instead of inspecting go-ethereum error shapes.
package chain
