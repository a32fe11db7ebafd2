// Package assets provides the stores that serve encoded layer images to the
// render engine.
//
// Every store implements [Store], which is the engine's asset interface:
//
//   - [DirStore] reads files below a root directory
//   - [HTTPStore] fetches from a gateway base URL with retry
//   - [Memory] serves bytes already in memory
//   - [Cached] puts a [cache.Cache] in front of another store
//
// The engine fetches assets one layer at a time. [Prefetch] downloads the
// asset list of a peeked render concurrently first, so the sequential pass
// never waits on the network.
package assets
