// Package core defines the shared vocabulary of the fusion and orchestration
// engine: retrieval items and their fused ranking, per-thread conversation
// state, task specifications and worker results, the error taxonomy, and the
// small interfaces (Retriever, ThreadStore) the other packages are built
// around. It has no dependencies on concrete adapters or stores so that every
// layer can import it without cycles.
package core
