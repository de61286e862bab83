// Package core contains the shared value types and collaborator contracts the
// rest of personamesh is wired against: conversational memories, generation
// state, the agent runtime contract, and the storage / embedding interfaces.
//
// Concrete implementations live in sibling packages (runtime, storage, cache,
// model); depend on the interfaces here and select an implementation at
// wiring time. Keeping the contracts centralized avoids dependency cycles
// between the orchestration packages.
package core
