package sigbridge

import (
	"github.com/AnatoleLucet/sigbridge/store"
)

// Host is the component a scope attaches to.
type Host interface {
	Store() *store.Store
	// Version selects the lifecycle hook names, see HookTables.
	Version() int
	// Server is true when the host renders on the server.
	Server() bool
	On(hook string, fn func())
}

// HookTable names the hooks of one host version for each scope phase.
type HookTable struct {
	// Init prepares the scope: before the host's data exists.
	Init string
	// Created launches the declarations.
	Created string
	// Destroyed stops everything.
	Destroyed string
}

var HookTables = map[int]HookTable{
	1: {Init: store.HookInit, Created: store.HookCreated, Destroyed: store.HookDestroyed},
	2: {Init: store.HookBeforeCreate, Created: store.HookCreated, Destroyed: store.HookDestroyed},
	3: {Init: store.HookBeforeCreate, Created: store.HookCreated, Destroyed: store.HookUnmounted},
}

func hookTable(version int) (HookTable, error) {
	table, ok := HookTables[version]
	if !ok {
		return HookTable{}, newConfigError(ErrCodeUnsupportedHost, "", "unsupported host version %d", version)
	}
	return table, nil
}
