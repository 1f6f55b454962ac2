package valueflow

import "github.com/xraph/valueflow/types"

// Re-export common types for convenience so users don't have to import types package.

// Money is re-exported from types package.
type Money = types.Money

// Entity is re-exported from types package.
type Entity = types.Entity

// NewMoney is re-exported from types package.
var NewMoney = types.New
