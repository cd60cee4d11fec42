package app

import (
	"github.com/vk/brainseg/internal/engine"
	"github.com/vk/brainseg/modules/mdgru"
	"github.com/vk/brainseg/modules/nnunet"
)

// coreModules is the definitive list of all engine handlers that are
// compiled into the brainseg binary.
var coreModules = []engine.Module{
	mdgru.Module{},
	nnunet.Module{},
}
