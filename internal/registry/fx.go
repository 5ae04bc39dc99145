package registry

import (
	"github.com/smallbiznis/kigyomail/internal/registry/portal"
	"github.com/smallbiznis/kigyomail/internal/registry/snapshot"
	"go.uber.org/fx"
)

var Module = fx.Module("registry",
	portal.Module,
	snapshot.Module,
)
