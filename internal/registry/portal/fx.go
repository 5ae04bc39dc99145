package portal

import (
	"github.com/smallbiznis/kigyomail/internal/registry/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("registry.portal",
	fx.Provide(NewClient),
	fx.Provide(func(c *Client) domain.Fetcher { return c }),
)
