package channels

import (
	"encoding/json"

	"github.com/angelmondragon/stocksync-backend/pkg/db/models"
	"github.com/angelmondragon/stocksync-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stocksync-backend/pkg/errors"
)

// AdapterProvider resolves the adapter for a stored channel.
type AdapterProvider interface {
	ForChannel(channel models.SalesChannel) (Adapter, error)
}

type credentialOpener interface {
	Open(stored json.RawMessage) (json.RawMessage, error)
}

// Factory builds adapters for stored channels, unsealing their credentials first.
type Factory struct {
	opener credentialOpener
	opts   Options
}

func NewFactory(opener credentialOpener, opts Options) *Factory {
	return &Factory{opener: opener, opts: opts}
}

func (f *Factory) ForChannel(channel models.SalesChannel) (Adapter, error) {
	kind, err := enums.ParseChannelKind(channel.Name)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "resolve channel adapter")
	}
	credentials := channel.APICredentials
	if f.opener != nil {
		credentials, err = f.opener.Open(channel.APICredentials)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeAdapter, err, "open channel credentials")
		}
	}
	return NewAdapter(kind, credentials, f.opts)
}
