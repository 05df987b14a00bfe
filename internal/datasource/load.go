package datasource

import (
	"context"
	"fmt"
	"net/http"

	"github.com/vanderheijden86/photocluster/pkg/loader"
	"github.com/vanderheijden86/photocluster/pkg/model"
)

// Load detects the source at location and loads its dataset.
func Load(ctx context.Context, location string) (*model.Dataset, Source, error) {
	src, err := Detect(location)
	if err != nil {
		return nil, Source{}, err
	}
	ds, err := LoadFromSource(ctx, src, nil)
	return ds, src, err
}

// LoadFromSource loads a dataset from a specific Source, dispatching to the
// appropriate reader based on source type. A nil client uses
// http.DefaultClient.
func LoadFromSource(ctx context.Context, source Source, client *http.Client) (*model.Dataset, error) {
	switch source.Type {
	case SourceTypeFile:
		return loader.LoadFile(source.Location)

	case SourceTypeHTTP:
		return loader.Fetch(ctx, client, source.Location)

	case SourceTypeSQLite:
		store, err := OpenStoreReadOnly(source.Location)
		if err != nil {
			return nil, fmt.Errorf("failed to open session store %s: %w", source.Location, err)
		}
		defer store.Close()
		return store.Load(source.Name)

	default:
		return nil, fmt.Errorf("unknown source type: %s", source.Type)
	}
}
