package owners

import (
	"context"
)

// StaticRegistry resolves owners from a fixed config map.
type StaticRegistry struct {
	owners map[string]string
}

func NewStaticRegistry(owners map[string]string) *StaticRegistry {
	if owners == nil {
		owners = map[string]string{}
	}
	return &StaticRegistry{owners: owners}
}

func (r *StaticRegistry) OwnerOf(_ context.Context, deviceId string) (string, error) {
	return r.owners[deviceId], nil
}
