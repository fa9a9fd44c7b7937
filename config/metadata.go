package config

import (
	"context"
	"fmt"

	"cloud.google.com/go/compute/metadata"
)

// MetadataSource answers instance identity questions.
type MetadataSource interface {
	OnGCE() bool
	ProjectID(ctx context.Context) (string, error)
	Zone(ctx context.Context) (string, error)
	InstanceName(ctx context.Context) (string, error)
}

// GCEMetadata reads identity from the Compute Engine metadata server.
type GCEMetadata struct {
	client *metadata.Client
}

// NewGCEMetadata builds a metadata source on the default HTTP client.
func NewGCEMetadata() *GCEMetadata {
	return &GCEMetadata{client: metadata.NewClient(nil)}
}

// OnGCE reports whether the metadata server is reachable.
func (m *GCEMetadata) OnGCE() bool {
	return metadata.OnGCE()
}

// ProjectID returns the project the instance belongs to.
func (m *GCEMetadata) ProjectID(ctx context.Context) (string, error) {
	return m.client.ProjectIDWithContext(ctx)
}

// Zone returns the short zone name of the instance.
func (m *GCEMetadata) Zone(ctx context.Context) (string, error) {
	return m.client.ZoneWithContext(ctx)
}

// InstanceName returns the instance's own name.
func (m *GCEMetadata) InstanceName(ctx context.Context) (string, error) {
	return m.client.InstanceNameWithContext(ctx)
}

// ResolveInstance fills project, zone and instance name left empty in the
// file from md, then validates the identity. The receiver is not modified.
func (c Config) ResolveInstance(ctx context.Context, md MetadataSource) (Config, error) {
	if c.ValidateInstance() == nil || md == nil || !md.OnGCE() {
		return c, c.ValidateInstance()
	}

	lookups := []struct {
		field *string
		name  string
		fn    func(context.Context) (string, error)
	}{
		{&c.ProjectID, "project_id", md.ProjectID},
		{&c.Zone, "zone", md.Zone},
		{&c.InstanceName, "instance_name", md.InstanceName},
	}
	for _, l := range lookups {
		if *l.field != "" {
			continue
		}
		value, err := l.fn(ctx)
		if err != nil {
			return c, fmt.Errorf("resolve %s from metadata: %w", l.name, err)
		}
		*l.field = value
	}
	return c, c.ValidateInstance()
}
