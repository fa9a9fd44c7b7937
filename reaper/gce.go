package reaper

import (
	"context"
	"fmt"

	compute "cloud.google.com/go/compute/apiv1"
	"cloud.google.com/go/compute/apiv1/computepb"
	"google.golang.org/api/option"
)

// GCEDeleter deletes instances through the Compute Engine REST API.
type GCEDeleter struct {
	client *compute.InstancesClient
}

// NewGCEDeleter creates an instances client using Application Default
// Credentials unless opts say otherwise.
func NewGCEDeleter(ctx context.Context, opts ...option.ClientOption) (*GCEDeleter, error) {
	client, err := compute.NewInstancesRESTClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create compute client: %w", err)
	}
	return &GCEDeleter{client: client}, nil
}

// DeleteInstance sends the delete request without waiting for the
// operation; the caller is usually the instance being deleted.
func (d *GCEDeleter) DeleteInstance(ctx context.Context, instance Instance) error {
	_, err := d.client.Delete(ctx, &computepb.DeleteInstanceRequest{
		Project:  instance.Project,
		Zone:     instance.Zone,
		Instance: instance.Name,
	})
	return err
}

// Close releases the underlying client.
func (d *GCEDeleter) Close() error {
	return d.client.Close()
}
