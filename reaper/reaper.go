// Package reaper deletes the Compute Engine instance the scraper runs on.
package reaper

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/googleapis/gax-go/v2/apierror"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Outcome describes how a Terminate call ended.
type Outcome int

// Terminate outcomes. AlreadyAbsent and Skipped are successes.
const (
	OutcomeUnknown Outcome = iota
	OutcomeDeleted
	OutcomeAlreadyAbsent
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDeleted:
		return "deleted"
	case OutcomeAlreadyAbsent:
		return "already_absent"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Instance identifies a Compute Engine instance.
type Instance struct {
	Project string
	Zone    string
	Name    string
}

func (i Instance) String() string {
	return fmt.Sprintf("projects/%s/zones/%s/instances/%s", i.Project, i.Zone, i.Name)
}

// Deleter issues the delete call against the compute API.
type Deleter interface {
	DeleteInstance(ctx context.Context, instance Instance) error
}

// Reaper tears down one instance. A nil deleter turns Terminate into a
// logged no-op.
type Reaper struct {
	deleter  Deleter
	instance Instance
	logger   *zap.Logger
}

// New builds a Reaper for instance.
func New(deleter Deleter, instance Instance, logger *zap.Logger) *Reaper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reaper{
		deleter:  deleter,
		instance: instance,
		logger:   logger,
	}
}

// Terminate requests deletion of the instance. An instance that no longer
// exists yields OutcomeAlreadyAbsent with a nil error, so repeated calls are
// safe.
func (r *Reaper) Terminate(ctx context.Context) (Outcome, error) {
	if r.deleter == nil {
		r.logger.Info("instance deletion disabled", zap.Stringer("instance", r.instance))
		return OutcomeSkipped, nil
	}

	err := r.deleter.DeleteInstance(ctx, r.instance)
	switch {
	case err == nil:
		r.logger.Info("instance deletion requested", zap.Stringer("instance", r.instance))
		return OutcomeDeleted, nil
	case IsNotFound(err):
		r.logger.Info("instance already absent", zap.Stringer("instance", r.instance))
		return OutcomeAlreadyAbsent, nil
	default:
		return OutcomeUnknown, fmt.Errorf("delete %s: %w", r.instance, err)
	}
}

// IsNotFound reports whether err is the compute API saying the instance does
// not exist, over either REST or gRPC transport.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPCode() == http.StatusNotFound {
			return true
		}
		if st := apiErr.GRPCStatus(); st != nil && st.Code() == codes.NotFound {
			return true
		}
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) && gErr.Code == http.StatusNotFound {
		return true
	}
	if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
		return true
	}
	return false
}
