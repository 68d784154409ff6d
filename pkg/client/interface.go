package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/menta2k/image-editor/pkg/types"
)

// ProcessingService applies one operation to an encoded image and returns
// the encoded result.
type ProcessingService interface {
	Process(ctx context.Context, kind types.Kind, params types.Params, img types.Artifact) (types.Artifact, error)
}

// MetadataProbe reports basic facts about an encoded image.
type MetadataProbe interface {
	Probe(ctx context.Context, img types.Artifact) (types.ImageInfo, error)
}

// Service is a processing backend that can also probe images.
type Service interface {
	ProcessingService
	MetadataProbe
}

// VisionClient is a multimodal model backend used to locate the subject of
// an image.
type VisionClient interface {
	Describe(ctx context.Context, model, prompt string, img types.Artifact) (string, error)
	LocateSubject(ctx context.Context, model, prompt string, img types.Artifact) (*types.AnalysisResult, error)
}

// ErrDecode marks a service response whose body is not a usable image.
var ErrDecode = errors.New("result could not be decoded")

// ServiceError is a failed processing request. Status is the HTTP status for
// remote services and zero for local failures.
type ServiceError struct {
	Endpoint string
	Status   int
	Message  string
	Err      error
}

func (e *ServiceError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s failed with status %d: %s", e.Endpoint, e.Status, msg)
	}
	return fmt.Sprintf("%s failed: %s", e.Endpoint, msg)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// DecodeError wraps ErrDecode in a ServiceError for endpoint.
func DecodeError(endpoint string, cause error) *ServiceError {
	return &ServiceError{
		Endpoint: endpoint,
		Message:  fmt.Sprintf("%v: %v", ErrDecode, cause),
		Err:      fmt.Errorf("%w: %w", ErrDecode, cause),
	}
}
