package detection

import (
	"context"
	"errors"
	"fmt"
	"os"

	"nvr-worker-go/internal/models"
)

// ErrNoModel is returned when neither the camera model nor the default model is usable
var ErrNoModel = errors.New("no usable inference model")

// ModelLoadError wraps a failure to load a resolved model
type ModelLoadError struct {
	Model models.ModelRef
	Err   error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("failed to load model %s: %v", e.Model, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// Backend runs inference on a single frame
type Backend interface {
	Detect(ctx context.Context, frame *models.Frame) ([]models.RawDetection, error)
	Close() error
}

// Loader turns a resolved model reference into a ready backend
type Loader interface {
	Load(ctx context.Context, ref models.ModelRef) (Backend, error)
}

// LoaderFunc adapts a function to Loader
type LoaderFunc func(ctx context.Context, ref models.ModelRef) (Backend, error)

func (f LoaderFunc) Load(ctx context.Context, ref models.ModelRef) (Backend, error) {
	return f(ctx, ref)
}

// Usable reports whether a model reference can be handed to a loader:
// remote models need an endpoint, file models need their file on disk.
func Usable(ref *models.ModelRef) bool {
	if ref == nil {
		return false
	}
	if ref.EffectiveKind() == models.ModelKindGRPC {
		return ref.Endpoint != ""
	}
	if ref.Path == "" {
		return false
	}
	_, err := os.Stat(ref.Path)
	return err == nil
}

// ResolveModel applies the fallback policy: the camera's own model when it is
// usable, otherwise the default model. It never loads anything.
func ResolveModel(primary, fallback *models.ModelRef) (models.ModelRef, error) {
	if Usable(primary) {
		return *primary, nil
	}
	if Usable(fallback) {
		return *fallback, nil
	}
	return models.ModelRef{}, ErrNoModel
}

// KindLoader dispatches on the model kind
type KindLoader struct {
	DNN  Loader
	GRPC Loader
}

func (l *KindLoader) Load(ctx context.Context, ref models.ModelRef) (Backend, error) {
	var inner Loader
	switch ref.EffectiveKind() {
	case models.ModelKindDNN:
		inner = l.DNN
	case models.ModelKindGRPC:
		inner = l.GRPC
	}
	if inner == nil {
		return nil, &ModelLoadError{Model: ref, Err: fmt.Errorf("unsupported model kind %q", ref.EffectiveKind())}
	}

	backend, err := inner.Load(ctx, ref)
	if err != nil {
		var loadErr *ModelLoadError
		if errors.As(err, &loadErr) {
			return nil, err
		}
		return nil, &ModelLoadError{Model: ref, Err: err}
	}
	return backend, nil
}
