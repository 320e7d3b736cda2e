// Package objectstore implements the service's two storage capabilities: a
// NATS JetStream bucket for job payloads and produced audio, and an
// S3-compatible bucket holding the model artifacts.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NatsStore implements core.PayloadStore over a NATS JetStream object store
// bucket.
type NatsStore struct {
	jetstreamContext nats.JetStreamContext
	bucket           string
	store            nats.ObjectStore
}

// NewNatsStore creates the payload store, creating the bucket if it does not
// exist yet and binding to it if it does.
func NewNatsStore(jetstreamContext nats.JetStreamContext, bucketName string) (*NatsStore, error) {
	store, err := jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf("Payloads and produced audio for the %s bucket.", bucketName),
		TTL:         0,
		MaxBytes:    0,
		Storage:     nats.FileStorage,
		Replicas:    1,
		Placement:   nil,
		Metadata:    nil,
		Compression: false,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) {
			return nil, fmt.Errorf("failed to create object store bucket %q: %w", bucketName, err)
		}

		store, err = jetstreamContext.ObjectStore(bucketName)
		if err != nil {
			return nil, fmt.Errorf("failed to bind to existing object store bucket %q: %w", bucketName, err)
		}
	}

	return &NatsStore{
		jetstreamContext: jetstreamContext,
		bucket:           bucketName,
		store:            store,
	}, nil
}

// Download retrieves one object from the bucket.
func (n *NatsStore) Download(_ context.Context, key string) ([]byte, error) {
	obj, err := n.store.Get(key)
	if err != nil {
		return nil, fmt.Errorf("failed to get object %q from bucket %q: %w", key, n.bucket, err)
	}

	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()

	if readErr != nil {
		return nil, fmt.Errorf("failed to read object %q: %w", key, readErr)
	}

	if closeErr != nil {
		return data, fmt.Errorf("failed to close object %q: %w", key, closeErr)
	}

	return data, nil
}

// Upload saves one object to the bucket, stamping it with metadata describing
// which of the bucket's two payload kinds it is.
func (n *NatsStore) Upload(_ context.Context, key string, data []byte) error {
	reader := bytes.NewReader(data)

	_, err := n.store.Put(objectMeta(key), reader)
	if err != nil {
		return fmt.Errorf("failed to put object %q to bucket %q: %w", key, n.bucket, err)
	}

	return nil
}

// The bucket mixes two payload kinds: job text submitted for synthesis and the
// WAV waveforms produced from it. Workers name produced audio with a ".wav"
// suffix, so the key alone identifies the kind.
const (
	headerContentType = "Content-Type"

	contentTypeAudio = "audio/wav"
	contentTypeText  = "text/plain; charset=utf-8"

	descriptionAudio = "Synthesized speech waveform."
	descriptionText  = "Job text awaiting synthesis."
)

func objectMeta(key string) *nats.ObjectMeta {
	description := descriptionText
	contentType := contentTypeText

	if strings.HasSuffix(key, ".wav") {
		description = descriptionAudio
		contentType = contentTypeAudio
	}

	return &nats.ObjectMeta{
		Name:        key,
		Description: description,
		Headers:     nats.Header{headerContentType: []string{contentType}},
		Metadata:    nil,
		Opts:        nil,
	}
}
