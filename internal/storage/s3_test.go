package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRef(t *testing.T) {
	bucket, key, err := ParseRef("s3://audio-eval/exports/alice/1.json")
	require.NoError(t, err)
	assert.Equal(t, "audio-eval", bucket)
	assert.Equal(t, "exports/alice/1.json", key)

	for _, bad := range []string{"http://x/y", "s3://", "s3:///key", "s3://bucket/", "s3://bucket"} {
		_, _, err := ParseRef(bad)
		assert.Error(t, err, bad)
	}
	assert.Equal(t, "s3://b/k/1.json", Ref("b", "k/1.json"))
}

func TestEndpointURL(t *testing.T) {
	assert.Equal(t, "http://minio:9000", endpointURL("minio:9000", true))
	assert.Equal(t, "https://minio:9000", endpointURL("minio:9000", false))
	assert.Equal(t, "https://s3.example.com", endpointURL("https://s3.example.com", true))
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.Error(t, err)
}

func TestNewWithStaticCredentials(t *testing.T) {
	c, err := New(context.Background(), Config{Endpoint: "localhost:9000", Bucket: "b", AccessKey: "k", SecretKey: "s", Region: "us-east-1", Insecure: true})
	require.NoError(t, err)
	assert.Equal(t, "b", c.bucket)
}
