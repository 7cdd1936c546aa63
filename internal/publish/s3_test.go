package publish

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewS3Publisher(t *testing.T) {
	cfg := S3Config{
		Bucket:          "test-bucket",
		Region:          "us-east-1",
		Endpoint:        "http://localhost:4566", // LocalStack-like endpoint
		AccessKeyID:     "test-access-key",
		SecretAccessKey: "test-secret-key",
	}

	p, err := NewS3Publisher(cfg)
	require.NoError(t, err)

	assert.Equal(t, "test-bucket", p.bucket)
	assert.Equal(t, "us-east-1", p.region)
}

func TestNewS3Publisher_BaseURLUsedForResultURLs(t *testing.T) {
	cfg := S3Config{
		Bucket:        "test-bucket",
		Region:        "us-east-1",
		PublicBaseURL: "https://cdn.example.com",
	}

	p, err := NewS3Publisher(cfg)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com", p.baseURL)
}
