package s3

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ersonp/unistore/internal/infrastructure/config"
)

type fakeClient struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeClient) PutObject(ctx context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.body = body
	return &s3.PutObjectOutput{ETag: aws.String(`"etag"`)}, nil
}

func TestStore_Put(t *testing.T) {
	client := &fakeClient{}
	store := newStore(client, "backups", "exports", zaptest.NewLogger(t))

	location, err := store.Put(context.Background(), "ws-1/20260301T090000Z.json", []byte(`{"ok":true}`), "application/json")
	require.NoError(t, err)

	assert.Equal(t, "s3://backups/exports/ws-1/20260301T090000Z.json", location)
	assert.Equal(t, "backups", aws.ToString(client.input.Bucket))
	assert.Equal(t, "exports/ws-1/20260301T090000Z.json", aws.ToString(client.input.Key))
	assert.Equal(t, "application/json", aws.ToString(client.input.ContentType))
	assert.Equal(t, int64(11), aws.ToInt64(client.input.ContentLength))
	assert.Equal(t, `{"ok":true}`, string(client.body))
}

func TestStore_PutWithoutPrefix(t *testing.T) {
	client := &fakeClient{}
	store := newStore(client, "backups", "", nil)

	location, err := store.Put(context.Background(), "ws-1/snap.json", nil, "application/json")
	require.NoError(t, err)
	assert.Equal(t, "s3://backups/ws-1/snap.json", location)
}

func TestStore_PutError(t *testing.T) {
	client := &fakeClient{err: errors.New("access denied")}
	store := newStore(client, "backups", "exports", zaptest.NewLogger(t))

	_, err := store.Put(context.Background(), "k.json", []byte("{}"), "application/json")
	assert.ErrorContains(t, err, "access denied")
}

func TestNewStore_RequiresBucket(t *testing.T) {
	_, err := NewStore(context.Background(), config.S3Config{Region: "us-east-1"}, nil)
	assert.Error(t, err)
}

func TestNewStore_StaticCredentials(t *testing.T) {
	store, err := NewStore(context.Background(), config.S3Config{
		Bucket:          "backups",
		Region:          "eu-west-1",
		Endpoint:        "http://localhost:9000",
		AccessKeyID:     "minio",
		SecretAccessKey: "minio123",
		UsePathStyle:    true,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "backups", store.bucket)
	assert.IsType(t, &s3.Client{}, store.client)
}
