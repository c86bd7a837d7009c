package checkpoint

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string][]byte
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func TestS3Backend(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	b := &S3Backend{Client: fake, Bucket: "state", Key: "shopsync/sync_state.json"}

	data, err := b.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, b.Save(context.Background(), []byte(`{"shopify":{}}`)))

	data, err = b.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"shopify":{}}`, string(data))
	assert.Contains(t, fake.objects, "state/shopsync/sync_state.json")
}
