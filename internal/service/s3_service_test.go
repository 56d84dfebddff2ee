package service_test

import (
	"context"
	"errors"
	"io"
	"media-gateway/internal/service"
	"media-gateway/internal/util"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockObjectPutter struct{ mock.Mock }

func (m *MockObjectPutter) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.PutObjectOutput), args.Error(1)
}

func TestS3Service_ArchiveIndex(t *testing.T) {
	index := filepath.Join(t.TempDir(), "_file.csv")
	require.NoError(t, os.WriteFile(index, []byte("-;id;a.txt: text/plain; charset=utf-8;1;1\n"), 0o644))

	var uploaded []byte
	client := new(MockObjectPutter)
	client.On("PutObject", mock.Anything, mock.MatchedBy(func(input *s3.PutObjectInput) bool {
		return aws.ToString(input.Bucket) == "media" && aws.ToString(input.Key) == "indexes/zone1/_file.csv"
	})).Run(func(args mock.Arguments) {
		input := args.Get(1).(*s3.PutObjectInput)
		uploaded, _ = io.ReadAll(input.Body)
	}).Return(&s3.PutObjectOutput{}, nil)

	archiver := service.NewS3ServiceWithClient(client, "media", "indexes", util.DiscardLogger())
	require.NoError(t, archiver.ArchiveIndex(context.Background(), "zone1", index))

	client.AssertExpectations(t)
	assert.Equal(t, "-;id;a.txt: text/plain; charset=utf-8;1;1\n", string(uploaded))
}

func TestS3Service_ArchiveIndexFailures(t *testing.T) {
	client := new(MockObjectPutter)
	archiver := service.NewS3ServiceWithClient(client, "media", "", util.DiscardLogger())

	err := archiver.ArchiveIndex(context.Background(), "zone1", filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorContains(t, err, "could not read index")
	client.AssertNotCalled(t, "PutObject", mock.Anything, mock.Anything)

	index := filepath.Join(t.TempDir(), "_file.csv")
	require.NoError(t, os.WriteFile(index, nil, 0o644))
	client.On("PutObject", mock.Anything, mock.Anything).Return(nil, errors.New("access denied"))

	err = archiver.ArchiveIndex(context.Background(), "zone1", index)
	assert.ErrorContains(t, err, "could not upload zone1/_file.csv")
}

func TestS3Service_ObjectKey(t *testing.T) {
	archiver := service.NewS3ServiceWithClient(new(MockObjectPutter), "media", "backup/", util.DiscardLogger())
	assert.Equal(t, "backup/zone2/_file.csv", archiver.ObjectKey("zone2", "/var/media/zone2/_file.csv"))
}
