package mainconfig

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/chatrelay/internal/config"
)

func TestNeedsAWS(t *testing.T) {
	assert.False(t, NeedsAWS(&appconfig.Config{NotifyProvider: "sendgrid"}))
	assert.True(t, NeedsAWS(&appconfig.Config{TranscriptBucket: "b"}))
	assert.True(t, NeedsAWS(&appconfig.Config{NotifyProvider: "ses"}))
}

func TestLoadAWSConfigEndpointOverride(t *testing.T) {
	cfg := &appconfig.Config{
		AWSRegion:           "us-west-2",
		AWSAccessKeyID:      "test",
		AWSSecretAccessKey:  "test",
		AWSEndpointOverride: "http://localhost:4566",
	}
	awsCfg, err := LoadAWSConfig(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "us-west-2", awsCfg.Region)

	creds, err := awsCfg.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test", creds.AccessKeyID)

	for _, service := range []string{s3.ServiceID, sesv2.ServiceID} {
		endpoint, err := awsCfg.EndpointResolverWithOptions.ResolveEndpoint(service, "us-west-2")
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:4566", endpoint.URL)
	}
	_, err = awsCfg.EndpointResolverWithOptions.ResolveEndpoint("sqs", "us-west-2")
	var notFound *aws.EndpointNotFoundError
	assert.ErrorAs(t, err, &notFound)

	assert.NotNil(t, NewS3Client(awsCfg, cfg))
}
