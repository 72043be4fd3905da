//go:build integration

package factory

import (
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/localstack"

	"github.com/illarion/cloudvault/storage"
	"github.com/illarion/cloudvault/storage/storagetest"
)

// TestLocalStack runs the conformance suite against S3 and DynamoDB
// emulated by LocalStack. Requires Docker.
func TestLocalStack(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()

	container, err := localstack.Run(ctx, "localstack/localstack:3.0")
	require.NoError(t, err, "failed to start LocalStack")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Errorf("failed to terminate container: %v", err)
		}
	})

	hostPort, err := container.PortEndpoint(ctx, "4566/tcp", "")
	require.NoError(t, err)
	endpoint := "http://" + hostPort

	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")

	t.Run("s3", func(t *testing.T) {
		q := map[string][]string{"endpoint": {endpoint}}
		cfg, err := loadAWSConfig(ctx, q)
		require.NoError(t, err)
		client := awss3.NewFromConfig(cfg, func(o *awss3.Options) { o.UsePathStyle = true })

		n := 0
		storagetest.Run(t, func(t *testing.T) storage.Storage {
			n++
			bucket := fmt.Sprintf("cloudvault-%d", n)
			_, err := client.CreateBucket(ctx, &awss3.CreateBucketInput{Bucket: aws.String(bucket)})
			require.NoError(t, err)
			return open(t, "s3://"+bucket+"/objects?path_style=true&checksum=true&endpoint="+endpoint)
		})
	})

	t.Run("dynamodb", func(t *testing.T) {
		n := 0
		storagetest.Run(t, func(t *testing.T) storage.Storage {
			n++
			table := fmt.Sprintf("cloudvault-%d", n)
			return open(t, "dynamodb://"+table+"?create_table=true&endpoint="+endpoint)
		})
	})
}
