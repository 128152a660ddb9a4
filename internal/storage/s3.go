// Package storage builds the shared S3 client and the listing helpers the
// server and worker use to turn a bucket prefix into catalog source
// documents.
package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/OFFIS-RIT/clarifier/internal/util"
	"github.com/OFFIS-RIT/clarifier/pkg/loader"
	"github.com/OFFIS-RIT/clarifier/pkg/loader/csv"
	"github.com/OFFIS-RIT/clarifier/pkg/loader/doc"
	s3loader "github.com/OFFIS-RIT/clarifier/pkg/loader/s3"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

func NewS3Client(ctx context.Context) *s3.Client {
	region := util.GetEnv("AWS_REGION")
	endpoint := util.GetEnv("AWS_ENDPOINT")
	accessKey := util.GetEnv("AWS_ACCESS_KEY")
	secretKey := util.GetEnv("AWS_SECRET_KEY")

	cfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(region),
		config.WithBaseEndpoint(endpoint),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey,
			secretKey,
			"",
		)),
	)
	if err != nil {
		return nil
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	return client
}

func ListFilesWithPrefix(ctx context.Context, client *s3.Client, prefix string) ([]string, error) {
	bucket := util.GetEnv("AWS_BUCKET")

	var keys []string
	listInput := &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	}

	for {
		listOutput, err := client.ListObjectsV2(ctx, listInput)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects with prefix %s: %w", prefix, err)
		}

		for _, obj := range listOutput.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}

		if listOutput.IsTruncated != nil && *listOutput.IsTruncated {
			listInput.ContinuationToken = listOutput.NextContinuationToken
		} else {
			break
		}
	}

	return keys, nil
}

func DeleteFolder(ctx context.Context, client *s3.Client, prefix string) error {
	bucket := util.GetEnv("AWS_BUCKET")

	listInput := &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	}

	for {
		listOutput, err := client.ListObjectsV2(ctx, listInput)
		if err != nil {
			return fmt.Errorf("failed to list objects in folder %s: %w", prefix, err)
		}

		if len(listOutput.Contents) == 0 {
			break
		}

		var objectsToDelete []types.ObjectIdentifier
		for _, obj := range listOutput.Contents {
			objectsToDelete = append(objectsToDelete, types.ObjectIdentifier{
				Key: obj.Key,
			})
		}

		_, err = client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &types.Delete{
				Objects: objectsToDelete,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return fmt.Errorf("failed to delete objects in folder %s: %w", prefix, err)
		}

		if listOutput.IsTruncated != nil && *listOutput.IsTruncated {
			listInput.ContinuationToken = listOutput.NextContinuationToken
		} else {
			break
		}
	}

	return nil
}

// DocumentsFromKeys pairs S3 object keys with the matching document loader.
// Keys with unsupported extensions are skipped and reported back so the
// caller can log them; chunk size comes from the caller's config.
func DocumentsFromKeys(client *s3.Client, keys []string, maxTokens int) ([]loader.Document, []string) {
	bucket := util.GetEnv("AWS_BUCKET")
	s3L := s3loader.NewS3DocumentLoaderWithClient(bucket, client)
	docL := doc.NewDocDocumentLoader(s3L)
	csvL := csv.NewCSVDocumentLoader(s3L)

	docs := make([]loader.Document, 0, len(keys))
	var skipped []string

	for i, key := range keys {
		id := fmt.Sprintf("doc-%d", i+1)
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(key)), ".")

		switch ext {
		case "csv":
			docs = append(docs, loader.NewCSVDocument(loader.NewDocumentParams{
				ID:        id,
				Path:      key,
				MaxTokens: maxTokens,
				Loader:    csvL,
			}))
		case "docx", "odt":
			docs = append(docs, loader.NewTextDocument(loader.NewDocumentParams{
				ID:        id,
				Path:      key,
				MaxTokens: maxTokens,
				Loader:    docL,
			}))
		case "txt", "md":
			docs = append(docs, loader.NewTextDocument(loader.NewDocumentParams{
				ID:        id,
				Path:      key,
				MaxTokens: maxTokens,
				Loader:    s3L,
			}))
		default:
			skipped = append(skipped, key)
		}
	}

	return docs, skipped
}
