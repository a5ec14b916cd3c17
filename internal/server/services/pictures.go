package services

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/poikeeper/internal/common"
	sc "github.com/dmitrijs2005/poikeeper/internal/server/config"
	"github.com/dmitrijs2005/poikeeper/internal/server/fieldmap"
)

const (
	fieldPicture  = "pfp_url"
	presignExpiry = 15 * time.Minute
)

var pictureTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
}

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in, optFns...)
	}

	presignGetObject = func(c *s3.Client, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return s3.NewPresignClient(c).PresignGetObject(ctx, in, optFns...)
	}
)

// PictureService stores POI profile pictures in S3 compatible storage. The
// object key is kept encrypted in the POI's pfp_url field; readers get a
// short-lived presigned URL.
type PictureService struct {
	records *RecordService
	config  *sc.Config
}

func NewPictureService(records *RecordService, config *sc.Config) *PictureService {
	return &PictureService{records: records, config: config}
}

// PictureKey returns a fresh object key for a picture of poiID.
func PictureKey(poiID int64, ext string) string {
	return fmt.Sprintf("pfp/%d/%s%s", poiID, uuid.New(), ext)
}

// CheckPicture validates an upload and returns its file extension.
func CheckPicture(data []byte, maxBytes int64) (string, error) {
	if len(data) == 0 {
		return "", common.NewError(common.ErrBadRequest, "picture is empty")
	}
	if int64(len(data)) > maxBytes {
		return "", common.NewError(common.ErrBadRequest, fmt.Sprintf("picture exceeds %d bytes", maxBytes))
	}
	ext, ok := pictureTypes[http.DetectContentType(data)]
	if !ok {
		return "", common.NewError(common.ErrBadRequest, "picture must be a JPEG or PNG image")
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return "", common.NewError(common.ErrBadRequest, "malformed image payload")
	}
	return ext, nil
}

func (s *PictureService) client(ctx context.Context) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(s.config.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,
			s.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
		o.UsePathStyle = true
	}), nil
}

// Upload stores data as the POI's profile picture and returns the updated
// POI and a presigned URL for the new picture.
func (s *PictureService) Upload(ctx context.Context, userID, poiID int64, data []byte) (*Item, string, error) {
	ext, err := CheckPicture(data, s.config.MaxPictureBytes)
	if err != nil {
		return nil, "", err
	}
	if _, err := s.records.Get(ctx, poiScope(), poiID); err != nil {
		return nil, "", err
	}

	client, err := s.client(ctx)
	if err != nil {
		return nil, "", err
	}

	bucket := s.config.S3Bucket
	key := PictureKey(poiID, ext)
	if _, err := putObject(client, ctx, &s3.PutObjectInput{
		Bucket:        &bucket,
		Key:           &key,
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(http.DetectContentType(data)),
	}); err != nil {
		return nil, "", fmt.Errorf("error storing picture: %w", err)
	}

	item, _, err := s.records.Edit(ctx, userID, poiScope(), poiID, 0, fieldmap.Values{fieldPicture: fieldmap.TextValue(key)})
	if err != nil {
		return nil, "", err
	}

	url, err := s.presign(ctx, client, key)
	if err != nil {
		return nil, "", err
	}
	return item, url, nil
}

// URL returns a presigned GET URL for the POI's current picture.
func (s *PictureService) URL(ctx context.Context, poiID int64) (string, error) {
	poi, err := s.records.Get(ctx, poiScope(), poiID)
	if err != nil {
		return "", err
	}
	key := poi.Values[fieldPicture]
	if key.IsNull() || key.Text() == "" {
		return "", common.NewError(common.ErrorNotFound, "poi has no profile picture")
	}

	client, err := s.client(ctx)
	if err != nil {
		return "", err
	}
	return s.presign(ctx, client, key.Text())
}

func (s *PictureService) presign(ctx context.Context, client *s3.Client, key string) (string, error) {
	bucket := s.config.S3Bucket
	req, err := presignGetObject(client, ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}
