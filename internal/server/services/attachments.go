package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/clinsafe/medledger/internal/common"
	"github.com/clinsafe/medledger/internal/logging"
	sc "github.com/clinsafe/medledger/internal/server/config"
	"github.com/clinsafe/medledger/internal/server/models"
	"github.com/clinsafe/medledger/internal/server/repositories/repomanager"
	"github.com/google/uuid"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// AttachmentService hands out presigned S3 URLs for record documents. The
// document bytes never pass through the portal; only the storage key is kept
// on the record, outside the hash.
type AttachmentService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	config      *sc.Config
	access      AccessLogger
	logger      logging.Logger
}

// NewAttachmentService initializes an AttachmentService.
func NewAttachmentService(db *sql.DB, m repomanager.RepositoryManager, config *sc.Config, access AccessLogger, logger logging.Logger) *AttachmentService {
	return &AttachmentService{
		db:          db,
		repomanager: m,
		config:      config,
		access:      access,
		logger:      logger,
	}
}

// RandomDocumentKey returns a fresh storage key, sharded by upload date.
func RandomDocumentKey() string {
	d := time.Now()
	return fmt.Sprintf("records/%d/%d/%d/%v", d.Year(), d.Month(), d.Day(), uuid.New())
}

func (s *AttachmentService) getPresignClient() (*s3.PresignClient, error) {
	cfg, err := loadDefaultAWSConfig(context.Background(),
		config.WithRegion(s.config.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,     // MINIO_ROOT_USER
			s.config.S3RootPassword, // MINIO_ROOT_PASSWORD
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
	})

	return newS3PresignClient(client), nil
}

// PresignUpload allocates a storage key for the record's document and
// returns it with a presigned PUT URL. The key is written to the record so a
// later download knows where to look.
func (s *AttachmentService) PresignUpload(ctx context.Context, recordID string) (string, string, error) {
	if _, err := s.repomanager.Records(s.db).GetByID(ctx, recordID); err != nil {
		return "", "", err
	}

	presignClient, err := s.getPresignClient()
	if err != nil {
		return "", "", err
	}

	bucket := s.config.S3Bucket
	key := RandomDocumentKey()

	req, err := presignPutObject(presignClient, ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(s.config.S3PresignValidityDuration))
	if err != nil {
		return "", "", err
	}

	if err := s.repomanager.Records(s.db).SetDocumentKey(ctx, recordID, key); err != nil {
		return "", "", err
	}

	return key, req.URL, nil
}

// PresignDownload returns a presigned GET URL for the record's document and
// leaves a download access event behind. A failed access write is logged but
// never fails the download. Patients can only download from their own
// records; a foreign record reads as not found.
func (s *AttachmentService) PresignDownload(ctx context.Context, recordID string, actorID *string, role string, origin models.Origin) (string, error) {
	rec, err := s.repomanager.Records(s.db).GetByID(ctx, recordID)
	if err != nil {
		return "", err
	}
	if role == models.RolePatient && (actorID == nil || rec.PatientID != *actorID) {
		return "", common.ErrorNotFound
	}
	if rec.DocumentKey == "" {
		return "", fmt.Errorf("%w: record has no attachment", common.ErrorNotFound)
	}

	presignClient, err := s.getPresignClient()
	if err != nil {
		return "", err
	}

	bucket := s.config.S3Bucket

	req, err := presignGetObject(presignClient, ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &rec.DocumentKey,
	}, s3.WithPresignExpires(s.config.S3PresignValidityDuration))
	if err != nil {
		return "", err
	}

	if _, err := s.access.LogAccess(ctx, rec.ID, actorID, models.AccessDownload, origin); err != nil {
		s.logger.Warn(ctx, "failed to log document download", "record_id", rec.ID, "error", err)
	}

	return req.URL, nil
}
