package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/dmitrijs2005/envelopekeeper/internal/common"
	"github.com/dmitrijs2005/envelopekeeper/internal/dbx"
	"github.com/dmitrijs2005/envelopekeeper/internal/logging"
	"github.com/dmitrijs2005/envelopekeeper/internal/netx"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/auth"
	sc "github.com/dmitrijs2005/envelopekeeper/internal/server/config"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/models"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/repositories/repomanager"
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

	putPresigned = netx.PutPresigned
)

var pdfMagic = []byte("%PDF-")

// DocumentUpload is a registered S3_PATH document and where to PUT its bytes.
type DocumentUpload struct {
	Document  *models.DocumentData `json:"document"`
	UploadURL string               `json:"uploadUrl"`
	ExpiresAt time.Time            `json:"expiresAt"`
}

// DocumentService registers the content envelope items point at. Bytes go
// straight to object storage through presigned URLs or inline as base64.
type DocumentService struct {
	runner      dbx.TxRunner
	repomanager repomanager.RepositoryManager
	config      *sc.Config
	log         logging.Logger
}

func NewDocumentService(runner dbx.TxRunner, m repomanager.RepositoryManager, cfg *sc.Config, log logging.Logger) *DocumentService {
	return &DocumentService{
		runner:      runner,
		repomanager: m,
		config:      cfg,
		log:         log.With("module", "documents"),
	}
}

func GetRandomStorageKey() string {
	d := time.Now().UTC()
	return fmt.Sprintf("documents/%d/%d/%d/%v", d.Year(), d.Month(), d.Day(), uuid.New())
}

func (s *DocumentService) getPresignClient(ctx context.Context) (*s3.PresignClient, error) {
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

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
		o.UsePathStyle = true
	})

	return newS3PresignClient(client), nil
}

func requirePDFMime(mime string) error {
	if mime != models.MimeTypePDF {
		return fmt.Errorf("%w: %q is not %s", common.ErrInvalidFileType, mime, models.MimeTypePDF)
	}
	return nil
}

// requireUnscoped rejects envelope-scoped presign principals, which may only
// read content of their envelope.
func requireUnscoped(p models.Principal) error {
	if p.Scope != "" {
		return fmt.Errorf("%w: token is scoped to one envelope", common.ErrorUnauthorized)
	}
	return nil
}

// owned loads document data visible to p. Content of another owner is
// reported as missing.
func (s *DocumentService) owned(ctx context.Context, tx dbx.DBTX, p models.Principal, id string, lock bool) (*models.DocumentData, error) {
	repo := s.repomanager.DocumentData(tx)
	get := repo.GetByID
	if lock {
		get = repo.GetForUpdate
	}
	d, err := get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !d.OwnedBy(p.UserID, p.TeamID) {
		return nil, fmt.Errorf("%w: document data %s", common.ErrorNotFound, id)
	}
	return d, nil
}

// presignUpload picks a fresh storage key and presigns a PUT for it.
func (s *DocumentService) presignUpload(ctx context.Context, mime string) (key, url string, err error) {
	presignClient, err := s.getPresignClient(ctx)
	if err != nil {
		return "", "", err
	}

	bucket := s.config.S3Bucket
	key = GetRandomStorageKey()

	req, err := presignPutObject(presignClient, ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		ContentType: aws.String(mime),
	}, s3.WithPresignExpires(s.config.UploadURLValidity))
	if err != nil {
		return "", "", fmt.Errorf("presign upload: %w", err)
	}
	return key, req.URL, nil
}

// CreateUpload registers an S3_PATH document and returns a presigned PUT URL
// valid for the configured upload window.
func (s *DocumentService) CreateUpload(ctx context.Context, p models.Principal, mime string, pageCount int) (*DocumentUpload, error) {
	if err := requireUnscoped(p); err != nil {
		return nil, err
	}
	if err := requirePDFMime(mime); err != nil {
		return nil, err
	}
	if pageCount < 0 {
		return nil, fmt.Errorf("%w: page count must be >= 0", common.ErrInvalidRequest)
	}

	key, url, err := s.presignUpload(ctx, mime)
	if err != nil {
		return nil, err
	}

	d := &models.DocumentData{
		ID:        uuid.NewString(),
		Type:      models.DocumentDataS3Path,
		Data:      key,
		MimeType:  mime,
		PageCount: pageCount,
		UserID:    p.UserID,
		TeamID:    p.TeamID,
	}
	if err := s.repomanager.DocumentData(s.runner.Conn()).Create(ctx, d); err != nil {
		return nil, err
	}

	s.log.Info(ctx, "document upload registered", "document_data_id", d.ID, "key", key)
	return &DocumentUpload{Document: d, UploadURL: url, ExpiresAt: time.Now().UTC().Add(s.config.UploadURLValidity)}, nil
}

// Register stores base64 content. The payload must decode and start with the
// PDF signature. Content above InlineDocumentMaxBytes is pushed to S3 and
// stored as S3_PATH instead of inline.
func (s *DocumentService) Register(ctx context.Context, p models.Principal, mime, data string, pageCount int) (*models.DocumentData, error) {
	if err := requireUnscoped(p); err != nil {
		return nil, err
	}
	if err := requirePDFMime(mime); err != nil {
		return nil, err
	}
	if pageCount < 0 {
		return nil, fmt.Errorf("%w: page count must be >= 0", common.ErrInvalidRequest)
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("%w: data is not base64", common.ErrInvalidRequest)
	}
	if !bytes.HasPrefix(raw, pdfMagic) {
		return nil, fmt.Errorf("%w: content is not a PDF", common.ErrInvalidFileType)
	}

	d := &models.DocumentData{
		ID:        uuid.NewString(),
		Type:      models.DocumentDataBytes64,
		Data:      data,
		MimeType:  mime,
		PageCount: pageCount,
		UserID:    p.UserID,
		TeamID:    p.TeamID,
	}

	if limit := s.config.InlineDocumentMaxBytes; limit >= 0 && len(raw) > limit {
		key, url, err := s.presignUpload(ctx, mime)
		if err != nil {
			return nil, err
		}
		if err := putPresigned(ctx, nil, url, mime, raw); err != nil {
			return nil, fmt.Errorf("offload document: %w", err)
		}
		d.Type = models.DocumentDataS3Path
		d.Data = key
		s.log.Info(ctx, "document offloaded to storage", "document_data_id", d.ID, "key", key, "bytes", len(raw))
	}

	if err := s.repomanager.DocumentData(s.runner.Conn()).Create(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// CompleteUpload records the page count once the uploaded bytes are known.
// It runs once: a known page count, or content already attached to an item,
// stays as it is, since fields may have been placed against it.
func (s *DocumentService) CompleteUpload(ctx context.Context, p models.Principal, id string, pageCount int) error {
	if err := requireUnscoped(p); err != nil {
		return err
	}
	if pageCount < 1 {
		return fmt.Errorf("%w: page count must be >= 1", common.ErrInvalidRequest)
	}

	return s.runner.RunInTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		d, err := s.owned(ctx, tx, p, id, true)
		if err != nil {
			return err
		}
		if d.PageCount > 0 {
			return fmt.Errorf("%w: document data %s already has %d pages", common.ErrInvalidRequest, id, d.PageCount)
		}
		used, err := s.repomanager.Items(tx).EnvelopeIDsByDocumentData(ctx, id)
		if err != nil {
			return err
		}
		if len(used) > 0 {
			return fmt.Errorf("%w: document data %s is attached to an item", common.ErrInvalidRequest, id)
		}
		if err := s.repomanager.DocumentData(tx).SetPageCount(ctx, id, pageCount); err != nil {
			return fmt.Errorf("error updating document data: %w", err)
		}
		return nil
	})
}

// DownloadURL returns a presigned GET URL for S3_PATH content. A scoped
// principal may only download content attached to its envelope.
func (s *DocumentService) DownloadURL(ctx context.Context, p models.Principal, id string) (string, error) {
	conn := s.runner.Conn()
	d, err := s.owned(ctx, conn, p, id, false)
	if err != nil {
		return "", err
	}
	if p.Scope != "" {
		used, err := s.repomanager.Items(conn).EnvelopeIDsByDocumentData(ctx, id)
		if err != nil {
			return "", err
		}
		if !auth.ScopeAllows(p.Scope, used...) {
			return "", fmt.Errorf("%w: token is not scoped to an envelope using this document", common.ErrorUnauthorized)
		}
	}
	if d.Type != models.DocumentDataS3Path {
		return "", fmt.Errorf("%w: document %s is stored inline", common.ErrInvalidRequest, id)
	}

	presignClient, err := s.getPresignClient(ctx)
	if err != nil {
		return "", err
	}
	bucket := s.config.S3Bucket
	req, err := presignGetObject(presignClient, ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &d.Data,
	}, s3.WithPresignExpires(s.config.UploadURLValidity))
	if err != nil {
		return "", fmt.Errorf("presign download: %w", err)
	}
	return req.URL, nil
}
