// internal/services/qrcode_service.go
package services

import (
	"bytes"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/sirupsen/logrus"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/protrace/backend/internal/config"
)

// QRCodeService renders a product's identity payload as a scannable PNG and
// stores it. The stored object's URL becomes the product's code-image
// reference; the payload itself stays recomputable from the product record.
type QRCodeService struct {
	s3Client *s3.S3
	cfg      *config.Config
}

// NewQRCodeService always returns a usable service: without AWS credentials
// (or when the session cannot be built) it degrades to local references
// instead of uploading.
func NewQRCodeService(cfg *config.Config) *QRCodeService {
	if cfg.AWS.AccessKeyID == "" {
		return &QRCodeService{cfg: cfg}
	}

	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(cfg.AWS.Region),
		Credentials: credentials.NewStaticCredentials(
			cfg.AWS.AccessKeyID,
			cfg.AWS.SecretAccessKey,
			"",
		),
	})
	if err != nil {
		logrus.WithError(err).Warn("AWS session unavailable, code images will use local references")
		return &QRCodeService{cfg: cfg}
	}

	return &QRCodeService{
		s3Client: s3.New(sess),
		cfg:      cfg,
	}
}

// EncodeAndStore renders payload as a QR PNG, uploads it and returns the
// public image reference. The object is keyed on the identity hash: it is
// unique per product, so no two registrations can ever share (or overwrite)
// a stored image.
func (s *QRCodeService) EncodeAndStore(payload, identityHash string) (string, error) {
	png, err := qrcode.Encode(payload, qrcode.Medium, 512)
	if err != nil {
		return "", fmt.Errorf("failed to encode QR image: %w", err)
	}

	key := fmt.Sprintf("codes/%s.png", identityHash)

	if s.s3Client != nil {
		return s.uploadToS3(png, key)
	}
	return s.localRef(key), nil
}

func (s *QRCodeService) uploadToS3(png []byte, key string) (string, error) {
	_, err := s.s3Client.PutObject(&s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.AWS.S3Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(png),
		ContentType:   aws.String("image/png"),
		ContentLength: aws.Int64(int64(len(png))),
		ACL:           aws.String("public-read"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload QR image: %w", err)
	}

	return s.objectURL(key), nil
}

func (s *QRCodeService) objectURL(key string) string {
	if s.cfg.AWS.CloudFrontURL != "" {
		return fmt.Sprintf("%s/%s", s.cfg.AWS.CloudFrontURL, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s",
		s.cfg.AWS.S3Bucket, s.cfg.AWS.Region, key)
}

func (s *QRCodeService) localRef(key string) string {
	return fmt.Sprintf("http://%s:%s/uploads/%s", s.cfg.Server.Host, s.cfg.Server.Port, key)
}
