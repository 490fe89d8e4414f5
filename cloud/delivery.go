package cloud

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/moyoez/pdfbot-go/store"
	"github.com/moyoez/pdfbot-go/tool"
	"github.com/moyoez/pdfbot-go/types"
)

const DefaultLinkTTL = time.Hour

// Delivery publishes finished artifacts to an S3-compatible bucket and hands out presigned links.
type Delivery struct {
	client  *minio.Client
	bucket  string
	region  string
	linkTTL time.Duration

	mu    sync.Mutex
	ready bool
}

func NewDelivery(cfg types.DeliveryConfig) (*Delivery, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("delivery endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, errors.New("delivery access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errors.New("delivery bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}
	ttl := time.Duration(cfg.LinkTTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = DefaultLinkTTL
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init delivery client: %w", err)
	}
	return &Delivery{client: client, bucket: bucket, region: region, linkTTL: ttl}, nil
}

// ensureBucket checks the bucket until it once succeeds; a failure is retried on the next delivery.
func (d *Delivery) ensureBucket(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ready {
		return nil
	}
	exists, err := d.client.BucketExists(ctx, d.bucket)
	if err != nil {
		return err
	}
	if !exists {
		if err := d.client.MakeBucket(ctx, d.bucket, minio.MakeBucketOptions{Region: d.region}); err != nil {
			return err
		}
	}
	d.ready = true
	return nil
}

// Deliver uploads the live artifact of rec and returns a time-limited download link.
func (d *Delivery) Deliver(ctx context.Context, sess *store.Session, rec *types.FileRecord) (string, error) {
	if err := d.ensureBucket(ctx); err != nil {
		return "", types.ExternalServiceError("result bucket unavailable", err)
	}
	key := objectKey(sess.UserID(), rec)
	_, err := d.client.FPutObject(ctx, d.bucket, key, rec.Path, minio.PutObjectOptions{
		ContentType: contentTypeOf(rec.Name),
	})
	if err != nil {
		return "", types.ExternalServiceError("cannot publish result", err)
	}

	params := url.Values{}
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", rec.Name))
	u, err := d.client.PresignedGetObject(ctx, d.bucket, key, d.linkTTL, params)
	if err != nil {
		return "", types.ExternalServiceError("cannot sign result link", err)
	}
	tool.DefaultLogger.Debugf("Published %s as %s/%s", rec.Name, d.bucket, key)
	return u.String(), nil
}

func objectKey(userID int64, rec *types.FileRecord) string {
	name := strings.TrimLeft(tool.DisplayName("", rec.Name), "/")
	return strconv.FormatInt(userID, 10) + "/" + rec.ID + "/" + name
}
