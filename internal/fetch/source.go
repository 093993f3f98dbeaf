// Package fetch resolves schema file references to bytes. A reference is
// either a path relative to the importing document's directory or a URL with
// an s3://, gs://, or az:// scheme. One Source is constructed per process and
// shared by both schema resolvers; cloud clients are built lazily on first
// use and reused.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"google.golang.org/api/option"

	"fieldmap/internal/config"
)

// Source reads schema files from local disk or configured object stores.
type Source struct {
	cfg *config.Config

	mu  sync.Mutex
	s3  *s3.Client
	gcs *storage.Client
	az  *azblob.Client
}

// NewSource creates a Source backed by the given configuration. Remote
// schemes whose credentials are absent fail at read time, not here.
func NewSource(cfg *config.Config) *Source {
	if cfg == nil {
		cfg = &config.Config{}
	}
	return &Source{cfg: cfg}
}

// Local returns a Source with no remote credentials configured. Local paths
// work; remote schemes report missing credentials.
func Local() *Source {
	return NewSource(nil)
}

// IsRemote reports whether ref addresses an object store rather than the
// local filesystem.
func IsRemote(ref string) bool {
	return strings.HasPrefix(ref, "s3://") ||
		strings.HasPrefix(ref, "gs://") ||
		strings.HasPrefix(ref, "az://")
}

// Abs canonicalizes ref for reading and caching: remote refs pass through,
// relative local refs are joined onto baseDir.
func (s *Source) Abs(baseDir, ref string) string {
	if IsRemote(ref) || filepath.IsAbs(ref) {
		return ref
	}
	return filepath.Join(baseDir, ref)
}

// Read fetches the bytes behind a canonicalized ref.
func (s *Source) Read(ctx context.Context, ref string) ([]byte, error) {
	switch {
	case strings.HasPrefix(ref, "s3://"):
		return s.readS3(ctx, ref)
	case strings.HasPrefix(ref, "gs://"):
		return s.readGCS(ctx, ref)
	case strings.HasPrefix(ref, "az://"):
		return s.readAzure(ctx, ref)
	}
	if scheme, _, ok := strings.Cut(ref, "://"); ok {
		return nil, fmt.Errorf("unsupported schema source scheme %q in %q", scheme, ref)
	}
	return os.ReadFile(ref) //nolint:gosec // intentional: reading user-specified schema files
}

func (s *Source) readS3(ctx context.Context, ref string) ([]byte, error) {
	bucket, key, err := parseS3Path(ref)
	if err != nil {
		return nil, err
	}
	client, err := s.s3Client()
	if err != nil {
		return nil, err
	}
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get S3 object %q: %w", ref, err)
	}
	defer out.Body.Close() //nolint:errcheck
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read S3 object %q: %w", ref, err)
	}
	return data, nil
}

func (s *Source) s3Client() (*s3.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.s3 != nil {
		return s.s3, nil
	}
	if !s.cfg.S3.Configured() {
		return nil, fmt.Errorf("s3:// sources require FIELDMAP_S3_KEY_ID and FIELDMAP_S3_SECRET")
	}

	opts := s3.Options{
		Region: s.cfg.S3.Region,
		Credentials: credentials.NewStaticCredentialsProvider(
			s.cfg.S3.KeyID, s.cfg.S3.Secret, "",
		),
		UsePathStyle: s.cfg.S3.UsePathStyle,
	}
	if s.cfg.S3.Endpoint != "" {
		endpoint := s.cfg.S3.Endpoint
		if !strings.Contains(endpoint, "://") {
			endpoint = fmt.Sprintf("https://%s", endpoint)
		}
		opts.BaseEndpoint = aws.String(endpoint)
	}

	s.s3 = s3.New(opts)
	return s.s3, nil
}

func (s *Source) readGCS(ctx context.Context, ref string) ([]byte, error) {
	bucket, key, err := parseGCSPath(ref)
	if err != nil {
		return nil, err
	}
	client, err := s.gcsClient(ctx)
	if err != nil {
		return nil, err
	}
	r, err := client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open GCS object %q: %w", ref, err)
	}
	defer r.Close() //nolint:errcheck
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read GCS object %q: %w", ref, err)
	}
	return data, nil
}

func (s *Source) gcsClient(ctx context.Context) (*storage.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gcs != nil {
		return s.gcs, nil
	}

	// Without an explicit key file the client falls back to application
	// default credentials.
	var opts []option.ClientOption
	if s.cfg.GCS.CredentialsFile != "" {
		opts = append(opts, option.WithAuthCredentialsFile(option.ServiceAccount, s.cfg.GCS.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	s.gcs = client
	return s.gcs, nil
}

func (s *Source) readAzure(ctx context.Context, ref string) ([]byte, error) {
	container, blob, err := parseAzurePath(ref)
	if err != nil {
		return nil, err
	}
	client, err := s.azureClient()
	if err != nil {
		return nil, err
	}
	resp, err := client.DownloadStream(ctx, container, blob, nil)
	if err != nil {
		return nil, fmt.Errorf("download Azure blob %q: %w", ref, err)
	}
	defer resp.Body.Close() //nolint:errcheck
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read Azure blob %q: %w", ref, err)
	}
	return data, nil
}

func (s *Source) azureClient() (*azblob.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.az != nil {
		return s.az, nil
	}
	if !s.cfg.Azure.Configured() {
		return nil, fmt.Errorf("az:// sources require FIELDMAP_AZURE_ACCOUNT_NAME and FIELDMAP_AZURE_ACCOUNT_KEY")
	}

	cred, err := azblob.NewSharedKeyCredential(s.cfg.Azure.AccountName, s.cfg.Azure.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("create shared key credential: %w", err)
	}
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net", s.cfg.Azure.AccountName)
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("create Azure blob client: %w", err)
	}
	s.az = client
	return s.az, nil
}

// parseS3Path extracts bucket and key from an "s3://bucket/path/to/file" URI.
func parseS3Path(ref string) (bucket, key string, err error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", "", fmt.Errorf("parse S3 path %q: %w", ref, err)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("empty bucket in S3 path %q", ref)
	}
	if key == "" {
		return "", "", fmt.Errorf("empty key in S3 path %q", ref)
	}
	return bucket, key, nil
}

// parseGCSPath extracts bucket and key from a "gs://bucket/path/to/file" URI.
func parseGCSPath(ref string) (bucket, key string, err error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", "", fmt.Errorf("parse GCS path %q: %w", ref, err)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("empty bucket in GCS path %q", ref)
	}
	if key == "" {
		return "", "", fmt.Errorf("empty object in GCS path %q", ref)
	}
	return bucket, key, nil
}

// parseAzurePath extracts container and blob from an "az://container/blob" URI.
func parseAzurePath(ref string) (container, blob string, err error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", "", fmt.Errorf("parse Azure path %q: %w", ref, err)
	}
	container = u.Host
	blob = strings.TrimPrefix(u.Path, "/")
	if container == "" {
		return "", "", fmt.Errorf("empty container in Azure path %q", ref)
	}
	if blob == "" {
		return "", "", fmt.Errorf("empty blob in Azure path %q", ref)
	}
	return container, blob, nil
}
