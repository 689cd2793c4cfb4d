package pdfops

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// MaxFetchBytes bounds remote downloads.
const MaxFetchBytes = 200 << 20

// Fetch loads the bytes behind ref. Supported references:
//   - file://path or a plain filesystem path
//   - http(s):// URLs
//   - s3://bucket/key (default AWS credential chain)
//
// An optional #fragment is ignored.
func Fetch(ctx context.Context, ref string) ([]byte, error) {
	if i := strings.Index(ref, "#"); i >= 0 {
		ref = ref[:i]
	}
	switch {
	case strings.HasPrefix(ref, "s3://"):
		return fetchS3(ctx, ref)
	case strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://"):
		return fetchHTTP(ctx, ref)
	default:
		return os.ReadFile(strings.TrimPrefix(ref, "file://"))
	}
}

// IsRemote reports whether ref needs a network fetch.
func IsRemote(ref string) bool {
	return strings.HasPrefix(ref, "s3://") || strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

func fetchHTTP(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}
	return readLimited(resp.Body)
}

func fetchS3(ctx context.Context, s3url string) ([]byte, error) {
	path := strings.TrimPrefix(s3url, "s3://")
	slash := strings.Index(path, "/")
	if slash <= 0 {
		return nil, fmt.Errorf("invalid s3 url: %s", s3url)
	}
	bucket := path[:slash]
	key := path[slash+1:]

	cfg, err := awscfg.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	cli := s3.NewFromConfig(cfg)

	out, err := cli.GetObject(ctx, &s3.GetObjectInput{Bucket: &bucket, Key: &key})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()
	data, err := readLimited(out.Body)
	if err != nil {
		return nil, err
	}
	log.Info().Str("bucket", bucket).Str("key", key).Int("size", len(data)).Msg("fetched s3 object")
	return data, nil
}

func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxFetchBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxFetchBytes {
		return nil, fmt.Errorf("download exceeds %d bytes", MaxFetchBytes)
	}
	return data, nil
}
